package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"marchenet.tg/app/internal/http/middleware"
	"marchenet.tg/app/internal/http/validation"
	"marchenet.tg/app/internal/modules/inventory"
	"marchenet.tg/app/internal/shared/apperr"
)

// InventoryHandler exposes the operator restock/correction path. Holds and
// commits are driven by the order workflow, never through HTTP.
type InventoryHandler struct {
	Logger *slog.Logger
	DB     *gorm.DB
}

func NewInventoryHandler(logger *slog.Logger, db *gorm.DB) *InventoryHandler {
	return &InventoryHandler{Logger: logger, DB: db}
}

// GET /api/inventory/:product_id (operator only)
func (h *InventoryHandler) Get(c *gin.Context) {
	if _, ok := currentOperator(c); !ok {
		middleware.Fail(c, apperr.ForbiddenErr("Operator identity required."))
		return
	}

	rec, err := inventory.Get(c.Request.Context(), h.DB, c.Param("product_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product_id": rec.ProductID,
		"on_hand":    rec.OnHand,
		"reserved":   rec.Reserved,
		"available":  rec.Available(),
	})
}

type adjustStockInput struct {
	Delta int `json:"delta" binding:"required"`
}

// POST /api/inventory/:product_id/adjust (operator only)
func (h *InventoryHandler) Adjust(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		middleware.Fail(c, apperr.ForbiddenErr("Operator identity required."))
		return
	}

	var in adjustStockInput
	if err := c.ShouldBindJSON(&in); err != nil {
		errs := validation.FromBindError(err, &in)
		middleware.Fail(c, apperr.InvalidErr("Request validation failed.", errs))
		return
	}

	productID := c.Param("product_id")
	if err := inventory.Adjust(c.Request.Context(), h.DB, productID, in.Delta); err != nil {
		fail(c, err)
		return
	}

	h.Logger.InfoContext(c.Request.Context(), "stock adjusted",
		"product_id", productID, "delta", in.Delta, "operator", operator)

	rec, err := inventory.Get(c.Request.Context(), h.DB, productID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product_id": rec.ProductID,
		"on_hand":    rec.OnHand,
		"reserved":   rec.Reserved,
		"available":  rec.Available(),
	})
}
