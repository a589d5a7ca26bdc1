package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampedFee(t *testing.T) {
	t.Run("percentage of amount", func(t *testing.T) {
		// 150 bps of 100_00 = 150
		assert.Equal(t, 150, clampedFee(10000, 150, 0, 0))
	})

	t.Run("clamped to minimum", func(t *testing.T) {
		assert.Equal(t, 100, clampedFee(1000, 150, 100, 0))
	})

	t.Run("clamped to maximum", func(t *testing.T) {
		assert.Equal(t, 150000, clampedFee(100000000, 150, 100, 150000))
	})

	t.Run("zero for non positive amount or rate", func(t *testing.T) {
		assert.Equal(t, 0, clampedFee(0, 150, 100, 0))
		assert.Equal(t, 0, clampedFee(-500, 150, 100, 0))
		assert.Equal(t, 0, clampedFee(10000, 0, 100, 0))
	})

	t.Run("zero max means unbounded", func(t *testing.T) {
		assert.Equal(t, 1500000, clampedFee(100000000, 150, 0, 0))
	})
}
