package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("APP_DB_DSN")
	if dsn == "" {
		log.Fatal("APP_DB_DSN environment variable is required")
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get DB: %v", err)
	}

	sql := `
	CREATE TABLE IF NOT EXISTS products (
	  id CHAR(36) NOT NULL,
	  store_id CHAR(36) NOT NULL,
	  name VARCHAR(255) NOT NULL,
	  variant VARCHAR(128) NULL,
	  price_cents INT NOT NULL,
	  currency CHAR(3) NOT NULL DEFAULT 'XOF',
	  active TINYINT(1) NOT NULL DEFAULT 1,
	  PRIMARY KEY (id),
	  KEY ix_products_store_id (store_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS inventory_stocks (
	  product_id CHAR(36) NOT NULL,
	  on_hand INT NOT NULL DEFAULT 0,
	  reserved INT NOT NULL DEFAULT 0,
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (product_id),
	  CONSTRAINT ck_inventory_counters CHECK (on_hand >= 0 AND reserved >= 0 AND reserved <= on_hand)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS coupons (
	  code VARCHAR(64) NOT NULL,
	  percent_off INT NOT NULL DEFAULT 0,
	  amount_off_cents INT NOT NULL DEFAULT 0,
	  active TINYINT(1) NOT NULL DEFAULT 1,
	  expires_at DATETIME(3) NULL,
	  PRIMARY KEY (code)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS orders (
	  id CHAR(36) NOT NULL,
	  number VARCHAR(32) NOT NULL,
	  customer_id CHAR(36) NOT NULL,
	  store_id CHAR(36) NULL,
	  status VARCHAR(32) NOT NULL,
	  payment_status VARCHAR(32) NOT NULL,
	  payment_method VARCHAR(32) NOT NULL,
	  subtotal_cents INT NOT NULL,
	  shipping_cents INT NOT NULL,
	  discount_cents INT NOT NULL,
	  fee_cents INT NOT NULL,
	  total_cents INT NOT NULL,
	  refunded_cents INT NOT NULL DEFAULT 0,
	  currency CHAR(3) NOT NULL,
	  coupon_code VARCHAR(64) NULL,
	  phone VARCHAR(32) NULL,
	  delivery_address_json JSON NOT NULL,
	  billing_address_json JSON NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
	  paid_at DATETIME(3) NULL,
	  cancelled_at DATETIME(3) NULL,
	  delivered_at DATETIME(3) NULL,
	  refunded_at DATETIME(3) NULL,
	  deleted_at DATETIME(3) NULL,
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_orders_number (number),
	  KEY ix_orders_customer_id (customer_id),
	  KEY ix_orders_store_id (store_id),
	  KEY ix_orders_deleted_at (deleted_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS order_lines (
	  id CHAR(36) NOT NULL,
	  order_id CHAR(36) NOT NULL,
	  product_id CHAR(36) NOT NULL,
	  product_name VARCHAR(255) NOT NULL,
	  variant VARCHAR(128) NULL,
	  unit_price_cents INT NOT NULL,
	  quantity INT NOT NULL,
	  line_total_cents INT NOT NULL,
	  currency CHAR(3) NOT NULL,
	  status VARCHAR(32) NOT NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  KEY ix_order_lines_order_id (order_id),
	  KEY ix_order_lines_product_id (product_id),
	  CONSTRAINT fk_order_lines_order FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS order_events (
	  id CHAR(36) NOT NULL,
	  order_id CHAR(36) NOT NULL,
	  actor VARCHAR(64) NOT NULL,
	  action VARCHAR(32) NOT NULL,
	  from_status VARCHAR(32) NOT NULL,
	  to_status VARCHAR(32) NOT NULL,
	  note VARCHAR(255) NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  KEY ix_order_events_order_id (order_id),
	  CONSTRAINT fk_order_events_order FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS payments (
	  id CHAR(36) NOT NULL,
	  order_id CHAR(36) NOT NULL,
	  method VARCHAR(32) NOT NULL,
	  reference VARCHAR(64) NOT NULL,
	  provider_ref VARCHAR(128) NULL,
	  status VARCHAR(32) NOT NULL,
	  amount_cents INT NOT NULL,
	  currency CHAR(3) NOT NULL,
	  phone VARCHAR(32) NULL,
	  refund_of_id CHAR(36) NULL,
	  raw_response JSON NULL,
	  failure_reason VARCHAR(255) NULL,
	  idempotency_key VARCHAR(64) NULL,
	  initiated_at DATETIME(3) NOT NULL,
	  completed_at DATETIME(3) NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_payments_reference (reference),
	  KEY ix_payments_order_id (order_id),
	  KEY ix_payments_provider_ref (provider_ref),
	  KEY ix_payments_refund_of_id (refund_of_id),
	  KEY ix_payments_idem_key (idempotency_key),
	  CONSTRAINT fk_payments_order FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE RESTRICT
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS provider_events (
	  id CHAR(36) NOT NULL,
	  provider VARCHAR(64) NOT NULL,
	  event_id VARCHAR(128) NOT NULL,
	  event_type VARCHAR(64) NOT NULL,
	  payload_json JSON NOT NULL,
	  received_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  processed_at DATETIME(3) NULL,
	  process_error VARCHAR(255) NULL,
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_provider_events_provider_event (provider, event_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`

	if _, err := sqlDB.Exec(sql); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	log.Println("✓ tables created successfully")
}
