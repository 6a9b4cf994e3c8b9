// Package models defines the core data types for the inventory application.
package models

import "time"

// Product represents an inventory item.
type Product struct {
	ID                  int64     `json:"id"`
	SKU                 string    `json:"sku"`
	Name                string    `json:"name"`
	Quantity            int       `json:"quantity"`
	ReorderLevel        int       `json:"reorder_level"`         // 0 = unset, defaulted at evaluation time
	AvgDailyConsumption float64   `json:"avg_daily_consumption"` // 0 = no history, defaulted at evaluation time
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// StockMovement records a single quantity adjustment for a product.
type StockMovement struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Delta     int       `json:"delta"` // negative = consumption/sale, positive = restock
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
