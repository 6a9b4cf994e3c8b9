// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"stockpilot/internal/models"
)

// DataStore defines the interface for inventory persistence. It supplies
// product snapshots and applies quantity mutations; the caller runs alert
// evaluation on the returned snapshot afterwards.
type DataStore interface {
	// Products
	SaveProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*models.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error)
	UpdateProduct(ctx context.Context, p *models.Product) error

	// Stock
	AdjustQuantity(ctx context.Context, id int64, delta int, reason string) (*models.Product, error)
	Movements(ctx context.Context, productID int64, limit int) ([]models.StockMovement, error)
	ConsumptionRate(ctx context.Context, productID int64, window time.Duration) (float64, error)

	// Lifecycle
	Close() error
}

// ProductFilter represents filters for querying products.
type ProductFilter struct {
	SKU          string
	NameContains string
	BelowReorder bool
	Limit        int
}
