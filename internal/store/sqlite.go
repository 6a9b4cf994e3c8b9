package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "stockpilot/internal/errors"
	"stockpilot/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sku TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		reorder_level INTEGER NOT NULL DEFAULT 0,
		avg_daily_consumption REAL NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS stock_movements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id INTEGER NOT NULL,
		delta INTEGER NOT NULL,
		reason TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (product_id) REFERENCES products(id)
	);

	CREATE INDEX IF NOT EXISTS idx_movements_product_time
		ON stock_movements(product_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_products_sku ON products(sku);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveProduct inserts a new product and fills in its id and timestamps.
func (s *SQLiteStore) SaveProduct(ctx context.Context, p *models.Product) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO products (sku, name, quantity, reorder_level, avg_daily_consumption, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.SKU, p.Name, p.Quantity, p.ReorderLevel, p.AvgDailyConsumption, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperrors.NewStoreError("save", p.SKU, apperrors.ErrDuplicateSKU)
		}
		return apperrors.NewStoreError("save", p.SKU, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return apperrors.NewStoreError("save", p.SKU, err)
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now

	if p.Quantity != 0 {
		// Record initial stock as a movement so consumption-rate queries
		// see a complete history.
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO stock_movements (product_id, delta, reason, created_at)
			VALUES (?, ?, 'initial stock', ?)`, id, p.Quantity, now)
		if err != nil {
			return apperrors.NewStoreError("save", p.SKU, err)
		}
	}
	return nil
}

// GetProduct returns the product with the given id.
func (s *SQLiteStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sku, name, quantity, reorder_level, avg_daily_consumption, created_at, updated_at
		FROM products WHERE id = ?`, id)
	return scanProduct(row)
}

// GetProductBySKU returns the product with the given SKU.
func (s *SQLiteStore) GetProductBySKU(ctx context.Context, sku string) (*models.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sku, name, quantity, reorder_level, avg_daily_consumption, created_at, updated_at
		FROM products WHERE sku = ?`, sku)
	return scanProduct(row)
}

// ListProducts returns products matching the filter, most recently updated first.
func (s *SQLiteStore) ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	query := `
		SELECT id, sku, name, quantity, reorder_level, avg_daily_consumption, created_at, updated_at
		FROM products WHERE 1=1`
	var args []interface{}

	if filter.SKU != "" {
		query += " AND sku = ?"
		args = append(args, filter.SKU)
	}
	if filter.NameContains != "" {
		query += " AND name LIKE ?"
		args = append(args, "%"+filter.NameContains+"%")
	}
	if filter.BelowReorder {
		query += " AND quantity <= reorder_level"
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreError("list", "", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Quantity, &p.ReorderLevel,
			&p.AvgDailyConsumption, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, apperrors.NewStoreError("list", "", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// UpdateProduct updates the mutable fields of a product record.
func (s *SQLiteStore) UpdateProduct(ctx context.Context, p *models.Product) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET name = ?, reorder_level = ?, avg_daily_consumption = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.ReorderLevel, p.AvgDailyConsumption, now, p.ID)
	if err != nil {
		return apperrors.NewStoreError("update", p.SKU, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewStoreError("update", p.SKU, err)
	}
	if n == 0 {
		return apperrors.ErrProductNotFound
	}
	p.UpdatedAt = now
	return nil
}

// AdjustQuantity applies a delta to a product's quantity inside a
// transaction, floors the result at zero, and records the applied delta as a
// stock movement. Returns the post-adjustment product snapshot the caller
// passes to alert evaluation.
func (s *SQLiteStore) AdjustQuantity(ctx context.Context, id int64, delta int, reason string) (*models.Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.NewStoreError("adjust", "", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, sku, name, quantity, reorder_level, avg_daily_consumption, created_at, updated_at
		FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err != nil {
		return nil, err
	}

	newQuantity := p.Quantity + delta
	if newQuantity < 0 {
		newQuantity = 0
	}
	applied := newQuantity - p.Quantity

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE products SET quantity = ?, updated_at = ? WHERE id = ?`,
		newQuantity, now, id); err != nil {
		return nil, apperrors.NewStoreError("adjust", p.SKU, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO stock_movements (product_id, delta, reason, created_at) VALUES (?, ?, ?, ?)`,
		id, applied, reason, now); err != nil {
		return nil, apperrors.NewStoreError("adjust", p.SKU, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewStoreError("adjust", p.SKU, err)
	}

	p.Quantity = newQuantity
	p.UpdatedAt = now
	return p, nil
}

// Movements returns the most recent stock movements for a product.
func (s *SQLiteStore) Movements(ctx context.Context, productID int64, limit int) ([]models.StockMovement, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, delta, COALESCE(reason, ''), created_at
		FROM stock_movements WHERE product_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, productID, limit)
	if err != nil {
		return nil, apperrors.NewStoreError("movements", "", err)
	}
	defer rows.Close()

	var movements []models.StockMovement
	for rows.Next() {
		var m models.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Delta, &m.Reason, &m.CreatedAt); err != nil {
			return nil, apperrors.NewStoreError("movements", "", err)
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ConsumptionRate estimates average daily outflow for a product over the
// trailing window, from negative movements only. Returns 0 when there is no
// consumption history, which callers treat as "use the configured default".
func (s *SQLiteStore) ConsumptionRate(ctx context.Context, productID int64, window time.Duration) (float64, error) {
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	since := time.Now().UTC().Add(-window)

	var consumed sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(-delta) FROM stock_movements
		WHERE product_id = ? AND delta < 0 AND created_at >= ?`,
		productID, since).Scan(&consumed)
	if err != nil {
		return 0, apperrors.NewStoreError("consumption_rate", "", err)
	}
	if !consumed.Valid || consumed.Float64 <= 0 {
		return 0, nil
	}

	days := window.Hours() / 24
	return consumed.Float64 / days, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanProduct(row *sql.Row) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Quantity, &p.ReorderLevel,
		&p.AvgDailyConsumption, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrProductNotFound
	}
	if err != nil {
		return nil, apperrors.NewStoreError("get", "", err)
	}
	return &p, nil
}

// Ensure SQLiteStore implements DataStore
var _ DataStore = (*SQLiteStore)(nil)
