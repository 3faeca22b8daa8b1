package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reboul/storefront/internal/domain/product"
)

const (
	upsertCategorySQL = `INSERT INTO categories (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id`

	listCategoriesSQL = `SELECT id, name FROM categories ORDER BY id`
)

// CategoryRepository manages the categories table.
type CategoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository returns a CategoryRepository that uses the given pool.
func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

// Ensure returns the id of the named category, creating it when missing.
func (r *CategoryRepository) Ensure(ctx context.Context, name string) (int64, error) {
	var id int64
	if err := r.pool.QueryRow(ctx, upsertCategorySQL, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("ensuring category %q: %w", name, err)
	}
	return id, nil
}

// List returns all categories ordered by id.
func (r *CategoryRepository) List(ctx context.Context) ([]product.Category, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	categories, err := pgx.CollectRows(rows, pgx.RowToStructByPos[product.Category])
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return categories, nil
}
