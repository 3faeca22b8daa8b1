package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reboul/storefront/internal/domain/product"
	"github.com/reboul/storefront/internal/domain/stock"
)

const (
	selectProductSQL = `SELECT p.id::text, p.name, p.price, p.description, p.images, p.size_stock, p.status,
			p.created_at, p.updated_at,
			COALESCE(array_agg(pc.category_id ORDER BY pc.category_id)
				FILTER (WHERE pc.category_id IS NOT NULL), '{}')::bigint[]
		FROM products p
		LEFT JOIN products_categories pc ON pc.product_id = p.id`

	listProductsSQL = selectProductSQL + ` GROUP BY p.id ORDER BY p.created_at, p.id`

	getProductByIDSQL = selectProductSQL + ` WHERE p.id = $1 GROUP BY p.id`

	insertProductSQL = `INSERT INTO products (name, price, description, images, size_stock, status)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id::text`

	updateProductSQL = `UPDATE products
		SET name = $2, price = $3, description = $4, images = $5, size_stock = $6,
			status = COALESCE(NULLIF($7, ''), status), updated_at = now()
		WHERE id = $1`

	deleteCategoriesSQL = `DELETE FROM products_categories WHERE product_id = $1`

	insertCategoriesSQL = `INSERT INTO products_categories (product_id, category_id)
		SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	setStatusSQL = `UPDATE products SET status = $2, updated_at = now() WHERE id = $1`

	// The size must exist and hold at least the requested units, so
	// concurrent decrements can never take stock below zero.
	decrementStockSQL = `UPDATE products
		SET size_stock = jsonb_set(size_stock, ARRAY[$2::text], to_jsonb((size_stock->>$2)::bigint - $3)),
			updated_at = now()
		WHERE id = $1 AND size_stock ? $2 AND (size_stock->>$2)::bigint >= $3`
)

// foreignKeyViolation is the SQLSTATE raised for unknown category ids.
const foreignKeyViolation = "23503"

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ stock.Repository   = (*ProductRepository)(nil)
)

// ProductRepository implements product.Repository and stock.Repository
// backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products ordered by creation time.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return products, nil
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return getProduct(ctx, r.pool, id)
}

// Create inserts the product and its category links in one transaction.
func (r *ProductRepository) Create(ctx context.Context, f product.Fields) (*product.Product, error) {
	return withTx(ctx, r.pool, func(tx pgx.Tx) (*product.Product, error) {
		var id string
		err := tx.QueryRow(ctx, insertProductSQL,
			f.Name, f.Price, f.Description, images(f.Images), sizeStock(f.SizeStock), string(f.Status),
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("inserting product: %w", err)
		}
		if err := linkCategories(ctx, tx, id, f.Categories); err != nil {
			return nil, err
		}
		return getProduct(ctx, tx, id)
	})
}

// Update replaces the mutable fields and category links of a product. An
// empty status keeps the stored one.
func (r *ProductRepository) Update(ctx context.Context, id string, f product.Fields) (*product.Product, error) {
	if uuid.Validate(id) != nil {
		return nil, product.ErrNotFound
	}
	return withTx(ctx, r.pool, func(tx pgx.Tx) (*product.Product, error) {
		tag, err := tx.Exec(ctx, updateProductSQL,
			id, f.Name, f.Price, f.Description, images(f.Images), sizeStock(f.SizeStock), string(f.Status),
		)
		if err != nil {
			return nil, fmt.Errorf("updating product %q: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return nil, product.ErrNotFound
		}
		if _, err := tx.Exec(ctx, deleteCategoriesSQL, id); err != nil {
			return nil, fmt.Errorf("clearing categories of %q: %w", id, err)
		}
		if err := linkCategories(ctx, tx, id, f.Categories); err != nil {
			return nil, err
		}
		return getProduct(ctx, tx, id)
	})
}

// Delete removes a product. Category links are removed by cascade.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	if uuid.Validate(id) != nil {
		return product.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// SetStatus updates only the status of a product.
func (r *ProductRepository) SetStatus(ctx context.Context, id string, status product.Status) error {
	if uuid.Validate(id) != nil {
		return product.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, setStatusSQL, id, string(status))
	if err != nil {
		return fmt.Errorf("setting status of %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// DecrementStock atomically subtracts qty units of size. It reports false
// when the product is missing, the size is absent or stock is too low.
func (r *ProductRepository) DecrementStock(ctx context.Context, id, size string, qty int) (*product.Product, bool, error) {
	if uuid.Validate(id) != nil {
		return nil, false, nil
	}
	type result struct {
		p       *product.Product
		applied bool
	}
	res, err := withTx(ctx, r.pool, func(tx pgx.Tx) (result, error) {
		tag, err := tx.Exec(ctx, decrementStockSQL, id, size, qty)
		if err != nil {
			return result{}, fmt.Errorf("decrementing stock of %q: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return result{}, nil
		}
		p, err := getProduct(ctx, tx, id)
		if err != nil {
			return result{}, err
		}
		return result{p: p, applied: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	return res.p, res.applied, nil
}

func getProduct(ctx context.Context, q querier, id string) (*product.Product, error) {
	if uuid.Validate(id) != nil {
		return nil, product.ErrNotFound
	}
	rows, err := q.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

func linkCategories(ctx context.Context, q querier, id string, categories []int64) error {
	if len(categories) == 0 {
		return nil
	}
	if _, err := q.Exec(ctx, insertCategoriesSQL, id, categories); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return &product.ValidationError{Field: "categories", Reason: "unknown category"}
		}
		return fmt.Errorf("linking categories of %q: %w", id, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p      product.Product
		status string
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Price, &p.Description, &p.Images, &p.SizeStock, &status,
		&p.CreatedAt, &p.UpdatedAt, &p.Categories,
	)
	if err != nil {
		return product.Product{}, fmt.Errorf("scanning product row: %w", err)
	}
	p.Status = product.Status(status)
	if p.SizeStock == nil {
		p.SizeStock = product.SizeStock{}
	}
	return p, nil
}

func images(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// sizeStock converts to a plain map so pgx encodes it as a JSON object.
func sizeStock(s product.SizeStock) map[string]int {
	if s == nil {
		return map[string]int{}
	}
	return s
}
