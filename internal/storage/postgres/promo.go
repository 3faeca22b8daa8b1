package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reboul/storefront/internal/domain/cart"
)

const (
	listPromosSQL = `SELECT code, percent FROM promo_codes`

	upsertPromoSQL = `INSERT INTO promo_codes (code, percent) VALUES (UPPER($1), $2)
		ON CONFLICT (code) DO UPDATE SET percent = EXCLUDED.percent`
)

var _ cart.PromoSource = (*PromoRepository)(nil)

// PromoRepository stores promo codes and serves them as a cart.PromoSource.
type PromoRepository struct {
	pool *pgxpool.Pool
}

// NewPromoRepository returns a PromoRepository that uses the given pool.
func NewPromoRepository(pool *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{pool: pool}
}

// Promos returns every stored promo code.
func (r *PromoRepository) Promos(ctx context.Context) (cart.Static, error) {
	rows, err := r.pool.Query(ctx, listPromosSQL)
	if err != nil {
		return nil, fmt.Errorf("listing promo codes: %w", err)
	}
	defer rows.Close()

	promos := make(cart.Static)
	for rows.Next() {
		var (
			code    string
			percent int
		)
		if err := rows.Scan(&code, &percent); err != nil {
			return nil, fmt.Errorf("scanning promo code: %w", err)
		}
		promos[code] = percent
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing promo codes: %w", err)
	}
	return promos, nil
}

// Upsert stores the given codes, replacing the percentage of existing ones.
// All codes are written in a single batch.
func (r *PromoRepository) Upsert(ctx context.Context, promos cart.Static) error {
	if len(promos) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for code, percent := range promos {
		if !cart.ValidPercent(percent) {
			return fmt.Errorf("promo code %q: percent %d out of range", code, percent)
		}
		batch.Queue(upsertPromoSQL, cart.NormalizeCode(code), percent)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d promo codes: %w", len(promos), err)
	}
	return nil
}
