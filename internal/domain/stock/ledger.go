package stock

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/reboul/storefront/internal/domain/product"
)

// maxAttempts bounds re-tries when a conditional update misses but a fresh
// read shows enough stock (stock was replenished concurrently).
const maxAttempts = 3

// Repository is the storage side of the ledger.
type Repository interface {
	GetByID(ctx context.Context, id string) (*product.Product, error)
	// DecrementStock atomically subtracts qty from size when at least qty
	// units are present. It reports false without error when the condition
	// did not hold or the product does not exist.
	DecrementStock(ctx context.Context, id, size string, qty int) (*product.Product, bool, error)
}

// Ledger applies stock mutations against the catalog storage.
type Ledger struct {
	repo       Repository
	tracer     trace.Tracer
	decrements metric.Int64Counter
}

// NewLedger creates a Ledger reporting spans and counters to the given
// providers.
func NewLedger(repo Repository, tp trace.TracerProvider, mp metric.MeterProvider) (*Ledger, error) {
	counter, err := mp.Meter("storefront/stock").Int64Counter("stock.decrements",
		metric.WithDescription("Stock decrement attempts by result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create decrement counter")
	}
	return &Ledger{
		repo:       repo,
		tracer:     tp.Tracer("storefront/stock"),
		decrements: counter,
	}, nil
}

// Decrement removes qty units of size from the product and returns the
// updated record. A zero quantity is a read that only checks the size
// exists.
func (l *Ledger) Decrement(ctx context.Context, productID, size string, qty int) (_ *product.Product, rerr error) {
	ctx, span := l.tracer.Start(ctx, "stock.Decrement", trace.WithAttributes(
		attribute.String("product.id", productID),
		attribute.String("stock.size", size),
		attribute.Int("stock.quantity", qty),
	))
	defer func() {
		l.decrements.Add(ctx, 1, metric.WithAttributes(attribute.String("result", resultLabel(rerr))))
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if qty < 0 {
		return nil, ErrInvalidQuantity
	}
	if qty == 0 {
		p, err := l.repo.GetByID(ctx, productID)
		if err != nil {
			return nil, err
		}
		if err := Check(p.SizeStock, size, 0); err != nil {
			return nil, err
		}
		return p, nil
	}

	for range maxAttempts {
		p, applied, err := l.repo.DecrementStock(ctx, productID, size, qty)
		if err != nil {
			return nil, errors.Wrap(err, "decrement stock")
		}
		if applied {
			zctx.From(ctx).Debug("Stock decremented",
				zap.String("product_id", productID),
				zap.String("size", size),
				zap.Int("quantity", qty),
				zap.Int("remaining", p.SizeStock[size]),
			)
			return p, nil
		}

		current, err := l.repo.GetByID(ctx, productID)
		if err != nil {
			return nil, err
		}
		if err := Check(current.SizeStock, size, qty); err != nil {
			return nil, err
		}
	}
	return nil, &ShortageError{Size: size, Requested: qty}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient"
	case errors.Is(err, ErrUnknownSize):
		return "unknown_size"
	case errors.Is(err, product.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
