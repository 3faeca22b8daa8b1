// Package handler exposes the catalog, upload and cart use cases over a
// JSON HTTP API.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/currency"

	"github.com/reboul/storefront/internal/domain/cart"
	"github.com/reboul/storefront/internal/domain/catalog"
	"github.com/reboul/storefront/internal/domain/product"
	"github.com/reboul/storefront/internal/notify"
)

// Catalog is the product use case surface.
type Catalog interface {
	List(ctx context.Context) ([]product.Product, error)
	Get(ctx context.Context, id string) (*product.Product, error)
	Create(ctx context.Context, in catalog.Input) (*product.Product, error)
	Update(ctx context.Context, id string, in catalog.Input) (*product.Product, error)
	Delete(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, status product.Status) error
}

// StockLedger applies stock decrements.
type StockLedger interface {
	Decrement(ctx context.Context, productID, size string, qty int) (*product.Product, error)
}

// Categories lists product categories.
type Categories interface {
	List(ctx context.Context) ([]product.Category, error)
}

// Images stores uploaded files.
type Images interface {
	Save(ctx context.Context, dataURI string) (string, error)
	Delete(ctx context.Context, name string) error
	URL(name string) string
}

// Carts runs cart transitions per session.
type Carts interface {
	Get(ctx context.Context, session string) (*cart.Cart, error)
	AddItem(ctx context.Context, session, productID, size string, qty int) (*cart.Cart, error)
	RemoveItem(ctx context.Context, session, productID, size string) (*cart.Cart, error)
	UpdateQuantity(ctx context.Context, session, productID, size string, qty int) (*cart.Cart, error)
	ApplyPromo(ctx context.Context, session, code string) (*cart.Cart, error)
	RemovePromo(ctx context.Context, session string) (*cart.Cart, error)
	Clear(ctx context.Context, session string) error
}

// Toasts exposes the notifications of a session.
type Toasts interface {
	List(session string) []notify.Toast
	Dismiss(session, id string) bool
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// Currency is used to render cart totals.
	Currency currency.Unit
}

// Deps are the use cases the Handler delegates to.
type Deps struct {
	Catalog    Catalog
	Stock      StockLedger
	Categories Categories
	Images     Images
	Carts      Carts
	Toasts     Toasts
}

// Handler serves the /api routes.
type Handler struct {
	catalog    Catalog
	stock      StockLedger
	categories Categories
	images     Images
	carts      Carts
	toasts     Toasts
	currency   currency.Unit
}

// New constructs a Handler.
func New(cfg Config, deps Deps) *Handler {
	cur := cfg.Currency
	if cur == (currency.Unit{}) {
		cur = currency.EUR
	}
	return &Handler{
		catalog:    deps.Catalog,
		stock:      deps.Stock,
		categories: deps.Categories,
		images:     deps.Images,
		carts:      deps.Carts,
		toasts:     deps.Toasts,
		currency:   cur,
	}
}

// Mount registers every API route on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Post("/", h.createProduct)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getProduct)
				r.Put("/", h.updateProduct)
				r.Delete("/", h.deleteProduct)
				r.Patch("/status", h.setStatus)
				r.Post("/stock/decrement", h.decrementStock)
			})
		})
		r.Get("/categories", h.listCategories)

		r.Post("/upload", h.upload)
		r.Delete("/upload/{filename}", h.deleteUpload)

		r.Route("/cart", func(r chi.Router) {
			r.Use(withSession)
			r.Get("/", h.getCart)
			r.Delete("/", h.clearCart)
			r.Post("/items", h.addItem)
			r.Put("/items", h.updateItem)
			r.Delete("/items/{productID}/{size}", h.removeItem)
			r.Post("/promo", h.applyPromo)
			r.Delete("/promo", h.removePromo)
			r.Get("/notifications", h.listNotifications)
			r.Delete("/notifications/{toastID}", h.dismissNotification)
		})
	})
}

// Router returns a chi router with the API mounted and middlewares applied
// in order.
func (h *Handler) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares...)
	h.Mount(r)
	return r
}
