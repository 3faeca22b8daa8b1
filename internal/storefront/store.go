// Package storefront is a client of the catalog API that keeps the product
// list a storefront renders.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrSuperseded is returned by a Fetch that was overtaken by a later one.
// Its result is discarded.
var ErrSuperseded = errors.New("fetch superseded by a newer request")

// APIError is a non-2xx answer of the catalog API.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("catalog api: %d %s: %s", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("catalog api: %d %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Product is a catalog entry as served by the API.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Images      []string        `json:"images"`
	Categories  []int64         `json:"categories"`
	SizeStock   map[string]int  `json:"sizeStock"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ProductInput is the body of Add and Update.
type ProductInput struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
	Images      []string        `json:"images,omitempty"`
	Categories  []int64         `json:"categories,omitempty"`
	SizeStock   map[string]int  `json:"sizeStock,omitempty"`
	Status      string          `json:"status,omitempty"`
}

// ProductStore mirrors the catalog product list. Mutations go to the API
// first and are applied locally only when it accepts them.
type ProductStore struct {
	base   string
	client *http.Client

	mu       sync.Mutex
	products []Product
	seq      uint64
	cancel   context.CancelFunc
}

// NewProductStore returns a store talking to the API at baseURL. A nil
// client selects an instrumented default.
func NewProductStore(baseURL string, client *http.Client) *ProductStore {
	if client == nil {
		client = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		}
	}
	return &ProductStore{
		base:   strings.TrimSuffix(baseURL, "/"),
		client: client,
	}
}

// Fetch reloads the product list. Starting a Fetch cancels the one in
// flight; only the most recently started Fetch updates the list.
func (s *ProductStore) Fetch(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	seq := s.seq
	s.cancel = cancel
	s.mu.Unlock()

	var products []Product
	err := s.do(ctx, http.MethodGet, "/api/products", nil, &products)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		return ErrSuperseded
	}
	s.cancel = nil
	if err != nil {
		return errors.Wrap(err, "fetch products")
	}
	s.products = products
	return nil
}

// Products returns a copy of the current list.
func (s *ProductStore) Products() []Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Product(nil), s.products...)
}

// Add creates a product and appends it to the list.
func (s *ProductStore) Add(ctx context.Context, in ProductInput) (*Product, error) {
	var p Product
	if err := s.do(ctx, http.MethodPost, "/api/products", in, &p); err != nil {
		return nil, errors.Wrap(err, "add product")
	}
	s.mu.Lock()
	s.products = append(s.products, p)
	s.mu.Unlock()
	return &p, nil
}

// Update replaces a product and its list entry.
func (s *ProductStore) Update(ctx context.Context, id string, in ProductInput) (*Product, error) {
	var p Product
	if err := s.do(ctx, http.MethodPut, "/api/products/"+url.PathEscape(id), in, &p); err != nil {
		return nil, errors.Wrap(err, "update product")
	}
	s.mu.Lock()
	if i := s.index(id); i >= 0 {
		s.products[i] = p
	}
	s.mu.Unlock()
	return &p, nil
}

// Delete removes a product and its list entry.
func (s *ProductStore) Delete(ctx context.Context, id string) error {
	if err := s.do(ctx, http.MethodDelete, "/api/products/"+url.PathEscape(id), nil, nil); err != nil {
		return errors.Wrap(err, "delete product")
	}
	s.mu.Lock()
	if i := s.index(id); i >= 0 {
		s.products = append(s.products[:i], s.products[i+1:]...)
	}
	s.mu.Unlock()
	return nil
}

// SetStatus switches a product between draft and active.
func (s *ProductStore) SetStatus(ctx context.Context, id, status string) error {
	body := struct {
		Status string `json:"status"`
	}{status}
	if err := s.do(ctx, http.MethodPatch, "/api/products/"+url.PathEscape(id)+"/status", body, nil); err != nil {
		return errors.Wrap(err, "set product status")
	}
	s.mu.Lock()
	if i := s.index(id); i >= 0 {
		s.products[i].Status = status
	}
	s.mu.Unlock()
	return nil
}

// CheckStock returns the units of size held by the listed product, or 0 when
// either is unknown.
func (s *ProductStore) CheckStock(id, size string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(id); i >= 0 {
		return s.products[i].SizeStock[size]
	}
	return 0
}

func (s *ProductStore) index(id string) int {
	for i := range s.products {
		if s.products[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *ProductStore) do(ctx context.Context, method, path string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return errors.Wrap(err, "encode request")
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.base+path, &body)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
