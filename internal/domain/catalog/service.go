// Package catalog implements the product catalog use cases: validation,
// image resolution and CRUD over the product repository.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/reboul/storefront/internal/domain/product"
	"github.com/reboul/storefront/internal/domain/stock"
)

const dataImagePrefix = "data:image"

// Uploader stores inline images and returns a stable reference URL.
// Payloads it refuses are reported as *product.ValidationError.
type Uploader interface {
	Upload(ctx context.Context, dataURI string) (string, error)
	Remove(ctx context.Context, url string) error
}

// Policy holds the configurable validation rules of the catalog.
type Policy struct {
	// RequireCategories rejects products without at least one category.
	RequireCategories bool
	// StrictStock rejects stock maps with non-integer or negative values
	// instead of coercing them.
	StrictStock bool
}

// Input is the externally supplied representation of a product.
type Input struct {
	Name        string
	Price       *decimal.Decimal
	Description string
	Images      []string
	Categories  []int64
	SizeStock   map[string]any
	Status      product.Status
}

// Service encapsulates catalog business logic.
type Service struct {
	repo    product.Repository
	uploads Uploader
	policy  Policy
}

// NewService creates a catalog Service.
func NewService(repo product.Repository, uploads Uploader, policy Policy) *Service {
	return &Service{
		repo:    repo,
		uploads: uploads,
		policy:  policy,
	}
}

// List returns every product.
func (s *Service) List(ctx context.Context) ([]product.Product, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

// Get returns a single product or product.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*product.Product, error) {
	if strings.TrimSpace(id) == "" {
		return nil, product.ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// Create validates the input, uploads inline images and stores the product.
func (s *Service) Create(ctx context.Context, in Input) (*product.Product, error) {
	fields, err := s.fields(in)
	if err != nil {
		return nil, err
	}
	if fields.Status == "" {
		fields.Status = product.StatusActive
	}

	return s.withImages(ctx, &fields, func() (*product.Product, error) {
		return s.repo.Create(ctx, fields)
	})
}

// Update replaces the mutable fields of an existing product and returns the
// stored record.
func (s *Service) Update(ctx context.Context, id string, in Input) (*product.Product, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	fields, err := s.fields(in)
	if err != nil {
		return nil, err
	}

	return s.withImages(ctx, &fields, func() (*product.Product, error) {
		return s.repo.Update(ctx, id, fields)
	})
}

// Delete removes a product and its category associations.
func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return product.ErrNotFound
	}
	return s.repo.Delete(ctx, id)
}

// SetStatus switches a product between draft and active.
func (s *Service) SetStatus(ctx context.Context, id string, status product.Status) error {
	if !status.Valid() {
		return &product.ValidationError{Field: "status", Reason: fmt.Sprintf("must be %q or %q", product.StatusDraft, product.StatusActive)}
	}
	if strings.TrimSpace(id) == "" {
		return product.ErrNotFound
	}
	return s.repo.SetStatus(ctx, id, status)
}

func (s *Service) fields(in Input) (product.Fields, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return product.Fields{}, &product.ValidationError{Field: "name", Reason: "is required"}
	}
	if in.Price == nil {
		return product.Fields{}, &product.ValidationError{Field: "price", Reason: "is required"}
	}
	if in.Price.IsNegative() {
		return product.Fields{}, &product.ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if s.policy.RequireCategories && len(in.Categories) == 0 {
		return product.Fields{}, &product.ValidationError{Field: "categories", Reason: "at least one category is required"}
	}
	if in.Status != "" && !in.Status.Valid() {
		return product.Fields{}, &product.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", in.Status)}
	}

	if s.policy.StrictStock && !stock.Validate(in.SizeStock) {
		return product.Fields{}, &product.ValidationError{Field: "sizeStock", Reason: "quantities must be non-negative integers"}
	}

	images := make([]string, 0, len(in.Images))
	for _, img := range in.Images {
		if img = strings.TrimSpace(img); img != "" {
			images = append(images, img)
		}
	}

	return product.Fields{
		Name:        name,
		Price:       in.Price.Round(2),
		Description: in.Description,
		Images:      images,
		Categories:  dedupe(in.Categories),
		SizeStock:   stock.Sanitize(in.SizeStock),
		Status:      in.Status,
	}, nil
}

// withImages uploads inline images referenced by fields, runs write, and
// removes the freshly uploaded assets again when write fails.
func (s *Service) withImages(ctx context.Context, fields *product.Fields, write func() (*product.Product, error)) (*product.Product, error) {
	var uploaded []string
	for i, img := range fields.Images {
		if !strings.HasPrefix(img, dataImagePrefix) {
			continue
		}
		url, err := s.uploads.Upload(ctx, img)
		if product.IsValidation(err) {
			s.discard(ctx, uploaded)
			return nil, err
		}
		if err != nil {
			s.discard(ctx, uploaded)
			return nil, fmt.Errorf("upload image %d: %w: %w", i, product.ErrUpstream, err)
		}
		uploaded = append(uploaded, url)
		fields.Images[i] = url
	}

	p, err := write()
	if err != nil {
		s.discard(ctx, uploaded)
		return nil, err
	}
	return p, nil
}

func (s *Service) discard(ctx context.Context, urls []string) {
	for _, url := range urls {
		if err := s.uploads.Remove(ctx, url); err != nil {
			zctx.From(ctx).Warn("Failed to remove orphaned upload",
				zap.String("url", url),
				zap.Error(err),
			)
		}
	}
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
