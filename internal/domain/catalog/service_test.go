package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reboul/storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockRepo struct {
	products  map[string]*product.Product
	nextID    int
	createErr error
	lastWrite product.Fields
}

func newMockRepo() *mockRepo {
	return &mockRepo{products: make(map[string]*product.Product)}
}

func (m *mockRepo) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (m *mockRepo) Create(_ context.Context, f product.Fields) (*product.Product, error) {
	m.lastWrite = f
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.nextID++
	p := fromFields(fmt.Sprintf("p%d", m.nextID), f)
	m.products[p.ID] = &p
	return &p, nil
}

func (m *mockRepo) Update(_ context.Context, id string, f product.Fields) (*product.Product, error) {
	m.lastWrite = f
	cur, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	if f.Status == "" {
		f.Status = cur.Status
	}
	p := fromFields(id, f)
	m.products[id] = &p
	return &p, nil
}

func (m *mockRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.products[id]; !ok {
		return product.ErrNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *mockRepo) SetStatus(_ context.Context, id string, status product.Status) error {
	p, ok := m.products[id]
	if !ok {
		return product.ErrNotFound
	}
	p.Status = status
	return nil
}

func fromFields(id string, f product.Fields) product.Product {
	return product.Product{
		ID:          id,
		Name:        f.Name,
		Price:       f.Price,
		Description: f.Description,
		Images:      f.Images,
		Categories:  f.Categories,
		SizeStock:   f.SizeStock,
		Status:      f.Status,
	}
}

type mockUploader struct {
	uploaded  []string
	removed   []string
	uploadErr error
}

func (m *mockUploader) Upload(_ context.Context, _ string) (string, error) {
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	url := fmt.Sprintf("/uploads/img-%d.png", len(m.uploaded)+1)
	m.uploaded = append(m.uploaded, url)
	return url, nil
}

func (m *mockUploader) Remove(_ context.Context, url string) error {
	m.removed = append(m.removed, url)
	return nil
}

// --- Helpers ---

func price(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func validInput() Input {
	return Input{
		Name:       "  Overshirt ",
		Price:      price("89.90"),
		Categories: []int64{1, 1, 2},
		SizeStock:  map[string]any{"S": 3, "M": "2", "L": -5},
	}
}

// --- Tests ---

func TestCreate(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepo()
	svc := NewService(repo, &mockUploader{}, Policy{})

	p, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	assert.Equal(t, "Overshirt", p.Name)
	assert.True(t, decimal.RequireFromString("89.90").Equal(p.Price))
	assert.Equal(t, []int64{1, 2}, p.Categories)
	assert.Equal(t, product.SizeStock{"S": 3, "M": 2, "L": 0}, p.SizeStock)
	assert.Equal(t, product.StatusActive, p.Status)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name      string
		policy    Policy
		mutate    func(in *Input)
		wantField string
	}{
		{
			name:      "missing name",
			mutate:    func(in *Input) { in.Name = "   " },
			wantField: "name",
		},
		{
			name:      "missing price",
			mutate:    func(in *Input) { in.Price = nil },
			wantField: "price",
		},
		{
			name:      "negative price",
			mutate:    func(in *Input) { in.Price = price("-1") },
			wantField: "price",
		},
		{
			name:      "unknown status",
			mutate:    func(in *Input) { in.Status = "archived" },
			wantField: "status",
		},
		{
			name:      "categories required by policy",
			policy:    Policy{RequireCategories: true},
			mutate:    func(in *Input) { in.Categories = nil },
			wantField: "categories",
		},
		{
			name:      "strict stock rejects fractions",
			policy:    Policy{StrictStock: true},
			mutate:    func(in *Input) { in.SizeStock = map[string]any{"S": 1.5} },
			wantField: "sizeStock",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newMockRepo(), &mockUploader{}, tt.policy)
			in := validInput()
			tt.mutate(&in)

			_, err := svc.Create(context.Background(), in)

			var ve *product.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}

func TestCreate_CategoryPolicy(t *testing.T) {
	in := validInput()
	in.Categories = nil

	t.Run("optional", func(t *testing.T) {
		svc := NewService(newMockRepo(), &mockUploader{}, Policy{RequireCategories: false})
		p, err := svc.Create(context.Background(), in)
		require.NoError(t, err)
		assert.Empty(t, p.Categories)
	})

	t.Run("required", func(t *testing.T) {
		svc := NewService(newMockRepo(), &mockUploader{}, Policy{RequireCategories: true})
		_, err := svc.Create(context.Background(), in)
		assert.True(t, product.IsValidation(err))
	})
}

func TestCreate_UploadsInlineImages(t *testing.T) {
	uploads := &mockUploader{}
	svc := NewService(newMockRepo(), uploads, Policy{})

	in := validInput()
	in.Images = []string{"data:image/png;base64,iVBORw0KGgo=", "https://cdn.example.com/a.jpg"}

	p, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"/uploads/img-1.png", "https://cdn.example.com/a.jpg"}, p.Images)
	assert.Empty(t, uploads.removed)
}

func TestCreate_RemovesUploadsWhenWriteFails(t *testing.T) {
	repo := newMockRepo()
	repo.createErr = errors.New("db write failed")
	uploads := &mockUploader{}
	svc := NewService(repo, uploads, Policy{})

	in := validInput()
	in.Images = []string{"data:image/png;base64,AAAA", "data:image/jpeg;base64,BBBB"}

	_, err := svc.Create(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, uploads.uploaded, uploads.removed)
}

func TestCreate_UploadFailureIsUpstream(t *testing.T) {
	uploads := &mockUploader{uploadErr: errors.New("disk full")}
	svc := NewService(newMockRepo(), uploads, Policy{})

	in := validInput()
	in.Images = []string{"data:image/png;base64,AAAA"}

	_, err := svc.Create(context.Background(), in)
	require.ErrorIs(t, err, product.ErrUpstream)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepo()
	svc := NewService(repo, &mockUploader{}, Policy{})

	created, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	require.NoError(t, svc.SetStatus(ctx, created.ID, product.StatusDraft))

	updated, err := svc.Update(ctx, created.ID, Input{
		Name:  "Overshirt v2",
		Price: price("70"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Overshirt v2", updated.Name)
	assert.Empty(t, updated.Categories)
	assert.Equal(t, product.SizeStock{}, updated.SizeStock)
	assert.Equal(t, product.StatusDraft, updated.Status)
}

func TestUpdate_NotFound(t *testing.T) {
	svc := NewService(newMockRepo(), &mockUploader{}, Policy{})

	_, err := svc.Update(context.Background(), "missing", validInput())
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestGetAndDelete_NotFound(t *testing.T) {
	svc := NewService(newMockRepo(), &mockUploader{}, Policy{})

	_, err := svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, product.ErrNotFound)

	err = svc.Delete(context.Background(), "missing")
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepo()
	svc := NewService(repo, &mockUploader{}, Policy{})

	p, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	require.NoError(t, svc.SetStatus(ctx, p.ID, product.StatusDraft))
	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, product.StatusDraft, got.Status)

	err = svc.SetStatus(ctx, p.ID, "hidden")
	assert.True(t, product.IsValidation(err))

	err = svc.SetStatus(ctx, "missing", product.StatusActive)
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestCreate_UploadValidationPassesThrough(t *testing.T) {
	uploads := &mockUploader{uploadErr: &product.ValidationError{Field: "images", Reason: "unsupported type"}}
	svc := NewService(newMockRepo(), uploads, Policy{})

	in := validInput()
	in.Images = []string{"data:image/tiff;base64,AAAA"}

	_, err := svc.Create(context.Background(), in)
	require.True(t, product.IsValidation(err))
	require.NotErrorIs(t, err, product.ErrUpstream)
}
