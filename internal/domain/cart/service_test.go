package cart

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reboul/storefront/internal/domain/product"
	"github.com/reboul/storefront/internal/domain/stock"
	"github.com/reboul/storefront/internal/notify"
)

// --- Mock implementations ---

type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	saves int
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[string][]byte)}
}

func (m *memStore) Load(_ context.Context, session string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[session]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return b, nil
}

func (m *memStore) Save(_ context.Context, session string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[session] = blob
	m.saves++
	return nil
}

func (m *memStore) Delete(_ context.Context, session string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, session)
	return nil
}

type recordedNotice struct {
	session  string
	message  string
	severity notify.Severity
}

type recorder struct {
	mu      sync.Mutex
	notices []recordedNotice
}

func (r *recorder) Show(session, message string, severity notify.Severity) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, recordedNotice{session, message, severity})
	return "id"
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

func (r *recorder) last() recordedNotice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notices[len(r.notices)-1]
}

type catalog map[string]*product.Product

func (c catalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := c[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func testCatalog() catalog {
	return catalog{
		"tee": {
			ID:        "tee",
			Name:      "Tee",
			Price:     decimal.NewFromInt(10),
			SizeStock: product.SizeStock{"M": 4, "L": 0},
			Status:    product.StatusActive,
		},
		"draft": {
			ID:        "draft",
			Name:      "Draft",
			Price:     decimal.NewFromInt(99),
			SizeStock: product.SizeStock{"M": 4},
			Status:    product.StatusDraft,
		},
	}
}

type fixture struct {
	svc   *Service
	store *memStore
	rec   *recorder
}

func newFixture() fixture {
	store := newMemStore()
	rec := &recorder{}
	return fixture{
		svc:   NewService(store, rec, testCatalog(), DefaultPromos),
		store: store,
		rec:   rec,
	}
}

// --- Tests ---

func TestService_AddItemPersistsAndNotifies(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.svc.AddItem(ctx, "s1", "tee", "M", 2)
	require.NoError(t, err)

	c, err := f.svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.Items[0].Quantity)

	assert.Equal(t, 1, f.store.saves)
	assert.Equal(t, recordedNotice{"s1", "Tee added to cart", notify.SeveritySuccess}, f.rec.last())
}

func TestService_AddItemChecksStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.svc.AddItem(ctx, "s1", "tee", "M", 3)
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, "s1", "tee", "M", 2)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)

	_, err = f.svc.AddItem(ctx, "s1", "tee", "L", 1)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)

	_, err = f.svc.AddItem(ctx, "s1", "tee", "XXL", 1)
	require.ErrorIs(t, err, stock.ErrUnknownSize)

	c, err := f.svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, c.TotalItems())
	assert.Equal(t, 1, f.rec.count())
}

func TestService_AddItemRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.svc.AddItem(ctx, "s1", "missing", "M", 1)
	require.ErrorIs(t, err, product.ErrNotFound)

	_, err = f.svc.AddItem(ctx, "s1", "draft", "M", 1)
	require.ErrorIs(t, err, ErrUnavailable)

	_, err = f.svc.AddItem(ctx, "s1", "tee", "M", 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	assert.Zero(t, f.store.saves)
}

func TestService_RemoveMissingItemIsSilent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	c, err := f.svc.RemoveItem(ctx, "s1", "tee", "M")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.Zero(t, f.store.saves)
	assert.Zero(t, f.rec.count())
}

func TestService_UpdateQuantity(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.svc.AddItem(ctx, "s1", "tee", "M", 1)
	require.NoError(t, err)

	c, err := f.svc.UpdateQuantity(ctx, "s1", "tee", "M", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Items[0].Quantity)

	_, err = f.svc.UpdateQuantity(ctx, "s1", "tee", "M", -2)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	c, err = f.svc.UpdateQuantity(ctx, "s1", "tee", "M", 0)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestService_UpdateQuantityChecksStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.svc.AddItem(ctx, "s1", "tee", "M", 2)
	require.NoError(t, err)
	saves := f.store.saves

	_, err = f.svc.UpdateQuantity(ctx, "s1", "tee", "M", 5)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
	assert.Equal(t, saves, f.store.saves)

	c, err := f.svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Items[0].Quantity)

	c, err = f.svc.UpdateQuantity(ctx, "s1", "tee", "M", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Items[0].Quantity)

	// Items not in the cart stay a silent no-op, even for unknown products.
	_, err = f.svc.UpdateQuantity(ctx, "s1", "ghost", "M", 9)
	require.NoError(t, err)
}

func TestService_ApplyPromo(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	c, err := f.svc.ApplyPromo(ctx, "s1", "WELCOME10")
	require.NoError(t, err)
	assert.Equal(t, 10, c.PromoDiscount)
	saves := f.store.saves

	c, err = f.svc.ApplyPromo(ctx, "s1", "NOPE")
	require.ErrorIs(t, err, ErrInvalidPromo)
	assert.Equal(t, "WELCOME10", c.PromoCode)
	assert.Equal(t, saves, f.store.saves)
	assert.Equal(t, notify.SeverityError, f.rec.last().severity)

	c, err = f.svc.RemovePromo(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, c.PromoCode)
}

func TestService_Clear(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.svc.AddItem(ctx, "s1", "tee", "M", 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.Clear(ctx, "s1"))

	_, err = f.store.Load(ctx, "s1")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_UnreadableBlobResets(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.store.Save(ctx, "s1", []byte("not json")))

	c, err := f.svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

type failingStore struct{ *memStore }

func (f *failingStore) Save(context.Context, string, []byte) error {
	return errors.New("redis down")
}

func TestService_SaveFailure(t *testing.T) {
	store := &failingStore{memStore: newMemStore()}
	rec := &recorder{}
	svc := NewService(store, rec, testCatalog(), DefaultPromos)

	_, err := svc.AddItem(context.Background(), "s1", "tee", "M", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save cart")
	assert.Zero(t, rec.count())
}

func TestService_ConcurrentAddsSerializePerSession(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	products := catalog{
		"tee": {
			ID:        "tee",
			Name:      "Tee",
			Price:     decimal.NewFromInt(10),
			SizeStock: product.SizeStock{"M": 1000},
			Status:    product.StatusActive,
		},
	}
	svc := NewService(store, &recorder{}, products, DefaultPromos)

	var wg sync.WaitGroup
	for range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddItem(ctx, "shared", "tee", "M", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := svc.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, 40, c.TotalItems())
}

type promoSource struct {
	promos Static
	err    error
}

func (p promoSource) Promos(context.Context) (Static, error) {
	return p.promos, p.err
}

func TestLiveTable(t *testing.T) {
	ctx := context.Background()

	table := NewLiveTable(promoSource{promos: Static{"vip50": 50, "broken": 150}}, DefaultPromos)
	_, ok := table.Percent("VIP50")
	require.False(t, ok)

	n, err := table.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pct, ok := table.Percent("vip50")
	require.True(t, ok)
	assert.Equal(t, 50, pct)
	_, ok = table.Percent("WELCOME10")
	assert.False(t, ok)

	failing := NewLiveTable(promoSource{err: errors.New("db down")}, DefaultPromos)
	_, err = failing.Refresh(ctx)
	require.Error(t, err)
	_, ok = failing.Percent("WELCOME10")
	assert.True(t, ok)
}
