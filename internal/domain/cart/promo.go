package cart

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/go-faster/errors"
)

// PromoTable resolves a promo code to its discount percentage.
type PromoTable interface {
	Percent(code string) (int, bool)
}

// Static is an in-memory PromoTable.
type Static map[string]int

// DefaultPromos is the built-in table used until persisted codes are loaded.
var DefaultPromos = Static{
	"WELCOME10": 10,
	"SUMMER20":  20,
	"WINTER30":  30,
}

// Percent implements PromoTable.
func (s Static) Percent(code string) (int, bool) {
	pct, ok := s[NormalizeCode(code)]
	return pct, ok
}

// NormalizeCode trims and upper-cases a promo code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidPercent reports whether pct is a usable discount.
func ValidPercent(pct int) bool {
	return pct >= 0 && pct <= 100
}

// PromoSource loads the persisted promo codes.
type PromoSource interface {
	Promos(ctx context.Context) (Static, error)
}

// LiveTable is a PromoTable whose contents are swapped on Refresh.
type LiveTable struct {
	src PromoSource
	cur atomic.Pointer[Static]
}

// NewLiveTable creates a LiveTable serving initial until the first
// successful Refresh.
func NewLiveTable(src PromoSource, initial Static) *LiveTable {
	t := &LiveTable{src: src}
	t.cur.Store(&initial)
	return t
}

// Refresh replaces the table with the codes from the source. An empty
// source keeps the current table.
func (t *LiveTable) Refresh(ctx context.Context) (int, error) {
	promos, err := t.src.Promos(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "load promos")
	}
	if len(promos) == 0 {
		return len(*t.cur.Load()), nil
	}
	normalized := make(Static, len(promos))
	for code, pct := range promos {
		if ValidPercent(pct) {
			normalized[NormalizeCode(code)] = pct
		}
	}
	t.cur.Store(&normalized)
	return len(normalized), nil
}

// Percent implements PromoTable.
func (t *LiveTable) Percent(code string) (int, bool) {
	return t.cur.Load().Percent(code)
}
