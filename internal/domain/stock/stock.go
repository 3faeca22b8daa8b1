// Package stock validates and mutates per-size product stock.
package stock

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-faster/errors"

	"github.com/reboul/storefront/internal/domain/product"
)

var (
	// ErrInsufficientStock is returned when a size holds fewer units than requested.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrUnknownSize is returned when the size is not a key of the stock map.
	ErrUnknownSize = errors.New("unknown size")
	// ErrInvalidQuantity is returned for negative quantities.
	ErrInvalidQuantity = errors.New("quantity must not be negative")
)

// ShortageError describes an insufficient stock failure.
type ShortageError struct {
	Size      string
	Available int
	Requested int
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for size %s: %d available, %d requested",
		e.Size, e.Available, e.Requested)
}

// Unwrap allows errors.Is(err, ErrInsufficientStock).
func (e *ShortageError) Unwrap() error { return ErrInsufficientStock }

// Validate reports whether every value of an externally supplied stock map
// is a non-negative integer. An empty or nil map is valid.
func Validate(raw map[string]any) bool {
	for _, v := range raw {
		n, ok := exactInt(v)
		if !ok || n < 0 {
			return false
		}
	}
	return true
}

// Sanitize coerces an externally supplied stock map into a SizeStock. Values
// are parsed by their leading integer; anything non-numeric becomes 0 and
// negatives clamp to 0.
func Sanitize(raw map[string]any) product.SizeStock {
	out := make(product.SizeStock, len(raw))
	for size, v := range raw {
		out[size] = max(0, leadingInt(v))
	}
	return out
}

// Check verifies that qty units of size can be taken from s. A zero quantity
// succeeds for any present size, including one with zero stock.
func Check(s product.SizeStock, size string, qty int) error {
	if qty < 0 {
		return ErrInvalidQuantity
	}
	available, ok := s[size]
	if !ok {
		return errors.Wrapf(ErrUnknownSize, "size %q", size)
	}
	if available < qty {
		return &ShortageError{Size: size, Available: available, Requested: qty}
	}
	return nil
}

// Decrement removes qty units of size from s. On failure s is unchanged.
func Decrement(s product.SizeStock, size string, qty int) error {
	if err := Check(s, size, qty); err != nil {
		return err
	}
	s[size] -= qty
	return nil
}

func exactInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}

func leadingInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return int(n)
	case json.Number:
		return parseLeadingInt(n.String())
	case string:
		return parseLeadingInt(n)
	default:
		return 0
	}
}

// parseLeadingInt reads an optional sign and the digits that follow it,
// ignoring any trailing text: "12abc" is 12, "1.5" is 1, "abc" is 0.
func parseLeadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
