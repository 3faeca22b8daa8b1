package stock

import (
	"encoding/json"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reboul/storefront/internal/domain/product"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want bool
	}{
		{name: "empty", raw: map[string]any{}, want: true},
		{name: "nil", raw: nil, want: true},
		{name: "integers", raw: map[string]any{"S": 10, "M": 0}, want: true},
		{name: "integral float", raw: map[string]any{"S": float64(3)}, want: true},
		{name: "json number", raw: map[string]any{"S": json.Number("4")}, want: true},
		{name: "negative", raw: map[string]any{"S": -1}, want: false},
		{name: "fraction", raw: map[string]any{"S": 1.5}, want: false},
		{name: "json fraction", raw: map[string]any{"S": json.Number("1.5")}, want: false},
		{name: "string", raw: map[string]any{"S": "3"}, want: false},
		{name: "null", raw: map[string]any{"S": nil}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Validate(tt.raw))
		})
	}
}

func TestSanitize(t *testing.T) {
	got := Sanitize(map[string]any{
		"S":  -4,
		"M":  "12abc",
		"L":  "abc",
		"XL": 2.9,
		"XS": json.Number("7"),
		"XX": nil,
	})

	assert.Equal(t, product.SizeStock{
		"S":  0,
		"M":  12,
		"L":  0,
		"XL": 2,
		"XS": 7,
		"XX": 0,
	}, got)
	assert.True(t, got.Valid())
}

func TestDecrement(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s := product.SizeStock{"S": 5}
		require.NoError(t, Decrement(s, "S", 3))
		assert.Equal(t, 2, s["S"])
	})

	t.Run("insufficient leaves stock unchanged", func(t *testing.T) {
		s := product.SizeStock{"S": 2}
		err := Decrement(s, "S", 3)
		require.ErrorIs(t, err, ErrInsufficientStock)

		var shortage *ShortageError
		require.True(t, errors.As(err, &shortage))
		assert.Equal(t, 2, shortage.Available)
		assert.Equal(t, 3, shortage.Requested)
		assert.Equal(t, 2, s["S"])
	})

	t.Run("absent size is distinct from zero stock", func(t *testing.T) {
		s := product.SizeStock{"S": 0}
		require.ErrorIs(t, Decrement(s, "M", 1), ErrUnknownSize)
		require.ErrorIs(t, Decrement(s, "S", 1), ErrInsufficientStock)
	})

	t.Run("zero quantity against zero stock", func(t *testing.T) {
		s := product.SizeStock{"S": 0}
		require.NoError(t, Decrement(s, "S", 0))
		assert.Equal(t, 0, s["S"])
	})

	t.Run("negative quantity", func(t *testing.T) {
		s := product.SizeStock{"S": 4}
		require.ErrorIs(t, Decrement(s, "S", -1), ErrInvalidQuantity)
		assert.Equal(t, 4, s["S"])
	})
}
