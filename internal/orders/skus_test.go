package orders

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSKUs(t *testing.T) {
	t.Parallel()

	lines := func(skus ...string) []LineItem {
		out := make([]LineItem, len(skus))
		for i, s := range skus {
			out[i] = LineItem{SKU: s}
		}
		return out
	}

	t.Run("uppercases and trims", func(t *testing.T) {
		t.Parallel()
		got := NormalizeSKUs(lines(" br-pad-01 ", "OIL.5w30"))
		assert.Equal(t, []string{"BR-PAD-01", "OIL.5W30"}, got)
	})

	t.Run("dedupes case-insensitively", func(t *testing.T) {
		t.Parallel()
		got := NormalizeSKUs(lines("abc", "ABC", "aBc"))
		assert.Equal(t, []string{"ABC"}, got)
	})

	t.Run("drops malformed", func(t *testing.T) {
		t.Parallel()
		got := NormalizeSKUs(lines("", "  ", "-leading-dash", "has space", "ok-1"))
		assert.Equal(t, []string{"OK-1"}, got)
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, NormalizeSKUs(nil))
		assert.Empty(t, NormalizeSKUs([]LineItem{}))
	})

	t.Run("caps at 100", func(t *testing.T) {
		t.Parallel()
		var many []LineItem
		for i := 0; i < 150; i++ {
			many = append(many, LineItem{SKU: fmt.Sprintf("sku-%03d", i)})
		}
		assert.Len(t, NormalizeSKUs(many), 100)
	})
}
