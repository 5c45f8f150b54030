package orders

import (
	"regexp"
	"strings"
)

var skuRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]{0,63}$`)

// NormalizeSKUs projects line items into a deduplicated, uppercased SKU list
// for the order row. Malformed SKUs are dropped rather than rejected; the
// projection is a search aid, not the source of truth.
func NormalizeSKUs(lines []LineItem) []string {
	if len(lines) == 0 {
		return nil
	}

	seen := map[string]struct{}{}
	out := make([]string, 0, len(lines))

	for _, l := range lines {
		s := strings.TrimSpace(l.SKU)
		if s == "" || !skuRe.MatchString(s) {
			continue
		}
		s = strings.ToUpper(s)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)

		if len(out) >= 100 { // cap
			break
		}
	}

	return out
}
