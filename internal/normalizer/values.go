package normalizer

import (
	"strings"
	"unicode"

	json "github.com/goccy/go-json"
	"github.com/spf13/cast"

	"github.com/dshills/catalogconv/pkg/types"
)

var inStockWords = map[string]struct{}{
	"in_stock": {}, "instock": {}, "available": {}, "yes": {}, "true": {},
	"limited": {}, "limited_availability": {}, "preorder": {}, "pre_order": {},
	"backorder": {}, "back_order": {},
}

var outOfStockWords = map[string]struct{}{
	"out_of_stock": {}, "outofstock": {}, "sold_out": {}, "soldout": {},
	"unavailable": {}, "discontinued": {}, "no": {}, "false": {},
}

// statusValue interprets an explicit availability field
func statusValue(v any) (types.Availability, bool) {
	switch s := v.(type) {
	case bool:
		if s {
			return types.InStock, true
		}
		return types.OutOfStock, true
	case string:
		key := strings.ToLower(strings.TrimSpace(s))
		key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
		if _, ok := inStockWords[key]; ok {
			return types.InStock, true
		}
		if _, ok := outOfStockWords[key]; ok {
			return types.OutOfStock, true
		}
		return "", false
	default:
		return inventoryValue(v)
	}
}

// inventoryValue interprets a stock count
func inventoryValue(v any) (types.Availability, bool) {
	n, err := cast.ToFloat64E(v)
	if err != nil {
		return "", false
	}
	if n > 0 {
		return types.InStock, true
	}
	return types.OutOfStock, true
}

var priceAmountKeys = []string{"amount", "value", "price", "current"}
var priceCurrencyKeys = []string{"currency", "currency_code", "currencyCode"}

// priceValue extracts a price and an optional currency from a number,
// a formatted string or a price object.
func priceValue(v any) (float64, string, bool) {
	switch p := v.(type) {
	case map[string]any:
		amount, _, ok := lookup(p, priceAmountKeys)
		if !ok {
			return 0, "", false
		}
		price, _, ok := priceValue(amount)
		if !ok {
			return 0, "", false
		}
		currency := ""
		if c, _, ok := lookup(p, priceCurrencyKeys); ok {
			currency = cast.ToString(c)
		}
		return price, currency, true
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) || r == '.' || r == '-' {
				return r
			}
			return -1
		}, p)
		if cleaned == "" {
			return 0, "", false
		}
		f, err := cast.ToFloat64E(cleaned)
		if err != nil || f < 0 {
			return 0, "", false
		}
		return f, "", true
	case bool:
		return 0, "", false
	default:
		f, err := cast.ToFloat64E(p)
		if err != nil || f < 0 {
			return 0, "", false
		}
		return f, "", true
	}
}

// stringList flattens a string, a separated string or an array into values
func stringList(v any, seps string) []string {
	var out []string
	switch s := v.(type) {
	case []any:
		for _, item := range s {
			if item == nil {
				continue
			}
			if str, err := cast.ToStringE(item); err == nil {
				out = append(out, str)
			}
		}
	case []string:
		out = append(out, s...)
	default:
		str, err := cast.ToStringE(v)
		if err != nil {
			return nil
		}
		if seps == "" {
			out = []string{str}
		} else {
			out = strings.FieldsFunc(str, func(r rune) bool {
				return strings.ContainsRune(seps, r)
			})
		}
	}
	return out
}

// dedupe trims, collapses whitespace and removes case-insensitive duplicates
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.Join(strings.Fields(v), " ")
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

// attributeValue converts a source attribute into the typed union
func attributeValue(v any) (types.AttributeValue, bool) {
	switch a := v.(type) {
	case nil:
		return types.AttributeValue{}, false
	case bool:
		return types.AttributeValue{Text: []string{cast.ToString(a)}}, true
	case string:
		a = strings.TrimSpace(a)
		if a == "" {
			return types.AttributeValue{}, false
		}
		return types.AttributeValue{Text: []string{a}}, true
	case []any:
		if len(a) == 0 {
			return types.AttributeValue{}, false
		}
		if nums, ok := numberList(a); ok {
			return types.AttributeValue{Numbers: nums}, true
		}
		text := dedupe(stringList(a, ""))
		if len(text) == 0 {
			return types.AttributeValue{}, false
		}
		return types.AttributeValue{Text: text}, true
	case map[string]any:
		// already in canonical {text|numbers} form
		if t, ok := a["text"]; ok && len(a) == 1 {
			if text := stringList(t, ""); len(text) > 0 {
				return types.AttributeValue{Text: text}, true
			}
		}
		if n, ok := a["numbers"].([]any); ok && len(a) == 1 {
			if nums, ok := numberList(n); ok {
				return types.AttributeValue{Numbers: nums}, true
			}
		}
		b, err := json.Marshal(a)
		if err != nil {
			return types.AttributeValue{}, false
		}
		return types.AttributeValue{Text: []string{string(b)}}, true
	default:
		f, err := cast.ToFloat64E(a)
		if err != nil {
			return types.AttributeValue{}, false
		}
		return types.AttributeValue{Numbers: []float64{f}}, true
	}
}

func numberList(items []any) ([]float64, bool) {
	if len(items) == 0 {
		return nil, false
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		switch item.(type) {
		case string, bool, nil, map[string]any, []any:
			return nil, false
		}
		f, err := cast.ToFloat64E(item)
		if err != nil {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

// customValue stores an unmapped field as text
func customValue(v any) (types.AttributeValue, bool) {
	switch c := v.(type) {
	case nil:
		return types.AttributeValue{}, false
	case map[string]any:
		if len(c) == 0 {
			return types.AttributeValue{}, false
		}
		b, err := json.Marshal(c)
		if err != nil {
			return types.AttributeValue{}, false
		}
		return types.AttributeValue{Text: []string{string(b)}}, true
	case []any:
		var text []string
		for _, item := range c {
			if item == nil {
				continue
			}
			if m, ok := item.(map[string]any); ok {
				if b, err := json.Marshal(m); err == nil {
					text = append(text, string(b))
				}
				continue
			}
			if s, err := cast.ToStringE(item); err == nil && strings.TrimSpace(s) != "" {
				text = append(text, strings.TrimSpace(s))
			}
		}
		if len(text) == 0 {
			return types.AttributeValue{}, false
		}
		return types.AttributeValue{Text: text}, true
	default:
		s, err := cast.ToStringE(c)
		if err != nil || strings.TrimSpace(s) == "" {
			return types.AttributeValue{}, false
		}
		return types.AttributeValue{Text: []string{strings.TrimSpace(s)}}, true
	}
}

// attributeKey lowercases and reduces a key to [a-z0-9_]
func attributeKey(key string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(key) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// slug lowercases s and joins its letter and digit runs with hyphens
func slug(s string) string {
	var b strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			hyphen = false
			continue
		}
		if !hyphen && b.Len() > 0 {
			b.WriteByte('-')
			hyphen = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
