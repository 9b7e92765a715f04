// Package normalizer maps raw catalog records of unknown shape onto the
// canonical product record.
package normalizer

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/dshills/catalogconv/internal/config"
	"github.com/dshills/catalogconv/internal/retry"
	"github.com/dshills/catalogconv/internal/textproc"
	"github.com/dshills/catalogconv/pkg/types"
)

var (
	// ErrMissingTitle is returned when no title alias carries text
	ErrMissingTitle = types.ErrMissingTitle
	// ErrInvalidRecord is returned when the mapped record fails validation
	ErrInvalidRecord = errors.New("invalid record")
)

// CustomPrefix marks source fields kept verbatim as text attributes
const CustomPrefix = "custom_"

// categorySeparators split a single category string into a path
const categorySeparators = ">|,"

// maxTitleSlug bounds the title part of a derived URI
const maxTitleSlug = 100

// RecordRef locates a record in its source file
type RecordRef struct {
	Source string
	Index  int
}

func (r RecordRef) String() string {
	return r.Source + "#" + strconv.Itoa(r.Index)
}

// Normalizer holds the limits and fallbacks shared by every format variant
type Normalizer struct {
	cfg    config.NormalizeConfig
	promo  []string
	logger *slog.Logger
}

// New creates a normalizer
func New(cfg config.NormalizeConfig, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	promo := make([]string, 0, len(cfg.PromoTerms))
	for _, t := range cfg.PromoTerms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			promo = append(promo, t)
		}
	}
	return &Normalizer{cfg: cfg, promo: promo, logger: logger}
}

// Mapper normalizes records of one format variant. It is resolved once per
// file and safe for concurrent use.
type Mapper struct {
	n      *Normalizer
	format types.Format
	table  *FieldTable
	system map[string]struct{}
}

// ForFormat resolves the mapper for a detected format
func (n *Normalizer) ForFormat(f types.Format) *Mapper {
	table := TableFor(f)
	return &Mapper{
		n:      n,
		format: f,
		table:  table,
		system: table.system(),
	}
}

// Format returns the variant this mapper handles
func (m *Mapper) Format() types.Format {
	return m.format
}

// Normalize maps raw onto a canonical product. Errors caused by the record's
// content are marked permanent since retrying cannot change the outcome.
func (m *Mapper) Normalize(raw map[string]any, ref RecordRef) (*types.Product, error) {
	cfg := m.n.cfg
	p := &types.Product{
		Attributes: make(map[string]types.AttributeValue),
	}

	if v, _, ok := lookup(raw, m.table.Title); ok {
		p.Title = truncate(cleanLine(v), cfg.MaxTitleLength)
	}
	if p.Title == "" {
		return nil, retry.Permanent(fmt.Errorf("%s: %w", ref, ErrMissingTitle))
	}

	if v, _, ok := lookup(raw, m.table.ID); ok {
		p.ID = strings.TrimSpace(stringOf(v))
	}
	if p.ID == "" {
		p.ID = SynthesizeID(ref)
	}

	if v, _, ok := lookup(raw, m.table.Description); ok {
		p.Description = truncate(cleanLine(v), cfg.MaxDescriptionLength)
	}

	p.Categories = m.n.categories(raw, m.table.Categories)
	p.URI = BuildURI(p.Title, p.ID)
	p.Availability = availability(raw, m.table)

	p.LanguageCode = cfg.LanguageCode
	if v, _, ok := lookup(raw, m.table.Language); ok {
		if lang := strings.TrimSpace(stringOf(v)); lang != "" {
			p.LanguageCode = lang
		}
	}

	if v, _, ok := lookup(raw, m.table.Price); ok {
		if price, currency, ok := priceValue(v); ok {
			if currency == "" {
				if c, _, ok := lookup(raw, m.table.Currency); ok {
					currency = stringOf(c)
				}
			}
			currency = strings.ToUpper(strings.TrimSpace(currency))
			if currency == "" {
				currency = cfg.CurrencyCode
			}
			p.PriceInfo = &types.PriceInfo{CurrencyCode: currency, Price: price}
		}
	}

	if v, _, ok := lookup(raw, m.table.Brands); ok {
		if brands := dedupe(stringList(v, ",")); len(brands) > 0 {
			p.Brands = brands
		}
	}

	m.sourceAttributes(raw, p)
	m.customAttributes(raw, p)

	if err := p.Validate(); err != nil {
		return nil, retry.Permanent(fmt.Errorf("%s: %w: %w", ref, ErrInvalidRecord, err))
	}
	return p, nil
}

func (n *Normalizer) categories(raw map[string]any, aliases []string) []string {
	var values []string
	if v, _, ok := lookup(raw, aliases); ok {
		values = dedupe(stringList(v, categorySeparators))
	}

	kept := values[:0]
	for _, c := range values {
		if !n.isPromotional(c) {
			kept = append(kept, c)
		}
	}
	if n.cfg.MaxCategories > 0 && len(kept) > n.cfg.MaxCategories {
		kept = kept[:n.cfg.MaxCategories]
	}
	if len(kept) == 0 {
		return []string{n.cfg.FallbackCategory}
	}
	return kept
}

func (n *Normalizer) isPromotional(category string) bool {
	lower := strings.ToLower(category)
	for _, term := range n.promo {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// availability applies status, then inventory count, then IN_STOCK
func availability(raw map[string]any, t *FieldTable) types.Availability {
	for _, k := range t.Status {
		if v, ok := raw[k]; ok && v != nil {
			if a, ok := statusValue(v); ok {
				return a
			}
		}
	}
	for _, k := range t.Inventory {
		if v, ok := raw[k]; ok && v != nil {
			if a, ok := inventoryValue(v); ok {
				return a
			}
		}
	}
	return types.InStock
}

func (m *Mapper) sourceAttributes(raw map[string]any, p *types.Product) {
	v, _, ok := lookup(raw, m.table.Attributes)
	if !ok {
		return
	}
	attrs, ok := v.(map[string]any)
	if !ok {
		return
	}
	for name, value := range attrs {
		key := attributeKey(name)
		if key == "" || types.IsGeneratedAttribute(key) {
			continue
		}
		if av, ok := attributeValue(value); ok {
			p.Attributes[key] = av
		}
	}
}

func (m *Mapper) customAttributes(raw map[string]any, p *types.Product) {
	for name, value := range raw {
		if _, ok := m.system[name]; ok {
			continue
		}
		key := attributeKey(name)
		if key == "" {
			continue
		}
		if av, ok := customValue(value); ok {
			p.Attributes[CustomPrefix+key] = av
		}
	}
}

// SynthesizeID derives a stable id from the record's position in its source
func SynthesizeID(ref RecordRef) string {
	return "prod-" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(ref.String())).String()
}

// BuildURI derives the product path from title and id
func BuildURI(title, id string) string {
	t := slug(title)
	if r := []rune(t); len(r) > maxTitleSlug {
		t = strings.TrimSuffix(string(r[:maxTitleSlug]), "-")
	}
	i := slug(id)
	switch {
	case t == "":
		return "/products/" + i
	case i == "":
		return "/products/" + t
	}
	return "/products/" + t + "-" + i
}

func cleanLine(v any) string {
	return textproc.CollapseWhitespace(textproc.StripMarkup(stringOf(v)))
}

func stringOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case []any:
		// take the first usable element of a list-valued scalar field
		for _, item := range s {
			if str := stringOf(item); str != "" {
				return str
			}
		}
		return ""
	case map[string]any:
		return ""
	default:
		return cast.ToString(v)
	}
}
