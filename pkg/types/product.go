package types

// Availability is the stock state of a product
type Availability string

const (
	InStock    Availability = "IN_STOCK"
	OutOfStock Availability = "OUT_OF_STOCK"
)

// Generated search attribute keys. They are only ever added by the enricher,
// after normalization has succeeded.
const (
	AttrDenseEmbedding    = "dense_embedding"
	AttrTitleEmbedding    = "title_embedding"
	AttrCategoryEmbedding = "category_embedding"
	AttrSparseEmbedding   = "sparse_embedding"
	AttrReadinessScore    = "search_readiness_score"
	AttrEmbeddingCount    = "embedding_count"
)

// GeneratedAttributeKeys lists every key owned by the enricher
var GeneratedAttributeKeys = []string{
	AttrDenseEmbedding,
	AttrTitleEmbedding,
	AttrCategoryEmbedding,
	AttrSparseEmbedding,
	AttrReadinessScore,
	AttrEmbeddingCount,
}

// IsGeneratedAttribute reports whether key is reserved for enrichment output
func IsGeneratedAttribute(key string) bool {
	for _, k := range GeneratedAttributeKeys {
		if k == key {
			return true
		}
	}
	return false
}

// PriceInfo carries a single price point
type PriceInfo struct {
	CurrencyCode string  `json:"currencyCode"`
	Price        float64 `json:"price"`
}

// AttributeValue is a union: exactly one of Text or Numbers is populated
type AttributeValue struct {
	Text    []string  `json:"text,omitempty"`
	Numbers []float64 `json:"numbers,omitempty"`
}

// Validate checks the union invariant
func (a AttributeValue) Validate() error {
	if (len(a.Text) == 0) == (len(a.Numbers) == 0) {
		return ErrInvalidAttribute
	}
	return nil
}

// Product is the canonical commerce record emitted as one output line
type Product struct {
	ID           string                    `json:"id"`
	Title        string                    `json:"title"`
	Categories   []string                  `json:"categories"`
	Description  string                    `json:"description"`
	URI          string                    `json:"uri"`
	Availability Availability              `json:"availability"`
	LanguageCode string                    `json:"languageCode"`
	PriceInfo    *PriceInfo                `json:"priceInfo,omitempty"`
	Brands       []string                  `json:"brands,omitempty"`
	Attributes   map[string]AttributeValue `json:"attributes"`
}

// SetText stores a text attribute
func (p *Product) SetText(key string, values ...string) {
	if p.Attributes == nil {
		p.Attributes = make(map[string]AttributeValue)
	}
	p.Attributes[key] = AttributeValue{Text: values}
}

// SetNumbers stores a numeric attribute
func (p *Product) SetNumbers(key string, values ...float64) {
	if p.Attributes == nil {
		p.Attributes = make(map[string]AttributeValue)
	}
	p.Attributes[key] = AttributeValue{Numbers: values}
}

// HasAttribute reports whether key is present
func (p *Product) HasAttribute(key string) bool {
	_, ok := p.Attributes[key]
	return ok
}

// SourceTextAttributes returns the text values of all non-generated attributes
// in map iteration order. Callers needing stable order must sort.
func (p *Product) SourceTextAttributes() map[string][]string {
	out := make(map[string][]string)
	for k, v := range p.Attributes {
		if IsGeneratedAttribute(k) || len(v.Text) == 0 {
			continue
		}
		out[k] = v.Text
	}
	return out
}

// Clone returns a deep copy so enrichment can work on scratch state
func (p *Product) Clone() *Product {
	c := *p
	c.Categories = append([]string(nil), p.Categories...)
	c.Brands = append([]string(nil), p.Brands...)
	if p.PriceInfo != nil {
		pi := *p.PriceInfo
		c.PriceInfo = &pi
	}
	if p.Attributes != nil {
		c.Attributes = make(map[string]AttributeValue, len(p.Attributes))
		for k, v := range p.Attributes {
			c.Attributes[k] = AttributeValue{
				Text:    append([]string(nil), v.Text...),
				Numbers: append([]float64(nil), v.Numbers...),
			}
		}
	}
	return &c
}

// Validate checks the fields required on every emitted record
func (p *Product) Validate() error {
	if p.ID == "" {
		return ErrMissingID
	}
	if p.Title == "" {
		return ErrMissingTitle
	}
	if p.URI == "" {
		return ErrMissingURI
	}
	if p.Availability != InStock && p.Availability != OutOfStock {
		return ErrInvalidAvailability
	}
	if p.LanguageCode == "" {
		return ErrMissingLanguage
	}
	if p.PriceInfo != nil && (p.PriceInfo.Price < 0 || p.PriceInfo.CurrencyCode == "") {
		return ErrInvalidPrice
	}
	for _, v := range p.Attributes {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
