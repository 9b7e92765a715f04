package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProduct() *Product {
	return &Product{
		ID:           "p1",
		Title:        "Red Shirt",
		Categories:   []string{"Shirts"},
		URI:          "/products/red-shirt-p1",
		Availability: InStock,
		LanguageCode: "en",
		Attributes:   map[string]AttributeValue{},
	}
}

func TestProductValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Product)
		wantErr error
	}{
		{name: "valid", mutate: func(p *Product) {}, wantErr: nil},
		{name: "missing id", mutate: func(p *Product) { p.ID = "" }, wantErr: ErrMissingID},
		{name: "missing title", mutate: func(p *Product) { p.Title = "" }, wantErr: ErrMissingTitle},
		{name: "missing uri", mutate: func(p *Product) { p.URI = "" }, wantErr: ErrMissingURI},
		{name: "bad availability", mutate: func(p *Product) { p.Availability = "MAYBE" }, wantErr: ErrInvalidAvailability},
		{name: "missing language", mutate: func(p *Product) { p.LanguageCode = "" }, wantErr: ErrMissingLanguage},
		{
			name:    "negative price",
			mutate:  func(p *Product) { p.PriceInfo = &PriceInfo{CurrencyCode: "USD", Price: -1} },
			wantErr: ErrInvalidPrice,
		},
		{
			name:    "attribute with both arms",
			mutate:  func(p *Product) { p.Attributes["x"] = AttributeValue{Text: []string{"a"}, Numbers: []float64{1}} },
			wantErr: ErrInvalidAttribute,
		},
		{
			name:    "empty attribute",
			mutate:  func(p *Product) { p.Attributes["x"] = AttributeValue{} },
			wantErr: ErrInvalidAttribute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProduct()
			tt.mutate(p)
			assert.ErrorIs(t, p.Validate(), tt.wantErr)
		})
	}
}

func TestProductClone(t *testing.T) {
	p := validProduct()
	p.Brands = []string{"Acme"}
	p.PriceInfo = &PriceInfo{CurrencyCode: "USD", Price: 10}
	p.SetText("color", "red")
	p.SetNumbers("weight", 1.5)

	c := p.Clone()
	require.Equal(t, p, c)

	c.Categories[0] = "Changed"
	c.Brands[0] = "Other"
	c.PriceInfo.Price = 99
	c.Attributes["color"].Text[0] = "blue"
	c.SetText("new", "value")

	assert.Equal(t, "Shirts", p.Categories[0])
	assert.Equal(t, "Acme", p.Brands[0])
	assert.Equal(t, 10.0, p.PriceInfo.Price)
	assert.Equal(t, "red", p.Attributes["color"].Text[0])
	assert.False(t, p.HasAttribute("new"))
}

func TestSourceTextAttributes(t *testing.T) {
	p := validProduct()
	p.SetText("color", "red")
	p.SetNumbers("weight", 2)
	p.SetText(AttrSparseEmbedding, "shirt:1.0000")

	got := p.SourceTextAttributes()
	assert.Equal(t, map[string][]string{"color": {"red"}}, got)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in     string
		want   Format
		wantOK bool
	}{
		{"vertex", FormatVertex, true},
		{"Vertex-Like", FormatVertex, true},
		{"generic", FormatGeneric, true},
		{"auto", "", false},
		{"xml", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseFormat(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}
