// Package enrich derives search-support attributes from a canonical product:
// dense vectors from the configured embedder, a sparse keyword vector and a
// readiness score.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/catalogconv/internal/config"
	"github.com/dshills/catalogconv/internal/embedder"
	"github.com/dshills/catalogconv/internal/textproc"
	"github.com/dshills/catalogconv/pkg/types"
)

// ErrEnrichPanic wraps a recovered panic
var ErrEnrichPanic = errors.New("enrichment panicked")

// Sparse component boosts
const (
	GeneralBoost   = 1.0
	TitleBoost     = 2.5
	CategoryBoost  = 2.0
	BrandBoost     = 2.0
	AttributeBoost = 1.5
)

// Readiness weights, summing to 1
const (
	ReadyTitle       = 0.30
	ReadyCategories  = 0.25
	ReadyDescription = 0.20
	ReadyDense       = 0.10
	ReadySparse      = 0.05
	ReadyBrands      = 0.05
	ReadyAttributes  = 0.05
)

// VectorPrecision is the number of decimals kept in emitted vectors
const VectorPrecision = 6

// Enricher computes generated attributes. It is safe for concurrent use when
// its embedder is.
type Enricher struct {
	embedder    embedder.Embedder
	text        *textproc.Processor
	maxKeywords int
	maxSparse   int
}

// New creates an enricher
func New(emb embedder.Embedder, proc *textproc.Processor, cfg config.TextConfig) *Enricher {
	return &Enricher{
		embedder:    emb,
		text:        proc,
		maxKeywords: cfg.MaxKeywords,
		maxSparse:   cfg.MaxSparseFeatures,
	}
}

// Enrich adds the generated attributes to p. On any failure, including a
// panic, p is left exactly as it was.
func (e *Enricher) Enrich(ctx context.Context, p *types.Product) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrEnrichPanic, r)
		}
	}()

	generated, err := e.generate(ctx, p)
	if err != nil {
		return err
	}

	if p.Attributes == nil {
		p.Attributes = make(map[string]types.AttributeValue, len(generated))
	}
	for k, v := range generated {
		p.Attributes[k] = v
	}
	return nil
}

func (e *Enricher) generate(ctx context.Context, p *types.Product) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(types.GeneratedAttributeKeys))

	categories := strings.Join(p.Categories, " ")

	// dense texts in a fixed order: full search text, title, categories
	targets := []struct {
		key  string
		text string
	}{
		{types.AttrDenseEmbedding, SearchText(p)},
		{types.AttrTitleEmbedding, strings.TrimSpace(p.Title)},
		{types.AttrCategoryEmbedding, strings.TrimSpace(categories)},
	}

	var keys, texts []string
	for _, t := range targets {
		if t.text == "" {
			continue
		}
		keys = append(keys, t.key)
		texts = append(texts, t.text)
	}

	if len(texts) > 0 {
		resp, err := e.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
		if err != nil {
			return nil, fmt.Errorf("generate embeddings: %w", err)
		}
		if len(resp.Embeddings) != len(texts) {
			return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
				embedder.ErrProviderFailed, len(resp.Embeddings), len(texts))
		}
		for i, emb := range resp.Embeddings {
			out[keys[i]] = types.AttributeValue{Numbers: roundVector(emb.Vector)}
		}
	}

	sparse := e.Sparse(p)
	if len(sparse) > 0 {
		out[types.AttrSparseEmbedding] = types.AttributeValue{Text: sparse}
	}

	dense := len(texts)
	out[types.AttrReadinessScore] = types.AttributeValue{
		Numbers: []float64{Readiness(p, dense > 0, len(sparse) > 0)},
	}
	out[types.AttrEmbeddingCount] = types.AttributeValue{
		Numbers: []float64{float64(dense)},
	}

	return out, nil
}

// SearchText is the text behind the main dense vector. The title appears
// twice to weight it above the other fields.
func SearchText(p *types.Product) string {
	parts := []string{p.Title, p.Title}
	parts = append(parts, p.Brands...)
	parts = append(parts, p.Categories...)
	parts = append(parts, p.Description)
	return textproc.CollapseWhitespace(strings.Join(parts, " "))
}

// Sparse combines the per-component keyword profiles into ranked
// "term:weight" entries, capped at the configured feature count.
func (e *Enricher) Sparse(p *types.Product) []string {
	brands := strings.Join(p.Brands, " ")
	categories := strings.Join(p.Categories, " ")

	components := []struct {
		boost  float64
		fields []textproc.Field
	}{
		{GeneralBoost, []textproc.Field{
			{Context: textproc.ContextTitle, Text: p.Title},
			{Context: textproc.ContextBrand, Text: brands},
			{Context: textproc.ContextCategory, Text: categories},
			{Context: textproc.ContextDescription, Text: p.Description},
		}},
		{TitleBoost, []textproc.Field{{Context: textproc.ContextTitle, Text: p.Title}}},
		{CategoryBoost, []textproc.Field{{Context: textproc.ContextCategory, Text: categories}}},
		{BrandBoost, []textproc.Field{{Context: textproc.ContextBrand, Text: brands}}},
		{AttributeBoost, []textproc.Field{{Context: textproc.ContextDefault, Text: attributeText(p)}}},
	}

	combined := make(map[string]float64)
	for _, c := range components {
		for _, kw := range e.text.Extract(c.fields, e.maxKeywords) {
			combined[kw.Term] += kw.Weight * c.boost
		}
	}

	ranked := make([]textproc.Keyword, 0, len(combined))
	for term, w := range combined {
		ranked = append(ranked, textproc.Keyword{Term: term, Weight: textproc.Round(w, 4)})
	}
	textproc.SortKeywords(ranked)

	if e.maxSparse > 0 && len(ranked) > e.maxSparse {
		ranked = ranked[:e.maxSparse]
	}

	out := make([]string, len(ranked))
	for i, kw := range ranked {
		out[i] = fmt.Sprintf("%s:%.4f", kw.Term, kw.Weight)
	}
	return out
}

// attributeText joins source text attributes in key order
func attributeText(p *types.Product) string {
	attrs := p.SourceTextAttributes()
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range attrs[k] {
			b.WriteString(v)
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(b.String())
}

// Readiness scores record completeness in [0,1]
func Readiness(p *types.Product, hasDense, hasSparse bool) float64 {
	score := 0.0
	if strings.TrimSpace(p.Title) != "" {
		score += ReadyTitle
	}
	if len(p.Categories) > 0 {
		score += ReadyCategories
	}
	if strings.TrimSpace(p.Description) != "" {
		score += ReadyDescription
	}
	if hasDense {
		score += ReadyDense
	}
	if hasSparse {
		score += ReadySparse
	}
	if len(p.Brands) > 0 {
		score += ReadyBrands
	}
	if len(p.SourceTextAttributes()) > 0 {
		score += ReadyAttributes
	}
	return textproc.Round(min(score, 1), 2)
}

func roundVector(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = textproc.Round(float64(x), VectorPrecision)
	}
	return out
}
