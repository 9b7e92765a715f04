package textproc

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/dshills/catalogconv/internal/config"
)

// Context names the field a token came from
type Context string

const (
	ContextTitle       Context = "title"
	ContextBrand       Context = "brand"
	ContextCategory    Context = "category"
	ContextDescription Context = "description"
	ContextDefault     Context = "default"
)

// Token filter bounds
const (
	MinTokenLength = 2
	MaxNumberToken = 1000 // integers above this are dropped as noise
)

// Pattern boost factors
const (
	CommerceBoost  = 1.5
	SizeBoost      = 1.3
	ColorBoost     = 1.2
	NumberBoost    = 1.1
	BrandLikeBoost = 1.4

	SynonymWeightFactor = 0.5
)

var (
	sizePattern      = regexp.MustCompile(`^(xxs|xs|xl|xxl|xxxl|small|medium|large|petite|plus|regular|tall|slim)$`)
	numberPattern    = regexp.MustCompile(`^[0-9]+$`)
	brandLikePattern = regexp.MustCompile(`^[a-z]+(tech|tronic|tronics|wear|ware|works|labs|corp|inc)$`)
)

// defaultContextBoosts applies when config omits a context
var defaultContextBoosts = map[Context]float64{
	ContextTitle:       3.0,
	ContextBrand:       2.5,
	ContextCategory:    2.0,
	ContextDescription: 1.5,
	ContextDefault:     1.0,
}

// Field is one piece of text with the context it came from
type Field struct {
	Context Context
	Text    string
}

// Keyword is a ranked term
type Keyword struct {
	Term   string
	Weight float64
}

// Processor extracts weighted keyword profiles. It is safe for concurrent use.
type Processor struct {
	stopwords map[string]struct{}
	commerce  map[string]struct{}
	synonyms  map[string][]string
	colors    *regexp.Regexp
	boosts    map[Context]float64
	stemmer   Stemmer
	expand    bool
}

// New creates a processor from text configuration and a lexicon.
// A nil lexicon uses DefaultLexicon.
func New(cfg config.TextConfig, lex *Lexicon) *Processor {
	if lex == nil {
		lex = DefaultLexicon()
	}
	stemmer := NewStemmer(cfg.Stemming)

	boosts := make(map[Context]float64, len(defaultContextBoosts))
	for ctx, b := range defaultContextBoosts {
		boosts[ctx] = b
	}
	for name, b := range cfg.ContextBoosts {
		boosts[Context(strings.ToLower(name))] = b
	}

	synonyms := make(map[string][]string, len(lex.Synonyms))
	for term, syns := range lex.Synonyms {
		key := stemmer.Stem(strings.ToLower(term))
		for _, s := range syns {
			s = stemmer.Stem(strings.ToLower(strings.TrimSpace(s)))
			if s != "" && s != key {
				synonyms[key] = append(synonyms[key], s)
			}
		}
	}

	p := &Processor{
		stopwords: toSet(lex.Stopwords, nil),
		commerce:  toSet(lex.CommerceTerms, stemmer.Stem),
		synonyms:  synonyms,
		boosts:    boosts,
		stemmer:   stemmer,
		expand:    cfg.Synonyms,
	}

	if len(lex.Colors) > 0 {
		quoted := make([]string, 0, len(lex.Colors))
		for _, c := range lex.Colors {
			quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(c)))
		}
		p.colors = regexp.MustCompile(`^(` + strings.Join(quoted, "|") + `)$`)
	}

	return p
}

// Tokens cleans text and returns the filtered, lowercased, unstemmed tokens
func (p *Processor) Tokens(text string) []string {
	cleaned := CleanText(text)
	if cleaned == "" {
		return nil
	}

	words := strings.FieldsFunc(strings.ToLower(cleaned), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if p.keep(w) {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

func (p *Processor) keep(w string) bool {
	if len([]rune(w)) < MinTokenLength {
		return false
	}
	if _, stop := p.stopwords[w]; stop {
		return false
	}
	if isAlpha(w) {
		return true
	}
	if numberPattern.MatchString(w) {
		n, err := strconv.Atoi(w)
		return err == nil && n >= 1 && n <= MaxNumberToken
	}
	return false
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// Stem applies the configured stemmer to alphabetic tokens
func (p *Processor) Stem(token string) string {
	if !isAlpha(token) {
		return token
	}
	return p.stemmer.Stem(token)
}

// ContextBoost returns the weight multiplier for a context
func (p *Processor) ContextBoost(ctx Context) float64 {
	if b, ok := p.boosts[ctx]; ok {
		return b
	}
	return p.boosts[ContextDefault]
}

// PatternBoost returns the product of every pattern factor matching token
func (p *Processor) PatternBoost(token string) float64 {
	boost := 1.0
	if _, ok := p.commerce[token]; ok {
		boost *= CommerceBoost
	} else if _, ok := p.commerce[p.Stem(token)]; ok {
		boost *= CommerceBoost
	}
	if sizePattern.MatchString(token) {
		boost *= SizeBoost
	}
	if p.colors != nil && p.colors.MatchString(token) {
		boost *= ColorBoost
	}
	if numberPattern.MatchString(token) {
		boost *= NumberBoost
	}
	if brandLikePattern.MatchString(token) {
		boost *= BrandLikeBoost
	}
	return boost
}

// Extract builds the ranked keyword profile for fields, capped at limit
// entries (limit <= 0 means uncapped).
func (p *Processor) Extract(fields []Field, limit int) []Keyword {
	raw := make(map[string]float64)
	total := 0

	for _, f := range fields {
		if f.Text == "" {
			continue
		}
		ctxBoost := p.ContextBoost(f.Context)
		for _, tok := range p.Tokens(f.Text) {
			total++
			raw[p.Stem(tok)] += ctxBoost * p.PatternBoost(tok)
		}
	}
	if total == 0 {
		return nil
	}

	weights := make(map[string]float64, len(raw))
	for term, w := range raw {
		weights[term] = w / float64(total)
	}

	if p.expand {
		p.expandSynonyms(weights)
	}

	keywords := make([]Keyword, 0, len(weights))
	for term, w := range weights {
		keywords = append(keywords, Keyword{Term: term, Weight: Round(w, 4)})
	}
	SortKeywords(keywords)

	if limit > 0 && len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}

// expandSynonyms injects synonyms of the aggregated terms at half weight.
// Injected terms are never expanded themselves.
func (p *Processor) expandSynonyms(weights map[string]float64) {
	terms := make([]string, 0, len(weights))
	for term := range weights {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	injected := make(map[string]float64)
	for _, term := range terms {
		for _, syn := range p.synonyms[term] {
			if _, present := weights[syn]; present {
				continue
			}
			if _, present := injected[syn]; present {
				continue
			}
			injected[syn] = weights[term] * SynonymWeightFactor
		}
	}
	for syn, w := range injected {
		weights[syn] = w
	}
}

// SortKeywords orders by weight descending, then term ascending
func SortKeywords(kws []Keyword) {
	sort.Slice(kws, func(i, j int) bool {
		if kws[i].Weight != kws[j].Weight {
			return kws[i].Weight > kws[j].Weight
		}
		return kws[i].Term < kws[j].Term
	})
}

// Round rounds v to the given number of decimal places
func Round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
