package textproc

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon holds the closed word lists used by the processor
type Lexicon struct {
	Stopwords     []string            `yaml:"stopwords"`
	Synonyms      map[string][]string `yaml:"synonyms"`
	CommerceTerms []string            `yaml:"commerce_terms"`
	Colors        []string            `yaml:"colors"`
}

// DefaultLexicon returns the built-in word lists
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		Stopwords: []string{
			"a", "an", "and", "are", "as", "at", "be", "but", "by", "for",
			"from", "has", "have", "if", "in", "into", "is", "it", "its",
			"of", "on", "or", "our", "so", "such", "that", "the", "their",
			"then", "there", "these", "they", "this", "to", "was", "we",
			"will", "with", "you", "your", "all", "any", "can", "more",
			"most", "other", "some", "than", "too", "very", "just", "also",
			"only", "own", "same", "each", "both", "few", "not", "no",
		},
		Synonyms: map[string][]string{
			"tv":      {"television"},
			"sofa":    {"couch"},
			"couch":   {"sofa"},
			"laptop":  {"notebook"},
			"phone":   {"smartphone"},
			"sneaker": {"trainer"},
			"pant":    {"trouser"},
			"tee":     {"shirt"},
			"shirt":   {"tee"},
			"hoodie":  {"sweatshirt"},
			"purse":   {"handbag"},
			"bag":     {"tote"},
		},
		CommerceTerms: []string{
			"shirt", "tee", "dress", "jacket", "coat", "pants", "jeans", "shoe",
			"shoes", "sneaker", "boot", "hat", "bag", "watch", "phone", "laptop",
			"tablet", "camera", "headphones", "speaker", "tv", "sofa", "chair",
			"table", "lamp", "bed", "mattress", "wireless", "bluetooth",
			"organic", "leather", "cotton", "waterproof", "premium", "kit", "set",
			"pack", "bundle",
		},
		Colors: []string{
			"black", "white", "red", "blue", "green", "yellow", "orange",
			"purple", "pink", "brown", "gray", "grey", "beige", "navy", "silver",
			"gold", "teal", "maroon", "olive", "ivory",
		},
	}
}

// LoadLexicon loads word lists from a YAML file. Sections absent from the
// file keep their built-in values.
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}

	var file Lexicon
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse lexicon %s: %w", path, err)
	}

	lex := DefaultLexicon()
	if len(file.Stopwords) > 0 {
		lex.Stopwords = file.Stopwords
	}
	if len(file.Synonyms) > 0 {
		lex.Synonyms = file.Synonyms
	}
	if len(file.CommerceTerms) > 0 {
		lex.CommerceTerms = file.CommerceTerms
	}
	if len(file.Colors) > 0 {
		lex.Colors = file.Colors
	}
	return lex, nil
}

func toSet(words []string, norm func(string) string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		set[w] = struct{}{}
		if norm != nil {
			set[norm(w)] = struct{}{}
		}
	}
	return set
}
