package textproc

import "github.com/kljensen/snowball/english"

// Stemmer canonicalizes token variants before aggregation
type Stemmer interface {
	Stem(word string) string
}

type snowballStemmer struct{}

func (snowballStemmer) Stem(word string) string {
	return english.Stem(word, false)
}

type identityStemmer struct{}

func (identityStemmer) Stem(word string) string {
	return word
}

// NewStemmer returns the English Snowball stemmer, or a no-op when disabled
func NewStemmer(enabled bool) Stemmer {
	if enabled {
		return snowballStemmer{}
	}
	return identityStemmer{}
}
