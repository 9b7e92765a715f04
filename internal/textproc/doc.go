// Package textproc turns the text fields of a canonical product into a
// weighted keyword profile.
//
// # Pipeline
//
//  1. Clean: strip markup and entities, keep characters used in product codes
//  2. Tokenize: lowercase, split, drop short tokens, stopwords and anything
//     that is neither alphabetic nor a small positive integer
//  3. Weight: each occurrence counts its context boost (title > brand >
//     category > description > default) times any pattern boosts
//     (commerce term, size, color, number, brand-like)
//  4. Stem (optional) and aggregate by stem
//  5. Synonyms (optional): a term with configured synonyms injects each
//     absent synonym at half its weight, one level deep
//  6. Rank: weight = weighted frequency / filtered token count, rounded to
//     four decimals, sorted by weight then term, capped
//
// # Usage
//
//	proc := textproc.New(cfg.Text, textproc.DefaultLexicon())
//	kws := proc.Extract([]textproc.Field{
//	    {Context: textproc.ContextTitle, Text: p.Title},
//	    {Context: textproc.ContextDescription, Text: p.Description},
//	}, cfg.Text.MaxKeywords)
package textproc
