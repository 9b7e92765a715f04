// Package parser detects the layout of a JSON product catalog and yields its
// records one at a time.
//
// Accepted top-level shapes are a bare array of product objects, an object
// wrapping the array under "products", "data" or "items", and a single bare
// object treated as one product.
//
// # Strategies
//
// Files at or above the configured streaming threshold are decoded
// incrementally so memory stays flat regardless of catalog size. Smaller
// files are decoded in one pass. When the binary is built with the
// "nostream" tag the incremental decoder is absent and every file is
// decoded whole; large files then log a warning instead of failing.
//
// # Basic Usage
//
//	sel := parser.NewSelector(cfg.Processing, logger)
//	res, err := sel.Open("catalog.json")
//	if err != nil {
//	    return err
//	}
//	defer res.Records.Close()
//
//	for {
//	    raw, err := res.Records.Next()
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    ...
//	}
//
// Format detection is heuristic and never fails: a "products" wrapper or a
// first record carrying "title" or "categories" selects the vertex variant,
// anything else is generic.
package parser
