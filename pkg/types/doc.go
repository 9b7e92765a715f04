// Package types provides the canonical commerce record shared by every stage
// of the catalog conversion pipeline.
//
// # Core Types
//
// Product is the durable unit written to output shards, one JSON object per
// line:
//
//	p := &types.Product{
//	    ID:           "p1",
//	    Title:        "Red Shirt",
//	    Categories:   []string{"Shirts"},
//	    URI:          "/products/red-shirt-p1",
//	    Availability: types.InStock,
//	    LanguageCode: "en",
//	}
//
// AttributeValue is a two-armed union: exactly one of Text or Numbers is set.
// Source attributes and generated search attributes share the same map:
//
//	p.SetText("color", "red")
//	p.SetNumbers("dense_embedding", vector...)
//
// # Formats
//
// Format is the closed set of source layouts the normalizer understands.
// It is resolved once per input file, never per field:
//
//	types.FormatVertex  // title/categories style catalogs
//	types.FormatGeneric // everything else
//
// # Validation
//
// Validate checks the fields every emitted record must carry:
//
//	if err := p.Validate(); err != nil {
//	    return err
//	}
package types
