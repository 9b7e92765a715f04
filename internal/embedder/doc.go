// Package embedder generates dense vectors for product text.
//
// The Embedder interface is the swap point for a production embedding
// service. Two providers ship with the module:
//
//   - hash: a deterministic placeholder. The text is hashed to a seed and a
//     seeded periodic function fills a fixed-dimension vector, which is then
//     L2-normalized. Same text, same vector, on every run.
//   - remote: an OpenAI-compatible /v1/embeddings endpoint with rate limiting
//     and exponential retry.
//
// # Basic Usage
//
//	emb, err := embedder.New(cfg.Embedding)
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "Red Shirt Size M",
//	})
//
// # Batch Processing
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: []string{searchText, titleText, categoryText},
//	})
//
// # Caching
//
// Providers accept an optional LRU cache keyed by TextKey, the SHA-256 of
// the text. Vectors are copied in and out of the cache, so callers may
// mutate what they receive.
package embedder
