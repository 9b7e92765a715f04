// Package pipeline converts one catalog file end to end.
//
// Each file moves through a fixed set of states:
//
//	Discovered -> Parsing -> BatchProcessing -> Sharding -> Completed
//	                  \             \              \
//	                   +-------------+--------------+--> Failed
//
// Sharding is only entered when output.shard_size is positive.
//
// # Batches
//
// Records are pulled from the parser in batches of processing.batch_size.
// Within a batch each record is normalized and enriched independently:
//
//	raw -> normalize (retry) -> enrich (retry) -> encode -> shard writer
//
// A record that cannot be normalized is dropped and counted in Failed. A
// record that cannot be enriched is still written, without the generated
// attributes, and counted in EnrichFailed. Neither stops the batch. Only
// read, decode and write errors fail the whole file.
//
// Batches inside a file are processed sequentially so the order of lines
// in every shard matches the input order.
package pipeline
