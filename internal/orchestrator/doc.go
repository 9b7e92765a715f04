// Package orchestrator runs a whole conversion: it discovers input files,
// fans them out to the per-file pipeline under a concurrency limit, keeps
// the checkpoint current, optionally assembles a combined output and
// finishes with a self-validated report.
//
// A run moves through these steps:
//
//	Discover -> Resume (checkpoint) -> Fan out (errgroup, SetLimit)
//	         -> Combine (optional) -> Report + Validate -> Finish checkpoint
//
// Files already recorded as complete by an interrupted earlier run are
// not opened again; they appear in the report with state "skipped" and,
// when combined output is on, their existing outputs are copied into it.
package orchestrator
