//go:build nostream

package parser

// Built without the incremental decoder; every file is decoded whole.
var defaultStream streamFunc
