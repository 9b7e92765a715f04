package types

import "strings"

// Format identifies the source layout of a catalog file
type Format string

const (
	// FormatVertex is a catalog already close to the canonical record
	// (title/categories fields or a products wrapper).
	FormatVertex Format = "vertex"
	// FormatGeneric is any other vendor layout.
	FormatGeneric Format = "generic"
)

// ParseFormat maps a user supplied hint to a Format.
// "auto" and unknown values report ok=false.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vertex", "vertex-like", "vertex_like":
		return FormatVertex, true
	case "generic":
		return FormatGeneric, true
	default:
		return "", false
	}
}

func (f Format) String() string {
	return string(f)
}
