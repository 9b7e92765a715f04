package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

// wholeDecoder holds a fully decoded catalog
type wholeDecoder struct {
	shape   Shape
	wrapper string
	items   []any
	pos     int
	skip    int
}

func decodeWhole(r io.Reader) (decoder, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	// numbers stay json.Number so large integer ids keep every digit
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	var trailing any
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after top-level value", ErrInvalidJSON)
	}

	switch v := root.(type) {
	case []any:
		return &wholeDecoder{shape: ShapeArray, items: v}, nil
	case map[string]any:
		for _, key := range wrapperKeys {
			if arr, ok := v[key].([]any); ok {
				return &wholeDecoder{shape: ShapeWrapped, wrapper: key, items: arr}, nil
			}
		}
		return &wholeDecoder{shape: ShapeSingle, items: []any{v}}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedShape, root)
	}
}

func (d *wholeDecoder) layout() (Shape, string) {
	return d.shape, d.wrapper
}

func (d *wholeDecoder) next() (map[string]any, error) {
	for d.pos < len(d.items) {
		item := d.items[d.pos]
		d.items[d.pos] = nil
		d.pos++
		if obj, ok := item.(map[string]any); ok {
			return obj, nil
		}
		d.skip++
	}
	return nil, io.EOF
}

func (d *wholeDecoder) skipped() int {
	return d.skip
}
