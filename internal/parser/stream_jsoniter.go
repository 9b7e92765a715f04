//go:build !nostream

package parser

import (
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

const streamBufferSize = 64 * 1024

var defaultStream streamFunc = openIterDecoder

// streamAPI keeps numbers as json.Number, matching the whole-file decoder
var streamAPI = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// iterDecoder walks the token stream and materializes one record at a time
type iterDecoder struct {
	iter    *jsoniter.Iterator
	shape   Shape
	wrapper string
	single  map[string]any
	skip    int
	done    bool
}

func openIterDecoder(r io.ReadSeeker) (decoder, error) {
	it := jsoniter.Parse(streamAPI, r, streamBufferSize)
	d := &iterDecoder{iter: it}

	switch it.WhatIsNext() {
	case jsoniter.ArrayValue:
		d.shape = ShapeArray
	case jsoniter.ObjectValue:
		if err := d.scanObject(); err != nil {
			return nil, err
		}
		if d.shape == ShapeWrapped {
			if _, err := r.Seek(0, io.SeekStart); err != nil {
				return nil, fmt.Errorf("rewind catalog: %w", err)
			}
			d.iter = jsoniter.Parse(streamAPI, r, streamBufferSize)
			if err := d.enterWrapper(); err != nil {
				return nil, err
			}
		}
	default:
		if err := d.err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: expected array or object", ErrUnsupportedShape)
	}

	return d, nil
}

// scanObject reads the top-level object once, skipping array-valued wrapper
// keys, and picks the wrapper with the best rank. With no wrapper the
// collected fields are the single product.
func (d *iterDecoder) scanObject() error {
	fields := make(map[string]any)
	best := -1
	for key := d.iter.ReadObject(); key != ""; key = d.iter.ReadObject() {
		if rank := wrapperRank(key); rank >= 0 && d.iter.WhatIsNext() == jsoniter.ArrayValue {
			if best < 0 || rank < best {
				best = rank
			}
			d.iter.Skip()
		} else {
			fields[key] = d.iter.Read()
		}
		if err := d.objectErr(); err != nil {
			return err
		}
	}
	if err := d.objectErr(); err != nil {
		return err
	}

	if best >= 0 {
		d.shape = ShapeWrapped
		d.wrapper = wrapperKeys[best]
		return nil
	}
	d.shape = ShapeSingle
	d.single = fields
	return nil
}

// enterWrapper positions the iterator at the start of the chosen wrapper array
func (d *iterDecoder) enterWrapper() error {
	if d.iter.WhatIsNext() != jsoniter.ObjectValue {
		return fmt.Errorf("%w: catalog changed while reading", ErrInvalidJSON)
	}
	for key := d.iter.ReadObject(); key != ""; key = d.iter.ReadObject() {
		if key == d.wrapper && d.iter.WhatIsNext() == jsoniter.ArrayValue {
			return nil
		}
		d.iter.Skip()
		if err := d.objectErr(); err != nil {
			return err
		}
	}
	if err := d.objectErr(); err != nil {
		return err
	}
	return fmt.Errorf("%w: wrapper %q not found on second pass", ErrInvalidJSON, d.wrapper)
}

// objectErr reports any iterator error inside the top-level object, where
// even EOF means the document was cut short
func (d *iterDecoder) objectErr() error {
	if d.iter.Error == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidJSON, d.iter.Error)
}

func (d *iterDecoder) err() error {
	if d.iter.Error == nil || errors.Is(d.iter.Error, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidJSON, d.iter.Error)
}

func (d *iterDecoder) layout() (Shape, string) {
	return d.shape, d.wrapper
}

func (d *iterDecoder) next() (map[string]any, error) {
	if d.shape == ShapeSingle {
		if d.single == nil {
			return nil, io.EOF
		}
		rec := d.single
		d.single = nil
		return rec, nil
	}

	for !d.done {
		if !d.iter.ReadArray() {
			d.done = true
			break
		}
		v := d.iter.Read()
		// the closing bracket is still unread, so even EOF means truncation
		if d.iter.Error != nil {
			d.done = true
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, d.iter.Error)
		}
		if obj, ok := v.(map[string]any); ok {
			return obj, nil
		}
		d.skip++
	}

	if err := d.err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (d *iterDecoder) skipped() int {
	return d.skip
}
