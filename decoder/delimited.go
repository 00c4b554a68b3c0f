// File: decoder/delimited.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package decoder

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/momentics/hioload-stream/api"
	"github.com/momentics/hioload-stream/pool"
)

// ErrUnitTooLong is returned when a unit, separator excluded, holds more
// than the configured maximum.
var ErrUnitTooLong = errors.New("delimited unit exceeds maximum size")

type delimited struct {
	sep     []byte
	max     int
	scanned int // bytes already searched without a match
}

// Delimited frames units terminated by sep; the separator stays in the
// unit. max bounds the unit length without its separator, 0 disables the
// bound. At end of stream an unterminated tail is delivered as is.
func Delimited(sep []byte, max int) api.Decoder {
	if len(sep) == 0 {
		panic("decoder: empty separator")
	}
	return &delimited{sep: bytes.Clone(sep), max: max}
}

// Lines frames newline terminated units.
func Lines(max int) api.Decoder { return Delimited([]byte{'\n'}, max) }

func (d *delimited) Decode(buf *pool.Buffer, end bool) (int, *pool.Buffer, error) {
	b := buf.Bytes()
	from := d.scanned - len(d.sep) + 1
	if from < 0 {
		from = 0
	}
	if i := bytes.Index(b[from:], d.sep); i >= 0 {
		d.scanned = 0
		if d.max > 0 && from+i > d.max {
			return 0, buf, fmt.Errorf("%w: %d bytes before separator", ErrUnitTooLong, from+i)
		}
		return from + i + len(d.sep), buf, nil
	}
	d.scanned = len(b)
	// a partial separator may still sit at the tail
	if body := len(b) - len(d.sep) + 1; d.max > 0 && body > d.max {
		return 0, buf, fmt.Errorf("%w: %d bytes without separator", ErrUnitTooLong, body)
	}
	if end {
		d.scanned = 0
	}
	return 0, buf, nil
}
