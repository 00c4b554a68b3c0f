// File: decoder/length.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Unsigned varint length-prefixed frames.

package decoder

import (
	"errors"
	"fmt"

	"github.com/multiformats/go-varint"

	"github.com/momentics/hioload-stream/api"
	"github.com/momentics/hioload-stream/pool"
)

var (
	// ErrFrameTooLarge is returned when a header announces more than the
	// configured maximum.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	// ErrTruncatedFrame is returned when the stream ends inside a frame.
	ErrTruncatedFrame = errors.New("stream ended inside a frame")
)

type lengthPrefixed struct{ max uint64 }

// LengthPrefixed frames payloads preceded by their length as an unsigned
// varint. Delivered units hold the payload only: the header is cut from buf
// in place before the count is returned, so the counts add up to the
// payload bytes, not to the stream length. Empty frames are skipped.
func LengthPrefixed(max int) api.Decoder {
	if max <= 0 {
		panic(fmt.Sprintf("decoder: maximum frame size must be positive, got %d", max))
	}
	return &lengthPrefixed{max: uint64(max)}
}

func (d *lengthPrefixed) Decode(buf *pool.Buffer, end bool) (int, *pool.Buffer, error) {
	for {
		b := buf.Bytes()
		if len(b) == 0 {
			return 0, buf, nil
		}
		size, k, err := varint.FromUvarint(b)
		if err != nil {
			if errors.Is(err, varint.ErrUnderflow) && len(b) < varint.MaxLenUvarint63 {
				if end {
					return 0, buf, ErrTruncatedFrame
				}
				return 0, buf, nil
			}
			return 0, buf, fmt.Errorf("frame header: %w", err)
		}
		if size > d.max {
			return 0, buf, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, d.max)
		}
		if uint64(len(b)-k) < size {
			if end {
				return 0, buf, ErrTruncatedFrame
			}
			return 0, buf, nil
		}
		// drop the header in place
		copy(b, b[k:])
		buf.Truncate(len(b) - k)
		if size > 0 {
			return int(size), buf, nil
		}
	}
}

// AppendFrame appends the header and payload of one frame to dst.
func AppendFrame(dst, payload []byte) []byte {
	var hdr [varint.MaxLenUvarint63]byte
	n := varint.PutUvarint(hdr[:], uint64(len(payload)))
	dst = append(dst, hdr[:n]...)
	return append(dst, payload...)
}

// Frame builds a packet holding one frame of payload.
func Frame(payload []byte) pool.Packet {
	var hdr [varint.MaxLenUvarint63]byte
	n := varint.PutUvarint(hdr[:], uint64(len(payload)))
	buf := pool.DefaultPool().Get(n + len(payload))
	buf.Append(hdr[:n])
	buf.Append(payload)
	return buf.Packet()
}
