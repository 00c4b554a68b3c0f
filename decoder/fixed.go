// File: decoder/fixed.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package decoder

import (
	"fmt"

	"github.com/momentics/hioload-stream/api"
	"github.com/momentics/hioload-stream/pool"
)

type fixedLength struct{ size int }

// FixedLength frames units of exactly size bytes. At end of stream a short
// tail is delivered as is.
func FixedLength(size int) api.Decoder {
	if size <= 0 {
		panic(fmt.Sprintf("decoder: fixed length must be positive, got %d", size))
	}
	return fixedLength{size: size}
}

func (d fixedLength) Decode(buf *pool.Buffer, end bool) (int, *pool.Buffer, error) {
	if buf.Len() < d.size {
		return 0, buf, nil
	}
	return d.size, buf, nil
}
