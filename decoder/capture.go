// File: decoder/capture.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package decoder

import (
	"github.com/momentics/hioload-stream/api"
	"github.com/momentics/hioload-stream/pool"
)

// Capture hands every buffer to fn, which takes ownership of it. No data
// event fires for captured bytes. An error from fn kills the read path.
func Capture(fn func(buf *pool.Buffer, end bool) error) api.Decoder {
	return api.DecoderFunc(func(buf *pool.Buffer, end bool) (int, *pool.Buffer, error) {
		n := buf.Len()
		if err := fn(buf, end); err != nil {
			return 0, nil, err
		}
		return n, nil, nil
	})
}
