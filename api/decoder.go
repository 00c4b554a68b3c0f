// File: api/decoder.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Decoder, event handler and runner contracts consumed by the reactors.

package api

import "github.com/momentics/hioload-stream/pool"

// Decoder incrementally frames bytes arriving on one endpoint.
//
// buf holds every byte not yet consumed and is moved into the call; the
// decoder owns it until it returns. The result is interpreted as follows:
//
//   - n == 0: not enough data. out is carried over to the next call (it is
//     normally buf itself). A nil out means the bytes were captured. When
//     end is true a non-nil out is delivered as the final data event.
//   - n > 0: the first n bytes of out form one complete unit. The reactor
//     delivers them, keeps the rest of out and decodes again at once.
//     A nil out means the unit was captured and no data event fires.
//   - err != nil: the read path of the endpoint is dead. The error event
//     fires once and Decode is never called again.
//
// Decode is never invoked concurrently for the same endpoint and must not
// perform blocking I/O.
type Decoder interface {
	Decode(buf *pool.Buffer, end bool) (n int, out *pool.Buffer, err error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(buf *pool.Buffer, end bool) (int, *pool.Buffer, error)

// Decode calls f.
func (f DecoderFunc) Decode(buf *pool.Buffer, end bool) (int, *pool.Buffer, error) {
	return f(buf, end)
}

// Handlers are the four event channels of an endpoint. Nil fields are
// skipped. OnData receives ownership of buf and must Release it (or pass
// it on) when done.
type Handlers struct {
	OnData  func(buf *pool.Buffer, end bool)
	OnFlush func()
	OnClose func(err error)
	OnError func(err error)
}

// Registration binds a decoder and handlers to an endpoint.
type Registration struct {
	Decoder Decoder
	// Owned marks Decoder as core-owned: when the registration is
	// finalized it is closed if it implements io.Closer. External decoders
	// are never touched after finalization.
	Owned    bool
	Handlers Handlers
}

// Runner is one ordered unit of asynchronous work.
type Runner interface {
	Name() string
	Run() error
}
