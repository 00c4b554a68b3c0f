// Package pool
// Author: momentics <momentics@gmail.com>
//
// Memory layer of hioload-stream: exclusively owned growable buffers,
// immutable reference-counted packets and a size-classed pool recycling
// their storage. See buffer.go, packet.go, bufferpool.go.
package pool
