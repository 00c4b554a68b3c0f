// Package decoder provides stock framers for the reactor decode loop.
// Author: momentics <momentics@gmail.com>
//
// Decoders returned here keep per-endpoint state; build one per endpoint.
package decoder
