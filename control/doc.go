// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection for the I/O engine.
//
// Provides:
//   - Prometheus collectors for endpoint traffic, decoding and events
//   - A probe registry reporting live engine state
//   - An HTTP handler exposing both
package control
