// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations, DTOs, and constants.

package api

// Mode selects how a file endpoint is opened. Read+write is not offered:
// a file handle has one shared cursor for both directions.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
	ModeAppend
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeAppend:
		return "append"
	default:
		return "unknown"
	}
}

// Writable reports whether m permits writes.
func (m Mode) Writable() bool { return m == ModeWrite || m == ModeAppend }

// SessionState enumerates the connection state of a session facade.
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Stats is a point-in-time snapshot of endpoint accounting.
type Stats struct {
	ID       string
	Kind     string // "socket" or "file"
	Readen   uint64 // bytes read since open/connect
	Written  uint64 // bytes written since open/connect
	Queueing uint64 // bytes accepted for asynchronous write, not yet flushed
	Open     bool
}

// Endpoint is the read-only view of an endpoint's accounting, safe to
// query from any goroutine.
type Endpoint interface {
	ID() string
	Readen() uint64
	Written() uint64
	Queueing() uint64
	Stats() Stats
}
