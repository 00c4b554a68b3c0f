// File: client/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import "net"

// EventHandler receives the session events of a TCPClient.
//
// OnData is invoked from the decode strand of the connection, one call at a
// time. data is only valid during the call; copy it to keep it.
type EventHandler interface {
	OnData(data []byte, end bool)
	OnFlush()
	OnDisconnection(peer net.Addr)
	OnError(err error)
}

// HandlerFuncs adapts plain functions to EventHandler. Nil fields are
// skipped.
type HandlerFuncs struct {
	Data          func(data []byte, end bool)
	Flush         func()
	Disconnection func(peer net.Addr)
	Error         func(err error)
}

func (h HandlerFuncs) OnData(data []byte, end bool) {
	if h.Data != nil {
		h.Data(data, end)
	}
}

func (h HandlerFuncs) OnFlush() {
	if h.Flush != nil {
		h.Flush()
	}
}

func (h HandlerFuncs) OnDisconnection(peer net.Addr) {
	if h.Disconnection != nil {
		h.Disconnection(peer)
	}
}

func (h HandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}
