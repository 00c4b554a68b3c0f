// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the socket and file endpoints and the two
// reactors driving them.
//
// Inbound bytes flow endpoint -> reactor -> decoder -> handlers. Each
// registered endpoint gets a decode strand, so its decoder is never run
// concurrently, and a write strand that keeps sends and runners in
// submission order. Distinct endpoints progress in parallel on shared
// executors.
//
// Handlers are invoked from reactor goroutines: OnData from the decode
// strand of the endpoint, the other events from whichever strand observed
// them. OnClose fires at most once per registration. Handlers must not
// block for long.
package reactor
