// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for hioload-stream: a fixed-size worker Executor
// whose queued tasks are aborted (never silently dropped) on shutdown, and
// Strand, which serializes tasks of one endpoint on top of an Executor
// using an atomic in-flight marker instead of a lock held across calls.
package concurrency
