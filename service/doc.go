// File: service/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package service implements the consumer end of a command ring inside
// the producer's process.
//
// Loopback owns the service-side cursors and runs a goroutine that
// drains flushed spans command by command. Ordering is inherited from
// the channel contract: a producer writes entries first and publishes
// the put offset afterwards through Flush or FlushSync, and the
// loopback mutex turns that call order into a happens-before edge, so
// the consumer never reads an entry before the producer's write to it
// is visible. Replacing Loopback with a cross-process transport only
// requires the replacement to preserve that same publish order.
package service
