// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown unifies teardown across clients, services and regions.
type GracefulShutdown interface {
	// Shutdown stops internal activity and releases held resources.
	// Implementations must be idempotent.
	Shutdown() error
}
