// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics, tuning, and debug introspection layer for command
// ring deployments.
//
// Provides concurrent-safe state handling primitives including:
//   - Counter and gauge telemetry for flush and back-pressure activity
//   - Live tuning knobs with reload listeners
//   - State export, debug hooks, and probe registration
//
// Everything here is optional: clients and services run without a
// control plane attached.
package control
