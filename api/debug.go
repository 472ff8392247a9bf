// Package api
// Author: momentics
//
// Live debug and contract validation support for production workloads.

package api

// Debug exposes runtime introspection and health API.
type Debug interface {
    // DumpState emits a snapshot of system state for diagnostics.
    DumpState() map[string]any

    // RegisterProbe dynamically registers new debug probes.
    RegisterProbe(name string, fn func() any)
}

// RingSnapshot is a point-in-time view of one side of a command ring,
// published through Debug probes by clients and services alike.
type RingSnapshot struct {
    TotalEntries int32 `json:"total_entries"`
    Put          int32 `json:"put"`
    Get          int32 `json:"get"`
    Token        int32 `json:"token"`
    Error        int32 `json:"error"`
    Usable       bool  `json:"usable"`
}

// AsMap renders the snapshot in the map form DumpState emits.
func (s RingSnapshot) AsMap() map[string]any {
    return map[string]any{
        "total_entries": s.TotalEntries,
        "put":           s.Put,
        "get":           s.Get,
        "token":         s.Token,
        "error":         s.Error,
        "usable":        s.Usable,
    }
}
