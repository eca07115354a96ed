// Package persist provides idempotent archival adapters for Recordable time
// series emitted by the reference Host implementation (internal/host/devhost).
//
// The core engine never manages files or databases itself (spec §6: "the
// engine writes only through the host's log sink"). These adapters exist
// so a demo or integration test can run the reference Host in a mode that
// durably archives Recordables, without the engine's narrow interface ever
// knowing persistence exists.
//
// Adapters follow a common idempotent-commit shape: a CommitID accompanies
// every sample so a retried archive write (crash, timeout, duplicate
// delivery) is a no-op on replay.
package persist

import "context"

// Sample is the adapter-facing shape for one archived Recordable point.
type Sample struct {
	Station  string  // station name, or "" for process-wide recordables
	Name     string  // recordable name, e.g. "P1", "W2", "pump2_rate_ml_min"
	Value    float64 // scalar value at TimeNano
	TimeNano int64   // unix nano timestamp
	CommitID string  // idempotency key; a retried write with the same id is a no-op
}

// Archiver is the minimal API supported by all adapters. Implementations
// must apply each sample exactly once with respect to its CommitID and
// must be safe to retry on error.
type Archiver interface {
	ArchiveBatch(ctx context.Context, samples []Sample) error
}
