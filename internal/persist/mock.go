package persist

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// NewMockArchiver creates a simple in-memory archiver that counts samples
// by name. Used by default when no durable archive backend is configured.
// Returns the concrete type (not Archiver) so callers can reach Summary.
func NewMockArchiver() *mockArchiver {
	return &mockArchiver{}
}

type mockArchiver struct {
	mu      sync.Mutex
	batches int64
	samples int64
	byName  map[string]int64
}

func (a *mockArchiver) ArchiveBatch(ctx context.Context, samples []Sample) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if len(samples) == 0 {
		return nil
	}
	a.mu.Lock()
	if a.byName == nil {
		a.byName = make(map[string]int64)
	}
	a.batches++
	a.samples += int64(len(samples))
	for _, s := range samples {
		a.byName[s.Name]++
	}
	a.mu.Unlock()
	return nil
}

// Summary returns a human-readable snapshot of archival activity as
// name=count pairs sorted by name.
func (a *mockArchiver) Summary() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.byName))
	for n := range a.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", n, a.byName[n]))
	}
	return fmt.Sprintf("batches=%d samples=%d (%s)", a.batches, a.samples, strings.Join(parts, ", "))
}
