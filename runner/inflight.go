package runner

import (
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
)

type inFlightEntry struct {
	label   string
	started time.Time
}

// InFlight tracks the work items that are currently executing
type InFlight struct {
	mu    sync.Mutex
	items map[int]inFlightEntry
}

// NewInFlight creates an empty in-flight registry
func NewInFlight() *InFlight {
	return &InFlight{items: make(map[int]inFlightEntry)}
}

// Add registers an item as running and returns the new count
func (f *InFlight) Add(item types.WorkItem) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[item.ID] = inFlightEntry{label: item.Label(), started: time.Now()}
	return len(f.items)
}

// Remove unregisters an item and returns the new count
func (f *InFlight) Remove(id int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return len(f.items)
}

// Count returns the number of running items
func (f *InFlight) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Snapshot returns the start time of every running item keyed by its label
func (f *InFlight) Snapshot() map[string]time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := make(map[string]time.Time, len(f.items))
	for _, entry := range f.items {
		snapshot[entry.label] = entry.started
	}
	return snapshot
}
