package mqtt

import (
	"sync"

	"dechatter/internal/stats"
)

// FakePublisher records published snapshots for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Interval contains all interval snapshots that were published.
	Interval []stats.Snapshot

	// Final contains all final snapshots that were published.
	Final []stats.Snapshot

	// PublishError, if set, is returned by both publish methods.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishInterval records the snapshot.
func (f *FakePublisher) PublishInterval(snap stats.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Interval = append(f.Interval, snap)
	return nil
}

// PublishFinal records the snapshot.
func (f *FakePublisher) PublishFinal(snap stats.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Final = append(f.Final, snap)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IntervalCount returns how many interval snapshots were published.
func (f *FakePublisher) IntervalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Interval)
}

// FinalCount returns how many final snapshots were published.
func (f *FakePublisher) FinalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Final)
}
