// Package views holds the per-screen state of the carpool client: the last
// successful fetch, a loading flag, a dismissible error and, for screens
// that poll, the polling tasks started on mount.
package views

import (
	"sync"
)

// State is one piece of view state. Every write bumps Version, which lets
// subscribers drop updates they have already seen.
type State[T any] struct {
	mu      sync.RWMutex
	value   T
	loading bool
	err     string
	version uint64
}

type Snapshot[T any] struct {
	Value   T      `json:"value" yaml:"value"`
	Loading bool   `json:"loading" yaml:"loading"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
	Version uint64 `json:"version" yaml:"version"`
}

// Begin marks the start of a user-initiated load.
func (s *State[T]) Begin() {
	s.mu.Lock()
	s.loading = true
	s.version++
	s.mu.Unlock()
}

// Succeed replaces the value. The previous value is never merged.
func (s *State[T]) Succeed(v T) {
	s.mu.Lock()
	s.value = v
	s.loading = false
	s.err = ""
	s.version++
	s.mu.Unlock()
}

// Fail records msg and keeps the stale value on display.
func (s *State[T]) Fail(msg string) {
	s.mu.Lock()
	s.loading = false
	s.err = msg
	s.version++
	s.mu.Unlock()
}

// End lowers the loading flag and leaves value and error alone.
func (s *State[T]) End() {
	s.mu.Lock()
	s.loading = false
	s.version++
	s.mu.Unlock()
}

// Apply edits the value in place without touching the flags. fn must
// replace slices rather than mutate them, since snapshots share them.
func (s *State[T]) Apply(fn func(*T)) {
	s.mu.Lock()
	fn(&s.value)
	s.version++
	s.mu.Unlock()
}

// Dismiss clears the error banner.
func (s *State[T]) Dismiss() {
	s.mu.Lock()
	if s.err != "" {
		s.err = ""
		s.version++
	}
	s.mu.Unlock()
}

// Reset drops the value, e.g. when a selection is cleared.
func (s *State[T]) Reset() {
	s.mu.Lock()
	var zero T
	s.value = zero
	s.loading = false
	s.err = ""
	s.version++
	s.mu.Unlock()
}

func (s *State[T]) Value() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

func (s *State[T]) Snapshot() Snapshot[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot[T]{Value: s.value, Loading: s.loading, Error: s.err, Version: s.version}
}
