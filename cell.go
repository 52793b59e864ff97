package adbvol

import "sync"

// Latest is a single-slot, newest-wins hand-off.
// Put overwrites any value not yet taken, so at most one update is ever pending.
type Latest[T any] struct {
	mu    sync.Mutex
	value T
	full  bool
	ready chan struct{}
}

// NewLatest returns an empty cell.
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{ready: make(chan struct{}, 1)}
}

// Put stores v, replacing a pending value. It never blocks.
func (l *Latest[T]) Put(v T) {
	l.mu.Lock()
	l.value = v
	l.full = true
	l.mu.Unlock()

	select {
	case l.ready <- struct{}{}:
	default:
	}
}

// Restore puts v back unless a newer value arrived in the meantime.
func (l *Latest[T]) Restore(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.full {
		return
	}

	l.value = v
	l.full = true
}

// Take removes and returns the pending value, if any.
func (l *Latest[T]) Take() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.value, l.full

	var zero T
	l.value = zero
	l.full = false

	return v, ok
}

// Ready is signalled after a Put. A receive does not consume the value.
func (l *Latest[T]) Ready() <-chan struct{} {
	return l.ready
}
