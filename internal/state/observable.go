package state

import (
	"sync"

	"github.com/google/uuid"
)

// Observable holds the always-current UiState and fans out change
// notifications: a StateFlow-style value container. Publishing a
// snapshot equal to the current one is a no-op.
type Observable struct {
	mu    sync.RWMutex
	value UiState
	subs  map[string]chan UiState
}

// NewObservable creates an observable seeded with initial.
func NewObservable(initial UiState) *Observable {
	return &Observable{
		value: initial,
		subs:  make(map[string]chan UiState),
	}
}

// Value returns the current snapshot.
func (o *Observable) Value() UiState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.value
}

// Set replaces the current snapshot and notifies subscribers when it
// actually changed.
func (o *Observable) Set(v UiState) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.value.Equal(v) {
		return
	}
	o.value = v

	for _, ch := range o.subs {
		// Keep-latest delivery: a slow subscriber sees the newest
		// snapshot, not every intermediate one.
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

// Subscribe registers a change listener primed with the current value.
// The returned func cancels the subscription; calling it more than once
// is a no-op.
func (o *Observable) Subscribe() (<-chan UiState, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan UiState, 1)
	ch <- o.value
	o.subs[id] = ch

	cancel := func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if _, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
