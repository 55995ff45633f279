// Package reactive holds observable values for the orchestrator's derived
// state.
package reactive

import (
	"sync"
)

// Observable is the read side of a Value.
type Observable[T any] interface {
	Get() T
	Subscribe() <-chan T
	Unsubscribe(ch <-chan T)
}

var _ Observable[int] = (*Value[int])(nil)

// Value holds the latest T and pushes it to subscribers. Subscribers that fall
// behind only ever see the newest value; intermediate ones are dropped.
type Value[T any] struct {
	val T
	mu  sync.RWMutex

	subs  []chan T
	subMu sync.Mutex
}

func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		val:  initial,
		subs: make([]chan T, 0),
	}
}

func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.val
}

// Set stores val and notifies every subscriber.
func (v *Value[T]) Set(val T) {
	v.subMu.Lock()
	defer v.subMu.Unlock()

	v.mu.Lock()
	v.val = val
	v.mu.Unlock()

	v.broadcast(val)
}

// Subscribe returns a channel that immediately carries the current value and
// then every later one, conflated.
func (v *Value[T]) Subscribe() <-chan T {
	v.subMu.Lock()
	defer v.subMu.Unlock()

	ch := make(chan T, 1)
	ch <- v.Get()
	v.subs = append(v.subs, ch)
	return ch
}

// Unsubscribe closes ch and stops delivering to it.
func (v *Value[T]) Unsubscribe(ch <-chan T) {
	v.subMu.Lock()
	defer v.subMu.Unlock()

	for i, sub := range v.subs {
		if sub == ch {
			close(sub)
			v.subs = append(v.subs[:i], v.subs[i+1:]...)
			break
		}
	}
}

// broadcast must be called with subMu held.
func (v *Value[T]) broadcast(val T) {
	for _, sub := range v.subs {
		// drop the stale value if the subscriber has not read it yet
		select {
		case <-sub:
		default:
		}
		select {
		case sub <- val:
		default:
		}
	}
}
