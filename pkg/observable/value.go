// Package observable holds single values that notify subscribers on change.
package observable

import (
	"sort"
	"sync"
)

// Value is a mutex-guarded value with change callbacks. Callbacks run on the goroutine that
// performed the write, after the lock is released.
type Value[T any] struct {
	mu     sync.Mutex
	v      T
	nextID int
	subs   map[int]func(T)
}

func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{v: initial, subs: map[int]func(T){}}
}

func (o *Value[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.v
}

func (o *Value[T]) Set(v T) {
	o.mu.Lock()
	o.v = v
	subs := o.snapshotLocked()
	o.mu.Unlock()
	for _, fn := range subs {
		fn(v)
	}
}

// Update computes the next value from the current one under the lock.
func (o *Value[T]) Update(fn func(T) T) T {
	o.mu.Lock()
	next := fn(o.v)
	o.v = next
	subs := o.snapshotLocked()
	o.mu.Unlock()
	for _, cb := range subs {
		cb(next)
	}
	return next
}

// UpdateIf is Update for writes that may not apply. fn runs under the lock; when it
// returns false the value is left alone and nobody is notified.
func (o *Value[T]) UpdateIf(fn func(T) (T, bool)) bool {
	o.mu.Lock()
	next, ok := fn(o.v)
	if !ok {
		o.mu.Unlock()
		return false
	}
	o.v = next
	subs := o.snapshotLocked()
	o.mu.Unlock()
	for _, cb := range subs {
		cb(next)
	}
	return true
}

// Subscribe registers fn and returns a function that removes it.
func (o *Value[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

func (o *Value[T]) snapshotLocked() []func(T) {
	if len(o.subs) == 0 {
		return nil
	}
	ids := make([]int, 0, len(o.subs))
	for id := range o.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(T), 0, len(ids))
	for _, id := range ids {
		out = append(out, o.subs[id])
	}
	return out
}
