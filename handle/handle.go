// Package handle maps opaque integer ids to reference counted values, for
// callers that cannot hold Go pointers.
package handle

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrUnknown is returned for ids that were never issued or are released.
var ErrUnknown = errors.New("unknown handle")

// ID identifies a registered value. IDs are never reused.
type ID uint64

type entry[T io.Closer] struct {
	v    T
	refs int
}

// Registry owns the values registered with it. The last Release closes the
// value.
type Registry[T io.Closer] struct {
	mu      sync.Mutex
	next    ID
	entries map[ID]*entry[T]
}

func NewRegistry[T io.Closer]() *Registry[T] {
	return &Registry[T]{entries: make(map[ID]*entry[T])}
}

// Register stores v with a reference count of one.
func (r *Registry[T]) Register(v T) ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.entries[r.next] = &entry[T]{v: v, refs: 1}
	return r.next
}

func (r *Registry[T]) Get(id ID) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w %d", ErrUnknown, id)
	}
	return e.v, nil
}

// Retain adds a reference.
func (r *Registry[T]) Retain(id ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w %d", ErrUnknown, id)
	}
	e.refs++
	return nil
}

// Release drops a reference. Dropping the last one removes the id and closes
// the value outside the lock.
func (r *Registry[T]) Release(id ID) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w %d", ErrUnknown, id)
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return nil
	}
	delete(r.entries, id)
	r.mu.Unlock()
	return e.v.Close()
}

// Len reports the number of live ids.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
