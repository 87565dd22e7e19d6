// ABOUTME: Take-once ownership transfer
// ABOUTME: A value can be claimed exactly once; later claims fail
package handoff

import (
	"errors"
	"sync"
)

// ErrAlreadyTaken is returned (or panicked with) on every take after the first
var ErrAlreadyTaken = errors.New("value already taken")

// Once holds a value until its single owner takes it
type Once[T any] struct {
	mu    sync.Mutex
	value T
	taken bool
}

// New wraps v for a single transfer
func New[T any](v T) *Once[T] {
	return &Once[T]{value: v}
}

// Take returns the value the first time and ErrAlreadyTaken afterwards
func (o *Once[T]) Take() (T, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var zero T
	if o.taken {
		return zero, ErrAlreadyTaken
	}
	v := o.value
	o.value = zero
	o.taken = true
	return v, nil
}

// MustTake is Take for callers where a second take is a programming error
func (o *Once[T]) MustTake() T {
	v, err := o.Take()
	if err != nil {
		panic(err)
	}
	return v
}

// Taken reports whether the value has been claimed
func (o *Once[T]) Taken() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.taken
}
