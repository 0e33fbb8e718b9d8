// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package ringbuffer

import (
	"fmt"

	"github.com/antimetal/historybuffer/pkg/errors"
)

// RingBuffer is a generic, thread-unsafe circular buffer that overwrites the
// oldest elements when capacity is reached.
//
// Elements are addressed by logical index: the position of the element in the
// stream of all pushes since creation (or since the last Clear/Seek). Logical
// index i lives in physical slot i % Cap() and is retained while
// Start() <= i < End().
//
// Note: This implementation is NOT thread-safe. If concurrent access is needed,
// synchronization must be handled externally.
type RingBuffer[T any] struct {
	data   []T
	base   int // logical index of the first push after Clear/Seek
	writes int // next logical index
}

// New creates a new ring buffer with the given capacity
func New[T any](capacity int) (*RingBuffer[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be greater than 0, got %d", capacity)
	}
	return &RingBuffer[T]{
		data: make([]T, capacity),
	}, nil
}

// Push adds an element to the ring buffer, overwriting oldest if full
func (r *RingBuffer[T]) Push(item T) {
	r.data[r.writes%len(r.data)] = item
	r.writes++
}

// Get returns the element at logical index i.
func (r *RingBuffer[T]) Get(i int) (T, error) {
	if i < r.Start() || i >= r.writes {
		var zero T
		return zero, fmt.Errorf("%w: %d not in [%d, %d)", errors.ErrIndexOutOfRange, i, r.Start(), r.writes)
	}
	return r.data[i%len(r.data)], nil
}

// At returns the element at logical index i without bounds checking.
// Callers must ensure Start() <= i < End().
func (r *RingBuffer[T]) At(i int) T {
	return r.data[i%len(r.data)]
}

// GetAll returns all elements in chronological order (oldest to newest)
func (r *RingBuffer[T]) GetAll() []T {
	size := r.Len()
	result := make([]T, size)
	if size == 0 {
		return result
	}

	head := r.Start() % len(r.data)
	n := copy(result, r.data[head:])
	if n < size {
		copy(result[n:], r.data[:size-n])
	}
	return result
}

// Start returns the logical index of the oldest retained element.
func (r *RingBuffer[T]) Start() int {
	return max(r.base, r.writes-len(r.data))
}

// End returns one past the logical index of the newest element.
func (r *RingBuffer[T]) End() int {
	return r.writes
}

// Len returns the current number of elements in the buffer
func (r *RingBuffer[T]) Len() int {
	return r.writes - r.Start()
}

// Cap returns the capacity of the buffer
func (r *RingBuffer[T]) Cap() int {
	return len(r.data)
}

// Clear removes all elements from the buffer
func (r *RingBuffer[T]) Clear() {
	r.Seek(0)
}

// Seek empties the buffer and continues logical numbering at start, so the
// next Push lands on logical index start.
func (r *RingBuffer[T]) Seek(start int) {
	if start < 0 {
		start = 0
	}
	r.base = start
	r.writes = start
	// Clear the underlying data to help GC
	clear(r.data)
}
