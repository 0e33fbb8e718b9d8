// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package history

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/antimetal/historybuffer/pkg/errors"
	"github.com/antimetal/historybuffer/pkg/history/ringbuffer"
)

// channels is the storage shared by both cores: Width parallel rings that
// advance together, plus change tracking and subscribers.
type channels[T any] struct {
	logger   logr.Logger
	capacity int
	width    int
	branch   int
	rings    []*ringbuffer.RingBuffer[T]
	changed  bool
	dropped  int
	subs     *notifier
}

func newChannels[T any](opts Options) (*channels[T], error) {
	opts.ApplyDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	c := &channels[T]{
		logger:   opts.Logger,
		capacity: opts.Capacity,
		width:    opts.Width,
		branch:   opts.BranchFactor,
		subs:     newNotifier(opts.Logger),
	}
	c.allocate()
	return c, nil
}

func (c *channels[T]) allocate() {
	c.rings = make([]*ringbuffer.RingBuffer[T], c.width)
	for i := range c.rings {
		// capacity is validated before we get here
		c.rings[i], _ = ringbuffer.New[T](c.capacity)
	}
}

// Capacity returns the number of pushes retained per channel.
func (c *channels[T]) Capacity() int { return c.capacity }

// Width returns the number of channels.
func (c *channels[T]) Width() int { return c.width }

// BranchFactor returns the acceleration tree fan-out.
func (c *channels[T]) BranchFactor() int { return c.branch }

// Count returns the number of pushes since creation or the last reset. It may
// exceed Capacity.
func (c *channels[T]) Count() int { return c.rings[0].End() }

// StartIndex returns the logical index of the oldest retained push.
func (c *channels[T]) StartIndex() int { return c.rings[0].Start() }

// LastIndex returns one past the logical index of the newest push.
func (c *channels[T]) LastIndex() int { return c.rings[0].End() }

// Dropped returns how many pushed items were discarded because their shape
// did not match the buffer width.
func (c *channels[T]) Dropped() int { return c.dropped }

// RegisterOnChange adds fn to be called after every mutation. Registering a
// key twice fails with ErrDuplicateSubscription and keeps the original.
func (c *channels[T]) RegisterOnChange(key string, fn ChangeFunc) error {
	return c.subs.register(key, fn)
}

// DeregisterOnChange removes the callback registered under key.
func (c *channels[T]) DeregisterOnChange(key string) bool {
	return c.subs.deregister(key)
}

func (c *channels[T]) subscribers() *notifier { return c.subs }

// adopt takes over the subscribers and drop count of the backend being
// replaced.
func (c *channels[T]) adopt(n *notifier, dropped int) {
	c.subs = n
	c.dropped = dropped
}

func (c *channels[T]) notifyChange() { c.subs.notify() }

func (c *channels[T]) validChannel(ch int) bool {
	return ch >= 0 && ch < c.width
}

func (c *channels[T]) push(row []T) {
	for i, r := range c.rings {
		r.Push(row[i])
	}
	c.changed = true
}

func (c *channels[T]) drop(item any) {
	c.dropped++
	c.logger.V(1).Info("dropping item with mismatched shape", "width", c.width, "type", fmt.Sprintf("%T", item))
}

func (c *channels[T]) row(index int) ([]T, error) {
	row := make([]T, c.width)
	for i, r := range c.rings {
		v, err := r.Get(index)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

// reset discards all data, reshaping storage to the current capacity and
// width.
func (c *channels[T]) reset() {
	c.allocate()
	c.changed = true
}

func (c *channels[T]) setCapacity(n int) (bool, error) {
	if n < 1 {
		return false, fmt.Errorf("%w: capacity must be greater than 0, got %d", errors.ErrInvalidCapacity, n)
	}
	if n == c.capacity {
		return false, nil
	}
	c.capacity = n
	c.reset()
	return true, nil
}

func (c *channels[T]) setWidth(w int) (bool, error) {
	if w < 1 {
		return false, fmt.Errorf("%w: width must be greater than 0, got %d", errors.ErrInvalidWidth, w)
	}
	if w == c.width {
		return false, nil
	}
	c.width = w
	c.reset()
	return true, nil
}

func (c *channels[T]) sequence(ch int) []T {
	if !c.validChannel(ch) {
		return nil
	}
	return c.rings[ch].GetAll()
}

// seek empties every ring and continues numbering at start.
func (c *channels[T]) seek(start int) {
	for _, r := range c.rings {
		r.Seek(start)
	}
	c.changed = true
}

func (c *channels[T]) options() Options {
	return Options{
		Capacity:     c.capacity,
		Width:        c.width,
		BranchFactor: c.branch,
		Logger:       c.logger,
	}
}
