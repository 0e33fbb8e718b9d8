// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package history implements bounded, continuously updated sample histories
// for plotting. A Buffer keeps the most recent Capacity pushes of Width
// parallel channels and answers decimated range queries for rendering.
//
// Two backends exist: NumericCore for scalar samples, accelerated by a min/max
// tree, and WaveformCore for records of evenly spaced samples. Buffer wraps one
// of them and can switch at runtime while keeping its change subscribers.
//
// Nothing in this package locks. Hosts that touch a buffer from more than one
// goroutine must serialize access, for example with Guarded.
package history

import (
	"fmt"
	"math"

	"github.com/go-logr/logr"

	"github.com/antimetal/historybuffer/pkg/errors"
)

// Backend is the contract shared by NumericCore and WaveformCore.
type Backend interface {
	Kind() Kind
	Capacity() int
	Width() int
	BranchFactor() int
	Count() int
	StartIndex() int
	LastIndex() int
	Dropped() int

	Push(item any) bool
	AppendArray(items any) int
	Get(index int) (any, error)

	Query(start, end float64, step, channel int) Points
	RangeX(channel int) (Range, bool)
	RangeY(start, end float64, channel int) (Range, bool)
	ToSequence(channel int) any
	ToPointSeries(channel int) Points
	ToSerializable() Snapshot

	SetCapacity(capacity int) error
	SetWidth(width int) error
	SetBranchFactor(b int)
	Clear()

	RegisterOnChange(key string, fn ChangeFunc) error
	DeregisterOnChange(key string) bool

	subscribers() *notifier
	adopt(n *notifier, dropped int)
	notifyChange()
	restore(s Snapshot) error
}

func newBackend(opts Options) (Backend, error) {
	switch opts.Kind {
	case KindNumeric:
		return NewNumericCore(opts)
	case KindWaveform:
		return NewWaveformCore(opts)
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownKind, opts.Kind)
	}
}

// Buffer is a history buffer whose backend can be swapped at runtime. All
// Backend methods are forwarded to the active backend.
type Buffer struct {
	Backend
	logger logr.Logger
}

// New creates an empty buffer.
func New(opts Options) (*Buffer, error) {
	opts.ApplyDefaults()
	backend, err := newBackend(opts)
	if err != nil {
		return nil, err
	}
	return &Buffer{
		Backend: backend,
		logger:  opts.Logger,
	}, nil
}

// SetType switches the backend to kind, keeping capacity, width, branch factor,
// subscribers and the drop count. Data is discarded and subscribers are notified once.
// Switching to the active kind is a no-op.
func (b *Buffer) SetType(kind Kind) error {
	if kind == b.Kind() {
		return nil
	}
	next, err := newBackend(Options{
		Capacity:     b.Capacity(),
		Width:        b.Width(),
		Kind:         kind,
		BranchFactor: b.BranchFactor(),
		Logger:       b.logger,
	})
	if err != nil {
		return err
	}
	next.adopt(b.subscribers(), b.Dropped())
	b.logger.V(1).Info("switched backend", "from", b.Kind(), "to", kind)
	b.Backend = next
	b.notifyChange()
	return nil
}

// Numeric returns the active backend if it is numeric.
func (b *Buffer) Numeric() (*NumericCore, bool) {
	n, ok := b.Backend.(*NumericCore)
	return n, ok
}

// Waveform returns the active backend if it stores waveforms.
func (b *Buffer) Waveform() (*WaveformCore, bool) {
	w, ok := b.Backend.(*WaveformCore)
	return w, ok
}

// RangeYAll is RangeY over every retained sample of channel.
func (b *Buffer) RangeYAll(channel int) (Range, bool) {
	return b.RangeY(math.Inf(-1), math.Inf(1), channel)
}

// Subscribers returns the registered change callback keys in notification
// order.
func (b *Buffer) Subscribers() []string {
	return b.subscribers().keys()
}
