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
	"github.com/antimetal/historybuffer/pkg/history/segtree"
)

// Kind selects the storage backend of a Buffer.
type Kind string

const (
	// KindNumeric stores one scalar per channel per push and keeps a min/max
	// acceleration tree for decimated reads.
	KindNumeric Kind = "numeric"
	// KindWaveform stores one waveform record per channel per push.
	KindWaveform Kind = "waveform"
)

func (k Kind) valid() bool {
	return k == KindNumeric || k == KindWaveform
}

// Options configures a history buffer or one of its cores.
type Options struct {
	// Capacity is the number of pushes retained per channel.
	Capacity int
	// Width is the number of parallel channels advanced by every push.
	Width int
	Kind  Kind
	// BranchFactor is the acceleration tree fan-out. Ignored by waveform
	// buffers.
	BranchFactor int
	Logger       logr.Logger
}

// DefaultOptions returns the options used for zero fields.
func DefaultOptions() Options {
	return Options{
		Capacity:     1000,
		Width:        1,
		Kind:         KindNumeric,
		BranchFactor: segtree.DefaultBranchFactor,
		Logger:       logr.Discard(),
	}
}

// ApplyDefaults fills in zero values with defaults
func (o *Options) ApplyDefaults() {
	defaults := DefaultOptions()

	if o.Capacity == 0 {
		o.Capacity = defaults.Capacity
	}
	if o.Width == 0 {
		o.Width = defaults.Width
	}
	if o.Kind == "" {
		o.Kind = defaults.Kind
	}
	if o.BranchFactor == 0 {
		o.BranchFactor = defaults.BranchFactor
	}
	if o.Logger.GetSink() == nil {
		o.Logger = defaults.Logger
	}
}

func (o Options) validate() error {
	if o.Capacity < 1 {
		return fmt.Errorf("%w: capacity must be greater than 0, got %d", errors.ErrInvalidCapacity, o.Capacity)
	}
	if o.Width < 1 {
		return fmt.Errorf("%w: width must be greater than 0, got %d", errors.ErrInvalidWidth, o.Width)
	}
	if !o.Kind.valid() {
		return fmt.Errorf("%w: %q", errors.ErrUnknownKind, o.Kind)
	}
	return nil
}
