// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

import (
	"context"
	"math"
	"time"

	"github.com/go-logr/logr"

	"github.com/antimetal/historybuffer/pkg/history"
)

const SignalSourceName = "signal"

func init() {
	Register(SignalSourceName, func(logger logr.Logger, config Config) (Source, error) {
		return NewSignalSource(logger, SignalOptions{}), nil
	})
}

// Compile-time interface check
var _ Source = (*SignalSource)(nil)

// SignalOptions shapes the generated waveform.
type SignalOptions struct {
	// Samples per record.
	Samples int
	// Rate in samples per second.
	Rate float64
	// Frequency of the sine in Hz.
	Frequency float64
	// Now returns the start time of the next record. Defaults to time.Now.
	Now func() time.Time
}

func (o *SignalOptions) ApplyDefaults() {
	if o.Samples == 0 {
		o.Samples = 64
	}
	if o.Rate == 0 {
		o.Rate = 1000
	}
	if o.Frequency == 0 {
		o.Frequency = 5
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// SignalSource generates a sine test signal as waveform records stamped with
// wall clock seconds. Records taken further apart than two sample intervals
// render with a gap between them.
type SignalSource struct {
	baseSource
	opts SignalOptions
}

func NewSignalSource(logger logr.Logger, opts SignalOptions) *SignalSource {
	opts.ApplyDefaults()
	return &SignalSource{
		baseSource: newBaseSource(SignalSourceName, history.KindWaveform, 1, logger),
		opts:       opts,
	}
}

func (s *SignalSource) Sample(ctx context.Context) (any, error) {
	t0 := float64(s.opts.Now().UnixNano()) / float64(time.Second)
	dt := 1 / s.opts.Rate
	y := make([]float64, s.opts.Samples)
	for i := range y {
		y[i] = math.Sin(2 * math.Pi * s.opts.Frequency * (t0 + float64(i)*dt))
	}
	return history.Waveform{T0: t0, Dt: dt, Y: y}, nil
}
