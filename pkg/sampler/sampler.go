// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"

	"github.com/antimetal/historybuffer/pkg/errors"
	"github.com/antimetal/historybuffer/pkg/history"
)

// Options configures a Sampler.
type Options struct {
	Interval time.Duration
	// MaxTries bounds the attempts made for one sample when the source
	// reports retryable errors.
	MaxTries uint
	// RetryInterval is the first backoff delay between attempts.
	RetryInterval time.Duration
	Logger        logr.Logger
}

func DefaultOptions() Options {
	return Options{
		Interval:      time.Second,
		MaxTries:      3,
		RetryInterval: 50 * time.Millisecond,
		Logger:        logr.Discard(),
	}
}

// ApplyDefaults fills in zero values with defaults
func (o *Options) ApplyDefaults() {
	defaults := DefaultOptions()

	if o.Interval == 0 {
		o.Interval = defaults.Interval
	}
	if o.MaxTries == 0 {
		o.MaxTries = defaults.MaxTries
	}
	if o.RetryInterval == 0 {
		o.RetryInterval = defaults.RetryInterval
	}
	if o.Logger.GetSink() == nil {
		o.Logger = defaults.Logger
	}
}

// Sampler pushes one item from a Source into a buffer every interval.
type Sampler struct {
	source Source
	buf    *history.Guarded
	opts   Options
	logger logr.Logger

	samples  atomic.Int64
	failures atomic.Int64
}

// New creates a sampler feeding buf from source. The buffer must have the
// source's kind and width.
func New(source Source, buf *history.Guarded, opts Options) (*Sampler, error) {
	if source == nil {
		return nil, fmt.Errorf("source can't be nil")
	}
	if buf == nil {
		return nil, fmt.Errorf("buffer can't be nil")
	}
	opts.ApplyDefaults()

	var err error
	buf.Do(func(b *history.Buffer) {
		if b.Kind() != source.Kind() || b.Width() != source.Width() {
			err = fmt.Errorf("source %s produces %s items of width %d, buffer is %s of width %d",
				source.Name(), source.Kind(), source.Width(), b.Kind(), b.Width())
		}
	})
	if err != nil {
		return nil, err
	}

	return &Sampler{
		source: source,
		buf:    buf,
		opts:   opts,
		logger: opts.Logger.WithName("sampler").WithValues("source", source.Name()),
	}, nil
}

// Run samples until ctx is done. Failed samples are logged and skipped.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.logger.Info("starting sampler", "interval", s.opts.Interval)
	for {
		if err := s.SampleOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error(err, "failed to sample")
		}
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down sampler")
			return nil
		case <-ticker.C:
		}
	}
}

// SampleOnce takes one sample, retrying transient failures, and pushes it.
func (s *Sampler) SampleOnce(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryInterval

	item, err := backoff.Retry(ctx, func() (any, error) {
		item, err := s.source.Sample(ctx)
		if err == nil {
			return item, nil
		}
		if !errors.Retryable(err) {
			return nil, backoff.Permanent(err)
		}
		s.logger.V(1).Info("sample failed, retrying", "error", err.Error())
		return nil, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.opts.MaxTries))
	if err != nil {
		s.failures.Add(1)
		return fmt.Errorf("failed to sample %s: %w", s.source.Name(), err)
	}

	var pushed bool
	s.buf.Do(func(b *history.Buffer) {
		pushed = b.Push(item)
	})
	if !pushed {
		s.failures.Add(1)
		return fmt.Errorf("buffer rejected %T from %s", item, s.source.Name())
	}
	s.samples.Add(1)
	return nil
}

// Samples returns the number of items pushed.
func (s *Sampler) Samples() int64 { return s.samples.Load() }

// Failures returns the number of sampling rounds that pushed nothing.
func (s *Sampler) Failures() int64 { return s.failures.Load() }
