// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package daemon runs samplers into named history buffers, persists them and
// serves them over HTTP.
package daemon

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/antimetal/historybuffer/internal/config"
	"github.com/antimetal/historybuffer/pkg/errors"
	"github.com/antimetal/historybuffer/pkg/history"
	"github.com/antimetal/historybuffer/pkg/history/metrics"
	"github.com/antimetal/historybuffer/pkg/history/store"
	"github.com/antimetal/historybuffer/pkg/sampler"
)

const shutdownTimeout = 5 * time.Second

type Daemon struct {
	cfg    *config.Config
	logger logr.Logger

	store     *store.Store
	collector *metrics.Collector
	registry  *prometheus.Registry
	buffers   map[string]*history.Guarded
	samplers  []*sampler.Sampler
}

// New opens the snapshot store and builds one buffer and sampler per
// configured buffer. Buffers resume from their stored snapshot when its
// shape still matches the configuration.
func New(cfg *config.Config, logger logr.Logger) (*Daemon, error) {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	st, err := store.New(cfg.StoreDir)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:       cfg,
		logger:    logger.WithName("historyd"),
		store:     st,
		collector: metrics.NewCollector(),
		registry:  prometheus.NewRegistry(),
		buffers:   make(map[string]*history.Guarded, len(cfg.Buffers)),
	}
	if err := d.registry.Register(d.collector); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to register buffer collector: %w", err)
	}
	d.registry.MustRegister(collectors.NewGoCollector())

	for _, bc := range cfg.Buffers {
		if err := d.addBuffer(bc); err != nil {
			st.Close()
			return nil, fmt.Errorf("buffer %q: %w", bc.Name, err)
		}
	}
	return d, nil
}

func (d *Daemon) addBuffer(bc config.BufferConfig) error {
	newSource, err := sampler.Lookup(bc.Source)
	if err != nil {
		return err
	}
	logger := d.logger.WithName(bc.Name)
	src, err := newSource(logger, sampler.Config{HostProcPath: d.cfg.HostProcPath})
	if err != nil {
		return fmt.Errorf("failed to create source %s: %w", bc.Source, err)
	}

	opts := bc.Options()
	opts.Logger = logger
	buf, err := d.restore(bc.Name, opts)
	if err != nil {
		return err
	}
	g := history.NewGuarded(buf)

	s, err := sampler.New(src, g, sampler.Options{Interval: d.cfg.Interval, Logger: logger})
	if err != nil {
		return err
	}
	if err := d.collector.Add(bc.Name, g); err != nil {
		return err
	}
	d.buffers[bc.Name] = g
	d.samplers = append(d.samplers, s)
	return nil
}

func (d *Daemon) restore(name string, opts history.Options) (*history.Buffer, error) {
	opts.ApplyDefaults()
	snap, err := d.store.Load(name)
	switch {
	case errors.Is(err, errors.ErrSnapshotNotFound):
		return history.New(opts)
	case err != nil:
		d.logger.Error(err, "failed to load snapshot, starting empty", "buffer", name)
		return history.New(opts)
	}

	if snap.Kind != opts.Kind || snap.Width != opts.Width || snap.Capacity != opts.Capacity {
		d.logger.Info("discarding snapshot with a different shape", "buffer", name,
			"kind", snap.Kind, "width", snap.Width, "capacity", snap.Capacity)
		return history.New(opts)
	}
	buf, err := history.FromSnapshot(snap, opts)
	if err != nil {
		d.logger.Error(err, "failed to restore snapshot, starting empty", "buffer", name)
		return history.New(opts)
	}
	d.logger.Info("restored buffer", "buffer", name, "count", buf.Count())
	return buf, nil
}

// Buffers returns the configured buffer names in sorted order.
func (d *Daemon) Buffers() []string {
	return slices.Sorted(maps.Keys(d.buffers))
}

// Buffer returns the buffer called name.
func (d *Daemon) Buffer(name string) (*history.Guarded, bool) {
	g, ok := d.buffers[name]
	return g, ok
}

// SampleAll takes one sample for every buffer.
func (d *Daemon) SampleAll(ctx context.Context) error {
	var errs []error
	for _, s := range d.samplers {
		errs = append(errs, s.SampleOnce(ctx))
	}
	return errors.Join(errs...)
}

// Persist saves a snapshot of every buffer in one transaction.
func (d *Daemon) Persist() error {
	snaps := make(map[string]history.Snapshot, len(d.buffers))
	for name, g := range d.buffers {
		snaps[name] = g.Snapshot()
	}
	if err := d.store.SaveAll(snaps); err != nil {
		return err
	}
	d.logger.V(1).Info("persisted buffers", "count", len(snaps))
	return nil
}

// Run samples, persists and serves until ctx is done, then saves a final
// snapshot and closes the store.
func (d *Daemon) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	for _, s := range d.samplers {
		g.Go(func() error { return s.Run(gCtx) })
	}

	if d.cfg.PersistInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(d.cfg.PersistInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gCtx.Done():
					return nil
				case <-ticker.C:
					if err := d.Persist(); err != nil {
						d.logger.Error(err, "failed to persist buffers")
					}
				}
			}
		})
	}

	server := &http.Server{
		Addr:              d.cfg.MetricsAddr,
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		d.logger.Info("serving", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	d.logger.Info("shutting down")
	if perr := d.Persist(); perr != nil {
		err = errors.Join(err, fmt.Errorf("failed to persist buffers: %w", perr))
	}
	return errors.Join(err, d.store.Close())
}

// Close releases the store without running. It must not be called after Run.
func (d *Daemon) Close() error {
	return d.store.Close()
}
