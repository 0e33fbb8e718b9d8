// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package config reads the historyd configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/antimetal/historybuffer/pkg/errors"
	"github.com/antimetal/historybuffer/pkg/history"
	"github.com/antimetal/historybuffer/pkg/sampler"
)

const (
	envStoreDir = "HISTORYD_STORE_DIR"
	envHostProc = "HOST_PROC"
)

type Config struct {
	// Interval between two samples of every buffer.
	Interval time.Duration `yaml:"interval"`
	// PersistInterval between two snapshots of all buffers. A negative value
	// disables periodic snapshots; buffers are still saved on shutdown.
	PersistInterval time.Duration `yaml:"persist_interval"`
	// StoreDir holds the snapshot database. Empty keeps snapshots in memory.
	StoreDir     string         `yaml:"store_dir"`
	MetricsAddr  string         `yaml:"metrics_addr"`
	HostProcPath string         `yaml:"host_proc"`
	Buffers      []BufferConfig `yaml:"buffers"`
}

type BufferConfig struct {
	Name string `yaml:"name"`
	// Source is the registered sampler source feeding the buffer.
	Source       string       `yaml:"source"`
	Capacity     int          `yaml:"capacity"`
	Width        int          `yaml:"width"`
	Kind         history.Kind `yaml:"kind"`
	BranchFactor int          `yaml:"branch_factor"`
}

// Options converts the buffer entry to history options.
func (b BufferConfig) Options() history.Options {
	return history.Options{
		Capacity:     b.Capacity,
		Width:        b.Width,
		Kind:         b.Kind,
		BranchFactor: b.BranchFactor,
	}
}

// Default returns a configuration sampling system load once per second.
func Default() Config {
	return Config{
		Interval:        time.Second,
		PersistInterval: time.Minute,
		MetricsAddr:     ":9090",
		HostProcPath:    "/proc",
		Buffers: []BufferConfig{
			{Name: "load", Source: sampler.LoadSourceName, Width: 3},
		},
	}
}

// ApplyDefaults fills in zero values with defaults
func (c *Config) ApplyDefaults() {
	defaults := Default()

	if c.Interval == 0 {
		c.Interval = defaults.Interval
	}
	if c.PersistInterval == 0 {
		c.PersistInterval = defaults.PersistInterval
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = defaults.MetricsAddr
	}
	if c.HostProcPath == "" {
		c.HostProcPath = defaults.HostProcPath
	}
	if len(c.Buffers) == 0 {
		c.Buffers = defaults.Buffers
	}
	for i := range c.Buffers {
		b := &c.Buffers[i]
		if b.Source == "" {
			b.Source = b.Name
		}
		opts := b.Options()
		opts.ApplyDefaults()
		b.Capacity = opts.Capacity
		b.Width = opts.Width
		b.Kind = opts.Kind
		b.BranchFactor = opts.BranchFactor
	}
}

// ApplyEnv overrides paths from the environment for containerized
// deployments.
func (c *Config) ApplyEnv() {
	if dir := os.Getenv(envStoreDir); dir != "" {
		c.StoreDir = dir
	}
	if proc := os.Getenv(envHostProc); proc != "" {
		c.HostProcPath = proc
	}
}

// Validate checks a configuration after defaults are applied.
func (c *Config) Validate() error {
	var errs []error
	if c.Interval < 0 {
		errs = append(errs, fmt.Errorf("interval must not be negative, got %s", c.Interval))
	}

	seen := make(map[string]bool, len(c.Buffers))
	for i, b := range c.Buffers {
		if b.Name == "" {
			errs = append(errs, fmt.Errorf("buffers[%d]: name is required", i))
			continue
		}
		if seen[b.Name] {
			errs = append(errs, fmt.Errorf("buffers[%d]: duplicate name %q", i, b.Name))
		}
		seen[b.Name] = true

		if _, err := sampler.Lookup(b.Source); err != nil {
			errs = append(errs, fmt.Errorf("buffer %q: %w", b.Name, err))
		}
		if b.Capacity < 1 {
			errs = append(errs, fmt.Errorf("buffer %q: %w: %d", b.Name, errors.ErrInvalidCapacity, b.Capacity))
		}
		if b.Width < 1 {
			errs = append(errs, fmt.Errorf("buffer %q: %w: %d", b.Name, errors.ErrInvalidWidth, b.Width))
		}
		if b.Kind != history.KindNumeric && b.Kind != history.KindWaveform {
			errs = append(errs, fmt.Errorf("buffer %q: %w: %q", b.Name, errors.ErrUnknownKind, b.Kind))
		}
	}
	return errors.Join(errs...)
}

// Load reads the YAML file at path, applies defaults and environment
// overrides and validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}

	cfg.ApplyDefaults()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
