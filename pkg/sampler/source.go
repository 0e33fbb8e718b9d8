// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package sampler feeds history buffers from periodic measurements.
package sampler

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/antimetal/historybuffer/pkg/history"
)

// Source produces one buffer item per call.
type Source interface {
	Name() string
	Kind() history.Kind
	// Width is the number of channels in every item.
	Width() int

	// Sample takes one measurement and returns an item accepted by
	// history.Buffer.Push. Transient failures are marked with
	// errors.WrapRetryable.
	Sample(ctx context.Context) (any, error)
}

// Config is shared by all sources.
type Config struct {
	HostProcPath string // Path to /proc (useful for containers)
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		HostProcPath: "/proc",
	}
}

// ApplyDefaults fills in zero values with defaults
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()

	if c.HostProcPath == "" {
		c.HostProcPath = defaults.HostProcPath
	}
}

func (c Config) procPath(name string) (string, error) {
	if !filepath.IsAbs(c.HostProcPath) {
		return "", fmt.Errorf("HostProcPath must be an absolute path, got: %q", c.HostProcPath)
	}
	return filepath.Join(c.HostProcPath, name), nil
}

// baseSource provides common functionality for all sources
type baseSource struct {
	name   string
	kind   history.Kind
	width  int
	logger logr.Logger
}

func newBaseSource(name string, kind history.Kind, width int, logger logr.Logger) baseSource {
	return baseSource{
		name:   name,
		kind:   kind,
		width:  width,
		logger: logger.WithName(name),
	}
}

func (b *baseSource) Name() string       { return b.name }
func (b *baseSource) Kind() history.Kind { return b.kind }
func (b *baseSource) Width() int         { return b.width }
