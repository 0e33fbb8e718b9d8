// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/go-logr/logr"

	"github.com/antimetal/historybuffer/pkg/errors"
	"github.com/antimetal/historybuffer/pkg/history"
)

const MemorySourceName = "memory"

func init() {
	Register(MemorySourceName, func(logger logr.Logger, config Config) (Source, error) {
		return NewMemorySource(logger, config)
	})
}

// Compile-time interface check
var _ Source = (*MemorySource)(nil)

// MemorySource samples used, available and cached memory in bytes from
// /proc/meminfo. Used is MemTotal - MemAvailable. Fields missing from the
// file become missing samples.
type MemorySource struct {
	baseSource
	meminfoPath string
}

func NewMemorySource(logger logr.Logger, config Config) (*MemorySource, error) {
	config.ApplyDefaults()
	path, err := config.procPath("meminfo")
	if err != nil {
		return nil, err
	}
	return &MemorySource{
		baseSource:  newBaseSource(MemorySourceName, history.KindNumeric, 3, logger),
		meminfoPath: path,
	}, nil
}

func (s *MemorySource) Sample(ctx context.Context) (any, error) {
	file, err := os.Open(s.meminfoPath)
	if err != nil {
		return nil, errors.WrapRetryable(fmt.Errorf("failed to open %s: %w", s.meminfoPath, err))
	}
	defer file.Close()

	fields := map[string]float64{
		"MemTotal":     math.NaN(),
		"MemAvailable": math.NaN(),
		"Cached":       math.NaN(),
	}

	// Lines are formatted as "FieldName:   value kB"
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}
		name := strings.TrimSuffix(parts[0], ":")
		if _, ok := fields[name]; !ok {
			continue
		}
		value, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			s.logger.V(1).Info("failed to parse memory field value", "field", name, "value", parts[1], "error", err)
			continue
		}
		fields[name] = float64(value) * 1024
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WrapRetryable(fmt.Errorf("failed to read %s: %w", s.meminfoPath, err))
	}

	return []float64{
		fields["MemTotal"] - fields["MemAvailable"],
		fields["MemAvailable"],
		fields["Cached"],
	}, nil
}
