// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-logr/logr"

	"github.com/antimetal/historybuffer/pkg/errors"
	"github.com/antimetal/historybuffer/pkg/history"
)

const LoadSourceName = "load"

func init() {
	Register(LoadSourceName, func(logger logr.Logger, config Config) (Source, error) {
		return NewLoadSource(logger, config)
	})
}

// Compile-time interface check
var _ Source = (*LoadSource)(nil)

// LoadSource samples the 1, 5 and 15 minute load averages from /proc/loadavg
// as three channels.
// Reference: https://www.kernel.org/doc/html/latest/filesystems/proc.html#proc-loadavg
type LoadSource struct {
	baseSource
	loadavgPath string
}

func NewLoadSource(logger logr.Logger, config Config) (*LoadSource, error) {
	config.ApplyDefaults()
	path, err := config.procPath("loadavg")
	if err != nil {
		return nil, err
	}
	return &LoadSource{
		baseSource:  newBaseSource(LoadSourceName, history.KindNumeric, 3, logger),
		loadavgPath: path,
	}, nil
}

// Sample reads /proc/loadavg.
// Format: load1 load5 load15 nr_running/nr_threads last_pid
func (s *LoadSource) Sample(ctx context.Context) (any, error) {
	data, err := os.ReadFile(s.loadavgPath)
	if err != nil {
		return nil, errors.WrapRetryable(fmt.Errorf("failed to read %s: %w", s.loadavgPath, err))
	}

	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return nil, fmt.Errorf("unexpected format in %s: got %d fields, expected at least 3: %q",
			s.loadavgPath, len(fields), strings.TrimSpace(string(data)))
	}

	row := make([]float64, 3)
	for i, name := range []string{"1min", "5min", "15min"} {
		if row[i], err = strconv.ParseFloat(fields[i], 64); err != nil {
			return nil, fmt.Errorf("failed to parse %s load average from %q: %w", name, fields[i], err)
		}
	}
	s.logger.V(1).Info("sampled load", "load1", row[0], "load5", row[1], "load15", row[2])
	return row, nil
}
