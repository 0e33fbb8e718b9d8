// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

import (
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

const CPUSourceName = "cpu"

func init() {
	Register(CPUSourceName, func(logger logr.Logger, config Config) (Source, error) {
		return NewCPUSource(logger, config)
	})
}

// Compile-time interface check
var _ Source = (*CPUSource)(nil)

// cpuTimes holds the aggregate jiffy counters of the "cpu" line.
type cpuTimes struct {
	user, nice, system, idle, iowait, irq, softirq, steal uint64
}

func (t cpuTimes) total() uint64 {
	return t.user + t.nice + t.system + t.idle + t.iowait + t.irq + t.softirq + t.steal
}

// CPUSource samples aggregate CPU utilization from /proc/stat as three
// channels: user (including nice), system (including irq and softirq) and
// iowait, each in percent of the time since the previous sample. The first
// sample has no reference and is all missing.
type CPUSource struct {
	baseSource
	statPath string

	prev    cpuTimes
	hasPrev bool
}

func NewCPUSource(logger logr.Logger, config Config) (*CPUSource, error) {
	config.ApplyDefaults()
	path, err := config.procPath("stat")
	if err != nil {
		return nil, err
	}
	return &CPUSource{
		baseSource: newBaseSource(CPUSourceName, history.KindNumeric, 3, logger),
		statPath:   path,
	}, nil
}

func (s *CPUSource) Sample(ctx context.Context) (any, error) {
	cur, err := s.readTimes()
	if err != nil {
		return nil, err
	}
	prev, hadPrev := s.prev, s.hasPrev
	s.prev, s.hasPrev = cur, true

	missing := []float64{math.NaN(), math.NaN(), math.NaN()}
	if !hadPrev || cur.total() <= prev.total() {
		return missing, nil
	}
	elapsed := float64(cur.total() - prev.total())
	pct := func(now, before uint64) float64 {
		if now < before {
			return math.NaN()
		}
		return 100 * float64(now-before) / elapsed
	}
	return []float64{
		pct(cur.user+cur.nice, prev.user+prev.nice),
		pct(cur.system+cur.irq+cur.softirq, prev.system+prev.irq+prev.softirq),
		pct(cur.iowait, prev.iowait),
	}, nil
}

// readTimes parses the aggregate line of /proc/stat.
// Format: cpu user nice system idle iowait irq softirq [steal [guest [guest_nice]]]
func (s *CPUSource) readTimes() (cpuTimes, error) {
	data, err := os.ReadFile(s.statPath)
	if err != nil {
		return cpuTimes{}, errors.WrapRetryable(fmt.Errorf("failed to read %s: %w", s.statPath, err))
	}

	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != "cpu" {
			continue
		}
		if len(fields) < 8 {
			return cpuTimes{}, fmt.Errorf("unexpected format in %s: got %d fields on cpu line, expected at least 8", s.statPath, len(fields))
		}

		var t cpuTimes
		counters := []*uint64{&t.user, &t.nice, &t.system, &t.idle, &t.iowait, &t.irq, &t.softirq, &t.steal}
		for i, dst := range counters {
			if i+1 >= len(fields) {
				break
			}
			v, err := strconv.ParseUint(fields[i+1], 10, 64)
			if err != nil {
				return cpuTimes{}, fmt.Errorf("failed to parse cpu field %d from %q: %w", i+1, fields[i+1], err)
			}
			*dst = v
		}
		return t, nil
	}
	return cpuTimes{}, fmt.Errorf("no aggregate cpu line found in %s", s.statPath)
}
