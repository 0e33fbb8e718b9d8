// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antimetal/historybuffer/pkg/errors"
	"github.com/antimetal/historybuffer/pkg/history"
	"github.com/antimetal/historybuffer/pkg/sampler"
)

func procDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func TestLoadSource(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		want      []float64
		wantError string
	}{
		{
			name:    "valid",
			content: "0.50 1.25 2.75 2/1234 12345",
			want:    []float64{0.5, 1.25, 2.75},
		},
		{
			name:    "extra whitespace",
			content: "  15.80   10.45   8.32   5/2048   98765  \n",
			want:    []float64{15.8, 10.45, 8.32},
		},
		{
			name:      "too few fields",
			content:   "0.50 1.25",
			wantError: "unexpected format",
		},
		{
			name:      "invalid float",
			content:   "invalid 1.25 2.75 2/1234 12345",
			wantError: "failed to parse 1min load average",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := procDir(t, map[string]string{"loadavg": tt.content})
			src, err := sampler.NewLoadSource(logr.Discard(), sampler.Config{HostProcPath: dir})
			require.NoError(t, err)
			assert.Equal(t, 3, src.Width())
			assert.Equal(t, history.KindNumeric, src.Kind())

			got, err := src.Sample(context.Background())
			if tt.wantError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantError)
				assert.False(t, errors.Retryable(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("missing file is retryable", func(t *testing.T) {
		src, err := sampler.NewLoadSource(logr.Discard(), sampler.Config{HostProcPath: t.TempDir()})
		require.NoError(t, err)
		_, err = src.Sample(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Retryable(err))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("relative path", func(t *testing.T) {
		_, err := sampler.NewLoadSource(logr.Discard(), sampler.Config{HostProcPath: "relative/path"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be an absolute path")
	})
}

func TestMemorySource(t *testing.T) {
	dir := procDir(t, map[string]string{"meminfo": `MemTotal:       16384 kB
MemFree:         1024 kB
MemAvailable:    4096 kB
Buffers:          512 kB
Cached:          2048 kB
`})
	src, err := sampler.NewMemorySource(logr.Discard(), sampler.Config{HostProcPath: dir})
	require.NoError(t, err)

	got, err := src.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{12288 * 1024, 4096 * 1024, 2048 * 1024}, got)

	t.Run("missing fields", func(t *testing.T) {
		dir := procDir(t, map[string]string{"meminfo": "MemTotal: 100 kB\nCached: bogus kB\n"})
		src, err := sampler.NewMemorySource(logr.Discard(), sampler.Config{HostProcPath: dir})
		require.NoError(t, err)
		got, err := src.Sample(context.Background())
		require.NoError(t, err)
		row := got.([]float64)
		require.Len(t, row, 3)
		for _, v := range row {
			assert.True(t, math.IsNaN(v))
		}
	})
}

func TestCPUSource(t *testing.T) {
	dir := procDir(t, map[string]string{
		"stat": "cpu  100 0 50 800 50 0 0 0 0 0\ncpu0 100 0 50 800 50 0 0 0 0 0\nintr 1 2 3\n",
	})
	src, err := sampler.NewCPUSource(logr.Discard(), sampler.Config{HostProcPath: dir})
	require.NoError(t, err)

	got, err := src.Sample(context.Background())
	require.NoError(t, err)
	for _, v := range got.([]float64) {
		assert.True(t, math.IsNaN(v), "first sample has no reference")
	}

	// 100 more jiffies: 30 user, 10 nice, 20 system, 30 idle, 10 iowait
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"),
		[]byte("cpu  130 10 70 830 60 0 0 0 0 0\n"), 0644))
	got, err = src.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{40, 20, 10}, got)

	t.Run("malformed", func(t *testing.T) {
		dir := procDir(t, map[string]string{"stat": "cpu 1 2 3\n"})
		src, err := sampler.NewCPUSource(logr.Discard(), sampler.Config{HostProcPath: dir})
		require.NoError(t, err)
		_, err = src.Sample(context.Background())
		require.Error(t, err)
		assert.False(t, errors.Retryable(err))
	})
}

func TestSignalSource(t *testing.T) {
	now := time.Unix(100, 0)
	src := sampler.NewSignalSource(logr.Discard(), sampler.SignalOptions{
		Samples: 8,
		Rate:    4,
		Now:     func() time.Time { return now },
	})
	assert.Equal(t, history.KindWaveform, src.Kind())

	got, err := src.Sample(context.Background())
	require.NoError(t, err)
	rec, ok := got.(history.Waveform)
	require.True(t, ok)
	assert.Equal(t, 100.0, rec.T0)
	assert.Equal(t, 0.25, rec.Dt)
	assert.Len(t, rec.Y, 8)
	for _, y := range rec.Y {
		assert.LessOrEqual(t, math.Abs(y), 1.0)
	}
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"cpu", "load", "memory", "signal"}, sampler.Registered())

	factory, err := sampler.Lookup(sampler.LoadSourceName)
	require.NoError(t, err)
	src, err := factory(logr.Discard(), sampler.Config{HostProcPath: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "load", src.Name())

	_, err = sampler.Lookup("gpu")
	assert.Error(t, err)

	assert.Panics(t, func() {
		sampler.Register(sampler.LoadSourceName, nil)
	})
}
