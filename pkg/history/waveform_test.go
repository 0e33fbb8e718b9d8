// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package history_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antimetal/historybuffer/pkg/history"
)

func newWaveform(t *testing.T, capacity, width int) *history.WaveformCore {
	t.Helper()
	w, err := history.NewWaveformCore(history.Options{Capacity: capacity, Width: width})
	require.NoError(t, err)
	return w
}

// render formats points so that gaps compare equal.
func render(points history.Points) []string {
	out := make([]string, len(points))
	for i, p := range points {
		if p.IsGap() {
			out[i] = "gap"
			continue
		}
		out[i] = fmt.Sprintf("%g:%g", p.X, p.Y)
	}
	return out
}

func TestWaveformCore_Gaps(t *testing.T) {
	first := history.Waveform{T0: 0, Dt: 1, Y: []float64{1, 2, 3}}

	tests := []struct {
		name   string
		second history.Waveform
		want   []string
	}{
		{
			name:   "far apart",
			second: history.Waveform{T0: 10, Dt: 1, Y: []float64{4, 5}},
			want:   []string{"0:1", "1:2", "2:3", "gap", "10:4", "11:5"},
		},
		{
			name:   "contiguous",
			second: history.Waveform{T0: 3, Dt: 1, Y: []float64{4, 5}},
			want:   []string{"0:1", "1:2", "2:3", "3:4", "4:5"},
		},
		{
			name:   "exactly two intervals",
			second: history.Waveform{T0: 4, Dt: 1, Y: []float64{4, 5}},
			want:   []string{"0:1", "1:2", "2:3", "gap", "4:4", "5:5"},
		},
		{
			name:   "single sample record",
			second: history.Waveform{T0: 100, Dt: 1, Y: []float64{4}},
			want:   []string{"0:1", "1:2", "2:3", "100:4"},
		},
		{
			name:   "zero length record",
			second: history.Waveform{T0: 50, Dt: 1},
			want:   []string{"0:1", "1:2", "2:3"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWaveform(t, 10, 1)
			assert.Equal(t, 2, w.AppendArray([]history.Waveform{first, tt.second}))
			assert.Equal(t, tt.want, render(w.Query(math.Inf(-1), math.Inf(1), 1, 0)))
			assert.Equal(t, tt.want, render(w.ToPointSeries(0)))
		})
	}

	t.Run("empty record does not break adjacency", func(t *testing.T) {
		w := newWaveform(t, 10, 1)
		w.Push(first)
		w.Push(history.Waveform{T0: 2.5, Dt: 1})
		w.Push(history.Waveform{T0: 3, Dt: 1, Y: []float64{4}})
		w.Push(history.Waveform{T0: 4, Dt: 1, Y: []float64{5, 6}})
		assert.Equal(t, []string{"0:1", "1:2", "2:3", "3:4", "4:5", "5:6"}, render(w.ToPointSeries(0)))
	})
}

func TestWaveformCore_QueryWindow(t *testing.T) {
	w := newWaveform(t, 10, 1)
	w.Push(history.Waveform{T0: 0, Dt: 1, Y: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}})
	w.Push(history.Waveform{T0: 100, Dt: 0.5, Y: []float64{7, 8}})

	t.Run("padded by one interval", func(t *testing.T) {
		assert.Equal(t, []string{"2:2", "3:3", "4:4", "5:5"}, render(w.Query(3, 4, 1, 0)))
	})

	t.Run("records outside the window are skipped", func(t *testing.T) {
		assert.Equal(t, []string{"100:7", "100.5:8"}, render(w.Query(99.9, 200, 1, 0)))
	})

	t.Run("step is ignored", func(t *testing.T) {
		assert.Equal(t, render(w.Query(0, 200, 1, 0)), render(w.Query(0, 200, 50, 0)))
	})

	t.Run("bad arguments", func(t *testing.T) {
		assert.Empty(t, w.Query(math.NaN(), 10, 1, 0))
		assert.Empty(t, w.Query(0, 10, 1, 1))
		assert.Empty(t, w.Query(300, 400, 1, 0))
	})
}

func TestWaveformCore_IntervalEdgeCases(t *testing.T) {
	t.Run("zero interval", func(t *testing.T) {
		w := newWaveform(t, 4, 1)
		w.Push(history.Waveform{T0: 5, Dt: 0, Y: []float64{1, 2}})
		rx, ok := w.RangeX(0)
		require.True(t, ok)
		assert.Equal(t, history.Range{Min: 5, Max: 5, Step: 1}, rx)
		assert.Equal(t, []string{"5:1", "5:2"}, render(w.Query(4, 4, 1, 0)))
	})

	t.Run("negative interval", func(t *testing.T) {
		w := newWaveform(t, 4, 1)
		w.Push(history.Waveform{T0: 10, Dt: -2, Y: []float64{1, 2, 3}})
		rx, ok := w.RangeX(0)
		require.True(t, ok)
		assert.Equal(t, history.Range{Min: 6, Max: 10, Step: 2}, rx)
		assert.LessOrEqual(t, rx.Min, rx.Max)

		ry, ok := w.RangeY(math.Inf(-1), math.Inf(1), 0)
		require.True(t, ok)
		assert.Equal(t, history.Range{Min: 1, Max: 3}, ry)

		assert.Equal(t, []string{"10:1", "8:2"}, render(w.Query(9, 10, 1, 0)))
	})

	t.Run("non-finite start time", func(t *testing.T) {
		w := newWaveform(t, 4, 1)
		w.Push(history.Waveform{T0: math.NaN(), Dt: 1, Y: []float64{1}})
		_, ok := w.RangeX(0)
		assert.False(t, ok)
		assert.Empty(t, w.ToPointSeries(0))
	})
}

func TestWaveformCore_Ranges(t *testing.T) {
	w := newWaveform(t, 3, 1)
	_, ok := w.RangeX(0)
	assert.False(t, ok)
	_, ok = w.RangeY(math.Inf(-1), math.Inf(1), 0)
	assert.False(t, ok)

	w.Push(history.Waveform{T0: 0, Dt: 1, Y: []float64{4, math.NaN(), -3}})
	w.Push(history.Waveform{T0: 10, Dt: 0.25, Y: []float64{math.Inf(1), 9, 2}})
	w.Push(history.Waveform{T0: 20, Dt: 1})

	rx, ok := w.RangeX(0)
	require.True(t, ok)
	assert.Equal(t, history.Range{Min: 0, Max: 10.5, Step: 0.25}, rx)

	ry, ok := w.RangeY(math.Inf(-1), math.Inf(1), 0)
	require.True(t, ok)
	assert.Equal(t, history.Range{Min: -3, Max: 9}, ry)

	ry, ok = w.RangeY(9, 11, 0)
	require.True(t, ok)
	assert.Equal(t, history.Range{Min: 2, Max: 9}, ry)

	_, ok = w.RangeY(0.5, 1.5, 0)
	assert.False(t, ok)

	// evicts the first record
	w.Push(history.Waveform{T0: 30, Dt: 1, Y: []float64{5}})
	ry, ok = w.RangeY(math.Inf(-1), math.Inf(1), 0)
	require.True(t, ok)
	assert.Equal(t, history.Range{Min: 2, Max: 9}, ry)
}

func TestWaveformCore_Shapes(t *testing.T) {
	w := newWaveform(t, 5, 2)
	calls := 0
	require.NoError(t, w.RegisterOnChange("x", func() { calls++ }))

	a := history.Waveform{T0: 0, Dt: 1, Y: []float64{1}}
	b := history.Waveform{T0: 0, Dt: 1, Y: []float64{-1}}

	assert.False(t, w.Push(1.0))
	assert.False(t, w.Push(a))
	assert.False(t, w.PushRecords(a))
	assert.Equal(t, 0, calls)

	assert.True(t, w.PushRecords(a, b))
	assert.True(t, w.Push([]any{a, b}))
	assert.Equal(t, 1, w.AppendArray([][]history.Waveform{{a, b}, {a}}))
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, w.Count())
	assert.Equal(t, 4, w.Dropped())

	got, err := w.Get(0)
	require.NoError(t, err)
	assert.Equal(t, []history.Waveform{a, b}, got)

	for _, p := range w.ToPointSeries(1) {
		assert.Equal(t, -1.0, p.Y)
	}
	assert.Len(t, w.Records(0), 3)
}

func TestWaveformCore_Reconfigure(t *testing.T) {
	w := newWaveform(t, 5, 1)
	w.Push(history.Waveform{T0: 0, Dt: 1, Y: []float64{1, 2}})
	calls := 0
	require.NoError(t, w.RegisterOnChange("x", func() { calls++ }))

	require.NoError(t, w.SetWidth(2))
	assert.Equal(t, 0, w.Count())
	assert.Equal(t, 1, calls)

	require.NoError(t, w.SetCapacity(5))
	assert.Equal(t, 1, calls)
	require.NoError(t, w.SetCapacity(8))
	assert.Equal(t, 2, calls)

	w.SetBranchFactor(8)
	assert.Equal(t, 8, w.BranchFactor())
	assert.Equal(t, 2, calls)
}
