// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package history

import "math"

// Point is one plotted sample. For numeric buffers X is the logical index,
// for waveform buffers it is the sample timestamp.
type Point struct {
	X float64
	Y float64
}

// Gap is the sentinel placed between two waveform records that are not
// adjacent in time, telling the renderer to break the line.
var Gap = Point{X: math.NaN(), Y: math.NaN()}

// IsGap reports whether p is the Gap sentinel.
func (p Point) IsGap() bool {
	return math.IsNaN(p.X) && math.IsNaN(p.Y)
}

// Points is an ordered sample sequence as returned by queries.
type Points []Point

// Flat returns the points as [x0, y0, x1, y1, ...]. Gaps become a NaN pair.
func (ps Points) Flat() []float64 {
	out := make([]float64, 0, 2*len(ps))
	for _, p := range ps {
		out = append(out, p.X, p.Y)
	}
	return out
}

// Range is an axis extent. Step is the natural spacing of X values and is
// zero for value ranges.
type Range struct {
	Min  float64
	Max  float64
	Step float64
}

// Waveform is a record of evenly spaced samples: sample i was taken at
// T0 + i*Dt. Dt may be negative. A zero or NaN Dt counts as a unit interval
// for gap detection and query padding.
type Waveform struct {
	T0 float64
	Dt float64
	Y  []float64
}

// interval is the spacing used for gap detection and padding, always > 0.
func (w Waveform) interval() float64 {
	if w.Dt == 0 || math.IsNaN(w.Dt) || math.IsInf(w.Dt, 0) {
		return 1
	}
	return math.Abs(w.Dt)
}

// TimeAt returns the timestamp of sample i.
func (w Waveform) TimeAt(i int) float64 {
	dt := w.Dt
	if math.IsNaN(dt) || math.IsInf(dt, 0) {
		dt = 1
	}
	return w.T0 + float64(i)*dt
}

// LastTime returns the timestamp of the last sample, or T0 for empty records.
func (w Waveform) LastTime() float64 {
	if len(w.Y) == 0 {
		return w.T0
	}
	return w.TimeAt(len(w.Y) - 1)
}

// Span returns the earliest and latest sample timestamps.
func (w Waveform) Span() (float64, float64) {
	first, last := w.T0, w.LastTime()
	return min(first, last), max(first, last)
}

// plottable reports whether the record has samples placed on a finite time
// axis.
func (w Waveform) plottable() bool {
	return len(w.Y) > 0 && finite(w.T0)
}

// adjacentTo reports whether w continues prev without a gap. Single sample
// records are always treated as adjacent.
func (w Waveform) adjacentTo(prev Waveform) bool {
	if len(prev.Y) == 1 || len(w.Y) == 1 {
		return true
	}
	return w.T0-prev.LastTime() < 2*prev.interval()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
