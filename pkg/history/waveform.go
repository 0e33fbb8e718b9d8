// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package history

import (
	"fmt"
	"math"

	"github.com/antimetal/historybuffer/pkg/errors"
)

// Compile-time interface check
var _ Backend = (*WaveformCore)(nil)

// WaveformCore stores Width parallel channels of waveform records. Records in
// a channel are expected in chronological order; unsorted input is not
// reordered. There is no acceleration structure: reads scan the retained
// records.
//
// WaveformCore is NOT thread-safe; see Guarded.
type WaveformCore struct {
	*channels[Waveform]
}

// NewWaveformCore creates an empty waveform core. opts.Kind is ignored.
func NewWaveformCore(opts Options) (*WaveformCore, error) {
	opts.Kind = KindWaveform
	c, err := newChannels[Waveform](opts)
	if err != nil {
		return nil, err
	}
	return &WaveformCore{channels: c}, nil
}

func (w *WaveformCore) Kind() Kind { return KindWaveform }

// Push appends one record per channel. item is a Waveform (or *Waveform) for
// width 1 or a slice of Width records; any other shape, scalars included, is
// dropped and false is returned. The buffer keeps the records' sample slices.
func (w *WaveformCore) Push(item any) bool {
	row, ok := w.toRow(item)
	if !ok {
		w.drop(item)
		return false
	}
	w.push(row)
	w.notifyChange()
	return true
}

// PushRecords is Push for callers that already hold one record per channel.
func (w *WaveformCore) PushRecords(records ...Waveform) bool {
	if len(records) != w.width {
		w.drop(records)
		return false
	}
	w.push(records)
	w.notifyChange()
	return true
}

// AppendArray pushes every element of items in order and notifies once.
// items may be []Waveform (width 1), [][]Waveform or []any holding anything
// Push accepts. It returns the number of elements appended.
func (w *WaveformCore) AppendArray(items any) int {
	appended := 0
	switch items := items.(type) {
	case []Waveform:
		if w.width != 1 {
			w.drop(items)
			return 0
		}
		for _, r := range items {
			w.push([]Waveform{r})
		}
		appended = len(items)
	case [][]Waveform:
		for _, row := range items {
			if len(row) != w.width {
				w.drop(row)
				continue
			}
			w.push(row)
			appended++
		}
	case []any:
		for _, item := range items {
			row, ok := w.toRow(item)
			if !ok {
				w.drop(item)
				continue
			}
			w.push(row)
			appended++
		}
	default:
		w.drop(items)
	}
	if appended > 0 {
		w.notifyChange()
	}
	return appended
}

func (w *WaveformCore) toRow(item any) ([]Waveform, bool) {
	switch item := item.(type) {
	case Waveform:
		if w.width == 1 {
			return []Waveform{item}, true
		}
	case *Waveform:
		if w.width == 1 && item != nil {
			return []Waveform{*item}, true
		}
	case []Waveform:
		if len(item) == w.width {
			return item, true
		}
	case []any:
		if len(item) != w.width {
			return nil, false
		}
		row := make([]Waveform, len(item))
		for i, e := range item {
			r, ok := e.(Waveform)
			if !ok {
				return nil, false
			}
			row[i] = r
		}
		return row, true
	}
	return nil, false
}

// Get returns the record at logical index: a Waveform for width 1, otherwise
// a []Waveform with one record per channel.
func (w *WaveformCore) Get(index int) (any, error) {
	row, err := w.row(index)
	if err != nil {
		return nil, err
	}
	if w.width == 1 {
		return row[0], nil
	}
	return row, nil
}

// Query materializes every sample of channel whose timestamp lies in
// [start, end], widened on each side by the owning record's interval. A Gap
// is placed between consecutive emitted records that are not adjacent in
// time. step is accepted for symmetry with NumericCore and ignored: records
// are never coarsened.
func (w *WaveformCore) Query(start, end float64, step, channel int) Points {
	if !w.validChannel(channel) || math.IsNaN(start) || math.IsNaN(end) {
		return nil
	}
	var (
		out     Points
		prev    Waveform
		hasPrev bool
	)
	r := w.rings[channel]
	for i := r.Start(); i < r.End(); i++ {
		rec := r.At(i)
		if !rec.plottable() {
			continue
		}
		pad := rec.interval()
		lo, hi := start-pad, end+pad
		first, last := rec.Span()
		if last < lo || first > hi {
			continue
		}

		emitted := false
		for j, y := range rec.Y {
			t := rec.TimeAt(j)
			if t < lo || t > hi {
				continue
			}
			if !emitted && hasPrev && !rec.adjacentTo(prev) {
				out = append(out, Gap)
			}
			emitted = true
			out = append(out, Point{X: t, Y: y})
		}
		if emitted {
			prev, hasPrev = rec, true
		}
	}
	return out
}

// RangeX returns the time extent of the retained records of channel. Step is
// the smallest sample interval among them.
func (w *WaveformCore) RangeX(channel int) (Range, bool) {
	if !w.validChannel(channel) {
		return Range{}, false
	}
	rng := Range{Min: math.Inf(1), Max: math.Inf(-1), Step: math.Inf(1)}
	found := false
	r := w.rings[channel]
	for i := r.Start(); i < r.End(); i++ {
		rec := r.At(i)
		if !rec.plottable() {
			continue
		}
		first, last := rec.Span()
		rng.Min = min(rng.Min, first)
		rng.Max = max(rng.Max, last)
		rng.Step = min(rng.Step, rec.interval())
		found = true
	}
	if !found {
		return Range{}, false
	}
	return rng, true
}

// RangeY returns the min and max of the finite samples of channel taken in
// [start, end]. Pass infinite bounds for every retained sample.
func (w *WaveformCore) RangeY(start, end float64, channel int) (Range, bool) {
	if !w.validChannel(channel) {
		return Range{}, false
	}
	rng := Range{Min: math.Inf(1), Max: math.Inf(-1)}
	found := false
	r := w.rings[channel]
	for i := r.Start(); i < r.End(); i++ {
		rec := r.At(i)
		if !rec.plottable() {
			continue
		}
		first, last := rec.Span()
		if last < start || first > end {
			continue
		}
		for j, y := range rec.Y {
			if !finite(y) {
				continue
			}
			if t := rec.TimeAt(j); t < start || t > end {
				continue
			}
			rng.Min = min(rng.Min, y)
			rng.Max = max(rng.Max, y)
			found = true
		}
	}
	if !found {
		return Range{}, false
	}
	return rng, true
}

// ToSequence returns the retained records of channel as []Waveform.
func (w *WaveformCore) ToSequence(channel int) any {
	return w.Records(channel)
}

// Records returns the retained records of channel, oldest first.
func (w *WaveformCore) Records(channel int) []Waveform {
	return w.sequence(channel)
}

// ToPointSeries materializes every retained sample of channel with gaps
// between non-adjacent records.
func (w *WaveformCore) ToPointSeries(channel int) Points {
	return w.Query(math.Inf(-1), math.Inf(1), 1, channel)
}

// SetCapacity discards all data and resizes. Unchanged capacity is a no-op.
func (w *WaveformCore) SetCapacity(capacity int) error {
	changed, err := w.setCapacity(capacity)
	if err != nil || !changed {
		return err
	}
	w.notifyChange()
	return nil
}

// SetWidth discards all data and changes the channel count. Unchanged width
// is a no-op.
func (w *WaveformCore) SetWidth(width int) error {
	changed, err := w.setWidth(width)
	if err != nil || !changed {
		return err
	}
	w.notifyChange()
	return nil
}

// SetBranchFactor only records b; waveform buffers keep no tree.
func (w *WaveformCore) SetBranchFactor(b int) {
	if b >= 2 {
		w.branch = b
	}
}

// Clear discards all data.
func (w *WaveformCore) Clear() {
	w.reset()
	w.notifyChange()
}

// ToSerializable captures the retained records and metadata.
func (w *WaveformCore) ToSerializable() Snapshot {
	records := make([][]Waveform, w.width)
	for i := range records {
		records[i] = w.sequence(i)
	}
	return Snapshot{
		Kind:       KindWaveform,
		Width:      w.width,
		Capacity:   w.capacity,
		StartIndex: w.StartIndex(),
		Count:      w.Count(),
		Records:    records,
	}
}

func (w *WaveformCore) restore(s Snapshot) error {
	if len(s.Records) != w.width {
		return fmt.Errorf("%w: %d channels of records for width %d", errors.ErrInvalidSnapshot, len(s.Records), w.width)
	}
	for _, recs := range s.Records {
		if err := s.checkRetained(len(recs)); err != nil {
			return err
		}
	}
	w.seek(s.StartIndex)
	for i, r := range w.rings {
		for _, rec := range s.Records[i] {
			r.Push(rec)
		}
	}
	return nil
}
