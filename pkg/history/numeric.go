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
	"github.com/antimetal/historybuffer/pkg/history/segtree"
)

// Compile-time interface check
var _ Backend = (*NumericCore)(nil)

// NumericCore stores Width parallel channels of scalar samples, each with a
// min/max acceleration tree. Trees are folded lazily on the first read after
// a burst of writes.
//
// NumericCore is NOT thread-safe; see Guarded.
type NumericCore struct {
	*channels[float64]
	trees []*segtree.Tree
}

// NewNumericCore creates an empty numeric core. opts.Kind is ignored.
func NewNumericCore(opts Options) (*NumericCore, error) {
	opts.Kind = KindNumeric
	c, err := newChannels[float64](opts)
	if err != nil {
		return nil, err
	}
	n := &NumericCore{channels: c}
	n.rebuildTrees()
	return n, nil
}

func (n *NumericCore) Kind() Kind { return KindNumeric }

func (n *NumericCore) rebuildTrees() {
	n.trees = make([]*segtree.Tree, len(n.rings))
	for i, r := range n.rings {
		n.trees[i] = segtree.New(r, n.capacity, n.branch)
	}
}

// ensureFresh folds pending writes into every tree.
func (n *NumericCore) ensureFresh() {
	if !n.changed {
		return
	}
	for _, t := range n.trees {
		t.Update()
	}
	n.changed = false
}

// Push appends one sample per channel. item is a scalar for width 1 or a
// slice of Width scalars; any other shape is dropped and false is returned.
func (n *NumericCore) Push(item any) bool {
	row, ok := n.toRow(item)
	if !ok {
		n.drop(item)
		return false
	}
	n.pushRow(row)
	n.notifyChange()
	return true
}

// PushValues is Push for callers that already hold float64 values.
func (n *NumericCore) PushValues(values ...float64) bool {
	if len(values) != n.width {
		n.drop(values)
		return false
	}
	n.pushRow(values)
	n.notifyChange()
	return true
}

// AppendArray pushes every element of items in order and notifies once.
// items may be []float64 (width 1), [][]float64 or []any holding anything
// Push accepts. Elements with the wrong shape are dropped. It returns the
// number of elements appended.
func (n *NumericCore) AppendArray(items any) int {
	appended := 0
	switch items := items.(type) {
	case []float64:
		if n.width != 1 {
			n.drop(items)
			return 0
		}
		for _, v := range items {
			n.pushRow([]float64{v})
		}
		appended = len(items)
	case [][]float64:
		for _, row := range items {
			if len(row) != n.width {
				n.drop(row)
				continue
			}
			n.pushRow(row)
			appended++
		}
	case []any:
		for _, item := range items {
			row, ok := n.toRow(item)
			if !ok {
				n.drop(item)
				continue
			}
			n.pushRow(row)
			appended++
		}
	default:
		n.drop(items)
	}
	if appended > 0 {
		n.notifyChange()
	}
	return appended
}

func (n *NumericCore) pushRow(row []float64) {
	for i, r := range n.rings {
		n.trees[i].MarkDirty(r.End())
	}
	n.push(row)
}

func (n *NumericCore) toRow(item any) ([]float64, bool) {
	if n.width == 1 {
		if v, ok := toFloat(item); ok {
			return []float64{v}, true
		}
	}
	switch item := item.(type) {
	case []float64:
		if len(item) == n.width {
			return item, true
		}
	case []any:
		if len(item) != n.width {
			return nil, false
		}
		row := make([]float64, len(item))
		for i, e := range item {
			v, ok := toFloat(e)
			if !ok {
				return nil, false
			}
			row[i] = v
		}
		return row, true
	}
	return nil, false
}

// toFloat converts scalar items. nil is a missing sample.
func toFloat(item any) (float64, bool) {
	switch v := item.(type) {
	case nil:
		return math.NaN(), true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

// Get returns the sample at logical index: a float64 for width 1, otherwise a
// []float64 with one value per channel.
func (n *NumericCore) Get(index int) (any, error) {
	row, err := n.row(index)
	if err != nil {
		return nil, err
	}
	if n.width == 1 {
		return row[0], nil
	}
	return row, nil
}

// Value returns one channel's sample at logical index.
func (n *NumericCore) Value(index, channel int) (float64, error) {
	if !n.validChannel(channel) {
		return 0, fmt.Errorf("%w: channel %d of %d", errors.ErrIndexOutOfRange, channel, n.width)
	}
	return n.rings[channel].Get(index)
}

// Query returns the min/max decimation of logical indexes [start, end] in
// buckets of step samples. See segtree.Tree.Query.
func (n *NumericCore) Query(start, end float64, step, channel int) Points {
	if !n.validChannel(channel) {
		return nil
	}
	n.ensureFresh()
	a, b, ok := n.indexRange(start, end)
	if !ok {
		return nil
	}
	var out Points
	n.trees[channel].Query(a, b, step, func(i int, v float64) {
		out = append(out, Point{X: float64(i), Y: v})
	})
	return out
}

// indexRange converts an X interval into the inclusive logical index range
// of retained samples inside it.
func (n *NumericCore) indexRange(start, end float64) (int, int, bool) {
	if math.IsNaN(start) || math.IsNaN(end) {
		return 0, 0, false
	}
	lo, hi := n.StartIndex(), n.LastIndex()-1
	a, b := lo, hi
	if start > float64(lo) {
		a = int(math.Min(math.Ceil(start), float64(hi+1)))
	}
	if end < float64(hi) {
		b = int(math.Max(math.Floor(end), float64(lo-1)))
	}
	return a, b, a <= b
}

// RangeX returns the retained logical index extent of channel.
func (n *NumericCore) RangeX(channel int) (Range, bool) {
	if !n.validChannel(channel) || n.rings[channel].Len() == 0 {
		return Range{}, false
	}
	return Range{Min: float64(n.StartIndex()), Max: float64(n.LastIndex() - 1), Step: 1}, true
}

// RangeY returns the min and max of the finite samples with logical index in
// [start, end]. Pass infinite bounds for the whole window.
func (n *NumericCore) RangeY(start, end float64, channel int) (Range, bool) {
	if !n.validChannel(channel) {
		return Range{}, false
	}
	n.ensureFresh()
	a, b, ok := n.indexRange(start, end)
	if !ok {
		return Range{}, false
	}
	ext, ok := n.trees[channel].MinMax(a, b)
	if !ok {
		return Range{}, false
	}
	return Range{Min: ext.Min, Max: ext.Max}, true
}

// ToSequence returns the retained samples of channel as []float64.
func (n *NumericCore) ToSequence(channel int) any {
	return n.Values(channel)
}

// Values returns the retained samples of channel, oldest first.
func (n *NumericCore) Values(channel int) []float64 {
	return n.sequence(channel)
}

// ToPointSeries pairs every retained sample of channel with its logical index.
func (n *NumericCore) ToPointSeries(channel int) Points {
	values := n.sequence(channel)
	if values == nil {
		return nil
	}
	start := n.StartIndex()
	out := make(Points, len(values))
	for i, v := range values {
		out[i] = Point{X: float64(start + i), Y: v}
	}
	return out
}

// SetCapacity discards all data and resizes. Unchanged capacity is a no-op.
func (n *NumericCore) SetCapacity(capacity int) error {
	changed, err := n.setCapacity(capacity)
	if err != nil || !changed {
		return err
	}
	n.rebuildTrees()
	n.notifyChange()
	return nil
}

// SetWidth discards all data and changes the channel count. Unchanged width
// is a no-op.
func (n *NumericCore) SetWidth(width int) error {
	changed, err := n.setWidth(width)
	if err != nil || !changed {
		return err
	}
	n.rebuildTrees()
	n.notifyChange()
	return nil
}

// SetBranchFactor reshapes the acceleration trees. Data is kept.
func (n *NumericCore) SetBranchFactor(b int) {
	if b < 2 {
		b = segtree.DefaultBranchFactor
	}
	if b == n.branch {
		return
	}
	n.branch = b
	n.rebuildTrees()
	n.changed = true
}

// Clear discards all data.
func (n *NumericCore) Clear() {
	n.reset()
	n.rebuildTrees()
	n.notifyChange()
}

// ToSerializable captures the retained data and metadata.
func (n *NumericCore) ToSerializable() Snapshot {
	values := make([][]float64, n.width)
	for i := range values {
		values[i] = n.sequence(i)
	}
	return Snapshot{
		Kind:       KindNumeric,
		Width:      n.width,
		Capacity:   n.capacity,
		StartIndex: n.StartIndex(),
		Count:      n.Count(),
		Values:     values,
	}
}

func (n *NumericCore) restore(s Snapshot) error {
	if len(s.Values) != n.width {
		return fmt.Errorf("%w: %d channels of values for width %d", errors.ErrInvalidSnapshot, len(s.Values), n.width)
	}
	for _, v := range s.Values {
		if err := s.checkRetained(len(v)); err != nil {
			return err
		}
	}
	n.seek(s.StartIndex)
	for i, r := range n.rings {
		for _, v := range s.Values[i] {
			r.Push(v)
		}
	}
	n.rebuildTrees()
	return nil
}
