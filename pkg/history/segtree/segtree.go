// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package segtree implements a multi-level min/max summary tree over a sliding
// window of samples. It answers decimation queries ("min and max of every
// bucket of N samples in [a, b]") without scanning every sample.
//
// Level k summarizes runs of BranchFactor^(k+1) logical indexes. Each level is
// itself a ring of nodes addressed by ordinal modulo the number of nodes needed
// to cover one window, so memory stays proportional to capacity/BranchFactor
// however far the window slides.
package segtree

import "math"

// DefaultBranchFactor is the fan-out used when none is configured.
const DefaultBranchFactor = 32

// Source is the sample window a Tree summarizes. Samples are retained for
// logical indexes in [Start(), End()).
type Source interface {
	Start() int
	End() int
	At(i int) float64
}

// Extrema holds the minimum and maximum of a run of samples and the logical
// indexes of their first occurrence. Index -1 means the run held no finite
// sample.
type Extrema struct {
	Min      float64
	MinIndex int
	Max      float64
	MaxIndex int
}

func emptyExtrema() Extrema {
	return Extrema{MinIndex: -1, MaxIndex: -1}
}

// Valid reports whether at least one finite sample was seen.
func (e Extrema) Valid() bool {
	return e.MinIndex >= 0
}

func (e *Extrema) add(i int, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	if e.MinIndex < 0 {
		*e = Extrema{Min: v, MinIndex: i, Max: v, MaxIndex: i}
		return
	}
	if v < e.Min {
		e.Min, e.MinIndex = v, i
	}
	if v > e.Max {
		e.Max, e.MaxIndex = v, i
	}
}

// merge folds o into e. o must cover indexes after everything already in e so
// that strict comparisons keep the first occurrence on ties.
func (e *Extrema) merge(o Extrema) {
	if !o.Valid() {
		return
	}
	if !e.Valid() {
		*e = o
		return
	}
	if o.Min < e.Min {
		e.Min, e.MinIndex = o.Min, o.MinIndex
	}
	if o.Max > e.Max {
		e.Max, e.MaxIndex = o.Max, o.MaxIndex
	}
}

type node struct {
	ordinal int
	// full is set when the summary covers every index of the node's range.
	full bool
	ext  Extrema
}

type level struct {
	size  int
	nodes []node
}

func (l *level) slot(ordinal int) *node {
	return &l.nodes[ordinal%len(l.nodes)]
}

// lookup returns the summary for ordinal if it is complete and current.
func (l *level) lookup(ordinal int) (Extrema, bool) {
	n := l.slot(ordinal)
	if n.ordinal != ordinal || !n.full {
		return Extrema{}, false
	}
	return n.ext, true
}

// Tree is a lazily folded min/max summary of a Source. Writers call MarkDirty
// after every push; readers get fresh results because every read path folds
// pending writes first.
//
// Tree is NOT thread-safe.
type Tree struct {
	src      Source
	capacity int
	branch   int
	levels   []level

	// [dirtyFrom, dirtyTo) has been written but not folded yet.
	dirtyFrom int
	dirtyTo   int
}

// New creates a tree over src shaped for a window of capacity samples.
// branchFactor values below 2 fall back to DefaultBranchFactor.
func New(src Source, capacity, branchFactor int) *Tree {
	if branchFactor < 2 {
		branchFactor = DefaultBranchFactor
	}
	t := &Tree{
		src:      src,
		capacity: capacity,
		branch:   branchFactor,
	}
	t.Rebuild()
	return t
}

// BranchFactor returns the tree fan-out.
func (t *Tree) BranchFactor() int {
	return t.branch
}

// Levels returns the number of summary levels. Windows smaller than the branch
// factor have none and are always answered from raw samples.
func (t *Tree) Levels() int {
	return len(t.levels)
}

// Rebuild discards every summary and marks the whole retained window dirty.
func (t *Tree) Rebuild() {
	t.levels = t.levels[:0]
	for size := t.branch; size > 0 && size <= t.capacity; size *= t.branch {
		nodes := make([]node, t.capacity/size+2)
		for i := range nodes {
			nodes[i].ordinal = -1
		}
		t.levels = append(t.levels, level{size: size, nodes: nodes})
		if size > math.MaxInt/t.branch {
			break
		}
	}
	t.dirtyFrom = t.src.Start()
	t.dirtyTo = t.src.End()
}

// MarkDirty records that logical index i was written.
func (t *Tree) MarkDirty(i int) {
	if !t.Dirty() {
		t.dirtyFrom, t.dirtyTo = i, i+1
		return
	}
	t.dirtyFrom = min(t.dirtyFrom, i)
	t.dirtyTo = max(t.dirtyTo, i+1)
}

// Dirty reports whether writes are pending.
func (t *Tree) Dirty() bool {
	return t.dirtyFrom < t.dirtyTo
}

// Update folds the pending dirty range into every level, bottom-up. Nodes are
// re-derived from retained samples only, so a node whose range was partially
// evicted is stored as incomplete and never used by queries.
func (t *Tree) Update() {
	from := max(t.dirtyFrom, t.src.Start())
	to := min(t.dirtyTo, t.src.End())
	if from < to {
		for k := range t.levels {
			lvl := &t.levels[k]
			for o := from / lvl.size; o <= (to-1)/lvl.size; o++ {
				if k == 0 {
					t.summarizeLeaf(lvl, o)
				} else {
					t.summarizeParent(&t.levels[k-1], lvl, o)
				}
			}
		}
	}
	end := t.src.End()
	t.dirtyFrom, t.dirtyTo = end, end
}

func (t *Tree) summarizeLeaf(lvl *level, ordinal int) {
	lo := ordinal * lvl.size
	hi := lo + lvl.size
	a := max(lo, t.src.Start())
	b := min(hi, t.src.End())

	ext := emptyExtrema()
	for i := a; i < b; i++ {
		ext.add(i, t.src.At(i))
	}
	*lvl.slot(ordinal) = node{ordinal: ordinal, full: a == lo && b == hi, ext: ext}
}

func (t *Tree) summarizeParent(children, lvl *level, ordinal int) {
	ext := emptyExtrema()
	full := true
	first := ordinal * t.branch
	for c := first; c < first+t.branch; c++ {
		child, ok := children.lookup(c)
		if !ok {
			full = false
			break
		}
		ext.merge(child)
	}
	*lvl.slot(ordinal) = node{ordinal: ordinal, full: full, ext: ext}
}

func (t *Tree) ensureFresh() {
	if t.Dirty() {
		t.Update()
	}
}

// clamp restricts the inclusive range [start, end] to the retained window and
// returns it half-open.
func (t *Tree) clamp(start, end int) (int, int, bool) {
	start = max(start, t.src.Start())
	end = min(end, t.src.End()-1)
	if end < start {
		return 0, 0, false
	}
	return start, end + 1, true
}

// MinMax returns the extrema of the finite samples in the inclusive range
// [start, end].
func (t *Tree) MinMax(start, end int) (Extrema, bool) {
	t.ensureFresh()
	a, b, ok := t.clamp(start, end)
	if !ok {
		return Extrema{}, false
	}
	ext := t.extrema(a, b)
	return ext, ext.Valid()
}

// Query decimates the inclusive range [start, end] into buckets of step
// samples, starting at the first retained index in range. For every bucket with
// finite data it emits the bucket minimum and maximum in ascending index
// order, or a single sample when both are the same index. Emitted indexes are
// strictly ascending.
func (t *Tree) Query(start, end, step int, emit func(index int, value float64)) {
	t.ensureFresh()
	a, b, ok := t.clamp(start, end)
	if !ok {
		return
	}
	// one bucket already spans [a, b); larger steps would overflow bs+step
	step = min(max(step, 1), b-a)

	if step == 1 {
		for i := a; i < b; i++ {
			if v := t.src.At(i); !math.IsNaN(v) && !math.IsInf(v, 0) {
				emit(i, v)
			}
		}
		return
	}

	for bs := a; bs < b; bs += step {
		ext := t.extrema(bs, min(bs+step, b))
		switch {
		case !ext.Valid():
		case ext.MinIndex == ext.MaxIndex:
			emit(ext.MinIndex, ext.Min)
		case ext.MinIndex < ext.MaxIndex:
			emit(ext.MinIndex, ext.Min)
			emit(ext.MaxIndex, ext.Max)
		default:
			emit(ext.MaxIndex, ext.Max)
			emit(ext.MinIndex, ext.Min)
		}
	}
}

// extrema computes the extrema of [a, b), which must lie inside the retained
// window, using the coarsest complete nodes that fit and raw samples for the
// misaligned edges.
func (t *Tree) extrema(a, b int) Extrema {
	ext := emptyExtrema()
	if len(t.levels) == 0 {
		t.scan(&ext, a, b)
		return ext
	}

	leaf := t.levels[0].size
	for i := a; i < b; {
		if i%leaf != 0 || i+leaf > b {
			next := min(b, (i/leaf+1)*leaf)
			t.scan(&ext, i, next)
			i = next
			continue
		}

		used := false
		for k := len(t.levels) - 1; k >= 0; k-- {
			lvl := &t.levels[k]
			if i%lvl.size != 0 || i+lvl.size > b {
				continue
			}
			if n, ok := lvl.lookup(i / lvl.size); ok {
				ext.merge(n)
				i += lvl.size
				used = true
				break
			}
		}
		if !used {
			t.scan(&ext, i, i+leaf)
			i += leaf
		}
	}
	return ext
}

func (t *Tree) scan(ext *Extrema, a, b int) {
	for i := a; i < b; i++ {
		ext.add(i, t.src.At(i))
	}
}
