// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package history

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"

	"github.com/antimetal/historybuffer/pkg/errors"
)

// Snapshot is the serializable form of a buffer: the retained data of every
// channel plus the metadata needed to rebuild it. Exactly one of Values and
// Records is set, depending on Kind.
type Snapshot struct {
	Kind       Kind
	Width      int
	Capacity   int
	StartIndex int
	Count      int
	// Values holds the retained samples of each channel of a numeric buffer.
	Values [][]float64
	// Records holds the retained records of each channel of a waveform buffer.
	Records [][]Waveform
}

// checkRetained verifies that n retained items agree with the counters.
func (s Snapshot) checkRetained(n int) error {
	if want := min(s.Count, s.Capacity); n != want {
		return fmt.Errorf("%w: %d retained items, expected %d", errors.ErrInvalidSnapshot, n, want)
	}
	if s.StartIndex != s.Count-n {
		return fmt.Errorf("%w: start index %d does not match count %d", errors.ErrInvalidSnapshot, s.StartIndex, s.Count)
	}
	return nil
}

// FromSnapshot builds a buffer holding the data of s. Shape and kind come
// from s; BranchFactor and Logger from opts.
func FromSnapshot(s Snapshot, opts Options) (*Buffer, error) {
	if !s.Kind.valid() {
		return nil, fmt.Errorf("%w: %w: %q", errors.ErrInvalidSnapshot, errors.ErrUnknownKind, s.Kind)
	}
	opts.Kind = s.Kind
	opts.Capacity = s.Capacity
	opts.Width = s.Width
	if s.Capacity < 1 || s.Width < 1 {
		return nil, fmt.Errorf("%w: capacity %d width %d", errors.ErrInvalidSnapshot, s.Capacity, s.Width)
	}
	b, err := New(opts)
	if err != nil {
		return nil, err
	}
	if err := b.restore(s); err != nil {
		return nil, err
	}
	return b, nil
}

// Wire format. Non-finite numbers are encoded as null.

type wireSnapshot struct {
	Data       json.RawMessage `json:"data"`
	Width      int             `json:"width"`
	Capacity   int             `json:"capacity"`
	Kind       Kind            `json:"kind"`
	StartIndex int             `json:"startIndex"`
	Count      int             `json:"count"`
}

type wireWaveform struct {
	T0 *float64   `json:"t0"`
	Dt *float64   `json:"dt"`
	Y  []*float64 `json:"y"`
}

// MarshalJSON encodes width 1 data as a flat array and wider data as one
// array per channel.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var data any
	switch s.Kind {
	case KindNumeric:
		channels := make([][]*float64, len(s.Values))
		for i, v := range s.Values {
			channels[i] = toNullable(v)
		}
		data = channels
		if s.Width == 1 && len(channels) == 1 {
			data = channels[0]
		}
	case KindWaveform:
		channels := make([][]wireWaveform, len(s.Records))
		for i, recs := range s.Records {
			channels[i] = make([]wireWaveform, len(recs))
			for j, r := range recs {
				channels[i][j] = wireWaveform{T0: nullable(r.T0), Dt: nullable(r.Dt), Y: toNullable(r.Y)}
			}
		}
		data = channels
		if s.Width == 1 && len(channels) == 1 {
			data = channels[0]
		}
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownKind, s.Kind)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot data: %w", err)
	}
	return json.Marshal(wireSnapshot{
		Data:       raw,
		Width:      s.Width,
		Capacity:   s.Capacity,
		Kind:       s.Kind,
		StartIndex: s.StartIndex,
		Count:      s.Count,
	})
}

// UnmarshalJSON decodes the format written by MarshalJSON.
func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var w wireSnapshot
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out := Snapshot{
		Kind:       w.Kind,
		Width:      w.Width,
		Capacity:   w.Capacity,
		StartIndex: w.StartIndex,
		Count:      w.Count,
	}

	switch w.Kind {
	case KindNumeric:
		var channels [][]*float64
		if w.Width == 1 {
			var flat []*float64
			if err := json.Unmarshal(w.Data, &flat); err != nil {
				return fmt.Errorf("%w: numeric data: %w", errors.ErrInvalidSnapshot, err)
			}
			channels = [][]*float64{flat}
		} else if err := json.Unmarshal(w.Data, &channels); err != nil {
			return fmt.Errorf("%w: numeric data: %w", errors.ErrInvalidSnapshot, err)
		}
		out.Values = make([][]float64, len(channels))
		for i, c := range channels {
			out.Values[i] = fromNullable(c)
		}
	case KindWaveform:
		var channels [][]wireWaveform
		if w.Width == 1 {
			var flat []wireWaveform
			if err := json.Unmarshal(w.Data, &flat); err != nil {
				return fmt.Errorf("%w: waveform data: %w", errors.ErrInvalidSnapshot, err)
			}
			channels = [][]wireWaveform{flat}
		} else if err := json.Unmarshal(w.Data, &channels); err != nil {
			return fmt.Errorf("%w: waveform data: %w", errors.ErrInvalidSnapshot, err)
		}
		out.Records = make([][]Waveform, len(channels))
		for i, c := range channels {
			out.Records[i] = make([]Waveform, len(c))
			for j, r := range c {
				out.Records[i][j] = Waveform{T0: fromNull(r.T0), Dt: fromNull(r.Dt), Y: fromNullable(r.Y)}
			}
		}
	default:
		return fmt.Errorf("%w: %w: %q", errors.ErrInvalidSnapshot, errors.ErrUnknownKind, w.Kind)
	}

	*s = out
	return nil
}

func nullable(v float64) *float64 {
	if !finite(v) {
		return nil
	}
	return &v
}

func fromNull(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

func toNullable(vs []float64) []*float64 {
	out := make([]*float64, len(vs))
	for i, v := range vs {
		out[i] = nullable(v)
	}
	return out
}

func fromNullable(vs []*float64) []float64 {
	out := make([]float64, len(vs))
	for i, p := range vs {
		out[i] = fromNull(p)
	}
	return out
}
