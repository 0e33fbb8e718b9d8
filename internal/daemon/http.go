// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package daemon

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/antimetal/historybuffer/pkg/history"
)

// BufferInfo describes one buffer in the /buffers listing.
type BufferInfo struct {
	Name       string       `json:"name"`
	Kind       history.Kind `json:"kind"`
	Width      int          `json:"width"`
	Capacity   int          `json:"capacity"`
	StartIndex int          `json:"startIndex"`
	Count      int          `json:"count"`
}

// QueryResponse carries decimated points as [x, y] pairs. Gaps are
// [null, null].
type QueryResponse struct {
	Buffer  string        `json:"buffer"`
	Channel int           `json:"channel"`
	Points  [][2]*float64 `json:"points"`
}

// RangeResponse carries the axis extents of one channel. Absent extents
// are null.
type RangeResponse struct {
	Buffer  string      `json:"buffer"`
	Channel int         `json:"channel"`
	X       *AxisExtent `json:"x"`
	Y       *AxisExtent `json:"y"`
}

type AxisExtent struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step,omitempty"`
}

// Handler serves:
//
//	GET /metrics
//	GET /buffers
//	GET /buffers/{name}/query?start=&end=&step=&channel=
//	GET /buffers/{name}/range?channel=&start=&end=
//	GET /buffers/{name}/snapshot
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /buffers", d.handleList)
	mux.HandleFunc("GET /buffers/{name}/query", d.handleQuery)
	mux.HandleFunc("GET /buffers/{name}/range", d.handleRange)
	mux.HandleFunc("GET /buffers/{name}/snapshot", d.handleSnapshot)
	return mux
}

func (d *Daemon) handleList(w http.ResponseWriter, r *http.Request) {
	infos := make([]BufferInfo, 0, len(d.buffers))
	for _, name := range d.Buffers() {
		d.buffers[name].Do(func(b *history.Buffer) {
			infos = append(infos, BufferInfo{
				Name:       name,
				Kind:       b.Kind(),
				Width:      b.Width(),
				Capacity:   b.Capacity(),
				StartIndex: b.StartIndex(),
				Count:      b.Count(),
			})
		})
	}
	d.writeJSON(w, infos)
}

func (d *Daemon) handleQuery(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	g, ok := d.buffers[name]
	if !ok {
		http.Error(w, fmt.Sprintf("buffer %q not found", name), http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	start, err1 := floatParam(q, "start", math.Inf(-1))
	end, err2 := floatParam(q, "end", math.Inf(1))
	step, err3 := intParam(q, "step", 1)
	channel, err4 := intParam(q, "channel", 0)
	for _, err := range []error{err1, err2, err3, err4} {
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	var points history.Points
	done := d.collector.ObserveQuery(name, "query")
	g.Do(func(b *history.Buffer) {
		points = b.Query(start, end, step, channel)
	})
	done()

	resp := QueryResponse{Buffer: name, Channel: channel, Points: make([][2]*float64, len(points))}
	for i, p := range points {
		resp.Points[i] = [2]*float64{nullable(p.X), nullable(p.Y)}
	}
	d.writeJSON(w, resp)
}

func (d *Daemon) handleRange(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	g, ok := d.buffers[name]
	if !ok {
		http.Error(w, fmt.Sprintf("buffer %q not found", name), http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	start, err1 := floatParam(q, "start", math.Inf(-1))
	end, err2 := floatParam(q, "end", math.Inf(1))
	channel, err3 := intParam(q, "channel", 0)
	for _, err := range []error{err1, err2, err3} {
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	resp := RangeResponse{Buffer: name, Channel: channel}
	done := d.collector.ObserveQuery(name, "range")
	g.Do(func(b *history.Buffer) {
		if x, ok := b.RangeX(channel); ok {
			resp.X = &AxisExtent{Min: x.Min, Max: x.Max, Step: x.Step}
		}
		if y, ok := b.RangeY(start, end, channel); ok {
			resp.Y = &AxisExtent{Min: y.Min, Max: y.Max}
		}
	})
	done()
	d.writeJSON(w, resp)
}

func (d *Daemon) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	g, ok := d.buffers[name]
	if !ok {
		http.Error(w, fmt.Sprintf("buffer %q not found", name), http.StatusNotFound)
		return
	}
	d.writeJSON(w, g.Snapshot())
}

func (d *Daemon) writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		d.logger.Error(err, "failed to encode response")
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(data); err != nil {
		d.logger.V(1).Info("failed to write response", "error", err.Error())
	}
}

func floatParam(q url.Values, key string, def float64) (float64, error) {
	s := q.Get(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func intParam(q url.Values, key string, def int) (int, error) {
	s := q.Get(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
