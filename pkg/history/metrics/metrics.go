// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package metrics exports the state of named history buffers to Prometheus.
package metrics

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/antimetal/historybuffer/pkg/history"
)

const namespace = "history"

var (
	countDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "buffer", "count"),
		"Pushes since the buffer was created or last reset.",
		[]string{"buffer", "kind"}, nil,
	)
	retainedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "buffer", "retained"),
		"Pushes currently retained per channel.",
		[]string{"buffer"}, nil,
	)
	capacityDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "buffer", "capacity"),
		"Maximum pushes retained per channel.",
		[]string{"buffer"}, nil,
	)
	droppedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "buffer", "dropped_total"),
		"Pushed items discarded because their shape did not match the buffer width.",
		[]string{"buffer"}, nil,
	)
	latestDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "buffer", "latest"),
		"Newest finite sample of each channel of a numeric buffer.",
		[]string{"buffer", "channel"}, nil,
	)
)

// Compile-time interface check
var _ prometheus.Collector = (*Collector)(nil)

// Collector reads a set of guarded buffers on every scrape.
type Collector struct {
	mu      sync.RWMutex
	buffers map[string]*history.Guarded

	queryDuration *prometheus.HistogramVec
}

func NewCollector() *Collector {
	return &Collector{
		buffers: make(map[string]*history.Guarded),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Time spent answering buffer queries.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"buffer", "op"}),
	}
}

// Add exports g under name. Names must be unique.
func (c *Collector) Add(name string, g *history.Guarded) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.buffers[name]; exists {
		return fmt.Errorf("buffer %q already exported", name)
	}
	c.buffers[name] = g
	return nil
}

// Remove stops exporting name.
func (c *Collector) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.buffers, name)
}

// ObserveQuery starts timing a query against buffer. Call the returned
// function when the query is done.
func (c *Collector) ObserveQuery(buffer, op string) func() {
	timer := prometheus.NewTimer(c.queryDuration.WithLabelValues(buffer, op))
	return func() { timer.ObserveDuration() }
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- countDesc
	ch <- retainedDesc
	ch <- capacityDesc
	ch <- droppedDesc
	ch <- latestDesc
	c.queryDuration.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	buffers := maps.Clone(c.buffers)
	c.mu.RUnlock()

	for _, name := range slices.Sorted(maps.Keys(buffers)) {
		buffers[name].Do(func(b *history.Buffer) {
			collectBuffer(ch, name, b)
		})
	}
	c.queryDuration.Collect(ch)
}

func collectBuffer(ch chan<- prometheus.Metric, name string, b *history.Buffer) {
	ch <- prometheus.MustNewConstMetric(countDesc, prometheus.GaugeValue, float64(b.Count()), name, string(b.Kind()))
	ch <- prometheus.MustNewConstMetric(retainedDesc, prometheus.GaugeValue, float64(b.LastIndex()-b.StartIndex()), name)
	ch <- prometheus.MustNewConstMetric(capacityDesc, prometheus.GaugeValue, float64(b.Capacity()), name)
	ch <- prometheus.MustNewConstMetric(droppedDesc, prometheus.CounterValue, float64(b.Dropped()), name)

	n, ok := b.Numeric()
	if !ok || n.Count() == 0 {
		return
	}
	last := n.LastIndex() - 1
	for channel := 0; channel < n.Width(); channel++ {
		v, err := n.Value(last, channel)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		ch <- prometheus.MustNewConstMetric(latestDesc, prometheus.GaugeValue, v, name, strconv.Itoa(channel))
	}
}
