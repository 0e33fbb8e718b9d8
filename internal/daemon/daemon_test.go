// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package daemon

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antimetal/historybuffer/internal/config"
	"github.com/antimetal/historybuffer/pkg/history"
)

func testConfig(t *testing.T, storeDir string) *config.Config {
	t.Helper()
	proc := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(proc, "loadavg"), []byte("0.50 1.25 2.75 2/1234 12345"), 0644))

	cfg := &config.Config{
		Interval:     time.Millisecond,
		StoreDir:     storeDir,
		MetricsAddr:  "127.0.0.1:0",
		HostProcPath: proc,
		Buffers: []config.BufferConfig{
			{Name: "load", Width: 3, Capacity: 10},
			{Name: "scope", Source: "signal", Kind: history.KindWaveform, Capacity: 4},
		},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func newDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()
	d, err := New(cfg, logr.Discard())
	require.NoError(t, err)
	return d
}

func get(t *testing.T, h http.Handler, target string) (int, []byte) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, body
}

func TestDaemon_HTTP(t *testing.T) {
	d := newDaemon(t, testConfig(t, ""))
	t.Cleanup(func() { _ = d.Close() })
	assert.Equal(t, []string{"load", "scope"}, d.Buffers())

	for i := 0; i < 3; i++ {
		require.NoError(t, d.SampleAll(context.Background()))
	}
	h := d.Handler()

	t.Run("list", func(t *testing.T) {
		code, body := get(t, h, "/buffers")
		require.Equal(t, http.StatusOK, code)
		var infos []BufferInfo
		require.NoError(t, json.Unmarshal(body, &infos))
		assert.Equal(t, []BufferInfo{
			{Name: "load", Kind: history.KindNumeric, Width: 3, Capacity: 10, Count: 3},
			{Name: "scope", Kind: history.KindWaveform, Width: 1, Capacity: 4, Count: 3},
		}, infos)
	})

	t.Run("query", func(t *testing.T) {
		code, body := get(t, h, "/buffers/load/query?channel=2&start=1&end=2")
		require.Equal(t, http.StatusOK, code)
		var resp QueryResponse
		require.NoError(t, json.Unmarshal(body, &resp))
		assert.Equal(t, 2, resp.Channel)
		require.Len(t, resp.Points, 2)
		assert.Equal(t, 1.0, *resp.Points[0][0])
		assert.Equal(t, 2.75, *resp.Points[0][1])
		assert.Equal(t, 2.0, *resp.Points[1][0])
	})

	t.Run("query with huge step", func(t *testing.T) {
		for _, step := range []string{"9223372036854775806", "9223372036854775807"} {
			code, body := get(t, h, "/buffers/load/query?channel=2&start=1&end=2&step="+step)
			require.Equal(t, http.StatusOK, code)
			var resp QueryResponse
			require.NoError(t, json.Unmarshal(body, &resp))
			require.Len(t, resp.Points, 1)
			assert.Equal(t, 1.0, *resp.Points[0][0])
			assert.Equal(t, 2.75, *resp.Points[0][1])
		}
	})

	t.Run("waveform query", func(t *testing.T) {
		code, body := get(t, h, "/buffers/scope/query")
		require.Equal(t, http.StatusOK, code)
		var resp QueryResponse
		require.NoError(t, json.Unmarshal(body, &resp))
		assert.GreaterOrEqual(t, len(resp.Points), 3*64)
	})

	t.Run("range", func(t *testing.T) {
		code, body := get(t, h, "/buffers/load/range?channel=1")
		require.Equal(t, http.StatusOK, code)
		var resp RangeResponse
		require.NoError(t, json.Unmarshal(body, &resp))
		require.NotNil(t, resp.X)
		require.NotNil(t, resp.Y)
		assert.Equal(t, AxisExtent{Min: 0, Max: 2, Step: 1}, *resp.X)
		assert.Equal(t, AxisExtent{Min: 1.25, Max: 1.25}, *resp.Y)

		_, body = get(t, h, "/buffers/load/range?channel=7")
		resp = RangeResponse{}
		require.NoError(t, json.Unmarshal(body, &resp))
		assert.Nil(t, resp.X)
		assert.Nil(t, resp.Y)
	})

	t.Run("snapshot", func(t *testing.T) {
		code, body := get(t, h, "/buffers/load/snapshot")
		require.Equal(t, http.StatusOK, code)
		var snap history.Snapshot
		require.NoError(t, json.Unmarshal(body, &snap))
		assert.Equal(t, 3, snap.Count)
		assert.Equal(t, [][]float64{{0.5, 0.5, 0.5}, {1.25, 1.25, 1.25}, {2.75, 2.75, 2.75}}, snap.Values)
	})

	t.Run("metrics", func(t *testing.T) {
		code, body := get(t, h, "/metrics")
		require.Equal(t, http.StatusOK, code)
		assert.Contains(t, string(body), `history_buffer_count{buffer="load",kind="numeric"} 3`)
		assert.Contains(t, string(body), `history_query_duration_seconds_count{buffer="load",op="query"}`)
	})

	t.Run("errors", func(t *testing.T) {
		code, _ := get(t, h, "/buffers/nope/query")
		assert.Equal(t, http.StatusNotFound, code)
		code, _ = get(t, h, "/buffers/nope/snapshot")
		assert.Equal(t, http.StatusNotFound, code)
		code, _ = get(t, h, "/buffers/load/query?step=x")
		assert.Equal(t, http.StatusBadRequest, code)
		code, _ = get(t, h, "/buffers/load/range?start=abc")
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

func TestDaemon_PersistRestore(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)

	d := newDaemon(t, cfg)
	for i := 0; i < 12; i++ {
		require.NoError(t, d.SampleAll(context.Background()))
	}
	require.NoError(t, d.Persist())
	require.NoError(t, d.Close())

	d = newDaemon(t, cfg)
	g, ok := d.Buffer("load")
	require.True(t, ok)
	g.Do(func(b *history.Buffer) {
		assert.Equal(t, 12, b.Count())
		assert.Equal(t, 2, b.StartIndex())
	})
	require.NoError(t, d.Close())

	// a shape change starts over
	cfg.Buffers[0].Capacity = 20
	d = newDaemon(t, cfg)
	g, _ = d.Buffer("load")
	g.Do(func(b *history.Buffer) {
		assert.Equal(t, 0, b.Count())
	})
	require.NoError(t, d.Close())
}

func TestDaemon_Run(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.PersistInterval = time.Millisecond
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	g, _ := d.Buffer("load")
	require.Eventually(t, func() bool {
		var n int
		g.Do(func(b *history.Buffer) { n = b.Count() })
		return n >= 2
	}, 5*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}

	d = newDaemon(t, cfg)
	t.Cleanup(func() { _ = d.Close() })
	g, _ = d.Buffer("load")
	g.Do(func(b *history.Buffer) {
		assert.GreaterOrEqual(t, b.Count(), 2)
	})
}

func TestNew_UnknownSource(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Buffers = append(cfg.Buffers, config.BufferConfig{Name: "gpu", Source: "gpu", Capacity: 1, Width: 1, Kind: history.KindNumeric})
	_, err := New(cfg, logr.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `buffer "gpu"`)
}
