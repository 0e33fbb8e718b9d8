// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// history-bench measures push and decimated query cost of numeric history
// buffers, running independent buffers in parallel.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/antimetal/historybuffer/pkg/history"
)

var (
	capacity = flag.Int("capacity", 100000, "Buffer capacity")
	width    = flag.Int("width", 1, "Channels per buffer")
	branch   = flag.Int("branch", 32, "Acceleration tree branch factor")
	pushes   = flag.Int("pushes", 1000000, "Pushes per buffer")
	buckets  = flag.Int("buckets", 1000, "Query buckets per read, as a renderer with this many pixels would ask")
	reads    = flag.Int("reads", 100, "Reads per buffer, interleaved with the pushes")
	parallel = flag.Int("parallel", 4, "Independent buffers benchmarked at once")
	seed     = flag.Int64("seed", 1, "Random seed")
	asJSON   = flag.Bool("json", false, "Print results as JSON")
	verbose  = flag.Bool("verbose", false, "Enable verbose logging")
)

type result struct {
	Buffer       int           `json:"buffer"`
	Pushes       int           `json:"pushes"`
	Reads        int           `json:"reads"`
	PushTotal    time.Duration `json:"pushTotalNs"`
	ReadTotal    time.Duration `json:"readTotalNs"`
	PointsPerRd  int           `json:"pointsPerRead"`
	FinalStart   int           `json:"finalStartIndex"`
	FinalRangeLo float64       `json:"finalRangeMin"`
	FinalRangeHi float64       `json:"finalRangeMax"`
}

func main() {
	flag.Parse()

	logger := logr.Discard()
	if *verbose {
		zapLog, _ := zap.NewDevelopment()
		logger = zapr.NewLogger(zapLog)
	}

	results := make([]result, *parallel)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < *parallel; i++ {
		g.Go(func() error {
			r, err := bench(ctx, i, logger.WithValues("buffer", i))
			if err != nil {
				return fmt.Errorf("buffer %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		out, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling results: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
		return
	}
	for _, r := range results {
		fmt.Printf("buffer %d: %d pushes in %s (%s/push), %d reads in %s (%s/read, %d points), window start %d, y [%g, %g]\n",
			r.Buffer, r.Pushes, r.PushTotal, perOp(r.PushTotal, r.Pushes),
			r.Reads, r.ReadTotal, perOp(r.ReadTotal, r.Reads), r.PointsPerRd,
			r.FinalStart, r.FinalRangeLo, r.FinalRangeHi)
	}
}

func bench(ctx context.Context, id int, logger logr.Logger) (result, error) {
	buf, err := history.New(history.Options{
		Capacity:     *capacity,
		Width:        *width,
		BranchFactor: *branch,
		Logger:       logger,
	})
	if err != nil {
		return result{}, err
	}
	n, _ := buf.Numeric()
	rng := rand.New(rand.NewSource(*seed + int64(id)))

	res := result{Buffer: id}
	every := max(*pushes / max(*reads, 1), 1)
	row := make([]float64, *width)
	walk := 0.0
	for i := 0; i < *pushes; i++ {
		if i%4096 == 0 && ctx.Err() != nil {
			return res, ctx.Err()
		}
		walk += rng.NormFloat64()
		for c := range row {
			row[c] = walk + float64(c)
		}

		start := time.Now()
		n.PushValues(row...)
		res.PushTotal += time.Since(start)
		res.Pushes++

		if (i+1)%every == 0 && res.Reads < *reads {
			step := max(n.Capacity() / max(*buckets, 1), 1)
			start := time.Now()
			points := n.Query(math.Inf(-1), math.Inf(1), step, 0)
			res.ReadTotal += time.Since(start)
			res.Reads++
			res.PointsPerRd = len(points)
		}
	}

	res.FinalStart = n.StartIndex()
	if y, ok := n.RangeY(math.Inf(-1), math.Inf(1), 0); ok {
		res.FinalRangeLo, res.FinalRangeHi = y.Min, y.Max
	}
	logger.V(1).Info("benchmark done", "pushes", res.Pushes, "reads", res.Reads)
	return res, nil
}

func perOp(total time.Duration, n int) time.Duration {
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}
