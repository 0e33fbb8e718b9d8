// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// historyd samples system metrics into history buffers and serves decimated
// views of them over HTTP.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/antimetal/historybuffer/internal/config"
	"github.com/antimetal/historybuffer/internal/daemon"
)

var (
	configPath  = flag.String("config", "", "Path to the YAML configuration file (empty for defaults)")
	metricsAddr = flag.String("metrics-bind-address", "", "Override the address the HTTP endpoint binds to")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	var zapLog *zap.Logger
	var err error
	if *verbose {
		zapLog, err = zap.NewDevelopment()
	} else {
		zapLog, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer func() { _ = zapLog.Sync() }()
	setupLog := zapr.NewLogger(zapLog)

	if err := run(setupLog); err != nil {
		setupLog.Error(err, "historyd failed")
		os.Exit(1)
	}
}

func run(logger logr.Logger) error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting historyd", "buffers", d.Buffers(), "interval", cfg.Interval, "storeDir", cfg.StoreDir)
	return d.Run(ctx)
}
