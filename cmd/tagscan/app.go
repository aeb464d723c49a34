package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/tagscan/aggregator"
	"github.com/srg/tagscan/internal/metrics"
	"github.com/srg/tagscan/internal/session"
	"github.com/srg/tagscan/internal/source"
	"github.com/srg/tagscan/internal/storage"
	"github.com/srg/tagscan/internal/storefactory"
	"github.com/srg/tagscan/pkg/config"
)

// app bundles everything a command needs: config, store, session and optionally a reader.
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	store    storage.Store
	session  *session.Session
	sim      *source.Simulator
	registry *prometheus.Registry
}

type appOptions struct {
	withReader   bool
	verboseFlag  string
	defaultLevel logrus.Level
	// defaultLevelFromConfig uses the config file's log_level instead of defaultLevel.
	defaultLevelFromConfig bool
}

// loadConfig reads --config and applies --store and --db overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if driver, _ := cmd.Flags().GetString("store"); driver != "" {
		d, err := storage.ParseDriver(driver)
		if err != nil {
			return nil, err
		}
		cfg.Storage.Driver = string(d)
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		if cfg.Storage.Driver == string(storage.DriverPostgres) {
			cfg.Storage.DSN = db
		} else {
			cfg.Storage.Path = db
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp wires config, logger, store, aggregator and session, then restores stored tags.
func openApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	level := opts.defaultLevel
	if opts.defaultLevelFromConfig {
		if level, err = cfg.Level(); err != nil {
			return nil, err
		}
	}
	logger, err := configureLogger(cmd, opts.verboseFlag, level)
	if err != nil {
		return nil, err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx := cmd.Context()
	store, err := storefactory.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: store, registry: registry}

	var src source.Source
	if opts.withReader {
		a.sim, err = source.NewSimulator(simulatorOptions(cfg.Scan), logger)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		src = a.sim
	}

	agg := aggregator.New(logger)
	a.session = session.New(agg, store, src, session.Options{
		SaveRetries: cfg.Storage.SaveRetries,
		Metrics:     m,
		Logger:      logger,
	})

	if _, err := a.session.Restore(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func simulatorOptions(scan config.ScanConfig) *source.SimulatorOptions {
	opts := source.DefaultSimulatorOptions()
	opts.ConnectDelay = scan.ConnectDelay
	opts.MinTags = scan.MinTags
	opts.MaxTags = scan.MaxTags
	opts.RSSIMin = scan.RSSIMin
	opts.RSSIMax = scan.RSSIMax
	opts.RepeatRatio = scan.RepeatRatio
	opts.Seed = scan.Seed
	return opts
}

// connect pairs the reader, showing progress on an interactive terminal.
func (a *app) connect(ctx context.Context, progressOut io.Writer, device string) (source.Device, error) {
	label := device
	if label == "" {
		label = "paired reader"
	}

	var progress *ProgressPrinter
	if isTerminal(progressOut) {
		progress = NewProgressPrinter(progressOut, fmt.Sprintf("Connecting to %s", label), "Connecting", "Connected")
		progress.Start()
		defer progress.Stop()
	}

	dev, err := a.sim.Connect(ctx, device)
	if err != nil {
		return source.Device{}, fmt.Errorf("connect: %w", err)
	}
	if progress != nil {
		progress.Callback()("Connected")
	}
	a.logger.WithFields(logrus.Fields{
		"name":    dev.Name,
		"address": dev.Address,
	}).Info("Reader connected")
	return dev, nil
}

func (a *app) Close() {
	if a.sim != nil && a.sim.IsConnected() {
		_ = a.sim.Disconnect()
	}
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close store")
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && isTerminalFd(f.Fd())
}
