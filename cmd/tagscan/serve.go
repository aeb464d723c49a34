package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/srg/tagscan/internal/httpapi"
)

type serveOptions struct {
	addr     string
	interval time.Duration
	device   string
	manual   bool
	verbose  bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve tags, triggers and metrics over HTTP",
		Long: `Connect to the reader, pull its trigger on an interval in the background and
serve the aggregated tags over HTTP.

Endpoints:
  GET    /health        liveness
  GET    /tags          snapshot, most recently seen first
  GET    /tags/count    number of distinct tags
  GET    /tags/{epc}    one tag
  DELETE /tags          clear all tags
  POST   /sightings     record manual sightings
  POST   /trigger       pull the trigger once
  GET    /triggers      recent trigger summaries
  GET    /metrics       Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (default from config, :8080)")
	cmd.Flags().DurationVarP(&opts.interval, "interval", "i", 0, "Time between background trigger pulls (default from config)")
	cmd.Flags().StringVar(&opts.device, "device", "", "Reader name or address (default: first paired reader)")
	cmd.Flags().BoolVar(&opts.manual, "manual", false, "Disable background triggers; use POST /trigger")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	a, err := openApp(cmd, appOptions{withReader: true, verboseFlag: "verbose", defaultLevelFromConfig: true})
	if err != nil {
		return err
	}
	defer a.Close()

	addr := opts.addr
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	interval := opts.interval
	if interval == 0 {
		interval = a.cfg.Scan.Interval
	}
	device := opts.device
	if device == "" {
		device = a.cfg.Scan.Device
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := a.connect(ctx, cmd.ErrOrStderr(), device); err != nil {
		return err
	}

	router := httpapi.NewRouter(a.session, a.registry, a.logger)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %d stored tag(s) on %s\n", a.session.Count(), addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpapi.ListenAndServe(gctx, addr, router, a.logger)
	})
	if !opts.manual {
		g.Go(func() error {
			err := a.session.Run(gctx, interval, nil)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}
