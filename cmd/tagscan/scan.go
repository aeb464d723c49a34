package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/tagscan/aggregator"
	"github.com/srg/tagscan/internal/session"
	"github.com/srg/tagscan/pkg/config"
)

type scanOptions struct {
	interval time.Duration
	duration time.Duration
	triggers int
	watch    bool
	device   string
	format   string
	verbose  bool
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Connect to the reader and scan tags",
		Long: `Connect to the paired RFID reader, pull its trigger periodically and aggregate
every tag read into one record per EPC.

Records are persisted after every trigger and merged with what is already stored.
Without --watch the deduplicated table is printed once scanning ends.`,
		Example: `  tagscan scan --triggers 3
  tagscan scan --duration 30s --format json
  tagscan scan --watch --interval 2s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, opts)
		},
	}

	cmd.Flags().DurationVarP(&opts.interval, "interval", "i", 0, "Time between trigger pulls (default from config, 5s)")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Stop scanning after this long")
	cmd.Flags().IntVarP(&opts.triggers, "triggers", "n", 0, "Stop after this many trigger pulls")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Redraw the tag table after every trigger")
	cmd.Flags().StringVar(&opts.device, "device", "", "Reader name or address (default: first paired reader)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Output format (table, json)")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")
	return cmd
}

func runScan(cmd *cobra.Command, opts *scanOptions) error {
	if opts.triggers < 0 {
		return fmt.Errorf("invalid --triggers %d: must not be negative", opts.triggers)
	}
	if opts.interval < 0 || opts.duration < 0 {
		return fmt.Errorf("--interval and --duration must not be negative")
	}
	if !opts.watch && opts.triggers == 0 && opts.duration == 0 {
		return ErrNoTriggerLimit
	}

	a, err := openApp(cmd, appOptions{withReader: true, verboseFlag: "verbose", defaultLevel: logrus.PanicLevel})
	if err != nil {
		return err
	}
	defer a.Close()

	format := opts.format
	if format == "" {
		format = a.cfg.OutputFormat
	}
	if format != config.FormatTable && format != config.FormatJSON {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
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

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := cmd.OutOrStdout()
	interactive := isTerminal(out)

	var countdown *ProgressPrinter
	if !opts.watch && opts.duration > 0 && isTerminal(cmd.ErrOrStderr()) {
		countdown = NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Scanning tags", "Scanning", opts.duration, "Done")
		countdown.Start()
		defer countdown.Stop()
	}

	pulled := 0
	onTrigger := func(summary session.TriggerSummary) {
		pulled++
		if opts.watch {
			fresh := drainNewTags(a.session.DrainEvents())
			if interactive {
				clearScreen(out)
			}
			fmt.Fprintf(out, "Trigger %d: %d read(s), %d new, %d updated\n\n", pulled, summary.Sightings, summary.New, summary.Updated)
			_ = printTags(out, a.session.Snapshot(), config.FormatTable, tableOptions{highlight: fresh, colors: interactive})
		}
		if opts.triggers > 0 && pulled >= opts.triggers {
			cancel()
		}
	}

	err = a.session.Run(ctx, interval, onTrigger)
	if countdown != nil {
		countdown.Callback()("Done")
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if cmd.Context().Err() != nil {
		return cmd.Context().Err()
	}

	a.logger.WithFields(logrus.Fields{
		"triggers": pulled,
		"tags":     a.session.Count(),
	}).Info("Scan finished")

	if opts.watch {
		return nil
	}
	return printTags(out, a.session.Snapshot(), format, tableOptions{})
}

// drainNewTags returns the EPCs first seen in events, forgetting those before a clear.
func drainNewTags(events []aggregator.Event) map[string]struct{} {
	fresh := make(map[string]struct{})
	for _, ev := range events {
		switch ev.Type {
		case aggregator.EventNew:
			fresh[ev.Record.EPC] = struct{}{}
		case aggregator.EventCleared:
			clear(fresh)
		}
	}
	return fresh
}
