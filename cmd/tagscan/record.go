package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/tagscan/internal/tag"
)

func newRecordCmd() *cobra.Command {
	var (
		rssi   int
		atFlag string
		format string
	)

	cmd := &cobra.Command{
		Use:   "record EPC",
		Short: "Record a single manual tag sighting",
		Long: `Record one sighting of EPC as if the reader had read it, merge it into the
stored records and print the resulting record.`,
		Example: `  tagscan record E2001 --rssi -50
  tagscan record E2001 --at 2024-05-01T12:00:00Z`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sighting := tag.Sighting{EPC: args[0]}
			if err := tag.ValidateEPC(sighting.EPC); err != nil {
				return err
			}
			if cmd.Flags().Changed("rssi") {
				sighting.RSSI = tag.RSSI(rssi)
			}
			if atFlag != "" {
				ts, err := time.Parse(time.RFC3339, atFlag)
				if err != nil {
					return fmt.Errorf("%w: --at must be RFC 3339: %v", tag.ErrInvalidArgument, err)
				}
				sighting.Timestamp = ts
			}

			a, err := openApp(cmd, appOptions{defaultLevel: logrus.PanicLevel})
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.session.Record(cmd.Context(), sighting)
			if err != nil {
				return err
			}
			if format == "" {
				format = a.cfg.OutputFormat
			}
			return printTags(cmd.OutOrStdout(), []tag.Record{rec}, format, tableOptions{})
		},
	}
	cmd.Flags().IntVar(&rssi, "rssi", 0, "Signal strength in dBm")
	cmd.Flags().StringVar(&atFlag, "at", "", "Sighting time in RFC 3339 (default now)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format (table, json)")
	return cmd
}
