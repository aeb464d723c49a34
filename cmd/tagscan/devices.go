package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/tagscan/internal/source"
	"github.com/srg/tagscan/pkg/config"
)

func newDevicesCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List readers known to the simulator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := configureLogger(cmd, "", logrus.PanicLevel)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			sim, err := source.NewSimulator(simulatorOptions(cfg.Scan), logger)
			if err != nil {
				return err
			}

			if format == "" {
				format = cfg.OutputFormat
			}
			if format == config.FormatJSON {
				return printJSON(cmd.OutOrStdout(), sim.Devices())
			}
			return printDevicesTable(cmd, sim.Devices())
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format (table, json)")
	return cmd
}

func printDevicesTable(cmd *cobra.Command, devices []source.Device) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tPAIRED")
	fmt.Fprintln(w, "----\t-------\t------")
	for _, d := range devices {
		paired := "no"
		if d.Paired {
			paired = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.Address, paired)
	}
	return w.Flush()
}
