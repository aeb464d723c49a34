package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Print stored tags, most recently seen first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, appOptions{defaultLevel: logrus.PanicLevel})
			if err != nil {
				return err
			}
			defer a.Close()

			if format == "" {
				format = a.cfg.OutputFormat
			}
			return printTags(cmd.OutOrStdout(), a.session.Snapshot(), format, tableOptions{})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format (table, json)")
	return cmd
}
