package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/tagscan/internal/export"
	"github.com/srg/tagscan/internal/tag"
)

var createFile = func(name string) (io.WriteCloser, error) {
	return os.Create(name)
}

// exportToFile encodes records into path, reporting a failed close.
func exportToFile(path string, records []tag.Record, f export.Format) (err error) {
	file, err := createFile(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	return export.Encode(file, records, f)
}

func newExportCmd() *cobra.Command {
	var (
		format string
		output string
		toS3   bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored tags as JSON or CSV",
		Long: `Write the current snapshot of stored tags to stdout, a file, or an S3 bucket.

S3 uploads use the export section of the config file and the standard AWS
credential chain unless access keys are configured.`,
		Example: `  tagscan export --format csv --output tags.csv
  tagscan export --s3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			a, err := openApp(cmd, appOptions{defaultLevel: logrus.PanicLevel})
			if err != nil {
				return err
			}
			defer a.Close()

			records := a.session.Snapshot()

			if toS3 {
				uploader, err := export.NewS3Uploader(cmd.Context(), a.cfg.Export, a.logger)
				if err != nil {
					return err
				}
				key, err := uploader.Upload(cmd.Context(), records, f)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d tag(s) to s3://%s/%s\n", len(records), a.cfg.Export.Bucket, key)
				return err
			}

			if output == "" || output == "-" {
				return export.Encode(cmd.OutOrStdout(), records, f)
			}
			if err := exportToFile(output, records, f); err != nil {
				return err
			}
			a.logger.WithFields(logrus.Fields{"path": output, "tag_count": len(records)}).Info("Exported tags")
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Export format (json, csv)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file ('-' for stdout)")
	cmd.Flags().BoolVar(&toS3, "s3", false, "Upload to the configured S3 bucket instead")
	return cmd
}
