// Package export renders tag snapshots as JSON or CSV and ships them to S3.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/srg/tagscan/internal/tag"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// CSVHeader is the first row of every CSV export.
var CSVHeader = []string{"epc", "rssi", "seen_count", "first_seen", "last_seen"}

// ParseFormat accepts json or csv, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q (must be json or csv)", tag.ErrInvalidArgument, s)
}

// Extension is the file extension for f, without the dot.
func (f Format) Extension() string {
	return string(f)
}

func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// Encode writes records to w in the given format.
func Encode(w io.Writer, records []tag.Record, format Format) error {
	switch format {
	case FormatJSON:
		if records == nil {
			records = []tag.Record{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	case FormatCSV:
		return encodeCSV(w, records)
	}
	return fmt.Errorf("%w: unknown export format %q", tag.ErrInvalidArgument, format)
}

func encodeCSV(w io.Writer, records []tag.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		rssi := ""
		if r.RSSI != nil {
			rssi = strconv.Itoa(*r.RSSI)
		}
		row := []string{
			r.EPC,
			rssi,
			strconv.Itoa(r.SeenCount),
			r.FirstSeen.UTC().Format(time.RFC3339),
			r.LastSeen.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.EPC, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
