package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/srg/tagscan/internal/tag"
	"github.com/srg/tagscan/pkg/config"
)

func isTerminalFd(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// tableOptions tunes the tag table.
type tableOptions struct {
	// highlight marks EPCs to print in color, e.g. tags first seen in the last trigger.
	highlight map[string]struct{}
	colors    bool
}

// printTags renders records as a table or JSON.
func printTags(w io.Writer, records []tag.Record, format string, opts tableOptions) error {
	if strings.EqualFold(format, config.FormatJSON) {
		return printJSON(w, records)
	}
	return printTagTable(w, records, opts)
}

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printTagTable(w io.Writer, records []tag.Record, opts tableOptions) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No tags scanned")
		return err
	}

	newTag := color.New(color.FgGreen, color.Bold)
	if opts.colors {
		newTag.EnableColor()
	} else {
		newTag.DisableColor()
	}

	// Cells are laid out uncolored so escape codes do not skew column widths.
	var table strings.Builder
	tw := tabwriter.NewWriter(&table, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EPC\tRSSI\tSEEN\tFIRST SEEN\tLAST SEEN")

	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			r.EPC,
			r.RSSIString(),
			r.SeenCount,
			r.FirstSeen.Local().Format(time.DateTime),
			r.LastSeen.Local().Format(time.DateTime),
		)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	// The rule is added after the flush; a tab-free line would split the column block.
	lines := strings.SplitAfter(table.String(), "\n")
	lines = slices.Insert(lines, 1, strings.Repeat("-", 80)+"\n")
	for i, line := range lines {
		if row := i - 2; row >= 0 && row < len(records) {
			epc := records[row].EPC
			if _, ok := opts.highlight[epc]; ok {
				line = newTag.Sprint(epc) + strings.TrimPrefix(line, epc)
			}
		}
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "\n%d tag(s)\n", len(records))
	return err
}

func clearScreen(w io.Writer) {
	fmt.Fprint(w, "\033[2J\033[H")
}
