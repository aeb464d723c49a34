package main

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/tagscan/aggregator"
	"github.com/srg/tagscan/internal/export"
	"github.com/srg/tagscan/internal/session"
	"github.com/srg/tagscan/internal/source"
	"github.com/srg/tagscan/internal/storage"
	"github.com/srg/tagscan/internal/tag"
	"github.com/srg/tagscan/internal/testutils"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: ""},
		{name: "plain error", err: errors.New("boom"), expected: "boom"},
		{
			name:     "invalid argument",
			err:      fmt.Errorf("record: %w", tag.ErrInvalidArgument),
			expected: "record: invalid argument (check the EPC and flag values)",
		},
		{
			name:     "not connected",
			err:      fmt.Errorf("trigger: %w", source.ErrNotConnected),
			expected: "trigger: not_connected (the reader is not connected; run 'tagscan devices' to list paired readers)",
		},
		{
			name:     "persist failure",
			err:      fmt.Errorf("persist tag A: %w", session.ErrPersist),
			expected: "persist tag A: " + session.ErrPersist.Error() + " (tags were recorded in memory but not saved; check the storage backend)",
		},
		{
			name:     "no bucket",
			err:      export.ErrNoBucket,
			expected: "export bucket not configured (set export.bucket in the config file)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatUserError(tt.err))
		})
	}

	_, err := storage.ParseDriver("mongo")
	assert.Contains(t, FormatUserError(err), "use --store with one of")
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}

func TestConfigureLogger(t *testing.T) {
	newCmd := func(args ...string) *cobra.Command {
		cmd := &cobra.Command{Use: "test"}
		cmd.Flags().String("log-level", "", "")
		cmd.Flags().Bool("verbose", false, "")
		require.NoError(t, cmd.Flags().Parse(args))
		return cmd
	}

	tests := []struct {
		name     string
		args     []string
		expected logrus.Level
	}{
		{name: "fallback", args: nil, expected: logrus.PanicLevel},
		{name: "verbose", args: []string{"--verbose"}, expected: logrus.DebugLevel},
		{name: "log level wins over verbose", args: []string{"--verbose", "--log-level", "warn"}, expected: logrus.WarnLevel},
		{name: "error", args: []string{"--log-level", "error"}, expected: logrus.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := configureLogger(newCmd(tt.args...), "verbose", logrus.PanicLevel)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, logger.GetLevel())
		})
	}

	_, err := configureLogger(newCmd("--log-level", "loud"), "verbose", logrus.InfoLevel)
	assert.ErrorContains(t, err, "invalid log level: loud")
}

func TestConfigureLogger_WritesToCommandStderr(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "info", "")
	buf := new(testutils.SyncBuffer)
	cmd.SetErr(buf)

	logger, err := configureLogger(cmd, "", logrus.PanicLevel)
	require.NoError(t, err)
	logger.WithField("epc", "E2001").Info("New tag")

	assert.Contains(t, buf.String(), "New tag")
	assert.Contains(t, buf.String(), "epc=E2001")
}

func TestProgressPrinter_StopPhaseEndsDisplay(t *testing.T) {
	buf := new(testutils.SyncBuffer)
	p := NewProgressPrinter(buf, "Connecting to RFID-Reader-01", "Connecting", "Connected")
	p.Start()

	p.Callback()("Connected")
	p.Stop() // second stop is a no-op

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\rConnecting to RFID-Reader-01 (Connecting...)"))
	assert.True(t, strings.HasSuffix(out, clearLineSequence), "stop MUST clear the status line")
	assert.Equal(t, 1, strings.Count(out, clearLineSequence))
	assert.Panics(t, p.Start, "a ProgressPrinter is single-use")
}

func TestProgressPrinter_StopWithoutStart(t *testing.T) {
	p := NewCountdownProgressPrinter(nil, "Scanning", "Scanning", time.Second)
	assert.NotPanics(t, p.Stop)
}

func TestProgressPrinter_Seconds(t *testing.T) {
	up := NewProgressPrinter(nil, "x", "y")
	assert.Equal(t, 2, up.seconds(2500*time.Millisecond))

	down := NewCountdownProgressPrinter(nil, "x", "y", 10*time.Second)
	assert.Equal(t, 8, down.seconds(2400*time.Millisecond))
	assert.Equal(t, 0, down.seconds(11*time.Second))
}

func TestDrainNewTags(t *testing.T) {
	fresh := drainNewTags([]aggregator.Event{
		{Type: aggregator.EventNew, Record: tag.Record{EPC: "A"}},
		{Type: aggregator.EventUpdated, Record: tag.Record{EPC: "A"}},
		{Type: aggregator.EventCleared},
		{Type: aggregator.EventNew, Record: tag.Record{EPC: "B"}},
		{Type: aggregator.EventUpdated, Record: tag.Record{EPC: "C"}},
	})
	assert.Equal(t, map[string]struct{}{"B": {}}, fresh)
	assert.Empty(t, drainNewTags(nil))
}

func TestPrintTagTable_Highlight(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	records := []tag.Record{
		{EPC: "E2001", RSSI: tag.RSSI(-50), SeenCount: 2, FirstSeen: at, LastSeen: at},
		{EPC: "E200AABBCCDD", SeenCount: 1, FirstSeen: at, LastSeen: at},
	}
	highlight := map[string]struct{}{"E2001": {}}

	plain := new(strings.Builder)
	require.NoError(t, printTagTable(plain, records, tableOptions{highlight: highlight}))
	assert.NotContains(t, plain.String(), "\033[", "colors MUST stay off unless enabled")
	lines := strings.Split(plain.String(), "\n")
	assert.Equal(t, strings.Index(lines[0], "RSSI"), strings.Index(lines[2], "-50"), "header MUST align with rows")
	assert.Equal(t, strings.Repeat("-", 80), lines[1])

	colored := new(strings.Builder)
	require.NoError(t, printTagTable(colored, records, tableOptions{highlight: highlight, colors: true}))
	assert.Contains(t, colored.String(), "\033[")
	assert.Contains(t, colored.String(), "2 tag(s)")

	ansi := regexp.MustCompile(`\x1b\[[0-9;]*m`)
	assert.Equal(t, plain.String(), ansi.ReplaceAllString(colored.String(), ""),
		"highlighting MUST NOT shift columns")
}

type failingCloser struct {
	strings.Builder
}

func (*failingCloser) Close() error { return errors.New("disk quota exceeded") }

func TestExportToFile_ReportsCloseError(t *testing.T) {
	orig := createFile
	t.Cleanup(func() { createFile = orig })

	dst := new(failingCloser)
	createFile = func(string) (io.WriteCloser, error) { return dst, nil }

	records := []tag.Record{{EPC: "E2001", SeenCount: 1}}
	err := exportToFile("tags.json", records, export.FormatJSON)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close tags.json: disk quota exceeded")
	assert.Contains(t, dst.String(), "E2001", "records MUST be encoded before the close")

	createFile = func(string) (io.WriteCloser, error) { return nil, errors.New("read-only file system") }
	err = exportToFile("tags.json", records, export.FormatJSON)
	assert.ErrorContains(t, err, "create tags.json: read-only file system")
}
