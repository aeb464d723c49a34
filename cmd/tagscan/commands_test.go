package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/tagscan/internal/export"
	"github.com/srg/tagscan/internal/tag"
	"github.com/srg/tagscan/internal/testutils"
)

type CommandsTestSuite struct {
	CommandTestSuite
}

func (s *CommandsTestSuite) decodeRecords(out string) []tag.Record {
	var recs []tag.Record
	s.Require().NoError(json.Unmarshal([]byte(out), &recs), "output MUST be a JSON array of records: %s", out)
	return recs
}

// TestRecord_MergesSightingsAcrossInvocations verifies that record persists and re-aggregates.
func (s *CommandsTestSuite) TestRecord_MergesSightingsAcrossInvocations() {
	// GOAL: Verify a second invocation restores the stored tag and bumps its count
	//
	// TEST SCENARIO: Record E2001 twice with different RSSI → one record, seen twice, latest RSSI, first/last kept

	out, _, err := s.ExecuteCommand("record", "E2001", "--rssi", "-50", "--at", "2024-05-01T12:00:00Z", "--format", "json")
	s.Require().NoError(err)
	testutils.NewJSONAsserter(s.T()).Assert(out, `[
		{"epc": "E2001", "rssi": -50, "seen_count": 1,
		 "first_seen": "2024-05-01T12:00:00Z", "last_seen": "2024-05-01T12:00:00Z"}
	]`)

	out, _, err = s.ExecuteCommand("record", "E2001", "--rssi", "-40", "--at", "2024-05-01T12:00:05Z", "--format", "json")
	s.Require().NoError(err)
	testutils.NewJSONAsserter(s.T()).Assert(out, `[
		{"epc": "E2001", "rssi": -40, "seen_count": 2,
		 "first_seen": "2024-05-01T12:00:00Z", "last_seen": "2024-05-01T12:00:05Z"}
	]`)
}

func (s *CommandsTestSuite) TestRecord_TableOutput() {
	out, _, err := s.ExecuteCommand("record", "E2001", "--rssi", "-50", "--at", "2024-05-01T12:00:00Z")
	s.Require().NoError(err)

	s.Contains(out, "EPC")
	s.Contains(out, "LAST SEEN")
	s.Contains(out, "E2001")
	s.Contains(out, "-50")
	s.Contains(out, "2024-05-01 12:00:00")
	s.Contains(out, "1 tag(s)")
}

func (s *CommandsTestSuite) TestRecord_RejectsInvalidInput() {
	tests := []struct {
		name string
		args []string
	}{
		{name: "blank epc", args: []string{"record", "  "}},
		{name: "bad timestamp", args: []string{"record", "E2001", "--at", "yesterday"}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, _, err := s.ExecuteCommand(tt.args...)
			s.ErrorIs(err, tag.ErrInvalidArgument)
		})
	}

	_, _, err := s.ExecuteCommand("record")
	s.Error(err, "record without an EPC MUST fail")
}

func (s *CommandsTestSuite) TestList_OrdersByLastSeen() {
	for _, args := range [][]string{
		{"record", "A", "--at", "2024-05-01T12:00:01Z"},
		{"record", "B", "--at", "2024-05-01T12:00:03Z"},
		{"record", "C", "--at", "2024-05-01T12:00:02Z"},
	} {
		_, _, err := s.ExecuteCommand(args...)
		s.Require().NoError(err)
	}

	out, _, err := s.ExecuteCommand("list", "--format", "json")
	s.Require().NoError(err)

	recs := s.decodeRecords(out)
	s.Require().Len(recs, 3)
	s.Equal([]string{"B", "C", "A"}, []string{recs[0].EPC, recs[1].EPC, recs[2].EPC})
	s.Nil(recs[0].RSSI, "records recorded without --rssi MUST have no rssi")
}

func (s *CommandsTestSuite) TestList_EmptyStore() {
	out, _, err := s.ExecuteCommand("ls")
	s.Require().NoError(err)
	s.Equal("No tags scanned\n", out)
}

func (s *CommandsTestSuite) TestList_InvalidFormatFromConfig() {
	s.Require().NoError(os.WriteFile(s.configPath, []byte("output_format: xml\n"), 0o644))

	_, _, err := s.ExecuteCommand("list")
	s.Error(err)
	s.Contains(err.Error(), "output_format")
}

func (s *CommandsTestSuite) TestClear() {
	for _, epc := range []string{"A", "B"} {
		_, _, err := s.ExecuteCommand("record", epc)
		s.Require().NoError(err)
	}

	out, _, err := s.ExecuteCommand("clear")
	s.Require().NoError(err)
	s.Equal("Cleared 2 tag(s)\n", out)

	out, _, err = s.ExecuteCommand("list", "--format", "json")
	s.Require().NoError(err)
	s.Empty(s.decodeRecords(out))
}

func (s *CommandsTestSuite) TestExport_CSVToFile() {
	_, _, err := s.ExecuteCommand("record", "E2001", "--rssi", "-50", "--at", "2024-05-01T12:00:00Z")
	s.Require().NoError(err)
	_, _, err = s.ExecuteCommand("record", "E2002", "--at", "2024-05-01T12:00:09Z")
	s.Require().NoError(err)

	path := filepath.Join(s.T().TempDir(), "tags.csv")
	out, _, err := s.ExecuteCommand("export", "--format", "csv", "--output", path)
	s.Require().NoError(err)
	s.Empty(out, "exporting to a file MUST NOT write to stdout")

	data, err := os.ReadFile(path)
	s.Require().NoError(err)
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	s.Require().NoError(err)

	s.Equal([][]string{
		export.CSVHeader,
		{"E2002", "", "1", "2024-05-01T12:00:09Z", "2024-05-01T12:00:09Z"},
		{"E2001", "-50", "1", "2024-05-01T12:00:00Z", "2024-05-01T12:00:00Z"},
	}, rows)
}

func (s *CommandsTestSuite) TestExport_JSONToStdout() {
	out, _, err := s.ExecuteCommand("export")
	s.Require().NoError(err)
	s.JSONEq(`[]`, out, "an empty store MUST export an empty array")
}

func (s *CommandsTestSuite) TestExport_Errors() {
	_, _, err := s.ExecuteCommand("export", "--format", "xml")
	s.Error(err)

	_, _, err = s.ExecuteCommand("export", "--s3")
	s.ErrorIs(err, export.ErrNoBucket)
}

func (s *CommandsTestSuite) TestDevices() {
	out, _, err := s.ExecuteCommand("devices")
	s.Require().NoError(err)
	s.Contains(out, "NAME")
	s.Contains(out, "RFID-Reader-01")
	s.Contains(out, "00:1A:7D:DA:71:02")

	out, _, err = s.ExecuteCommand("devices", "--format", "json")
	s.Require().NoError(err)
	var devices []map[string]any
	s.Require().NoError(json.Unmarshal([]byte(out), &devices))
	s.Len(devices, 3)
}

// TestScan_TriggerLimit verifies scan stops after N trigger pulls and persists what it read.
func (s *CommandsTestSuite) TestScan_TriggerLimit() {
	// GOAL: Verify scan pulls the trigger a bounded number of times and prints the aggregated snapshot
	//
	// TEST SCENARIO: scan --triggers 2 → deduplicated records printed, stored, and visible to list

	out, _, err := s.ExecuteCommand("scan", "--triggers", "2", "--format", "json")
	s.Require().NoError(err)

	recs := s.decodeRecords(out)
	s.Require().NotEmpty(recs)
	seen := make(map[string]bool)
	total := 0
	for _, r := range recs {
		s.False(seen[r.EPC], "scan output MUST have one record per EPC")
		seen[r.EPC] = true
		s.True(strings.HasPrefix(r.EPC, "E200"), "simulated EPC %s", r.EPC)
		s.NotNil(r.RSSI)
		s.GreaterOrEqual(r.SeenCount, 1)
		total += r.SeenCount
	}
	s.GreaterOrEqual(total, 4, "two triggers read at least two tags each")
	s.LessOrEqual(total, 12, "two triggers read at most six tags each")

	listed, _, err := s.ExecuteCommand("list", "--format", "json")
	s.Require().NoError(err)
	s.Len(s.decodeRecords(listed), len(recs), "scanned tags MUST be persisted")
}

func (s *CommandsTestSuite) TestScan_WatchPrintsEveryTrigger() {
	out, _, err := s.ExecuteCommand("scan", "--triggers", "2", "--watch")
	s.Require().NoError(err)

	s.Contains(out, "Trigger 1:")
	s.Contains(out, "Trigger 2:")
	s.NotContains(out, "\033[2J", "screen MUST NOT be cleared when stdout is not a terminal")
}

func (s *CommandsTestSuite) TestScan_Duration() {
	out, _, err := s.ExecuteCommand("scan", "--duration", "50ms", "--format", "json")
	s.Require().NoError(err)
	for _, r := range s.decodeRecords(out) {
		s.GreaterOrEqual(r.SeenCount, 1)
	}
}

func (s *CommandsTestSuite) TestScan_ArgumentErrors() {
	_, _, err := s.ExecuteCommand("scan")
	s.ErrorIs(err, ErrNoTriggerLimit)

	_, _, err = s.ExecuteCommand("scan", "--triggers", "-1")
	s.Error(err)

	_, _, err = s.ExecuteCommand("scan", "--triggers", "1", "--format", "xml")
	s.Error(err)
}

func (s *CommandsTestSuite) TestScan_UnknownDevice() {
	_, _, err := s.ExecuteCommand("scan", "--triggers", "1", "--device", "ff:ff:ff:ff:ff:ff")
	s.Error(err)
	s.Contains(FormatUserError(err), "tagscan devices")
}

func (s *CommandsTestSuite) TestUnknownStoreDriver() {
	cmd := newRootCmd()
	cmd.SetOut(new(testutils.SyncBuffer))
	cmd.SetErr(new(testutils.SyncBuffer))
	cmd.SetArgs([]string{"list", "--config", s.configPath, "--store", "mongo"})

	err := cmd.Execute()
	s.Error(err)
	s.Contains(FormatUserError(err), "use --store with one of")
}

// TestServe_StopsOnCancel verifies serve runs until its context is cancelled.
func (s *CommandsTestSuite) TestServe_StopsOnCancel() {
	// GOAL: Verify serve starts the HTTP API and background triggers, then shuts down cleanly
	//
	// TEST SCENARIO: serve on an ephemeral port, cancel after 200ms → nil error, banner printed

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	out, _, err := s.ExecuteCommandContext(ctx, "serve", "--addr", "127.0.0.1:0")
	s.Require().NoError(err)
	s.Contains(out, "Serving 0 stored tag(s) on 127.0.0.1:0")

	listed, _, err := s.ExecuteCommand("list", "--format", "json")
	s.Require().NoError(err)
	s.NotEmpty(s.decodeRecords(listed), "background triggers MUST persist tags")
}

func (s *CommandsTestSuite) TestServe_ManualMode() {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, _, err := s.ExecuteCommandContext(ctx, "serve", "--addr", "127.0.0.1:0", "--manual")
	s.Require().NoError(err)

	listed, _, err := s.ExecuteCommand("list", "--format", "json")
	s.Require().NoError(err)
	s.Empty(s.decodeRecords(listed), "manual mode MUST NOT pull the trigger on its own")
}

func TestCommandsTestSuite(t *testing.T) {
	suite.Run(t, new(CommandsTestSuite))
}
