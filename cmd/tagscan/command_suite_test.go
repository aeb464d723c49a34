package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/tagscan/internal/testutils"
)

const testConfigYAML = `
log_level: error
scan:
  connect_delay: 0s
  interval: 1ms
  seed: 42
`

// CommandTestSuite runs tagscan commands against a throwaway SQLite file.
// All cmd/tagscan test suites should embed it.
type CommandTestSuite struct {
	suite.Suite

	dir        string
	dbPath     string
	configPath string
	oldLocal   *time.Location
}

func (s *CommandTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.dbPath = filepath.Join(s.dir, "tags.db")
	s.configPath = filepath.Join(s.dir, "tagscan.yaml")
	s.Require().NoError(os.WriteFile(s.configPath, []byte(testConfigYAML), 0o644))

	// Tables print local time
	s.oldLocal = time.Local
	time.Local = time.UTC
}

func (s *CommandTestSuite) TearDownTest() {
	time.Local = s.oldLocal
}

// ExecuteCommand runs tagscan with args against the suite's config and database.
// Returns stdout and stderr separately.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	return s.ExecuteCommandContext(context.Background(), args...)
}

// ExecuteCommandContext is ExecuteCommand with a caller-controlled context.
func (s *CommandTestSuite) ExecuteCommandContext(ctx context.Context, args ...string) (string, string, error) {
	cmd := newRootCmd()
	out := new(bytes.Buffer)
	errOut := new(testutils.SyncBuffer)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append(args, "--config", s.configPath, "--store", "sqlite", "--db", s.dbPath))
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}
