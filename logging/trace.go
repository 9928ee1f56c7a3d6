// Package logging writes the log files a run leaves in its output directory.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
)

// TraceFiles writes the console output of each test tool run to NUnitTrace_<basename>.log
type TraceFiles struct {
	dir string
	log log.Logger
}

// NewTraceFiles creates a trace writer for dir, creating the directory when needed
func NewTraceFiles(dir string, logger log.Logger) (*TraceFiles, error) {
	if dir == "" {
		return nil, fmt.Errorf("trace directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if logger == nil {
		logger = log.New()
	}
	return &TraceFiles{dir: dir, log: logger.New("component", "traces")}, nil
}

// Path returns the trace file path for basename
func (t *TraceFiles) Path(basename string) string {
	return filepath.Join(t.dir, types.TraceLogName(basename))
}

// WriteTrace replaces the trace file of basename with output, stripped of ANSI escape sequences
func (t *TraceFiles) WriteTrace(basename string, output []byte) error {
	path := t.Path(basename)
	if err := os.WriteFile(path, []byte(stripansi.Strip(string(output))), 0644); err != nil {
		return fmt.Errorf("failed to write trace %s: %w", path, err)
	}
	t.log.Debug("Wrote trace", "item", basename, "path", path, "bytes", len(output))
	return nil
}
