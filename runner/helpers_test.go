package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

type fakeCase struct {
	name   string
	result string
	time   float64
}

// reportXML renders a single-fixture report holding the given cases
func reportXML(cases ...fakeCase) string {
	var b strings.Builder
	failures, errs := 0, 0
	total := 0.0
	for _, c := range cases {
		switch c.result {
		case "Failure":
			failures++
		case "Error":
			errs++
		}
		total += c.time
	}
	result, success := "Success", "True"
	if failures+errs > 0 {
		result, success = "Failure", "False"
	}

	fmt.Fprintf(&b, `<?xml version="1.0" encoding="utf-8" standalone="no"?>
<test-results name="Acme.Tests.dll" total="%d" errors="%d" failures="%d" not-run="0" inconclusive="0" ignored="0" skipped="0" invalid="0" date="2020-03-14" time="10:00:00">
<test-suite type="Assembly" name="Acme.Tests.dll" executed="True" result="%s" success="%s" time="%.3f" asserts="0"><results>
<test-suite type="TestFixture" name="Acme.Fixture" executed="True" result="%s" success="%s" time="%.3f" asserts="0"><results>
`, len(cases), errs, failures, result, success, total, result, success, total)
	for _, c := range cases {
		caseSuccess := "False"
		if c.result == "Success" {
			caseSuccess = "True"
		}
		fmt.Fprintf(&b, `<test-case name="%s" executed="True" result="%s" success="%s" time="%.3f" asserts="1">`, c.name, c.result, caseSuccess, c.time)
		if c.result == "Failure" || c.result == "Error" {
			b.WriteString(`<failure><message><![CDATA[boom]]></message></failure>`)
		}
		b.WriteString("</test-case>\n")
	}
	b.WriteString("</results></test-suite></results></test-suite></test-results>\n")
	return b.String()
}

// fakeExecutor writes canned reports instead of running the console runner
type fakeExecutor struct {
	outputDir string
	reports   map[string]string // basename -> report content, no report when absent
	exitCodes map[string]int
	startErrs map[string]error
	delay     time.Duration

	mu          sync.Mutex
	invocations []Invocation

	running    atomic.Int32
	maxRunning atomic.Int32
}

func newFakeExecutor(t *testing.T) *fakeExecutor {
	return &fakeExecutor{
		outputDir: t.TempDir(),
		reports:   make(map[string]string),
		exitCodes: make(map[string]int),
		startErrs: make(map[string]error),
	}
}

func (f *fakeExecutor) Execute(ctx context.Context, inv Invocation) (*Execution, error) {
	cur := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		m := f.maxRunning.Load()
		if cur <= m || f.maxRunning.CompareAndSwap(m, cur) {
			break
		}
	}

	f.mu.Lock()
	f.invocations = append(f.invocations, inv)
	f.mu.Unlock()

	if err := f.startErrs[inv.Basename]; err != nil {
		return nil, err
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	path := filepath.Join(f.outputDir, inv.Basename+".xml")
	if content, ok := f.reports[inv.Basename]; ok {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return nil, err
		}
	}

	return &Execution{
		ExitCode:   f.exitCodes[inv.Basename],
		ReportPath: path,
		Output:     []byte("console output of " + inv.Basename),
		Duration:   f.delay,
	}, nil
}

func (f *fakeExecutor) calls() []Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Invocation, len(f.invocations))
	copy(out, f.invocations)
	return out
}

type fakeTraces struct {
	mu     sync.Mutex
	traces map[string]string
}

func newFakeTraces() *fakeTraces {
	return &fakeTraces{traces: make(map[string]string)}
}

func (f *fakeTraces) WriteTrace(basename string, output []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traces[basename] = string(output)
	return nil
}

func (f *fakeTraces) get(basename string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.traces[basename]
	return v, ok
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}
