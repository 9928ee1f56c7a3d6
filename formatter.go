package nunitrunner

import (
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-nunit-runner/runner"
)

// ResultFormatter is responsible for formatting and displaying test results.
type ResultFormatter interface {
	FormatResults(result *runner.RunResult) error
}

// ConsoleResultFormatter renders a results table, by default to stdout.
type ConsoleResultFormatter struct {
	logger log.Logger
	out    io.Writer
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter.
func NewConsoleResultFormatter(logger log.Logger, out io.Writer) *ConsoleResultFormatter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleResultFormatter{
		logger: logger,
		out:    out,
	}
}

// FormatResults formats and displays the test results.
func (f *ConsoleResultFormatter) FormatResults(result *runner.RunResult) error {
	f.logger.Debug("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetTitle(fmt.Sprintf("NUnit Test Results (%s)", formatDuration(result.Duration)))

	t.AppendHeader(table.Row{
		"Test", "Category", "Duration", "Cases", "Passed", "Failed", "Not Run", "Exit", "Status", "Error",
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Cases", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Not Run", Align: text.AlignRight},
		{Name: "Exit", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	var totalCases, totalPassed, totalFailed, totalNotRun int
	for _, o := range result.Outcomes {
		passed, failed, notRun := caseCounts(o.Cases)
		totalCases += len(o.Cases)
		totalPassed += passed
		totalFailed += failed
		totalNotRun += notRun

		errMsg := ""
		if o.Err != nil {
			errMsg = o.Err.Error()
		}
		t.AppendRow(table.Row{
			o.Item.Basename,
			o.Item.Category,
			formatDuration(o.Duration),
			len(o.Cases),
			passed,
			failed,
			notRun,
			o.ExitCode,
			getResultString(o, result.Retried),
			errMsg,
		})

		failedCases := o.FailedCases()
		for i, c := range failedCases {
			prefix := "├─"
			if i == len(failedCases)-1 {
				prefix = "└─"
			}
			t.AppendRow(table.Row{
				fmt.Sprintf("   %s %s", prefix, c.Name),
				"",
				fmt.Sprintf("%.3fs", c.Duration),
				1,
				0,
				1,
				0,
				"",
				string(c.Result),
				"",
			})
		}
	}

	switch result.Status() {
	case runner.StatusAllSucceeded:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case runner.StatusSomeFailed:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	succeeded, _ := result.Counts()
	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d/%d runs ok", succeeded, len(result.Outcomes)),
		formatDuration(result.Duration),
		totalCases,
		totalPassed,
		totalFailed,
		totalNotRun,
		"",
		string(result.Status()),
		"",
	})

	t.Render()
	return nil
}
