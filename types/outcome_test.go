package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseResultKind(t *testing.T) {
	tests := []struct {
		input    string
		expected ResultKind
	}{
		{"Success", ResultSuccess},
		{"Failure", ResultFailure},
		{"Error", ResultError},
		{"Ignored", ResultIgnored},
		{"Inconclusive", ResultInconclusive},
		{"NotRunnable", ResultNotRunnable},
		{"Skipped", ResultSkipped},
		{"Cancelled", ResultCancelled},
		{" Success ", ResultSuccess},
		{"success", ResultUnknown},
		{"Passed", ResultUnknown},
		{"", ResultUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseResultKind(tt.input))
		})
	}
}

func TestCaseOutcomeFailed(t *testing.T) {
	tests := []struct {
		name     string
		outcome  CaseOutcome
		expected bool
	}{
		{"executed failure", CaseOutcome{Executed: true, Result: ResultFailure}, true},
		{"executed error", CaseOutcome{Executed: true, Result: ResultError}, true},
		{"not executed failure", CaseOutcome{Executed: false, Result: ResultFailure}, false},
		{"executed success", CaseOutcome{Executed: true, Result: ResultSuccess}, false},
		{"ignored", CaseOutcome{Executed: false, Result: ResultIgnored}, false},
		{"unknown", CaseOutcome{Executed: true, Result: ResultUnknown}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.outcome.Failed())
		})
	}
}

func TestRunOutcomeFailedCases(t *testing.T) {
	outcome := RunOutcome{
		Cases: []CaseOutcome{
			{Name: "A", Executed: true, Result: ResultSuccess, Success: true},
			{Name: "B", Executed: true, Result: ResultFailure},
			{Name: "C", Executed: false, Result: ResultIgnored},
			{Name: "D", Executed: true, Result: ResultError},
		},
	}

	failed := outcome.FailedCases()

	assert.Len(t, failed, 2)
	assert.Equal(t, "B", failed[0].Name)
	assert.Equal(t, "D", failed[1].Name)
	assert.Empty(t, RunOutcome{}.FailedCases())
}
