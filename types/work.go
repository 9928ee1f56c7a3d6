// Package types contains shared types used across the nunit runner
package types

import (
	"fmt"
	"strconv"
)

const (
	// ReportExtension is the extension of the report documents written by the test tool
	ReportExtension = ".xml"

	// RerunBasename names the report and logs of the consolidated rerun of failed cases
	RerunBasename = "Rerun"

	outputLogPrefix = "TestOutput_"
	traceLogPrefix  = "NUnitTrace_"
	logExtension    = ".log"
)

// WorkItem is one schedulable invocation of the test tool: a configured test,
// optionally narrowed to a category and/or a fixture.
// WorkItems are created by the registry and never modified afterwards.
type WorkItem struct {
	ID       int
	Name     string // Logical test name, shared by all items split from one configured test
	Category string // Category filter, empty for no filter
	Fixture  string // Fixture filter, empty for no filter
	Basename string // Output artifact basename, unique within a run
}

// Label returns a name for the work item suitable for logs
func (w WorkItem) Label() string {
	if w.Category != "" {
		return fmt.Sprintf("%s [%s]", w.Basename, w.Category)
	}
	return w.Basename
}

// ReportFile returns the file name of the report document written for the item
func (w WorkItem) ReportFile() string {
	return ReportFileName(w.Basename)
}

// ReportFileName returns the report document file name for a basename
func ReportFileName(basename string) string {
	return basename + ReportExtension
}

// OutputLogName returns the name of the log file the test tool writes the tests' output to
func OutputLogName(basename string) string {
	return outputLogPrefix + basename + logExtension
}

// TraceLogName returns the name of the file the tool's console output is persisted to
func TraceLogName(basename string) string {
	return traceLogPrefix + basename + logExtension
}

// UniqueBasename returns name, or name_2, name_3, ... for the first one not taken
func UniqueBasename(name string, taken map[string]bool) string {
	basename := name
	for i := 2; taken[basename]; i++ {
		basename = name + "_" + strconv.Itoa(i)
	}
	return basename
}

// GroupByName groups work items by logical name. Groups and the items inside
// them keep the order in which names were first seen.
func GroupByName(items []WorkItem) [][]WorkItem {
	index := make(map[string]int)
	var groups [][]WorkItem
	for _, item := range items {
		i, ok := index[item.Name]
		if !ok {
			i = len(groups)
			index[item.Name] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], item)
	}
	return groups
}
