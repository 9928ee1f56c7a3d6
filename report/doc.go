// Package report models the NUnit 2.x XML result document.
//
// Known attributes are typed fields; unknown attributes and child elements are
// kept verbatim so a document survives a load/save round trip. Parsing is
// strict: a missing required attribute yields a *MalformedReportError.
//
// Documents are loaded, mutated and saved back by each phase of a run. No
// in-memory copy is expected to outlive the Save that follows a mutation.
package report
