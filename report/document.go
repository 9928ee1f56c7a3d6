package report

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
)

const (
	// FixtureType is the test-suite type of a test fixture
	FixtureType = "TestFixture"

	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"

	declaration   = `<?xml version="1.0" encoding="utf-8" standalone="no"?>` + "\n"
	headerComment = "<!--This file represents the results of running a test suite-->\n"
)

// Document is the test-results root of a report
type Document struct {
	XMLName      xml.Name   `xml:"test-results"`
	Name         string     `xml:"name,attr,omitempty"`
	Total        int        `xml:"total,attr"`
	Errors       int        `xml:"errors,attr"`
	Failures     int        `xml:"failures,attr"`
	NotRun       int        `xml:"not-run,attr"`
	Inconclusive int        `xml:"inconclusive,attr"`
	Ignored      int        `xml:"ignored,attr"`
	Skipped      int        `xml:"skipped,attr"`
	Invalid      int        `xml:"invalid,attr"`
	Date         string     `xml:"date,attr"`
	Time         string     `xml:"time,attr"`
	Attrs        []xml.Attr `xml:",any,attr"`

	Environment *Node  `xml:"environment"`
	CultureInfo *Node  `xml:"culture-info"`
	Suite       *Suite `xml:"test-suite"`
	Extra       []Node `xml:",any"`
}

// Suite is a test-suite element: an assembly, namespace, fixture or parameterized test
type Suite struct {
	XMLName     xml.Name         `xml:"test-suite"`
	Type        string           `xml:"type,attr"`
	Name        string           `xml:"name,attr"`
	Description string           `xml:"description,attr,omitempty"`
	Executed    *Flag            `xml:"executed,attr,omitempty"`
	Result      types.ResultKind `xml:"result,attr,omitempty"`
	Success     *Flag            `xml:"success,attr,omitempty"`
	Time        *Seconds         `xml:"time,attr,omitempty"`
	Asserts     *int             `xml:"asserts,attr,omitempty"`
	Attrs       []xml.Attr       `xml:",any,attr"`

	Categories *Categories `xml:"categories"`
	Properties *Node       `xml:"properties"`
	Failure    *Node       `xml:"failure"`
	Reason     *Node       `xml:"reason"`
	Results    *Results    `xml:"results"`
	Extra      []Node      `xml:",any"`
}

// Results holds the children of a suite
type Results struct {
	Suites []*Suite `xml:"test-suite"`
	Cases  []*Case  `xml:"test-case"`
}

// Case is a test-case element
type Case struct {
	XMLName     xml.Name         `xml:"test-case"`
	Name        string           `xml:"name,attr"`
	Description string           `xml:"description,attr,omitempty"`
	Executed    Flag             `xml:"executed,attr"`
	Result      types.ResultKind `xml:"result,attr"`
	Success     *Flag            `xml:"success,attr,omitempty"`
	Time        *Seconds         `xml:"time,attr,omitempty"`
	Asserts     *int             `xml:"asserts,attr,omitempty"`
	Attrs       []xml.Attr       `xml:",any,attr"`

	Categories *Categories `xml:"categories"`
	Properties *Node       `xml:"properties"`
	Failure    *Node       `xml:"failure"`
	Reason     *Node       `xml:"reason"`
	Extra      []Node      `xml:",any"`
}

// Categories is the categories child of a suite or case
type Categories struct {
	Items []Category `xml:"category"`
}

// Category is a named category
type Category struct {
	Name  string     `xml:"name,attr"`
	Attrs []xml.Attr `xml:",any,attr"`
}

// Node is an element the model does not interpret, kept verbatim
type Node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Content string     `xml:",chardata"`
	Nodes   []Node     `xml:",any"`
}

func (d *Document) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	if err := requireAttrs(start, "total", "errors", "failures", "not-run", "inconclusive", "ignored", "skipped", "invalid", "date", "time"); err != nil {
		return err
	}
	type document Document
	return dec.DecodeElement((*document)(d), &start)
}

func (s *Suite) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	if err := requireAttrs(start, "type", "name"); err != nil {
		return err
	}
	type suite Suite
	return dec.DecodeElement((*suite)(s), &start)
}

func (c *Case) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	if err := requireAttrs(start, "name", "executed", "result"); err != nil {
		return err
	}
	type testCase Case
	return dec.DecodeElement((*testCase)(c), &start)
}

func (c *Category) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	if err := requireAttrs(start, "name"); err != nil {
		return err
	}
	type category Category
	return dec.DecodeElement((*category)(c), &start)
}

func (n *Node) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	type node Node
	if err := dec.DecodeElement((*node)(n), &start); err != nil {
		return err
	}
	// Drop indentation between child elements so re-indenting on save stays stable
	if len(n.Nodes) > 0 && len(bytes.TrimSpace([]byte(n.Content))) == 0 {
		n.Content = ""
	}
	return nil
}

// Load reads and strictly parses the report at path
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	doc, err := Parse(f)
	if err != nil {
		var malformed *MalformedReportError
		if errors.As(err, &malformed) {
			malformed.Path = path
		}
		return nil, err
	}
	return doc, nil
}

// Parse strictly parses a report document
func Parse(r io.Reader) (*Document, error) {
	var doc Document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		var malformed *MalformedReportError
		if errors.As(err, &malformed) {
			return nil, malformed
		}
		return nil, &MalformedReportError{Err: err}
	}
	if doc.Suite == nil {
		return nil, &MalformedReportError{Element: "test-suite"}
	}
	return &doc, nil
}

// Write encodes the document with the XML declaration and header comment the test tool writes
func (d *Document) Write(w io.Writer) error {
	if _, err := io.WriteString(w, declaration+headerComment); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Save writes the document to path, replacing any existing file
func (d *Document) Save(path string) error {
	var buf bytes.Buffer
	if err := d.Write(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

// FinishTime returns the date and time attributes as a timestamp in loc
func (d *Document) FinishTime(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, d.Date+" "+d.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid report timestamp: %w", err)
	}
	return t, nil
}

// SetFinishTime sets the date and time attributes
func (d *Document) SetFinishTime(t time.Time) {
	d.Date = t.Format(DateLayout)
	d.Time = t.Format(TimeLayout)
}
