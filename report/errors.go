package report

import (
	"encoding/xml"
	"errors"
	"fmt"
)

// ErrMalformedReport matches every *MalformedReportError with errors.Is
var ErrMalformedReport = errors.New("malformed report")

// MalformedReportError is returned when a report document cannot be decoded
// or lacks a required attribute or element.
type MalformedReportError struct {
	Path      string
	Element   string
	Attribute string
	Err       error
}

func (e *MalformedReportError) Error() string {
	path := e.Path
	if path == "" {
		path = "<input>"
	}
	switch {
	case e.Attribute != "":
		return fmt.Sprintf("malformed report %s: <%s> is missing required attribute %q", path, e.Element, e.Attribute)
	case e.Element != "":
		return fmt.Sprintf("malformed report %s: missing <%s> element", path, e.Element)
	default:
		return fmt.Sprintf("malformed report %s: %v", path, e.Err)
	}
}

func (e *MalformedReportError) Unwrap() error {
	return e.Err
}

func (e *MalformedReportError) Is(target error) bool {
	return target == ErrMalformedReport
}

func requireAttrs(start xml.StartElement, names ...string) error {
	for _, name := range names {
		found := false
		for _, attr := range start.Attr {
			if attr.Name.Local == name {
				found = true
				break
			}
		}
		if !found {
			return &MalformedReportError{Element: start.Name.Local, Attribute: name}
		}
	}
	return nil
}
