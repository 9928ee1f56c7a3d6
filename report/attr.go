package report

import (
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Flag is a boolean written as True/False
type Flag bool

func (f Flag) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	value := "False"
	if f {
		value = "True"
	}
	return xml.Attr{Name: name, Value: value}, nil
}

func (f *Flag) UnmarshalXMLAttr(attr xml.Attr) error {
	*f = Flag(strings.TrimSpace(attr.Value) == "True")
	return nil
}

// NewFlag returns a pointer to a Flag, for optional attributes
func NewFlag(b bool) *Flag {
	f := Flag(b)
	return &f
}

// Seconds is a duration in seconds written with three decimals
type Seconds float64

func (s Seconds) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: strconv.FormatFloat(float64(s), 'f', 3, 64)}, nil
}

func (s *Seconds) UnmarshalXMLAttr(attr xml.Attr) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(attr.Value), 64)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", attr.Name.Local, attr.Value, err)
	}
	*s = Seconds(v)
	return nil
}

// NewSeconds returns a pointer to a Seconds value, for optional attributes
func NewSeconds(v float64) *Seconds {
	s := Seconds(v)
	return &s
}

// Round3 rounds to three decimals, the precision durations are stored with
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
