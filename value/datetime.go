package value

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Precision is the declared precision of a FHIR date, dateTime or instant.
type Precision int

// Date/time precisions, coarsest first.
const (
	PrecisionYear Precision = iota
	PrecisionMonth
	PrecisionDay
	PrecisionMinute
	PrecisionSecond
	PrecisionMillisecond
)

// String returns the upper-case precision name.
func (p Precision) String() string {
	switch p {
	case PrecisionYear:
		return "YEAR"
	case PrecisionMonth:
		return "MONTH"
	case PrecisionDay:
		return "DAY"
	case PrecisionMinute:
		return "MINUTE"
	case PrecisionSecond:
		return "SECOND"
	case PrecisionMillisecond:
		return "MILLISECOND"
	default:
		return fmt.Sprintf("Precision(%d)", int(p))
	}
}

// MarshalText renders the precision name.
func (p Precision) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Regular expressions from the FHIR R4 primitive type definitions.
var (
	dateRegex     = regexp.MustCompile(`^([0-9]([0-9]([0-9][1-9]|[1-9]0)|[1-9]00)|[1-9]000)(-(0[1-9]|1[0-2])(-(0[1-9]|[1-2][0-9]|3[0-1]))?)?$`)
	dateTimeRegex = regexp.MustCompile(`^([0-9]([0-9]([0-9][1-9]|[1-9]0)|[1-9]00)|[1-9]000)(-(0[1-9]|1[0-2])(-(0[1-9]|[1-2][0-9]|3[0-1])(T([01][0-9]|2[0-3]):[0-5][0-9]:([0-5][0-9]|60)(\.[0-9]+)?(Z|(\+|-)((0[0-9]|1[0-3]):[0-5][0-9]|14:00)))?)?)?$`)
	instantRegex  = regexp.MustCompile(`^([0-9]([0-9]([0-9][1-9]|[1-9]0)|[1-9]00)|[1-9]000)-(0[1-9]|1[0-2])-(0[1-9]|[1-2][0-9]|3[0-1])T([01][0-9]|2[0-3]):[0-5][0-9]:([0-5][0-9]|60)(\.[0-9]+)?(Z|(\+|-)((0[0-9]|1[0-3]):[0-5][0-9]|14:00))$`)
)

// ParseDate parses a FHIR date ("2024", "2024-03", "2024-03-15").
// The instant is the start of the period in UTC.
func ParseDate(s string) (Date, error) {
	if !dateRegex.MatchString(s) {
		return Date{}, fmt.Errorf("invalid date %q", s)
	}
	return parseTemporal(s, ShapeDate)
}

// ParseDateTime parses a FHIR dateTime. Partial values without a time part are
// accepted; values without a zone are taken as UTC.
func ParseDateTime(s string) (Date, error) {
	if !dateTimeRegex.MatchString(s) {
		return Date{}, fmt.Errorf("invalid dateTime %q", s)
	}
	return parseTemporal(s, ShapeDateTime)
}

// ParseInstant parses a FHIR instant. Instants always carry seconds and a zone.
func ParseInstant(s string) (Date, error) {
	if !instantRegex.MatchString(s) {
		return Date{}, fmt.Errorf("invalid instant %q", s)
	}
	return parseTemporal(s, ShapeInstant)
}

func parseTemporal(s string, kind Shape) (Date, error) {
	var (
		layout    string
		precision Precision
	)

	datePart, timePart, hasTime := strings.Cut(s, "T")
	switch len(datePart) {
	case 4:
		layout, precision = "2006", PrecisionYear
	case 7:
		layout, precision = "2006-01", PrecisionMonth
	default:
		layout, precision = "2006-01-02", PrecisionDay
	}

	if hasTime {
		layout = "2006-01-02T15:04:05"
		precision = PrecisionSecond
		if strings.Contains(timePart, ".") {
			layout += ".999999999"
			precision = PrecisionMillisecond
		}
		layout += "Z07:00"
	}

	// Leap seconds are representable in FHIR but not in time.Time.
	normalized := strings.Replace(s, ":60", ":59", 1)

	t, err := time.Parse(layout, normalized)
	if err != nil {
		return Date{}, fmt.Errorf("invalid %s %q: %w", kind, s, err)
	}

	return Date{
		Time:      t.UTC(),
		Precision: precision,
		Kind:      kind,
		Raw:       s,
	}, nil
}
