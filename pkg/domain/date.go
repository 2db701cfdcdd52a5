package domain

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar day without a time-of-day or zone. It persists as
// ISO 8601 (YYYY-MM-DD).
type Date struct {
	t time.Time
}

// NewDate returns the given calendar day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, ValidationError{Field: "date", Reason: fmt.Sprintf("%q is not a YYYY-MM-DD date", s)}
	}
	return Date{t: t}, nil
}

// MustParseDate is ParseDate that panics on malformed input. Intended for fixtures.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d.t.IsZero() }

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

// After reports whether d is strictly later than o.
func (d Date) After(o Date) bool { return d.t.After(o.t) }

// Equal reports whether d and o are the same day.
func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }

// AddDays returns the date n days later (earlier when n is negative).
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields the zero date.
func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Window is an inclusive range of days.
type Window struct {
	Start Date
	End   Date
}

// normalized swaps the bounds when they are reversed.
func (w Window) normalized() Window {
	if w.End.Before(w.Start) {
		return Window{Start: w.End, End: w.Start}
	}
	return w
}

// Contains reports whether day falls inside the window, bounds included.
func (w Window) Contains(day Date) bool {
	n := w.normalized()
	return !day.Before(n.Start) && !day.After(n.End)
}

// Overlaps reports whether the two windows share at least one day.
func (w Window) Overlaps(o Window) bool {
	return DatesOverlap(w.Start, w.End, o.Start, o.End)
}

// DatesOverlap reports whether [s1,e1] and [s2,e2] overlap inclusively. Each
// interval is normalized so that start <= end before comparing.
func DatesOverlap(s1, e1, s2, e2 Date) bool {
	a := Window{Start: s1, End: e1}.normalized()
	b := Window{Start: s2, End: e2}.normalized()
	return !a.Start.After(b.End) && !b.Start.After(a.End)
}
