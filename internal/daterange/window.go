// Package daterange resolves the effective calendar-day window of an import.
package daterange

import (
	"time"

	"github.com/spaceportal/spaceportal/internal/errors"
)

// DayLayout is the calendar-day format used by the NASA feeds.
const DayLayout = "2006-01-02"

// ErrInvalidRange is returned when the end day precedes the start day.
var ErrInvalidRange = errors.NewStd("end date precedes start date")

// Window is an inclusive range of UTC calendar days.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Resolve computes the effective window from optional caller input. A nil
// end means today, a nil start means defaultSpanDays before end. Both values
// are truncated to UTC days.
func Resolve(start, end *time.Time, defaultSpanDays int, now time.Time) (Window, error) {
	e := Day(now)
	if end != nil {
		e = Day(*end)
	}

	var s time.Time
	if start != nil {
		s = Day(*start)
	} else {
		s = e.AddDate(0, 0, -max(defaultSpanDays, 0))
	}

	if e.Before(s) {
		return Window{}, errors.New(ErrInvalidRange).
			Component("daterange").
			Category(errors.CategoryValidation).
			Context("start", FormatDay(s)).
			Context("end", FormatDay(e)).
			Build()
	}
	return Window{Start: s, End: e}, nil
}

// ResolveDay returns date truncated to its UTC day, or today when nil.
func ResolveDay(date *time.Time, now time.Time) time.Time {
	if date == nil {
		return Day(now)
	}
	return Day(*date)
}

// Day truncates t to midnight UTC of its calendar day in t's own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDay formats t as YYYY-MM-DD.
func FormatDay(t time.Time) string {
	return t.Format(DayLayout)
}

// ParseDay parses a YYYY-MM-DD string into a UTC day.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DayLayout, s, time.UTC)
}

// Days returns the number of calendar days covered, inclusive.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

func (w Window) String() string {
	return FormatDay(w.Start) + ".." + FormatDay(w.End)
}
