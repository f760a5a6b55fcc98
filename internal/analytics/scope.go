// Package analytics holds the pure filtering, aggregation and grouping
// functions that turn a transaction list into period views. Nothing here
// performs I/O or keeps state; callers pass the current list explicitly.
package analytics

import (
	"errors"
	"strings"
	"time"
)

const (
	Daily   Mode = "daily"
	Monthly Mode = "monthly"
	Yearly  Mode = "yearly"
	Custom  Mode = "custom"
	// All is the unbounded scope used for full-history views.
	All Mode = "all"
)

var ErrInvalidMode = errors.New("invalid scope mode")

type (
	Mode string

	// Range is an inclusive calendar-day range. Only the day part of Start
	// and End matters.
	Range struct {
		Start time.Time
		End   time.Time
	}

	// Scope selects the time window that participates in aggregation.
	// Reference locates "this period" for daily, monthly and yearly; Range is
	// consulted only when Mode is Custom.
	Scope struct {
		Mode      Mode
		Reference time.Time
		Range     Range
	}
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case Daily, Monthly, Yearly, Custom, All:
		return m, nil
	}
	return "", ErrInvalidMode
}

func DayScope(ref time.Time) Scope   { return Scope{Mode: Daily, Reference: ref} }
func MonthScope(ref time.Time) Scope { return Scope{Mode: Monthly, Reference: ref} }
func YearScope(ref time.Time) Scope  { return Scope{Mode: Yearly, Reference: ref} }

func CustomScope(start, end time.Time) Scope {
	return Scope{Mode: Custom, Reference: start, Range: Range{Start: start, End: end}}
}

// SetStart moves the start of the range. Picking a start after the current
// end collapses the range to that single day.
func (r Range) SetStart(t time.Time) Range {
	if startOfDay(t).After(startOfDay(r.End)) {
		return Range{Start: t, End: t}
	}
	return Range{Start: t, End: r.End}
}

// SetEnd moves the end of the range. Picking an end before the current
// start collapses the range to that single day.
func (r Range) SetEnd(t time.Time) Range {
	if startOfDay(t).Before(startOfDay(r.Start)) {
		return Range{Start: t, End: t}
	}
	return Range{Start: r.Start, End: t}
}

// Inverted reports whether End falls on a day before Start.
func (r Range) Inverted() bool {
	return startOfDay(r.End).Before(startOfDay(r.Start))
}

// Days returns the number of calendar days covered, both ends included.
func (r Range) Days() int {
	return daysBetween(startOfDay(r.Start), startOfDay(r.End)) + 1
}

// Normalize clamps an inverted custom range to the single day at the
// earlier of the two dates. Other modes are returned unchanged.
func (s Scope) Normalize() Scope {
	if s.Mode != Custom || !s.Range.Inverted() {
		return s
	}
	s.Range = Range{Start: s.Range.End, End: s.Range.End}
	return s
}

func (s Scope) location() *time.Location {
	t := s.Reference
	if s.Mode == Custom {
		t = s.Range.Start
	}
	if t.IsZero() {
		return time.Local
	}
	return t.Location()
}

// Bounds returns the half-open interval [from, to) covered by the scope.
// ok is false for the unbounded scope.
func (s Scope) Bounds() (from, to time.Time, ok bool) {
	s = s.Normalize()
	ref := s.Reference
	switch s.Mode {
	case Daily:
		from = startOfDay(ref)
		to = from.AddDate(0, 0, 1)
	case Monthly:
		from = time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
		to = from.AddDate(0, 1, 0)
	case Yearly:
		from = time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, ref.Location())
		to = from.AddDate(1, 0, 0)
	case Custom:
		from = startOfDay(s.Range.Start)
		to = startOfDay(s.Range.End.In(s.Range.Start.Location())).AddDate(0, 0, 1)
	default:
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// Contains reports whether t falls inside the scope, using the scope's
// location for calendar boundaries.
func (s Scope) Contains(t time.Time) bool {
	from, to, ok := s.Bounds()
	if !ok {
		return true
	}
	return !t.Before(from) && t.Before(to)
}

// Step moves the reference date one period back (dir < 0) or forward
// (dir > 0). Custom and unbounded scopes do not move.
func (s Scope) Step(dir int) Scope {
	switch s.Mode {
	case Daily:
		s.Reference = s.Reference.AddDate(0, 0, dir)
	case Monthly:
		s.Reference = shiftMonths(s.Reference, dir)
	case Yearly:
		s.Reference = shiftMonths(s.Reference, 12*dir)
	}
	return s
}

// shiftMonths moves t by n months, clamping the day so Jan 31 steps to the
// end of February rather than into March.
func shiftMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	day := min(t.Day(), daysIn(first.Year(), first.Month()))
	return first.AddDate(0, 0, day-1)
}

// Title is the human label of the selected period.
func (s Scope) Title() string {
	s = s.Normalize()
	switch s.Mode {
	case Daily:
		return s.Reference.Format("Jan 2, 2006")
	case Monthly:
		return s.Reference.Format("January 2006")
	case Yearly:
		return s.Reference.Format("2006")
	case Custom:
		return s.Range.Start.Format("Jan 2, 2006") + " - " + s.Range.End.Format("Jan 2, 2006")
	}
	return "All time"
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days from a to b, both at midnight. It goes
// through UTC dates so DST transitions do not shorten a day.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
