package analytics

import (
	"testing"
	"time"
)

func TestParseMode(t *testing.T) {
	for _, in := range []string{"daily", "Monthly", " yearly ", "custom", "all"} {
		if _, err := ParseMode(in); err != nil {
			t.Errorf("ParseMode(%q) unexpected error %v", in, err)
		}
	}
	if _, err := ParseMode("weekly"); err != ErrInvalidMode {
		t.Errorf("expected ErrInvalidMode, got %v", err)
	}
}

func TestScopeStep(t *testing.T) {
	ref := at(2024, time.January, 31, 10, 0)
	tests := []struct {
		scope Scope
		dir   int
		want  time.Time
	}{
		{DayScope(ref), 1, at(2024, time.February, 1, 10, 0)},
		{DayScope(ref), -1, at(2024, time.January, 30, 10, 0)},
		{MonthScope(ref), 1, at(2024, time.February, 29, 10, 0)},
		{MonthScope(ref), -2, at(2023, time.November, 30, 10, 0)},
		{MonthScope(ref), 12, at(2025, time.January, 31, 10, 0)},
		{YearScope(ref), -1, at(2023, time.January, 31, 10, 0)},
		{YearScope(at(2024, time.February, 29, 0, 0)), 1, at(2025, time.February, 28, 0, 0)},
		{CustomScope(ref, ref), 1, ref},
	}
	for i, tt := range tests {
		if got := tt.scope.Step(tt.dir).Reference; !got.Equal(tt.want) {
			t.Errorf("case %d: Step(%d) = %v, want %v", i, tt.dir, got, tt.want)
		}
	}
}

func TestScopeTitle(t *testing.T) {
	ref := at(2024, time.March, 5, 0, 0)
	tests := []struct {
		scope Scope
		want  string
	}{
		{DayScope(ref), "Mar 5, 2024"},
		{MonthScope(ref), "March 2024"},
		{YearScope(ref), "2024"},
		{CustomScope(ref, at(2024, time.April, 1, 0, 0)), "Mar 5, 2024 - Apr 1, 2024"},
		{Scope{Mode: All}, "All time"},
	}
	for _, tt := range tests {
		if got := tt.scope.Title(); got != tt.want {
			t.Errorf("Title() = %q, want %q", got, tt.want)
		}
	}
}

func TestRangeSetters(t *testing.T) {
	r := Range{Start: at(2024, time.March, 1, 0, 0), End: at(2024, time.March, 10, 0, 0)}

	moved := r.SetStart(at(2024, time.March, 5, 0, 0))
	if !moved.Start.Equal(at(2024, time.March, 5, 0, 0)) || !moved.End.Equal(r.End) {
		t.Fatalf("unexpected range %+v", moved)
	}
	collapsed := r.SetStart(at(2024, time.March, 20, 0, 0))
	if !collapsed.Start.Equal(collapsed.End) {
		t.Fatalf("start after end should collapse, got %+v", collapsed)
	}
	collapsed = r.SetEnd(at(2024, time.February, 20, 0, 0))
	if !collapsed.Start.Equal(at(2024, time.February, 20, 0, 0)) || !collapsed.End.Equal(collapsed.Start) {
		t.Fatalf("end before start should collapse, got %+v", collapsed)
	}
	if r.Days() != 10 {
		t.Fatalf("expected 10 days, got %d", r.Days())
	}
}

func TestScopeNormalize(t *testing.T) {
	s := CustomScope(at(2024, time.May, 9, 0, 0), at(2024, time.May, 2, 0, 0)).Normalize()
	if !s.Range.Start.Equal(at(2024, time.May, 2, 0, 0)) || !s.Range.End.Equal(s.Range.Start) {
		t.Fatalf("expected single day at the earlier date, got %+v", s.Range)
	}
	m := MonthScope(at(2024, time.May, 9, 0, 0))
	if m.Normalize() != m {
		t.Fatalf("non-custom scopes must be unchanged")
	}
}
