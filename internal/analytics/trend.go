package analytics

import (
	"fmt"
	"slices"
	"time"

	"moneybook/internal/core"
)

// Spans up to this many days are bucketed per day; longer spans per month.
const maxDailySpan = 60

// Bucket is one slot of an expense trend. Label is empty for slots that
// should not carry an axis label.
type Bucket struct {
	Key    string
	Label  string
	Amount core.Money
}

// BuildTrendBuckets sums the expenses in scope into time buckets whose
// cardinality depends on the scope mode:
//
//	daily    24 hourly buckets
//	monthly  one per day of the reference month
//	yearly   12 monthly buckets
//	custom   one per day when the range spans at most 60 days, otherwise one
//	         per (year, month) that has data, in chronological order
//
// The unbounded scope spans from the oldest to the newest transaction.
func BuildTrendBuckets(txs []core.Transaction, s Scope) []Bucket {
	s = s.Normalize()
	loc := s.location()
	expenses := FilterByType(FilterByScope(txs, s), core.Expense)

	switch s.Mode {
	case Daily:
		return hourlyBuckets(expenses, loc)
	case Monthly:
		ref := s.Reference
		return dayBuckets(expenses, time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, loc), daysIn(ref.Year(), ref.Month()), monthDayLabel)
	case Yearly:
		return monthBuckets(expenses, s.Reference.Year(), loc)
	case Custom:
		return spanBuckets(expenses, s.Range, loc)
	}

	if len(expenses) == 0 {
		return []Bucket{}
	}
	oldest, newest := expenses[0].Date, expenses[0].Date
	for _, tx := range expenses[1:] {
		if tx.Date.Before(oldest) {
			oldest = tx.Date
		}
		if tx.Date.After(newest) {
			newest = tx.Date
		}
	}
	return spanBuckets(expenses, Range{Start: oldest.In(loc), End: newest.In(loc)}, loc)
}

func hourlyBuckets(txs []core.Transaction, loc *time.Location) []Bucket {
	out := make([]Bucket, 24)
	for h := range out {
		out[h].Key = fmt.Sprintf("%02d", h)
		if h%6 == 0 || h == 23 {
			out[h].Label = fmt.Sprintf("%02d:00", h)
		}
	}
	for _, tx := range txs {
		out[tx.Date.In(loc).Hour()].Amount.Cents += tx.Amount.Cents
	}
	return out
}

func monthDayLabel(i, n int, day time.Time) string {
	if i == 0 || i == n-1 || day.Day()%5 == 0 {
		return fmt.Sprint(day.Day())
	}
	return ""
}

func spanDayLabel(i, n int, day time.Time) string {
	if i == 0 || i == n-1 || i%5 == 0 {
		return day.Format("Jan 2")
	}
	return ""
}

// dayBuckets creates n consecutive day buckets starting at first, every day
// present even without activity.
func dayBuckets(txs []core.Transaction, first time.Time, n int, label func(i, n int, day time.Time) string) []Bucket {
	out := make([]Bucket, n)
	for i := range out {
		day := first.AddDate(0, 0, i)
		out[i].Key = day.Format("2006-01-02")
		out[i].Label = label(i, n, day)
	}
	for _, tx := range txs {
		i := daysBetween(first, startOfDay(tx.Date.In(first.Location())))
		if i >= 0 && i < n {
			out[i].Amount.Cents += tx.Amount.Cents
		}
	}
	return out
}

func monthBuckets(txs []core.Transaction, year int, loc *time.Location) []Bucket {
	out := make([]Bucket, 12)
	for i := range out {
		m := time.Date(year, time.Month(i+1), 1, 0, 0, 0, 0, loc)
		out[i].Key = m.Format("2006-01")
		out[i].Label = m.Format("Jan")
	}
	for _, tx := range txs {
		out[tx.Date.In(loc).Month()-1].Amount.Cents += tx.Amount.Cents
	}
	return out
}

func spanBuckets(txs []core.Transaction, r Range, loc *time.Location) []Bucket {
	if r.Days() <= maxDailySpan {
		return dayBuckets(txs, startOfDay(r.Start.In(loc)), r.Days(), spanDayLabel)
	}

	type yearMonth struct {
		year  int
		month time.Month
	}
	sums := map[yearMonth]int64{}
	for _, tx := range txs {
		d := tx.Date.In(loc)
		sums[yearMonth{d.Year(), d.Month()}] += tx.Amount.Cents
	}
	keys := make([]yearMonth, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b yearMonth) int {
		if a.year != b.year {
			return a.year - b.year
		}
		return int(a.month) - int(b.month)
	})

	out := make([]Bucket, len(keys))
	for i, k := range keys {
		m := time.Date(k.year, k.month, 1, 0, 0, 0, 0, loc)
		out[i] = Bucket{Key: m.Format("2006-01"), Label: m.Format("Jan 2006"), Amount: core.Money{Cents: sums[k]}}
	}
	return out
}
