package analytics

import "moneybook/internal/core"

// Summary bundles everything a period view needs from one pass over the
// transaction list.
type Summary struct {
	Scope        Scope
	Title        string
	Transactions []core.Transaction
	Totals       Totals
	SavingsRate  float64
	ExpenseRate  float64
	Categories   []core.CategoryAmount
	Trend        []Bucket
}

func Summarize(txs []core.Transaction, s Scope) Summary {
	s = s.Normalize()
	inScope := FilterByScope(txs, s)
	totals := AggregateTotals(inScope)
	return Summary{
		Scope:        s,
		Title:        s.Title(),
		Transactions: inScope,
		Totals:       totals,
		SavingsRate:  totals.SavingsRate(),
		ExpenseRate:  totals.ExpenseRate(),
		Categories:   AggregateByCategory(inScope),
		Trend:        BuildTrendBuckets(inScope, s),
	}
}

// Balance is income minus expense over the whole collection.
func Balance(txs []core.Transaction) core.Money {
	return AggregateTotals(txs).Balance
}
