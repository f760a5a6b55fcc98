package analytics

import (
	"cmp"
	"slices"

	"moneybook/internal/core"
)

// Totals holds the per-type sums of a transaction set.
type Totals struct {
	Income  core.Money
	Expense core.Money
	Balance core.Money
}

// AggregateTotals sums amounts by type. Records with an unknown type do not
// contribute. The empty set yields all zeros.
func AggregateTotals(txs []core.Transaction) Totals {
	var t Totals
	for _, tx := range txs {
		switch tx.Type {
		case core.Income:
			t.Income.Cents += tx.Amount.Cents
		case core.Expense:
			t.Expense.Cents += tx.Amount.Cents
		}
	}
	t.Balance = core.Money{Cents: t.Income.Cents - t.Expense.Cents}
	return t
}

// SavingsRate is (income - expense) / income as a percentage, or 0 without
// income. Negative values signal overspending and are kept as is.
func (t Totals) SavingsRate() float64 {
	if t.Income.Cents <= 0 {
		return 0
	}
	return float64(t.Income.Cents-t.Expense.Cents) / float64(t.Income.Cents) * 100
}

// ExpenseRate is expense / income as a percentage, or 0 without income.
// Values above 100 are kept.
func (t Totals) ExpenseRate() float64 {
	if t.Income.Cents <= 0 {
		return 0
	}
	return float64(t.Expense.Cents) / float64(t.Income.Cents) * 100
}

// AggregateByCategory sums expense amounts per category, largest first.
// Income categories are not broken out. Equal sums are ordered by name.
func AggregateByCategory(txs []core.Transaction) []core.CategoryAmount {
	sums := map[string]int64{}
	for _, tx := range txs {
		if tx.Type != core.Expense {
			continue
		}
		sums[tx.Category] += tx.Amount.Cents
	}
	out := make([]core.CategoryAmount, 0, len(sums))
	for name, cents := range sums {
		out = append(out, core.CategoryAmount{Name: name, Amount: core.Money{Cents: cents}})
	}
	slices.SortFunc(out, func(a, b core.CategoryAmount) int {
		if c := cmp.Compare(b.Amount.Cents, a.Amount.Cents); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// CategoryShare returns the percentage of total that amount represents.
func CategoryShare(amount, total core.Money) float64 {
	if total.Cents <= 0 {
		return 0
	}
	return float64(amount.Cents) / float64(total.Cents) * 100
}
