package http

import (
	"time"

	"moneybook/internal/analytics"
	"moneybook/internal/core"
	"moneybook/internal/format"
)

type (
	TransactionView struct {
		ID          string `json:"id"`
		Amount      string `json:"amount"`
		AmountCents int64  `json:"amountCents"`
		Display     string `json:"display"`
		Date        string `json:"date"`
		Description string `json:"description"`
		Category    string `json:"category"`
		Type        string `json:"type"`
	}

	MoneyView struct {
		Cents   int64  `json:"cents"`
		Display string `json:"display"`
	}

	CategoryView struct {
		Name   string    `json:"name"`
		Amount MoneyView `json:"amount"`
		Share  float64   `json:"share"`
	}

	BucketView struct {
		Key    string    `json:"key"`
		Label  string    `json:"label"`
		Amount MoneyView `json:"amount"`
	}

	ScopeView struct {
		Mode     string `json:"mode"`
		Title    string `json:"title"`
		From     string `json:"from,omitempty"`
		To       string `json:"to,omitempty"`
		Previous string `json:"previous,omitempty"`
		Next     string `json:"next,omitempty"`
	}

	SummaryView struct {
		Scope            ScopeView      `json:"scope"`
		Income           MoneyView      `json:"income"`
		Expense          MoneyView      `json:"expense"`
		Balance          MoneyView      `json:"balance"`
		// LedgerBalance is income minus expense over every transaction,
		// whatever the scope.
		LedgerBalance    MoneyView      `json:"ledgerBalance"`
		SavingsRate      float64        `json:"savingsRate"`
		ExpenseRate      float64        `json:"expenseRate"`
		TransactionCount int            `json:"transactionCount"`
		Categories       []CategoryView `json:"categories"`
	}

	HistoryItemView struct {
		Transaction *TransactionView `json:"transaction,omitempty"`
		Group       *GroupView       `json:"group,omitempty"`
	}

	GroupView struct {
		ID           string            `json:"id"`
		Date         string            `json:"date"`
		Type         string            `json:"type"`
		Total        MoneyView         `json:"total"`
		Transactions []TransactionView `json:"transactions"`
	}

	MonthView struct {
		Title   string            `json:"title"`
		Year    int               `json:"year"`
		Month   int               `json:"month"`
		Income  MoneyView         `json:"income"`
		Expense MoneyView         `json:"expense"`
		Balance MoneyView         `json:"balance"`
		Items   []HistoryItemView `json:"items"`
	}
)

func newTransactionView(tx core.Transaction, lang string) TransactionView {
	return TransactionView{
		ID:          tx.ID,
		Amount:      tx.Amount.Decimal().StringFixed(2),
		AmountCents: tx.Amount.Cents,
		Display:     format.Signed(tx, lang),
		Date:        tx.Date.Format(time.RFC3339),
		Description: tx.Description,
		Category:    tx.Category,
		Type:        string(tx.Type),
	}
}

func newTransactionViews(txs []core.Transaction, lang string) []TransactionView {
	out := make([]TransactionView, 0, len(txs))
	for _, tx := range txs {
		out = append(out, newTransactionView(tx, lang))
	}
	return out
}

func newMoneyView(m core.Money, lang string) MoneyView {
	return MoneyView{Cents: m.Cents, Display: format.Currency(m, lang)}
}

func newScopeView(s analytics.Scope) ScopeView {
	v := ScopeView{Mode: string(s.Mode), Title: s.Title()}
	from, to, ok := s.Bounds()
	if !ok {
		return v
	}
	v.From = from.Format(dateLayout)
	v.To = to.AddDate(0, 0, -1).Format(dateLayout)
	if s.Mode != analytics.Custom {
		v.Previous = s.Step(-1).Reference.Format(dateLayout)
		v.Next = s.Step(1).Reference.Format(dateLayout)
	}
	return v
}

func newCategoryViews(s analytics.Summary, lang string) []CategoryView {
	out := make([]CategoryView, 0, len(s.Categories))
	for _, c := range s.Categories {
		out = append(out, CategoryView{
			Name:   c.Name,
			Amount: newMoneyView(c.Amount, lang),
			Share:  analytics.CategoryShare(c.Amount, s.Totals.Expense),
		})
	}
	return out
}

func newSummaryView(s analytics.Summary, lang string) SummaryView {
	return SummaryView{
		Scope:            newScopeView(s.Scope),
		Income:           newMoneyView(s.Totals.Income, lang),
		Expense:          newMoneyView(s.Totals.Expense, lang),
		Balance:          newMoneyView(s.Totals.Balance, lang),
		SavingsRate:      s.SavingsRate,
		ExpenseRate:      s.ExpenseRate,
		TransactionCount: len(s.Transactions),
		Categories:       newCategoryViews(s, lang),
	}
}

func newBucketViews(buckets []analytics.Bucket, lang string) []BucketView {
	out := make([]BucketView, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, BucketView{Key: b.Key, Label: b.Label, Amount: newMoneyView(b.Amount, lang)})
	}
	return out
}

func newMonthViews(groups []analytics.DisplayGroup, lang string) []MonthView {
	out := make([]MonthView, 0, len(groups))
	for _, g := range groups {
		mv := MonthView{
			Title:   g.Title,
			Year:    g.Year,
			Month:   int(g.Month),
			Income:  newMoneyView(g.Income, lang),
			Expense: newMoneyView(g.Expense, lang),
			Balance: newMoneyView(g.Balance, lang),
			Items:   make([]HistoryItemView, 0, len(g.Items)),
		}
		for _, item := range g.Items {
			if item.IsGroup() {
				grp := item.Group
				mv.Items = append(mv.Items, HistoryItemView{Group: &GroupView{
					ID:           grp.ID,
					Date:         grp.Date.Format(dateLayout),
					Type:         string(grp.Type),
					Total:        newMoneyView(grp.TotalAmount, lang),
					Transactions: newTransactionViews(item.Members(), lang),
				}})
				continue
			}
			tv := newTransactionView(*item.Transaction, lang)
			mv.Items = append(mv.Items, HistoryItemView{Transaction: &tv})
		}
		out = append(out, mv)
	}
	return out
}
