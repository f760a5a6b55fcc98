package analytics

import (
	"slices"
	"time"

	"moneybook/internal/core"
)

type (
	// RecordGroup collapses several transactions of the same day and type
	// into one list entry.
	RecordGroup struct {
		ID           string
		Date         time.Time
		Type         core.TransactionType
		Transactions []core.Transaction
		TotalAmount  core.Money
	}

	// DisplayItem is either a single transaction or a collapsed group.
	// Exactly one of the two fields is set.
	DisplayItem struct {
		Transaction *core.Transaction
		Group       *RecordGroup
	}

	// DisplayGroup is one month of history with its footer totals.
	DisplayGroup struct {
		Title   string
		Year    int
		Month   time.Month
		Items   []DisplayItem
		Income  core.Money
		Expense core.Money
		Balance core.Money
	}
)

type monthKey struct {
	year  int
	month time.Month
}

type dayTypeKey struct {
	year  int
	month time.Month
	day   int
	typ   core.TransactionType
}

func (i DisplayItem) IsGroup() bool {
	return i.Group != nil
}

// Members returns the transactions represented by the item.
func (i DisplayItem) Members() []core.Transaction {
	if i.Group != nil {
		return i.Group.Transactions
	}
	if i.Transaction != nil {
		return []core.Transaction{*i.Transaction}
	}
	return nil
}

// GroupForDisplay sorts the transactions newest first and partitions them
// by calendar month, then by (day, type) inside each month. A partition
// with a single record stays a leaf; larger ones become a RecordGroup.
// Every input record ends up in exactly one item.
func GroupForDisplay(txs []core.Transaction) []DisplayGroup {
	sorted := slices.Clone(txs)
	slices.SortStableFunc(sorted, func(a, b core.Transaction) int {
		return b.Date.Compare(a.Date)
	})

	var (
		months   []monthKey
		byMonth  = map[monthKey][]core.Transaction{}
		out      []DisplayGroup
		location = time.Local
	)
	for _, tx := range sorted {
		d := tx.Date.In(location)
		k := monthKey{d.Year(), d.Month()}
		if _, ok := byMonth[k]; !ok {
			months = append(months, k)
		}
		byMonth[k] = append(byMonth[k], tx)
	}

	out = make([]DisplayGroup, 0, len(months))
	for _, k := range months {
		members := byMonth[k]
		totals := AggregateTotals(members)
		out = append(out, DisplayGroup{
			Title:   time.Date(k.year, k.month, 1, 0, 0, 0, 0, location).Format("January 2006"),
			Year:    k.year,
			Month:   k.month,
			Items:   collapseDays(members, location),
			Income:  totals.Income,
			Expense: totals.Expense,
			Balance: totals.Balance,
		})
	}
	return out
}

func collapseDays(txs []core.Transaction, loc *time.Location) []DisplayItem {
	var order []dayTypeKey
	parts := map[dayTypeKey][]core.Transaction{}
	for _, tx := range txs {
		d := tx.Date.In(loc)
		k := dayTypeKey{d.Year(), d.Month(), d.Day(), tx.Type}
		if _, ok := parts[k]; !ok {
			order = append(order, k)
		}
		parts[k] = append(parts[k], tx)
	}

	items := make([]DisplayItem, 0, len(order))
	for _, k := range order {
		members := parts[k]
		if len(members) == 1 {
			tx := members[0]
			items = append(items, DisplayItem{Transaction: &tx})
			continue
		}
		var total core.Money
		for _, m := range members {
			total = total.Add(m.Amount)
		}
		items = append(items, DisplayItem{Group: &RecordGroup{
			ID:           "group-" + members[0].ID,
			Date:         members[0].Date,
			Type:         k.typ,
			Transactions: members,
			TotalAmount:  total,
		}})
	}
	return items
}
