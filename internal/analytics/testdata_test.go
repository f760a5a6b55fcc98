package analytics

import (
	"fmt"
	"time"

	"moneybook/internal/core"
)

func at(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.Local)
}

func income(id string, cents int64, date time.Time) core.Transaction {
	return core.Transaction{ID: id, Amount: core.Money{Cents: cents}, Date: date, Description: id, Category: "Salary", Type: core.Income}
}

func expense(id string, cents int64, category string, date time.Time) core.Transaction {
	return core.Transaction{ID: id, Amount: core.Money{Cents: cents}, Date: date, Description: id, Category: category, Type: core.Expense}
}

// sample spreads records across days, months and years around March 2024.
func sample() []core.Transaction {
	var out []core.Transaction
	dates := []time.Time{
		at(2023, time.December, 31, 23, 59),
		at(2024, time.January, 15, 8, 0),
		at(2024, time.March, 1, 0, 0),
		at(2024, time.March, 10, 12, 30),
		at(2024, time.March, 10, 18, 45),
		at(2024, time.March, 31, 23, 59),
		at(2024, time.April, 1, 0, 0),
		at(2025, time.March, 10, 12, 0),
	}
	for i, d := range dates {
		if i%3 == 0 {
			out = append(out, income(fmt.Sprintf("in-%d", i), int64(1000*(i+1)), d))
		} else {
			out = append(out, expense(fmt.Sprintf("ex-%d", i), int64(100*(i+1)), "Food", d))
		}
	}
	return out
}

func ids(txs []core.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}
