package google

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"moneybook/internal/core"

	gsheet "google.golang.org/api/sheets/v4"
)

var errEmptyID = errors.New("row has no id")

type (
	rowUpdate struct {
		row int
		tx  core.Transaction
	}

	// rowRef is the ID a cached index expects at a row.
	rowRef struct {
		row int
		id  string
	}
)

func headerRow() []any {
	return []any{"ID", "Date", "Type", "Category", "Description", "Amount"}
}

// toRow encodes a transaction as A..F cells. The amount is written as a
// decimal string so the sheet never rounds it.
func toRow(tx core.Transaction) []any {
	return []any{
		tx.ID,
		tx.Date.Format(time.RFC3339),
		string(tx.Type),
		tx.Category,
		tx.Description,
		tx.Amount.Decimal().StringFixed(2),
	}
}

// parseRow decodes A..F cells. Amounts go through SanitizeAmount because
// hand-edited sheets hold numbers, strings or nothing at all.
func parseRow(row []any) (core.Transaction, error) {
	cell := func(i int) string {
		if i >= len(row) || row[i] == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(row[i]))
	}

	id := cell(0)
	if id == "" {
		return core.Transaction{}, errEmptyID
	}
	typ, err := core.ParseTransactionType(cell(2))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("row %s: %w", id, err)
	}
	date, err := parseDate(cell(1))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("row %s: %w", id, err)
	}

	var amount any
	if len(row) > 5 {
		amount = row[5]
	}
	return core.Transaction{
		ID:          id,
		Date:        date,
		Type:        typ,
		Category:    cell(3),
		Description: cell(4),
		Amount:      core.SanitizeAmount(amount),
	}, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, core.ErrInvalidDate
}

// indexIDs maps each ID in column A to its 1-based row number, skipping
// the header.
func indexIDs(values [][]any) map[string]int {
	rows := make(map[string]int, len(values))
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		id := strings.TrimSpace(fmt.Sprint(row[0]))
		if id == "" || (i == 0 && strings.EqualFold(id, "ID")) {
			continue
		}
		if _, dup := rows[id]; !dup {
			rows[id] = i + 1
		}
	}
	return rows
}

// planUpsert splits txs into in-place updates and appends. A repeated ID
// within txs keeps only its last occurrence.
func planUpsert(rows map[string]int, txs []core.Transaction) ([]rowUpdate, []core.Transaction) {
	last := make(map[string]int, len(txs))
	for i, tx := range txs {
		last[tx.ID] = i
	}

	var (
		updates []rowUpdate
		appends []core.Transaction
	)
	for i, tx := range txs {
		if last[tx.ID] != i {
			continue
		}
		if row, ok := rows[tx.ID]; ok {
			updates = append(updates, rowUpdate{row: row, tx: tx})
			continue
		}
		appends = append(appends, tx)
	}
	return updates, appends
}

// rowsMatch reports whether each value range, read from column A in refs
// order, holds the ID its ref expects.
func rowsMatch(refs []rowRef, got []*gsheet.ValueRange) bool {
	if len(got) != len(refs) {
		return false
	}
	for i, ref := range refs {
		vr := got[i]
		if vr == nil || len(vr.Values) == 0 || len(vr.Values[0]) == 0 {
			return false
		}
		if strings.TrimSpace(fmt.Sprint(vr.Values[0][0])) != ref.id {
			return false
		}
	}
	return true
}
