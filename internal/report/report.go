// Package report renders a period summary as CSV, XLSX or a printable
// HTML page. All formats share the same Document: a summary block and a
// transaction table with signed, localized amounts.
package report

import (
	"fmt"
	"regexp"
	"time"

	"moneybook/internal/analytics"
	"moneybook/internal/core"
	"moneybook/internal/format"
)

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
	HTML Format = "html"
)

type Format string

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9]`)

// ParseFormat accepts csv, xlsx and html.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case CSV, XLSX, HTML:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

func (f Format) ContentType() string {
	switch f {
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case HTML:
		return "text/html; charset=utf-8"
	}
	return "text/csv; charset=utf-8"
}

type (
	Row struct {
		Date        string
		Type        string
		Category    string
		Description string
		Amount      string
		Income      bool
	}

	CategoryLine struct {
		Name   string
		Amount string
		Share  string
	}

	Document struct {
		Title       string
		Income      string
		Expense     string
		Balance     string
		SavingsRate string
		Categories  []CategoryLine
		Rows        []Row
		GeneratedAt time.Time
	}
)

// Build prepares the document for a summary in the given display language.
func Build(s analytics.Summary, lang string, now time.Time) Document {
	doc := Document{
		Title:       s.Title,
		Income:      format.Currency(s.Totals.Income, lang),
		Expense:     format.Currency(s.Totals.Expense, lang),
		Balance:     format.Currency(s.Totals.Balance, lang),
		SavingsRate: fmt.Sprintf("%.1f%%", s.SavingsRate),
		GeneratedAt: now,
	}
	for _, c := range s.Categories {
		doc.Categories = append(doc.Categories, CategoryLine{
			Name:   c.Name,
			Amount: format.Currency(c.Amount, lang),
			Share:  fmt.Sprintf("%.1f%%", analytics.CategoryShare(c.Amount, s.Totals.Expense)),
		})
	}
	for _, tx := range s.Transactions {
		doc.Rows = append(doc.Rows, rowFor(tx, lang))
	}
	return doc
}

func rowFor(tx core.Transaction, lang string) Row {
	return Row{
		Date:        tx.Date.Format("2006-01-02"),
		Type:        string(tx.Type),
		Category:    tx.Category,
		Description: tx.Description,
		Amount:      format.Signed(tx, lang),
		Income:      tx.Type == core.Income,
	}
}

// FileName builds "<title>_<yyyy-mm-dd>.<ext>" with every character outside
// [a-zA-Z0-9] in the title replaced by an underscore.
func FileName(title string, day time.Time, f Format) string {
	return fmt.Sprintf("%s_%s.%s", unsafeName.ReplaceAllString(title, "_"), day.Format("2006-01-02"), f)
}
