package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"moneybook/internal/analytics"
	"moneybook/internal/core"
	"moneybook/internal/ledger"
)

const (
	dateLayout   = "2006-01-02"
	maxBodyBytes = 1 << 20
)

// ParseScope reads mode, date, start and end from the query. mode defaults
// to monthly and date to today. A custom scope without start or end uses
// date for the missing bound; an end before start collapses the range to
// the end day.
func ParseScope(q url.Values, now time.Time) (analytics.Scope, error) {
	mode := analytics.Monthly
	if v := strings.TrimSpace(q.Get("mode")); v != "" {
		m, err := analytics.ParseMode(v)
		if err != nil {
			return analytics.Scope{}, fmt.Errorf("mode %q: %w", v, err)
		}
		mode = m
	}

	ref, err := parseDateParam(q, "date", now)
	if err != nil {
		return analytics.Scope{}, err
	}

	switch mode {
	case analytics.Daily:
		return analytics.DayScope(ref), nil
	case analytics.Yearly:
		return analytics.YearScope(ref), nil
	case analytics.Custom:
		start, err := parseDateParam(q, "start", ref)
		if err != nil {
			return analytics.Scope{}, err
		}
		end, err := parseDateParam(q, "end", ref)
		if err != nil {
			return analytics.Scope{}, err
		}
		r := analytics.Range{Start: ref, End: ref}.SetStart(start).SetEnd(end)
		return analytics.CustomScope(r.Start, r.End), nil
	case analytics.All:
		return analytics.Scope{Mode: analytics.All, Reference: ref}, nil
	}
	return analytics.MonthScope(ref), nil
}

func parseDateParam(q url.Values, key string, fallback time.Time) (time.Time, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return fallback, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD: %w", key, core.ErrInvalidDate)
	}
	return t, nil
}

// TransactionRequest is the body of POST and PUT /transactions. Amount may
// be a JSON number or a decimal string; date may be YYYY-MM-DD or RFC 3339.
type TransactionRequest struct {
	Amount      any    `json:"amount"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Type        string `json:"type"`
}

func decodeTransactionRequest(w http.ResponseWriter, r *http.Request) (TransactionRequest, error) {
	var req TransactionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return req, errors.New("request body is empty")
		}
		return req, fmt.Errorf("invalid JSON body: %w", err)
	}
	return req, nil
}

// Draft converts the request into a ledger draft. A missing date is left
// zero so the ledger stamps the current time.
func (req TransactionRequest) Draft() (ledger.Draft, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return ledger.Draft{}, err
	}
	typ, err := core.ParseTransactionType(req.Type)
	if err != nil {
		return ledger.Draft{}, err
	}
	var date time.Time
	if strings.TrimSpace(req.Date) != "" {
		if date, err = parseTimestamp(req.Date); err != nil {
			return ledger.Draft{}, err
		}
	}
	return ledger.Draft{
		Amount:      amount,
		Date:        date,
		Description: sanitizeInput(req.Description),
		Category:    sanitizeInput(req.Category),
		Type:        typ,
	}, nil
}

// Apply overwrites the mutable fields of tx. Unlike Draft, the date is
// required.
func (req TransactionRequest) Apply(tx core.Transaction) (core.Transaction, error) {
	d, err := req.Draft()
	if err != nil {
		return core.Transaction{}, err
	}
	if d.Date.IsZero() {
		return core.Transaction{}, core.ErrInvalidDate
	}
	tx.Amount = d.Amount
	tx.Date = d.Date
	tx.Description = d.Description
	tx.Category = d.Category
	tx.Type = d.Type
	return tx, nil
}

func parseAmount(v any) (core.Money, error) {
	switch x := v.(type) {
	case string:
		return core.ParseAmount(x)
	case json.Number:
		return core.ParseAmount(x.String())
	}
	return core.Money{}, core.ErrInvalidAmount
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(dateLayout, s, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(time.Local), nil
	}
	return time.Time{}, core.ErrInvalidDate
}

// sanitizeInput trims and drops control characters other than tab and
// newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
