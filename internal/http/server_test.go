package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"moneybook/internal/core"
	"moneybook/internal/ledger"
	applog "moneybook/internal/log"
	"moneybook/internal/middleware/ratelimit"
	"moneybook/internal/worker"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.Local)

func seed() []core.Transaction {
	day := func(m time.Month, d int) time.Time { return time.Date(2024, m, d, 9, 0, 0, 0, time.Local) }
	return []core.Transaction{
		{ID: "a", Amount: core.Money{Cents: 300000}, Date: day(3, 1), Description: "Salary", Category: "Salary", Type: core.Income},
		{ID: "b", Amount: core.Money{Cents: 4550}, Date: day(3, 2), Description: "Groceries", Category: "Food", Type: core.Expense},
		{ID: "c", Amount: core.Money{Cents: 12000}, Date: day(3, 10), Description: "Train pass", Category: "Transport", Type: core.Expense},
		{ID: "d", Amount: core.Money{Cents: 1000}, Date: day(2, 20), Description: "Lunch", Category: "Food", Type: core.Expense},
	}
}

type fakeSyncer struct {
	result worker.SyncResult
	pulled []core.Transaction
	err    error
	pushed int
}

func (f *fakeSyncer) SyncAll(_ context.Context, txs []core.Transaction) worker.SyncResult {
	f.pushed = len(txs)
	return f.result
}

func (f *fakeSyncer) Pull(ctx context.Context, l worker.Ledger) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if err := l.Replace(ctx, f.pulled); err != nil {
		return 0, err
	}
	return len(f.pulled), nil
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Ledger == nil {
		opts.Ledger = ledger.New(nil, seed())
	}
	opts.Logger = applog.New(applog.Config{Level: slog.LevelError, Output: io.Discard})
	s := NewServer(opts)
	s.now = func() time.Time { return testNow }
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rr := httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, Options{})

	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := do(t, s, http.MethodGet, path, ""); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	failing := newTestServer(t, Options{Checks: []ReadinessCheck{
		{Name: "sqlite", Check: func(context.Context) error { return nil }},
		{Name: "amqp", Check: func(context.Context) error { return errors.New("connection refused") }},
	}})
	rr := do(t, failing, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	body := decode[struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}](t, rr)
	if body.Status != "not_ready" || body.Checks["sqlite"] != "ok" || !strings.HasPrefix(body.Checks["amqp"], "failed") {
		t.Fatalf("unexpected readiness body %+v", body)
	}
}

func TestResponseHeaders(t *testing.T) {
	s := newTestServer(t, Options{})
	rr := do(t, s, http.MethodGet, "/transactions", "")

	for name, want := range map[string]string{
		"Cache-Control":          "no-store",
		"X-Content-Type-Options": "nosniff",
		"Content-Type":           "application/json; charset=utf-8",
	} {
		if got := rr.Header().Get(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestTransactionLifecycle(t *testing.T) {
	s := newTestServer(t, Options{Ledger: ledger.New(nil, nil)})

	rr := do(t, s, http.MethodPost, "/transactions",
		`{"amount":"12,50","date":"2024-03-14","description":" Pizza ","category":"Food","type":"expense"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	created := decode[TransactionView](t, rr)
	if created.AmountCents != 1250 || created.Description != "Pizza" || created.Display != "-$12.50" {
		t.Fatalf("unexpected created view %+v", created)
	}
	if loc := rr.Header().Get("Location"); loc != "/transactions/"+created.ID {
		t.Fatalf("Location = %q", loc)
	}

	rr = do(t, s, http.MethodGet, "/transactions/"+created.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status=%d", rr.Code)
	}

	// a type change keeps a category that only exists for the old type
	rr = do(t, s, http.MethodPut, "/transactions/"+created.ID,
		`{"amount":20,"date":"2024-03-14","description":"Pizza","category":"Food","type":"income"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	updated := decode[TransactionView](t, rr)
	if updated.ID != created.ID || updated.AmountCents != 2000 || updated.Type != "income" {
		t.Fatalf("unexpected updated view %+v", updated)
	}

	if rr := do(t, s, http.MethodDelete, "/transactions/"+created.ID, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if rr := do(t, s, http.MethodGet, "/transactions/"+created.ID, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status=%d", rr.Code)
	}
	if rr := do(t, s, http.MethodDelete, "/transactions/"+created.ID, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d", rr.Code)
	}
	if rr := do(t, s, http.MethodPut, "/transactions/missing", `{}`); rr.Code != http.StatusNotFound {
		t.Fatalf("update missing status=%d", rr.Code)
	}
}

func TestCreateTransactionErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"malformed json", `{"amount":`, http.StatusBadRequest},
		{"unknown field", `{"amount":"1","note":"x"}`, http.StatusBadRequest},
		{"bad amount", `{"amount":"abc","description":"x","category":"Food","type":"expense"}`, http.StatusUnprocessableEntity},
		{"negative amount", `{"amount":"-1","description":"x","category":"Food","type":"expense"}`, http.StatusUnprocessableEntity},
		{"bad type", `{"amount":"1","description":"x","category":"Food","type":"transfer"}`, http.StatusUnprocessableEntity},
		{"bad date", `{"amount":"1","date":"14/03/2024","description":"x","category":"Food","type":"expense"}`, http.StatusUnprocessableEntity},
		{"category of other type", `{"amount":"1","description":"x","category":"Salary","type":"expense"}`, http.StatusUnprocessableEntity},
		{"blank description", `{"amount":"1","description":"  ","category":"Food","type":"expense"}`, http.StatusUnprocessableEntity},
	}
	s := newTestServer(t, Options{Ledger: ledger.New(nil, nil)})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, s, http.MethodPost, "/transactions", tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
			if body := decode[ErrorBody](t, rr); body.Error == "" {
				t.Fatal("missing error message")
			}
		})
	}
	if s.ledger.Len() != 0 {
		t.Fatalf("rejected requests must not be stored, got %d", s.ledger.Len())
	}
}

func TestListTransactions(t *testing.T) {
	tests := []struct {
		query string
		code  int
		count int
	}{
		{"", http.StatusOK, 4},
		{"?mode=monthly&date=2024-03-15", http.StatusOK, 3},
		{"?mode=monthly&date=2024-03-15&type=expense", http.StatusOK, 2},
		{"?type=income", http.StatusOK, 1},
		{"?mode=custom&start=2024-02-01&end=2024-03-01", http.StatusOK, 2},
		{"?mode=all", http.StatusOK, 4},
		{"?type=bogus", http.StatusBadRequest, 0},
		{"?mode=weekly", http.StatusBadRequest, 0},
		{"?date=yesterday", http.StatusBadRequest, 0},
	}
	s := newTestServer(t, Options{})
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := do(t, s, http.MethodGet, "/transactions"+tt.query, "")
			if rr.Code != tt.code {
				t.Fatalf("status=%d want %d", rr.Code, tt.code)
			}
			if tt.code != http.StatusOK {
				return
			}
			body := decode[struct {
				Transactions []TransactionView `json:"transactions"`
				Count        int               `json:"count"`
			}](t, rr)
			if body.Count != tt.count || len(body.Transactions) != tt.count {
				t.Fatalf("count=%d len=%d want %d", body.Count, len(body.Transactions), tt.count)
			}
		})
	}
}

func TestSummary(t *testing.T) {
	s := newTestServer(t, Options{})

	rr := do(t, s, http.MethodGet, "/analytics/summary", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	got := decode[SummaryView](t, rr)
	if got.Scope.Title != "March 2024" || got.Scope.Previous != "2024-02-15" || got.Scope.Next != "2024-04-15" {
		t.Fatalf("unexpected scope %+v", got.Scope)
	}
	if got.Income.Cents != 300000 || got.Expense.Cents != 16550 || got.Balance.Cents != 283450 {
		t.Fatalf("unexpected totals %+v %+v %+v", got.Income, got.Expense, got.Balance)
	}
	if got.TransactionCount != 3 || len(got.Categories) != 2 || got.Categories[0].Name != "Transport" {
		t.Fatalf("unexpected breakdown %+v", got.Categories)
	}
	// February lunch is outside the month but still counts for the ledger
	if got.LedgerBalance.Cents != 282450 {
		t.Fatalf("ledger balance = %d, want 282450", got.LedgerBalance.Cents)
	}

	// a write bumps the ledger version, so the cached summary is not reused
	do(t, s, http.MethodDelete, "/transactions/c", "")
	got = decode[SummaryView](t, do(t, s, http.MethodGet, "/analytics/summary", ""))
	if got.Expense.Cents != 4550 {
		t.Fatalf("summary not refreshed after delete, expense=%d", got.Expense.Cents)
	}
}

func TestCategoryBreakdownAndTrend(t *testing.T) {
	s := newTestServer(t, Options{})

	rr := do(t, s, http.MethodGet, "/analytics/categories?mode=yearly&date=2024-06-01", "")
	breakdown := decode[struct {
		Total      MoneyView      `json:"total"`
		Categories []CategoryView `json:"categories"`
	}](t, rr)
	if breakdown.Total.Cents != 17550 || breakdown.Categories[0].Name != "Transport" || breakdown.Categories[1].Amount.Cents != 5550 {
		t.Fatalf("unexpected breakdown %+v", breakdown)
	}

	rr = do(t, s, http.MethodGet, "/analytics/trend?mode=yearly&date=2024-06-01", "")
	trend := decode[struct {
		Buckets []BucketView `json:"buckets"`
	}](t, rr)
	if len(trend.Buckets) != 12 {
		t.Fatalf("expected 12 monthly buckets, got %d", len(trend.Buckets))
	}
	if trend.Buckets[1].Amount.Cents != 1000 || trend.Buckets[2].Amount.Cents != 16550 {
		t.Fatalf("unexpected bucket amounts feb=%d mar=%d", trend.Buckets[1].Amount.Cents, trend.Buckets[2].Amount.Cents)
	}

	rr = do(t, s, http.MethodGet, "/analytics/trend?date=2024-03-15", "")
	trend = decode[struct {
		Buckets []BucketView `json:"buckets"`
	}](t, rr)
	if len(trend.Buckets) != 31 {
		t.Fatalf("expected one bucket per day of March, got %d", len(trend.Buckets))
	}
}

func TestHistory(t *testing.T) {
	txs := append(seed(), core.Transaction{
		ID: "e", Amount: core.Money{Cents: 500}, Date: time.Date(2024, 3, 2, 18, 0, 0, 0, time.Local),
		Description: "Coffee", Category: "Food", Type: core.Expense,
	})
	s := newTestServer(t, Options{Ledger: ledger.New(nil, txs)})

	rr := do(t, s, http.MethodGet, "/history", "")
	body := decode[struct {
		Months []MonthView `json:"months"`
	}](t, rr)
	if len(body.Months) != 2 || body.Months[0].Title != "March 2024" || body.Months[1].Title != "February 2024" {
		t.Fatalf("unexpected months %+v", body.Months)
	}
	march := body.Months[0]
	if march.Expense.Cents != 17050 || len(march.Items) != 3 {
		t.Fatalf("unexpected March totals=%d items=%d", march.Expense.Cents, len(march.Items))
	}
	var group *GroupView
	for _, item := range march.Items {
		if item.Group != nil {
			group = item.Group
		}
	}
	if group == nil || len(group.Transactions) != 2 || group.Total.Cents != 5050 {
		t.Fatalf("expected the two March 2 expenses grouped, got %+v", group)
	}

	rr = do(t, s, http.MethodGet, "/history?mode=monthly&date=2024-02-01", "")
	body = decode[struct {
		Months []MonthView `json:"months"`
	}](t, rr)
	if len(body.Months) != 1 || body.Months[0].Month != 2 {
		t.Fatalf("scoped history should only hold February, got %+v", body.Months)
	}
}

func TestExport(t *testing.T) {
	s := newTestServer(t, Options{})

	tests := []struct {
		query       string
		code        int
		contentType string
		fileName    string
	}{
		{"", http.StatusOK, "text/csv; charset=utf-8", "March_2024_2024-03-15.csv"},
		{"?format=xlsx&mode=yearly", http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "2024_2024-03-15.xlsx"},
		{"?format=html&mode=all", http.StatusOK, "text/html; charset=utf-8", "All_time_2024-03-15.html"},
		{"?format=pdf", http.StatusBadRequest, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := do(t, s, http.MethodGet, "/export"+tt.query, "")
			if rr.Code != tt.code {
				t.Fatalf("status=%d want %d", rr.Code, tt.code)
			}
			if tt.code != http.StatusOK {
				return
			}
			if got := rr.Header().Get("Content-Type"); got != tt.contentType {
				t.Errorf("Content-Type = %q", got)
			}
			if got := rr.Header().Get("Content-Disposition"); !strings.Contains(got, tt.fileName) {
				t.Errorf("Content-Disposition = %q, want file %s", got, tt.fileName)
			}
			if rr.Body.Len() == 0 {
				t.Error("empty export body")
			}
		})
	}
	if got := s.appMetrics.exports.Load(); got != 3 {
		t.Fatalf("exports = %d, want 3", got)
	}
}

func TestSyncEndpoints(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		s := newTestServer(t, Options{})
		for _, path := range []string{"/sync", "/sync/pull"} {
			if rr := do(t, s, http.MethodPost, path, ""); rr.Code != http.StatusServiceUnavailable {
				t.Fatalf("%s status=%d", path, rr.Code)
			}
		}
	})

	t.Run("push", func(t *testing.T) {
		syncer := &fakeSyncer{result: worker.SyncResult{Status: worker.StatusSuccess, SyncedCount: 4}}
		s := newTestServer(t, Options{Syncer: syncer})
		rr := do(t, s, http.MethodPost, "/sync", "")
		if rr.Code != http.StatusOK || syncer.pushed != 4 {
			t.Fatalf("status=%d pushed=%d", rr.Code, syncer.pushed)
		}
		if got := decode[worker.SyncResult](t, rr); got.SyncedCount != 4 {
			t.Fatalf("unexpected result %+v", got)
		}

		syncer.result = worker.SyncResult{Status: worker.StatusError, ErrorCount: 4}
		if rr := do(t, s, http.MethodPost, "/sync", ""); rr.Code != http.StatusBadGateway {
			t.Fatalf("failed sync status=%d", rr.Code)
		}
	})

	t.Run("pull", func(t *testing.T) {
		syncer := &fakeSyncer{pulled: seed()[:2]}
		s := newTestServer(t, Options{Syncer: syncer})
		rr := do(t, s, http.MethodPost, "/sync/pull", "")
		if rr.Code != http.StatusOK || s.ledger.Len() != 2 {
			t.Fatalf("status=%d ledger=%d", rr.Code, s.ledger.Len())
		}

		syncer.err = errors.New("sheet unavailable")
		if rr := do(t, s, http.MethodPost, "/sync/pull", ""); rr.Code != http.StatusBadGateway {
			t.Fatalf("failed pull status=%d", rr.Code)
		}
		if s.ledger.Len() != 2 {
			t.Fatal("failed pull must leave the ledger untouched")
		}
	})
}

func TestWritesAreRateLimited(t *testing.T) {
	s := newTestServer(t, Options{RateLimit: ratelimit.Config{RequestsPerMinute: 1}})

	if rr := do(t, s, http.MethodDelete, "/transactions/missing", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("first write status=%d", rr.Code)
	}
	rr := do(t, s, http.MethodDelete, "/transactions/missing", "")
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("second write status=%d retry=%q", rr.Code, rr.Header().Get("Retry-After"))
	}
	for range 3 {
		if rr := do(t, s, http.MethodGet, "/transactions", ""); rr.Code != http.StatusOK {
			t.Fatalf("reads must not be limited, got %d", rr.Code)
		}
	}
}

func TestTrustedProxiesKeyRateLimitByForwardedClient(t *testing.T) {
	write := func(s *Server, client string) int {
		req := httptest.NewRequest(http.MethodDelete, "/transactions/missing", nil)
		req.RemoteAddr = "192.0.2.1:4000"
		req.Header.Set("X-Forwarded-For", client)
		rr := httptest.NewRecorder()
		s.Handler.ServeHTTP(rr, req)
		return rr.Code
	}
	limit := ratelimit.Config{RequestsPerMinute: 1}

	behindProxy := newTestServer(t, Options{RateLimit: limit, TrustedProxies: []string{"192.0.2.0/24", "not-a-cidr"}})
	for _, client := range []string{"198.51.100.7", "198.51.100.8"} {
		if code := write(behindProxy, client); code != http.StatusNotFound {
			t.Fatalf("client %s behind a trusted proxy got %d", client, code)
		}
	}

	direct := newTestServer(t, Options{RateLimit: limit})
	write(direct, "198.51.100.7")
	if code := write(direct, "198.51.100.8"); code != http.StatusTooManyRequests {
		t.Fatalf("untrusted peer must not be split by X-Forwarded-For, got %d", code)
	}
}

func TestClearTransactions(t *testing.T) {
	s := newTestServer(t, Options{})

	if rr := do(t, s, http.MethodDelete, "/transactions", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("clear status=%d", rr.Code)
	}
	body := decode[struct {
		Count int `json:"count"`
	}](t, do(t, s, http.MethodGet, "/transactions", ""))
	if body.Count != 0 {
		t.Fatalf("expected empty ledger, got %d", body.Count)
	}
	if got := decode[SummaryView](t, do(t, s, http.MethodGet, "/analytics/summary", "")); got.LedgerBalance.Cents != 0 {
		t.Fatalf("ledger balance after clear = %d", got.LedgerBalance.Cents)
	}
}

func TestMetricsAndCategories(t *testing.T) {
	s := newTestServer(t, Options{})
	do(t, s, http.MethodPost, "/transactions", `{"amount":"5","description":"Bus","category":"Transport","type":"expense"}`)

	body := do(t, s, http.MethodGet, "/metrics", "").Body.String()
	for _, want := range []string{"transactions_stored 5", "transactions_created_total 1", "# TYPE http_requests_total counter"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}

	cats := decode[map[string][]string](t, do(t, s, http.MethodGet, "/categories", ""))
	if len(cats["income"]) != len(core.IncomeCategories) || len(cats["expense"]) != len(core.ExpenseCategories) {
		t.Fatalf("unexpected categories %v", cats)
	}
}
