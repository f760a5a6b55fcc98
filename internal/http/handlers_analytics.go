package http

import (
	"net/http"

	"moneybook/internal/analytics"
	applog "moneybook/internal/log"
)

// summaryFor resolves the scope from the query and returns the cached
// summary for it. It writes a 400 and reports false on a bad query.
func (s *Server) summaryFor(w http.ResponseWriter, r *http.Request) (analytics.Summary, bool) {
	scope, err := ParseScope(r.URL.Query(), s.now())
	if err != nil {
		applog.FromContext(r.Context()).DebugContext(r.Context(), "Rejected scope query",
			applog.FieldQuery, r.URL.RawQuery, applog.FieldError, err)
		BadRequestError(err.Error()).Write(w)
		return analytics.Summary{}, false
	}
	return s.summaries.Get(scope), true
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, ok := s.summaryFor(w, r)
	if !ok {
		return
	}
	view := newSummaryView(summary, s.lang)
	view.LedgerBalance = newMoneyView(analytics.Balance(s.ledger.List()), s.lang)
	NewJSONResponse().Payload(view).Write(w)
}

func (s *Server) handleCategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	summary, ok := s.summaryFor(w, r)
	if !ok {
		return
	}
	NewJSONResponse().Payload(map[string]any{
		"scope":      newScopeView(summary.Scope),
		"total":      newMoneyView(summary.Totals.Expense, s.lang),
		"categories": newCategoryViews(summary, s.lang),
	}).Write(w)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	summary, ok := s.summaryFor(w, r)
	if !ok {
		return
	}
	NewJSONResponse().Payload(map[string]any{
		"scope":   newScopeView(summary.Scope),
		"buckets": newBucketViews(summary.Trend, s.lang),
	}).Write(w)
}

// handleHistory groups the ledger by month for display. Without scope
// parameters it covers every transaction.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	txs := s.ledger.List()
	if hasScopeParams(q.Get) {
		scope, err := ParseScope(q, s.now())
		if err != nil {
			BadRequestError(err.Error()).Write(w)
			return
		}
		txs = analytics.FilterByScope(txs, scope)
	}
	NewJSONResponse().Payload(map[string]any{
		"months": newMonthViews(analytics.GroupForDisplay(txs), s.lang),
	}).Write(w)
}
