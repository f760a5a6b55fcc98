package http

import (
	"errors"
	"net/http"
	"strings"

	"moneybook/internal/analytics"
	"moneybook/internal/core"
	"moneybook/internal/ledger"
	applog "moneybook/internal/log"
)

// handleListTransactions returns the ledger newest-inserted first. Any of
// mode, date, start or end narrows it to a scope, and type to one kind.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
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
	if v := strings.TrimSpace(q.Get("type")); v != "" {
		typ, err := core.ParseTransactionType(v)
		if err != nil {
			BadRequestError("type must be income or expense").Write(w)
			return
		}
		txs = analytics.FilterByType(txs, typ)
	}

	NewJSONResponse().Payload(map[string]any{
		"transactions": newTransactionViews(txs, s.lang),
		"count":        len(txs),
	}).Write(w)
}

func hasScopeParams(get func(string) string) bool {
	for _, k := range []string{"mode", "date", "start", "end"} {
		if get(k) != "" {
			return true
		}
	}
	return false
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.ledger.Get(r.PathValue("id"))
	if !ok {
		NotFoundError("Transaction not found").Write(w)
		return
	}
	NewJSONResponse().Payload(newTransactionView(tx, s.lang)).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	req, err := decodeTransactionRequest(w, r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	draft, err := req.Draft()
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	tx, err := s.ledger.Add(r.Context(), draft)
	if err != nil {
		s.writeLedgerError(w, r, err, applog.OpCreate)
		return
	}
	s.appMetrics.transactionsCreated.Add(1)
	s.events.LogTransactionSaved(r.Context(), applog.OpCreate, tx)

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/transactions/"+tx.ID).
		Payload(newTransactionView(tx, s.lang)).
		Write(w)
}

// handleUpdateTransaction replaces every mutable field. Changing the type
// does not re-check the category against the new type's list.
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	current, ok := s.ledger.Get(r.PathValue("id"))
	if !ok {
		NotFoundError("Transaction not found").Write(w)
		return
	}
	req, err := decodeTransactionRequest(w, r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	next, err := req.Apply(current)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	tx, err := s.ledger.Update(r.Context(), next)
	if err != nil {
		s.writeLedgerError(w, r, err, applog.OpUpdate)
		return
	}
	s.events.LogTransactionSaved(r.Context(), applog.OpUpdate, tx)
	NewJSONResponse().Payload(newTransactionView(tx, s.lang)).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.ledger.Delete(r.Context(), id); err != nil {
		s.writeLedgerError(w, r, err, applog.OpDelete)
		return
	}
	s.logger.InfoContext(r.Context(), "Transaction deleted", applog.FieldTransactionID, id)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleClearTransactions empties the ledger. The mirror copies are removed
// by the sync worker.
func (s *Server) handleClearTransactions(w http.ResponseWriter, r *http.Request) {
	n := s.ledger.Len()
	if err := s.ledger.Clear(r.Context()); err != nil {
		s.writeLedgerError(w, r, err, applog.OpDelete)
		return
	}
	s.logger.InfoContext(r.Context(), "Transactions cleared", "count", n)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// writeLedgerError maps validation failures to 422, unknown IDs to 404 and
// everything else to 500.
func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case core.IsValidationError(err):
		UnprocessableEntityError(err.Error()).Write(w)
	case errors.Is(err, ledger.ErrNotFound):
		NotFoundError("Transaction not found").Write(w)
	default:
		s.events.LogError(r.Context(), "Ledger write failed", err, applog.ComponentLedger, op, nil)
		InternalServerError("Could not save the change").Write(w)
	}
}
