package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"moneybook/internal/core"
	applog "moneybook/internal/log"
	"moneybook/internal/worker"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Payload(map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady runs every readiness check under one timeout and reports
// each result.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{}
	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", "check", c.Name, applog.FieldError, err)
			checks[c.Name] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}
	checks["ledger"] = "ok"
	if s.ledger == nil {
		checks["ledger"] = "not_configured"
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	NewJSONResponse().Status(code).Payload(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_response_time_avg_microseconds", "gauge", "Average response time", traceMetrics.AverageResponseTime)
	metric("transactions_created_total", "counter", "Transactions created through the API", s.appMetrics.transactionsCreated.Load())
	metric("transactions_stored", "gauge", "Transactions currently in the ledger", s.ledger.Len())
	metric("exports_total", "counter", "Reports exported", s.appMetrics.exports.Load())
	metric("sync_runs_total", "counter", "Remote sync runs started through the API", s.appMetrics.syncRuns.Load())
	metric("summary_cache_entries", "gauge", "Cached analytics summaries", s.summaries.Size())
	metric("rate_limit_rejections_total", "counter", "Requests rejected by the rate limiter", rateLimitMetrics.Rejected)
	metric("rate_limit_clients", "gauge", "Clients tracked by the rate limiter", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.appMetrics.started).Seconds()))
}

// handleSyncPush uploads the whole ledger to the remote mirror. A run that
// synced nothing answers 502 with the result body.
func (s *Server) handleSyncPush(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		ServiceUnavailableError("Remote sync is not configured").Write(w)
		return
	}
	s.appMetrics.syncRuns.Add(1)

	res := s.syncer.SyncAll(r.Context(), s.ledger.List())
	code := http.StatusOK
	if res.Status == worker.StatusError {
		code = http.StatusBadGateway
	}
	NewJSONResponse().Status(code).Payload(res).Write(w)
}

// handleSyncPull replaces the ledger with the remote mirror contents.
func (s *Server) handleSyncPull(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		ServiceUnavailableError("Remote sync is not configured").Write(w)
		return
	}
	s.appMetrics.syncRuns.Add(1)

	n, err := s.syncer.Pull(r.Context(), s.ledger)
	if err != nil {
		s.events.LogError(r.Context(), "Pull from remote failed", err, applog.ComponentWorker, applog.OpSync, nil)
		ErrorResponse(http.StatusBadGateway, "sync_failed", "Could not pull transactions from the remote mirror").Write(w)
		return
	}
	NewJSONResponse().Payload(map[string]any{"status": worker.StatusSuccess, "pulledCount": n}).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Payload(map[string][]string{
		string(core.Income):  core.Income.Categories(),
		string(core.Expense): core.Expense.Categories(),
	}).Write(w)
}
