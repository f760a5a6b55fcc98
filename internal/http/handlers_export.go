package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	applog "moneybook/internal/log"
	"moneybook/internal/report"
)

// handleExport renders the summary for the requested scope as a download.
// The file is built in memory so a render error can still become a 500.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f := report.CSV
	if v := r.URL.Query().Get("format"); v != "" {
		parsed, err := report.ParseFormat(v)
		if err != nil {
			BadRequestError(err.Error()).Write(w)
			return
		}
		f = parsed
	}

	summary, ok := s.summaryFor(w, r)
	if !ok {
		return
	}

	now := s.now()
	var buf bytes.Buffer
	if err := report.Write(&buf, f, report.Build(summary, s.lang, now)); err != nil {
		s.events.LogError(r.Context(), "Export failed", err, applog.ComponentExport, applog.OpExport, nil)
		InternalServerError("Could not build the export").Write(w)
		return
	}
	s.appMetrics.exports.Add(1)
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Report exported",
		applog.FieldFormat, string(f),
		applog.FieldScopeMode, string(summary.Scope.Mode),
		"rows", len(summary.Transactions))

	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName(summary.Title, now, f)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
