package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/jobscout/internal/pipeline"
	"github.com/nextlevelbuilder/jobscout/pkg/protocol"
)

// handleAnalyze serves GET /v1/analyze?url=<profile>. The response is a
// ResponseFrame with the report, or the bare markdown when format=markdown
// or the client accepts text/markdown.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	profileURL, err := pipeline.NormalizeProfileURL(r.URL.Query().Get("url"))
	if err != nil {
		writeError(w, http.StatusBadRequest, &protocol.ErrorShape{Code: protocol.ErrInvalidRequest, Message: err.Error()})
		return
	}

	report, cached, err := s.analyze(profileURL, nil)
	if err != nil {
		status, shape := errorShape(err)
		slog.Warn("analyze failed", "url", profileURL, "status", status, "error", err)
		writeError(w, status, shape)
		return
	}

	if wantsMarkdown(r) {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("X-Run-Id", report.RunID)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(report.Markdown))
		return
	}

	resp := protocol.NewOKResponse(report.RunID, report)
	resp.Cached = cached
	writeJSON(w, http.StatusOK, resp)
}

func wantsMarkdown(r *http.Request) bool {
	if f := r.URL.Query().Get("format"); f != "" {
		return f == "markdown" || f == "md"
	}
	return strings.Contains(r.Header.Get("Accept"), "text/markdown")
}
