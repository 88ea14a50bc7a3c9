package http

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/edupredict/risk-monitor/config"
	"github.com/edupredict/risk-monitor/internal/application/report"
)

type reportAccepted struct {
	RequestID string      `json:"request_id"`
	Kind      report.Kind `json:"kind"`
}

// reportKind parses the {kind} path value, writing the error response itself.
func (s *Server) reportKind(w http.ResponseWriter, r *http.Request) (report.Kind, bool) {
	if !s.deps.Features.IsEnabled(config.FeatureReportExport) {
		writeErrorCode(w, r, http.StatusForbidden, CodeFeatureDisabled, "Report export is disabled", nil)
		return "", false
	}
	kind, err := report.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, r, err)
		return "", false
	}
	return kind, true
}

// handleRequestReport handles POST /api/v1/reports/{kind}. It answers 202
// with the request ID. With ?wait=true it blocks until the report settles and
// returns the file itself.
func (s *Server) handleRequestReport(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.reportKind(w, r)
	if !ok {
		return
	}

	h, err := s.deps.Reports.Request(r.Context(), kind)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); !wait {
		w.Header().Set("Location", "/api/v1/reports/"+kind.String())
		writeJSON(w, r, http.StatusAccepted, reportAccepted{RequestID: h.ID(), Kind: kind})
		return
	}

	art, err := h.Wait(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArtifact(w, art)
}

func (s *Server) handleReportStatus(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.reportKind(w, r)
	if !ok {
		return
	}
	st, err := s.deps.Reports.Status(kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

func (s *Server) handleCancelReport(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.reportKind(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"cancelled": s.deps.Reports.Cancel(kind)})
}

// handleDownloadReport handles GET /api/v1/reports/{kind}/download?request_id=
func (s *Server) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.reportKind(w, r)
	if !ok {
		return
	}
	art, err := s.deps.Reports.Artifact(kind, r.URL.Query().Get("request_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArtifact(w, art)
}

func writeArtifact(w http.ResponseWriter, art *report.Artifact) {
	contentType := art.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": art.Filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(art.Data)
}
