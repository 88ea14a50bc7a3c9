package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/edupredict/risk-monitor/config"
	"github.com/edupredict/risk-monitor/internal/application/command"
	"github.com/edupredict/risk-monitor/internal/application/eventhandler"
	"github.com/edupredict/risk-monitor/internal/application/query"
	"github.com/edupredict/risk-monitor/internal/domain/risk"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	if !status.Ready {
		writeErrorCode(w, r, http.StatusServiceUnavailable, CodeNotReady, status.Message, status.Checks)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": s.Uptime().Round(time.Second).String(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS & RISK
// ══════════════════════════════════════════════════════════════════════════════

// handleListStudents handles GET /api/v1/students?tier=
func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.ListStudents.Handle(r.Context(), query.ListStudentsQuery{Tier: r.URL.Query().Get("tier")})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, res.Students, &ResponseMeta{TotalCount: res.Total, SnapshotVersion: res.Version})
}

// handleGetStudent handles GET /api/v1/students/{id}
func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	detail, err := s.deps.GetStudent.Handle(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, detail)
}

// handleStudentInterventions handles GET /api/v1/students/{id}/interventions
func (s *Server) handleStudentInterventions(w http.ResponseWriter, r *http.Request) {
	views, err := s.deps.ListInterventions.ForStudent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, views, &ResponseMeta{TotalCount: len(views)})
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.deps.DrillDown.Distribution(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, buckets)
}

// handleDrillDown handles GET /api/v1/risk/drilldown?label=High%20Risk
func (s *Server) handleDrillDown(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.DrillDown.Resolve(r.Context(), r.URL.Query().Get("label"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, res, &ResponseMeta{TotalCount: len(res.Students), SnapshotVersion: res.Version})
}

func (s *Server) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Dashboard.Handle(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, summary, &ResponseMeta{SnapshotVersion: summary.Version})
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.AdminStats.Handle(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// handleActivity handles GET /api/v1/activity?limit=N.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, invalidInput("limit must be a positive integer"))
			return
		}
		limit = n
	}

	entries := []eventhandler.ActivityEntry{}
	if s.deps.Activity != nil {
		entries = s.deps.Activity.Recent(limit)
	}
	writeJSONWithMeta(w, r, http.StatusOK, entries, &ResponseMeta{TotalCount: len(entries)})
}

// ══════════════════════════════════════════════════════════════════════════════
// SETTINGS & REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetThresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.deps.Policies.Policy())
}

// handleUpdateThresholds handles PUT /api/v1/settings/thresholds. Fields
// missing from the body keep their current value.
func (s *Server) handleUpdateThresholds(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Features.IsEnabled(config.FeatureThresholdEditing) {
		writeErrorCode(w, r, http.StatusForbidden, CodeFeatureDisabled, "Threshold editing is disabled", nil)
		return
	}

	t := s.deps.Policies.Policy().Thresholds
	if err := decodeJSON(r, &t); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.UpdateThresholds.Handle(r.Context(), command.UpdateThresholdsCommand{
		Thresholds: t,
		UpdatedBy:  staffID(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleRefreshRegistry handles POST /api/v1/registry/refresh.
func (s *Server) handleRefreshRegistry(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.RefreshRegistry.Handle(r.Context(), command.RefreshRegistryCommand{
		Broadcast: s.deps.Features.IsEnabled(config.FeatureRefreshBroadcast),
		Trigger:   "api",
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// staffID identifies the caller in audit fields.
func staffID(r *http.Request) string {
	if id := r.Header.Get("X-Staff-ID"); id != "" {
		return id
	}
	return "staff"
}

var _ PolicyReader = (*risk.PolicyStore)(nil)
