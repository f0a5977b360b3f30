package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/fieldback/audit"
	"github.com/hazyhaar/fieldback/auth"
	"github.com/hazyhaar/fieldback/catalog"
	"github.com/hazyhaar/fieldback/qa"
	"github.com/hazyhaar/fieldback/report"
)

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	items, err := s.cfg.Reports.List(r.Context(),
		tenantScope(r), r.URL.Query().Get("productLineId"), queryInt(r, "limit", 0))
	if err != nil {
		s.cfg.Logger.Error("list reports", "error", err)
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if items == nil {
		items = []*report.WeeklyReport{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.cfg.Reports.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, report.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get failed")
		return
	}
	if tid := tenantScope(r); tid != "" && (rep.TenantID == nil || *rep.TenantID != tid) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleAnalyticsWeekly(w http.ResponseWriter, r *http.Request) {
	tid := tenantScope(r)
	if tid == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"kpi":   map[string]int{"reports": 0, "contributors": 0},
			"trend": []any{},
		})
		return
	}
	items, err := s.cfg.Reports.List(r.Context(), tid, r.URL.Query().Get("productLineId"), 8)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "analytics failed")
		return
	}

	trend := make([]map[string]any, 0, len(items))
	contributors := 0
	for _, rep := range items {
		trend = append(trend, map[string]any{"weekId": rep.WeekID, "count": 1})
		contributors += len(rep.Contributors)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kpi":   map[string]int{"reports": len(items), "contributors": contributors},
		"trend": trend,
	})
}

func (s *Server) handleAnalyticsHeatmap(w http.ResponseWriter, r *http.Request) {
	tid := tenantScope(r)
	if tid == "" {
		writeJSON(w, http.StatusOK, map[string]any{"bins": []any{}})
		return
	}
	items, err := s.cfg.Reports.List(r.Context(), tid, r.URL.Query().Get("productLineId"), 1)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "analytics failed")
		return
	}
	bins := []report.HeatBin{}
	if len(items) > 0 && items[0].Heatmap != nil {
		bins = items[0].Heatmap
	}
	writeJSON(w, http.StatusOK, map[string]any{"bins": bins})
}

func (s *Server) handleQA(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query         string `json:"query"`
		ProductLineID string `json:"productLineId"`
		IncludeCI     bool   `json:"includeCI"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ans, err := s.cfg.QA.Ask(r.Context(), qa.Question{
		Query:         body.Query,
		TenantID:      tenantScope(r),
		ProductLineID: body.ProductLineID,
		IncludeCI:     body.IncludeCI,
	})
	if errors.Is(err, qa.ErrEmptyQuery) {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}
	if err != nil {
		s.cfg.Logger.Error("qa", "error", err)
		writeError(w, http.StatusInternalServerError, "qa failed")
		return
	}

	claims := auth.GetClaims(r.Context())
	opts := []audit.Option{audit.ByActor(claims.Subject)}
	if tid := tenantScope(r); tid != "" {
		opts = append(opts, audit.ForTenant(tid))
	}
	s.cfg.Events.Record(audit.EventQuestionAsked,
		map[string]any{"query": body.Query, "citations": len(ans.Citations)}, opts...)

	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) handleListProductLines(w http.ResponseWriter, r *http.Request) {
	tid := tenantScope(r)
	if tid == "" {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	items, err := s.cfg.Catalog.ListProductLines(r.Context(), tid, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if items == nil {
		items = []*catalog.ProductLine{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProcessingHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"pipeline": "ok",
		"queued":   s.cfg.Queue.Len(),
	})
}
