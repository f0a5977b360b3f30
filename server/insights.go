package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/fieldback/audit"
	"github.com/hazyhaar/fieldback/auth"
	"github.com/hazyhaar/fieldback/idgen"
	"github.com/hazyhaar/fieldback/insight"
)

var newInsightID = idgen.Prefixed("ins_", idgen.Default)

func (s *Server) handleCreateInsight(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductLineID string  `json:"productLineId"`
		TerritoryID   *string `json:"territoryId"`
		Type          string  `json:"type"`
		Text          string  `json:"text"`
		AudioURL      string  `json:"audioUrl"`
		PhotoURL      string  `json:"photoUrl"`
		OCRText       *string `json:"ocrText"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.ProductLineID == "" {
		writeError(w, http.StatusBadRequest, "productLineId required")
		return
	}
	if body.Type != "" && !insight.ValidKind(body.Type) {
		writeError(w, http.StatusBadRequest, "unknown insight type")
		return
	}

	ins := &insight.RawInsight{
		ID:            newInsightID(),
		ProductLineID: body.ProductLineID,
		TerritoryID:   body.TerritoryID,
		Kind:          body.Type,
		Text:          body.Text,
		AudioURL:      body.AudioURL,
		PhotoURL:      body.PhotoURL,
		OCRText:       body.OCRText,
	}
	if tid := tenantScope(r); tid != "" {
		ins.TenantID = &tid
	}

	if err := s.cfg.Insights.Insert(r.Context(), ins); err != nil {
		s.cfg.Logger.Error("insert insight", "error", err)
		writeError(w, http.StatusInternalServerError, "insert failed")
		return
	}

	claims := auth.GetClaims(r.Context())
	opts := []audit.Option{audit.OnEntity(ins.ID), audit.ByActor(claims.Subject)}
	if ins.TenantID != nil {
		opts = append(opts, audit.ForTenant(*ins.TenantID))
	}
	s.cfg.Events.Record(audit.EventInsightCreated, map[string]string{"kind": ins.Kind}, opts...)

	// The client never waits for enrichment; it polls the record later.
	s.cfg.Queue.Enqueue(ins.ID)
	writeJSON(w, http.StatusCreated, map[string]string{"id": ins.ID, "status": "queued"})
}

func (s *Server) handleListInsights(w http.ResponseWriter, r *http.Request) {
	f := insight.Filter{
		TenantID:      tenantScope(r),
		ProductLineID: r.URL.Query().Get("productLineId"),
		Kind:          r.URL.Query().Get("type"),
		Search:        r.URL.Query().Get("q"),
		Limit:         queryInt(r, "limit", 50),
	}
	items, err := s.cfg.Insights.List(r.Context(), f)
	if err != nil {
		s.cfg.Logger.Error("list insights", "error", err)
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if items == nil {
		items = []*insight.RawInsight{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetInsight(w http.ResponseWriter, r *http.Request) {
	ins, err := s.cfg.Insights.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, insight.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get failed")
		return
	}
	// Hide other tenants' records from tenant-scoped tokens.
	if tid := tenantScope(r); tid != "" && (ins.TenantID == nil || *ins.TenantID != tid) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, ins)
}
