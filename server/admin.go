package server

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/fieldback/audit"
	"github.com/hazyhaar/fieldback/auth"
	"github.com/hazyhaar/fieldback/catalog"
	"github.com/hazyhaar/fieldback/idgen"
	"github.com/hazyhaar/fieldback/report"
)

var (
	newTenantID      = idgen.Prefixed("ten_", idgen.Default)
	newUserID        = idgen.Prefixed("usr_", idgen.Default)
	newRoleID        = idgen.Prefixed("rol_", idgen.Default)
	newProductLineID = idgen.Prefixed("pl_", idgen.Default)
	newAccountID     = idgen.Prefixed("acc_", idgen.Default)
)

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	items, err := s.cfg.Catalog.ListTenants(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if items == nil {
		items = []*catalog.Tenant{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		CompanyCode string `json:"companyCode"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	t := &catalog.Tenant{ID: newTenantID(), Name: body.Name, CompanyCode: body.CompanyCode}
	if err := s.cfg.Catalog.InsertTenant(r.Context(), t); err != nil {
		s.cfg.Logger.Error("create tenant", "error", err)
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		CompanyCode string `json:"companyCode"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	t := &catalog.Tenant{ID: chi.URLParam(r, "id"), Name: body.Name, CompanyCode: body.CompanyCode}
	if err := s.cfg.Catalog.UpdateTenant(r.Context(), t); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Catalog.DeleteTenant(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		FullName string `json:"fullName"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.ID == "" {
		body.ID = newUserID()
	}
	u := &catalog.User{ID: body.ID, Email: body.Email, FullName: body.FullName}
	if err := s.cfg.Catalog.UpsertUser(r.Context(), u); err != nil {
		s.cfg.Logger.Error("create user", "error", err)
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": u.ID})
}

// handleAssignRole grants a user a role inside a tenant, optionally
// creating (or rotating) a login account in the same request.
func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	var body struct {
		TenantID       string   `json:"tenantId"`
		Role           string   `json:"role"`
		ProductLineIDs []string `json:"productLineIds"`
		Username       string   `json:"username"`
		Password       string   `json:"password"`
	}
	if err := decodeJSON(r, &body); err != nil || body.TenantID == "" || body.Role == "" {
		writeError(w, http.StatusBadRequest, "tenantId and role required")
		return
	}
	if !catalog.ValidRole(body.Role) {
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}

	role := &catalog.UserTenantRole{
		ID:             newRoleID(),
		UserID:         userID,
		TenantID:       body.TenantID,
		Role:           body.Role,
		ProductLineIDs: body.ProductLineIDs,
	}
	if err := s.cfg.Catalog.AssignRole(r.Context(), role); err != nil {
		s.cfg.Logger.Error("assign role", "error", err)
		writeError(w, http.StatusInternalServerError, "assign failed")
		return
	}

	if body.Username != "" && body.Password != "" {
		hash, err := auth.HashPassword(body.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "credential failed")
			return
		}
		if acc, err := s.cfg.Catalog.GetTenantAccount(r.Context(), body.TenantID, body.Username); err == nil {
			if err := s.cfg.Catalog.SetPassword(r.Context(), acc.ID, hash); err != nil {
				writeError(w, http.StatusInternalServerError, "credential failed")
				return
			}
		} else {
			acc := &catalog.LoginAccount{
				ID:           newAccountID(),
				Username:     body.Username,
				PasswordHash: hash,
				TenantID:     &body.TenantID,
				UserID:       &userID,
				Role:         body.Role,
			}
			if err := s.cfg.Catalog.InsertLoginAccount(r.Context(), acc); err != nil {
				s.cfg.Logger.Error("create account", "error", err)
				writeError(w, http.StatusInternalServerError, "credential failed")
				return
			}
		}
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": role.ID})
}

func (s *Server) handleAdminListProductLines(w http.ResponseWriter, r *http.Request) {
	items, err := s.cfg.Catalog.ListProductLines(r.Context(), chi.URLParam(r, "id"), false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if items == nil {
		items = []*catalog.ProductLine{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateProductLine(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	pl := &catalog.ProductLine{
		ID:       newProductLineID(),
		TenantID: chi.URLParam(r, "id"),
		Name:     body.Name,
		Active:   true,
	}
	if err := s.cfg.Catalog.InsertProductLine(r.Context(), pl); err != nil {
		s.cfg.Logger.Error("create product line", "error", err)
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	writeJSON(w, http.StatusCreated, pl)
}

func (s *Server) handleGenerateReports(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TenantID      string `json:"tenantId"`
		ProductLineID string `json:"productLineId"`
		WeekID        string `json:"weekId"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.WeekID == "" {
		body.WeekID = report.WeekID(time.Now())
	}

	// Without an explicit target, run the full weekly sweep.
	if body.TenantID == "" || body.ProductLineID == "" {
		n, err := s.cfg.Generator.GenerateAll(r.Context(), body.WeekID)
		if err != nil {
			s.cfg.Logger.Error("generate all reports", "error", err)
			writeError(w, http.StatusInternalServerError, "generation failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "weekId": body.WeekID, "generated": n})
		return
	}

	tid := body.TenantID
	rep, err := s.cfg.Generator.Generate(r.Context(), &tid, body.ProductLineID, body.WeekID)
	if err != nil {
		s.cfg.Logger.Error("generate report", "error", err)
		writeError(w, http.StatusInternalServerError, "generation failed")
		return
	}
	proof := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", body.TenantID, body.ProductLineID, body.WeekID)))
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"weekId": body.WeekID,
		"id":     rep.ID,
		"proof":  hex.EncodeToString(proof[:]),
	})
}

func (s *Server) handlePurgeEphemeral(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Before string `json:"before"` // YYYY-MM-DD
	}
	if err := decodeJSON(r, &body); err != nil || body.Before == "" {
		writeError(w, http.StatusBadRequest, "before required (YYYY-MM-DD)")
		return
	}
	cutoff, err := time.Parse("2006-01-02", body.Before)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid before date")
		return
	}

	deleted, err := s.cfg.Insights.PurgeBefore(r.Context(), cutoff.UnixMilli())
	if err != nil {
		s.cfg.Logger.Error("purge", "error", err)
		writeError(w, http.StatusInternalServerError, "purge failed")
		return
	}

	claims := auth.GetClaims(r.Context())
	s.cfg.Events.Record(audit.EventRetentionPurged,
		map[string]any{"before": body.Before, "deleted": deleted}, audit.ByActor(claims.Subject))

	proof := sha256.Sum256([]byte(fmt.Sprintf("purge:%s:%d", body.Before, deleted)))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"deleted": deleted,
		"proof":   hex.EncodeToString(proof[:]),
	})
}
