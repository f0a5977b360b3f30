package server

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/hazyhaar/fieldback/audit"
	"github.com/hazyhaar/fieldback/auth"
	"github.com/hazyhaar/fieldback/catalog"
	"github.com/hazyhaar/fieldback/mail"
)

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

func (s *Server) issueToken(w http.ResponseWriter, sub, role, tenantID string) {
	token, err := auth.IssueToken(s.cfg.JWTSecret, sub, role, tenantID, s.cfg.JWTTTL)
	if err != nil {
		s.cfg.Logger.Error("issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "token issuance failed")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token})
}

func (s *Server) handleLandlordLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}

	// Env-seeded super admin first, then landlord accounts.
	if s.cfg.SuperAdminPassword != "" &&
		subtle.ConstantTimeCompare([]byte(body.Username), []byte(s.cfg.SuperAdminUsername)) == 1 &&
		subtle.ConstantTimeCompare([]byte(body.Password), []byte(s.cfg.SuperAdminPassword)) == 1 {
		s.cfg.Events.Record(audit.EventLogin, map[string]string{"surface": "landlord"},
			audit.ByActor(s.cfg.SuperAdminUserID))
		s.issueToken(w, s.cfg.SuperAdminUserID, catalog.RoleSuperAdmin, "")
		return
	}

	acc, err := s.cfg.Catalog.GetLandlordAccount(r.Context(), body.Username)
	if err != nil || !auth.VerifyPassword(acc.PasswordHash, body.Password) {
		s.cfg.Events.Record(audit.EventLogin, map[string]string{"surface": "landlord", "username": body.Username},
			audit.Failed(errors.New("invalid credentials")))
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s.cfg.Events.Record(audit.EventLogin, map[string]string{"surface": "landlord"}, audit.ByActor(acc.Subject()))
	s.issueToken(w, acc.Subject(), acc.Role, "")
}

// landingAccount resolves companyCode+username to the tenant and account,
// shared by the three landing endpoints.
func (s *Server) landingAccount(w http.ResponseWriter, r *http.Request, companyCode, username string) (*catalog.Tenant, *catalog.LoginAccount, bool) {
	tenant, err := s.cfg.Catalog.GetTenantByCode(r.Context(), companyCode)
	if err != nil {
		writeError(w, http.StatusNotFound, "company not found")
		return nil, nil, false
	}
	acc, err := s.cfg.Catalog.GetTenantAccount(r.Context(), tenant.ID, username)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return nil, nil, false
	}
	return tenant, acc, true
}

func (s *Server) handleLandingLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CompanyCode string `json:"companyCode"`
		Username    string `json:"username"`
		Password    string `json:"password"`
	}
	if err := decodeJSON(r, &body); err != nil || body.CompanyCode == "" || body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "companyCode, username, password required")
		return
	}

	tenant, acc, ok := s.landingAccount(w, r, body.CompanyCode, body.Username)
	if !ok {
		return
	}
	if !auth.VerifyPassword(acc.PasswordHash, body.Password) {
		s.cfg.Events.Record(audit.EventLogin, map[string]string{"surface": "landing", "username": body.Username},
			audit.ForTenant(tenant.ID), audit.Failed(errors.New("invalid credentials")))
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s.cfg.Events.Record(audit.EventLogin, map[string]string{"surface": "landing"},
		audit.ForTenant(tenant.ID), audit.ByActor(acc.Subject()))
	s.issueToken(w, acc.Subject(), acc.Role, tenant.ID)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CompanyCode string `json:"companyCode"`
		Username    string `json:"username"`
		Email       string `json:"email"`
	}
	if err := decodeJSON(r, &body); err != nil || body.CompanyCode == "" || body.Username == "" || body.Email == "" {
		writeError(w, http.StatusBadRequest, "companyCode, username, email required")
		return
	}

	_, acc, ok := s.landingAccount(w, r, body.CompanyCode, body.Username)
	if !ok {
		return
	}

	temp, err := auth.TempPassword()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	hash, err := auth.HashPassword(temp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	if err := s.cfg.Catalog.SetPassword(r.Context(), acc.ID, hash); err != nil {
		s.cfg.Logger.Error("reset password", "error", err)
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}

	err = s.cfg.Mail.Send(body.Email, "Reset password Fieldback", "Password temporanea: "+temp)
	if errors.Is(err, mail.ErrNotConfigured) {
		// The password is already rotated; surface the state honestly.
		writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "detail": "mail delivery not configured"})
		return
	}
	if err != nil {
		s.cfg.Logger.Error("reset mail", "error", err)
		writeError(w, http.StatusBadGateway, "mail delivery failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CompanyCode string `json:"companyCode"`
		Username    string `json:"username"`
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeJSON(r, &body); err != nil ||
		body.CompanyCode == "" || body.Username == "" || body.OldPassword == "" || body.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "companyCode, username, oldPassword, newPassword required")
		return
	}

	_, acc, ok := s.landingAccount(w, r, body.CompanyCode, body.Username)
	if !ok {
		return
	}
	if !auth.VerifyPassword(acc.PasswordHash, body.OldPassword) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	hash, err := auth.HashPassword(body.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "change failed")
		return
	}
	if err := s.cfg.Catalog.SetPassword(r.Context(), acc.ID, hash); err != nil {
		s.cfg.Logger.Error("change password", "error", err)
		writeError(w, http.StatusInternalServerError, "change failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
