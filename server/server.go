// Package server exposes the HTTP API: auth, insight ingestion, reports,
// analytics, Q&A and the admin surface. Handlers stay thin; the domain
// packages do the work.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/fieldback/audit"
	"github.com/hazyhaar/fieldback/auth"
	"github.com/hazyhaar/fieldback/catalog"
	"github.com/hazyhaar/fieldback/enrich"
	"github.com/hazyhaar/fieldback/insight"
	"github.com/hazyhaar/fieldback/mail"
	"github.com/hazyhaar/fieldback/qa"
	"github.com/hazyhaar/fieldback/report"
)

// Config wires the server to the domain services.
type Config struct {
	Insights  *insight.Store
	Catalog   *catalog.Store
	Reports   *report.Store
	Generator *report.Generator
	QA        *qa.Service
	Queue     *enrich.Queue
	Events    *audit.Logger
	Mail      *mail.Sender

	JWTSecret []byte
	JWTTTL    time.Duration

	// SuperAdminUsername/Password is the env-seeded landlord credential
	// checked before the login_accounts table.
	SuperAdminUsername string
	SuperAdminPassword string
	SuperAdminUserID   string

	MaxBodyBytes int64
	AuthPerMin   int
	UploadPerMin int
	QAPerMin     int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.JWTTTL <= 0 {
		c.JWTTTL = auth.DefaultTTL
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 << 20
	}
	if c.AuthPerMin <= 0 {
		c.AuthPerMin = 30
	}
	if c.UploadPerMin <= 0 {
		c.UploadPerMin = 60
	}
	if c.QAPerMin <= 0 {
		c.QAPerMin = 30
	}
	if c.SuperAdminUserID == "" {
		c.SuperAdminUserID = "00000000-0000-0000-0000-000000000001"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server is the HTTP API.
type Server struct {
	cfg   Config
	rates *rateLimiter
}

// New builds a Server from its dependencies.
func New(cfg Config) *Server {
	cfg.defaults()
	return &Server{cfg: cfg, rates: newRateLimiter()}
}

// Router assembles the chi router with the full middleware stack.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(securityHeaders)
	r.Use(requestID(s.cfg.Logger))
	r.Use(maxBody(s.cfg.MaxBodyBytes))
	r.Use(auth.Middleware(s.cfg.JWTSecret))

	r.Get("/healthz", s.handleHealthz)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(s.rates.limit("auth", s.cfg.AuthPerMin))
			r.Post("/landlord/login", s.handleLandlordLogin)
			r.Post("/landing/login", s.handleLandingLogin)
			r.Post("/landing/reset-password", s.handleResetPassword)
			r.Post("/landing/change-password", s.handleChangePassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)

			r.Group(func(r chi.Router) {
				r.Use(s.rates.limit("upload", s.cfg.UploadPerMin))
				r.Post("/insights", s.handleCreateInsight)
			})
			r.Get("/insights", s.handleListInsights)
			r.Get("/insights/{id}", s.handleGetInsight)

			r.Group(func(r chi.Router) {
				r.Use(s.rates.limit("qa", s.cfg.QAPerMin))
				r.Post("/qa", s.handleQA)
			})

			r.Get("/reports", s.handleListReports)
			r.Get("/reports/{id}", s.handleGetReport)
			r.Get("/analytics/weekly", s.handleAnalyticsWeekly)
			r.Get("/analytics/heatmap", s.handleAnalyticsHeatmap)
			r.Get("/product-lines", s.handleListProductLines)
			r.Get("/processing/health", s.handleProcessingHealth)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(catalog.RoleSuperAdmin))
				r.Get("/tenants", s.handleListTenants)
				r.Post("/tenants", s.handleCreateTenant)
				r.Put("/tenants/{id}", s.handleUpdateTenant)
				r.Delete("/tenants/{id}", s.handleDeleteTenant)
			})
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(catalog.RoleSuperAdmin, catalog.RoleAdmin))
				r.Post("/users", s.handleCreateUser)
				r.Post("/users/{id}/roles", s.handleAssignRole)
				r.Get("/tenants/{id}/product-lines", s.handleAdminListProductLines)
				r.Post("/tenants/{id}/product-lines", s.handleCreateProductLine)
				r.Post("/jobs/generate-weekly-reports", s.handleGenerateReports)
				r.Post("/jobs/purge-ephemeral", s.handlePurgeEphemeral)
			})
		})
	})

	return r
}

// tenantScope resolves the tenant a request operates on: the token's
// tenant, or the X-Tenant-Id header when a super admin asks for one.
func tenantScope(r *http.Request) string {
	claims := auth.GetClaims(r.Context())
	if claims == nil {
		return ""
	}
	if claims.Role == catalog.RoleSuperAdmin {
		if h := r.Header.Get("X-Tenant-Id"); h != "" {
			return h
		}
	}
	return claims.TenantID
}
