package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hazyhaar/fieldback/audit"
	"github.com/hazyhaar/fieldback/auth"
	"github.com/hazyhaar/fieldback/catalog"
	"github.com/hazyhaar/fieldback/dbopen"
	"github.com/hazyhaar/fieldback/enrich"
	"github.com/hazyhaar/fieldback/insight"
	"github.com/hazyhaar/fieldback/mail"
	"github.com/hazyhaar/fieldback/qa"
	"github.com/hazyhaar/fieldback/report"
	"github.com/hazyhaar/fieldback/server"
	_ "modernc.org/sqlite"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type env struct {
	srv      *httptest.Server
	insights *insight.Store
	catalog  *catalog.Store
	reports  *report.Store
	queue    *enrich.Queue
	tenantID string
}

func newEnv(t *testing.T, mutate func(*server.Config)) *env {
	t.Helper()
	db := dbopen.OpenMemory(t,
		dbopen.WithSchema(insight.Schema),
		dbopen.WithSchema(catalog.Schema),
		dbopen.WithSchema(report.Schema),
		dbopen.WithSchema(audit.Schema),
	)
	insights := insight.NewStore(db)
	cat := catalog.NewStore(db)
	reports := report.NewStore(db)
	events := audit.NewLogger(db, 16, nil)
	t.Cleanup(events.Close)

	q := enrich.NewQueue(func(context.Context, string) error { return nil }, nil)
	gen := report.NewGenerator(report.GeneratorConfig{
		Reports:  reports,
		Insights: insights,
		Catalog:  cat,
		Events:   events,
	})

	cfg := server.Config{
		Insights:           insights,
		Catalog:            cat,
		Reports:            reports,
		Generator:          gen,
		QA:                 qa.NewService(reports, nil, nil),
		Queue:              q,
		Events:             events,
		Mail:               mail.NewSender(mail.Config{}),
		JWTSecret:          testSecret,
		SuperAdminUsername: "fieldbackmaster",
		SuperAdminPassword: "master-pass",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s := server.New(cfg)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	e := &env{srv: srv, insights: insights, catalog: cat, reports: reports, queue: q}
	e.seed(t)
	return e
}

func (e *env) seed(t *testing.T) {
	t.Helper()
	ctx := t.Context()
	tenant := &catalog.Tenant{ID: "ten_1", Name: "Acme Pharma", CompanyCode: "ACME"}
	if err := e.catalog.InsertTenant(ctx, tenant); err != nil {
		t.Fatal(err)
	}
	e.tenantID = tenant.ID
	if err := e.catalog.InsertProductLine(ctx, &catalog.ProductLine{
		ID: "pl_1", TenantID: tenant.ID, Name: "Cardiol", Active: true,
	}); err != nil {
		t.Fatal(err)
	}
	hash, err := auth.HashPassword("agent-pass")
	if err != nil {
		t.Fatal(err)
	}
	tid := tenant.ID
	if err := e.catalog.InsertLoginAccount(ctx, &catalog.LoginAccount{
		ID: "acc_1", Username: "mrossi", PasswordHash: hash, TenantID: &tid, Role: catalog.RoleAdmin,
	}); err != nil {
		t.Fatal(err)
	}
}

func (e *env) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func (e *env) login(t *testing.T, body any, path string) string {
	t.Helper()
	resp, data := e.do(t, http.MethodPost, path, "", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login = %d: %s", resp.StatusCode, data)
	}
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(data, &out); err != nil || out.AccessToken == "" {
		t.Fatalf("bad login response: %s", data)
	}
	return out.AccessToken
}

func (e *env) landlordToken(t *testing.T) string {
	return e.login(t, map[string]string{"username": "fieldbackmaster", "password": "master-pass"},
		"/v1/auth/landlord/login")
}

func (e *env) landingToken(t *testing.T) string {
	return e.login(t, map[string]string{"companyCode": "ACME", "username": "mrossi", "password": "agent-pass"},
		"/v1/auth/landing/login")
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, nil)
	resp, _ := e.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing")
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatal("request id missing")
	}
}

func TestLandlordLoginEnvCredential(t *testing.T) {
	e := newEnv(t, nil)
	token := e.landlordToken(t)
	claims, err := auth.ValidateToken(testSecret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Role != catalog.RoleSuperAdmin || !claims.Landlord() {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestLandlordLoginBadPassword(t *testing.T) {
	e := newEnv(t, nil)
	resp, _ := e.do(t, http.MethodPost, "/v1/auth/landlord/login", "",
		map[string]string{"username": "fieldbackmaster", "password": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestLandingLogin(t *testing.T) {
	e := newEnv(t, nil)
	token := e.landingToken(t)
	claims, err := auth.ValidateToken(testSecret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.TenantID != e.tenantID || claims.Role != catalog.RoleAdmin {
		t.Fatalf("claims = %+v", claims)
	}

	resp, _ := e.do(t, http.MethodPost, "/v1/auth/landing/login", "",
		map[string]string{"companyCode": "NOPE", "username": "mrossi", "password": "agent-pass"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown company = %d, want 404", resp.StatusCode)
	}
}

func TestCreateInsightQueuesAndScopes(t *testing.T) {
	e := newEnv(t, nil)
	token := e.landingToken(t)

	resp, data := e.do(t, http.MethodPost, "/v1/insights", token, map[string]any{
		"productLineId": "pl_1",
		"text":          "Il medico chiede studi comparativi",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create = %d: %s", resp.StatusCode, data)
	}
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Status != "queued" || out.ID == "" {
		t.Fatalf("response = %+v", out)
	}
	if e.queue.Len() != 1 {
		t.Fatalf("queue len = %d, want 1", e.queue.Len())
	}

	ins, err := e.insights.Get(t.Context(), out.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ins.TenantID == nil || *ins.TenantID != e.tenantID {
		t.Fatalf("TenantID = %v, want token tenant", ins.TenantID)
	}
	if ins.Kind != insight.KindFieldInsight {
		t.Fatalf("Kind = %q, want default", ins.Kind)
	}

	// The record is visible through the read endpoints.
	resp, data = e.do(t, http.MethodGet, "/v1/insights/"+out.ID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get = %d: %s", resp.StatusCode, data)
	}
	resp, data = e.do(t, http.MethodGet, "/v1/insights?q=comparativi", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list = %d", resp.StatusCode)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil || len(items) != 1 {
		t.Fatalf("list = %s", data)
	}
}

func TestCreateInsightValidation(t *testing.T) {
	e := newEnv(t, nil)
	token := e.landingToken(t)

	resp, _ := e.do(t, http.MethodPost, "/v1/insights", token, map[string]any{"text": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing productLineId = %d, want 400", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodPost, "/v1/insights", token,
		map[string]any{"productLineId": "pl_1", "type": "BOGUS"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad type = %d, want 400", resp.StatusCode)
	}
}

func TestInsightTenantIsolation(t *testing.T) {
	e := newEnv(t, nil)
	token := e.landingToken(t)

	other := "ten_2"
	if err := e.insights.Insert(t.Context(), &insight.RawInsight{
		ID: "ins_other", TenantID: &other, ProductLineID: "pl_9", Text: "riservato",
	}); err != nil {
		t.Fatal(err)
	}
	resp, _ := e.do(t, http.MethodGet, "/v1/insights/ins_other", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-tenant get = %d, want 404", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	e := newEnv(t, nil)
	for _, path := range []string{"/v1/insights", "/v1/reports", "/v1/analytics/weekly", "/v1/processing/health"} {
		resp, _ := e.do(t, http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s = %d, want 401", path, resp.StatusCode)
		}
	}
}

func TestAdminRoleGate(t *testing.T) {
	e := newEnv(t, nil)
	tenantToken := e.landingToken(t)
	landlord := e.landlordToken(t)

	// Tenant admins cannot touch the tenants directory.
	resp, _ := e.do(t, http.MethodGet, "/v1/admin/tenants", tenantToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("tenant admin on /admin/tenants = %d, want 403", resp.StatusCode)
	}
	resp, data := e.do(t, http.MethodGet, "/v1/admin/tenants", landlord, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("landlord on /admin/tenants = %d: %s", resp.StatusCode, data)
	}

	// But they can create users in their own tenant.
	resp, _ = e.do(t, http.MethodPost, "/v1/admin/users", tenantToken,
		map[string]string{"email": "new@acme.example"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("tenant admin create user = %d, want 201", resp.StatusCode)
	}
}

func TestAdminTenantLifecycle(t *testing.T) {
	e := newEnv(t, nil)
	landlord := e.landlordToken(t)

	resp, data := e.do(t, http.MethodPost, "/v1/admin/tenants", landlord,
		map[string]string{"name": "Beta Pharma", "companyCode": "BETA"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create = %d: %s", resp.StatusCode, data)
	}
	var tenant catalog.Tenant
	if err := json.Unmarshal(data, &tenant); err != nil {
		t.Fatal(err)
	}

	resp, _ = e.do(t, http.MethodPut, "/v1/admin/tenants/"+tenant.ID, landlord,
		map[string]string{"name": "Beta Pharma SpA", "companyCode": "BETA"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update = %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodDelete, "/v1/admin/tenants/"+tenant.ID, landlord, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete = %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodPut, "/v1/admin/tenants/"+tenant.ID, landlord,
		map[string]string{"name": "Gone"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("update deleted = %d, want 404", resp.StatusCode)
	}
}

func TestAssignRoleCreatesAccount(t *testing.T) {
	e := newEnv(t, nil)
	landlord := e.landlordToken(t)

	resp, data := e.do(t, http.MethodPost, "/v1/admin/users", landlord,
		map[string]string{"email": "lverdi@acme.example", "fullName": "Luisa Verdi"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user = %d", resp.StatusCode)
	}
	var user struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &user); err != nil {
		t.Fatal(err)
	}

	resp, data = e.do(t, http.MethodPost, "/v1/admin/users/"+user.ID+"/roles", landlord, map[string]any{
		"tenantId": e.tenantID,
		"role":     catalog.RoleEditor,
		"username": "lverdi",
		"password": "verdi-pass",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("assign role = %d: %s", resp.StatusCode, data)
	}

	// The new credential logs in with the tenant's company code.
	token := e.login(t, map[string]string{
		"companyCode": "ACME", "username": "lverdi", "password": "verdi-pass",
	}, "/v1/auth/landing/login")
	claims, err := auth.ValidateToken(testSecret, token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Role != catalog.RoleEditor || claims.Subject != user.ID {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestResetPasswordRotatesCredential(t *testing.T) {
	e := newEnv(t, nil)

	// Mail is unconfigured, so the handler reports the reset without a send.
	resp, data := e.do(t, http.MethodPost, "/v1/auth/landing/reset-password", "",
		map[string]string{"companyCode": "ACME", "username": "mrossi", "email": "mrossi@acme.example"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset = %d: %s", resp.StatusCode, data)
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &out); err != nil || out.Status != "reset" {
		t.Fatalf("response = %s", data)
	}

	// The old password no longer works.
	resp, _ = e.do(t, http.MethodPost, "/v1/auth/landing/login", "",
		map[string]string{"companyCode": "ACME", "username": "mrossi", "password": "agent-pass"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("old password = %d, want 401", resp.StatusCode)
	}
}

func TestChangePassword(t *testing.T) {
	e := newEnv(t, nil)
	resp, _ := e.do(t, http.MethodPost, "/v1/auth/landing/change-password", "", map[string]string{
		"companyCode": "ACME", "username": "mrossi",
		"oldPassword": "agent-pass", "newPassword": "new-pass",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("change = %d", resp.StatusCode)
	}
	e.login(t, map[string]string{"companyCode": "ACME", "username": "mrossi", "password": "new-pass"},
		"/v1/auth/landing/login")
}

func TestRateLimitAuth(t *testing.T) {
	e := newEnv(t, func(cfg *server.Config) { cfg.AuthPerMin = 2 })
	body := map[string]string{"username": "nobody", "password": "nope"}

	for i := 0; i < 2; i++ {
		resp, _ := e.do(t, http.MethodPost, "/v1/auth/landlord/login", "", body)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d = %d, want 401", i, resp.StatusCode)
		}
	}
	resp, _ := e.do(t, http.MethodPost, "/v1/auth/landlord/login", "", body)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("third attempt = %d, want 429", resp.StatusCode)
	}
}

func TestQAEndpoint(t *testing.T) {
	e := newEnv(t, nil)
	token := e.landingToken(t)

	resp, _ := e.do(t, http.MethodPost, "/v1/qa", token, map[string]string{"query": " "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty query = %d, want 400", resp.StatusCode)
	}

	resp, data := e.do(t, http.MethodPost, "/v1/qa", token, map[string]string{"query": "prezzo"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("qa = %d: %s", resp.StatusCode, data)
	}
	var ans struct {
		Answer    string            `json:"answer"`
		Citations []json.RawMessage `json:"citations"`
	}
	if err := json.Unmarshal(data, &ans); err != nil || ans.Answer == "" {
		t.Fatalf("qa response = %s", data)
	}
}

func TestGenerateReportsJob(t *testing.T) {
	e := newEnv(t, nil)
	landlord := e.landlordToken(t)

	resp, data := e.do(t, http.MethodPost, "/v1/admin/jobs/generate-weekly-reports", landlord,
		map[string]string{"tenantId": e.tenantID, "productLineId": "pl_1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("generate = %d: %s", resp.StatusCode, data)
	}
	var out struct {
		Status string `json:"status"`
		WeekID string `json:"weekId"`
		ID     string `json:"id"`
		Proof  string `json:"proof"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Status != "ok" || out.ID == "" || len(out.Proof) != 64 {
		t.Fatalf("response = %+v", out)
	}
	if out.WeekID != report.WeekID(time.Now()) {
		t.Fatalf("weekId = %q", out.WeekID)
	}

	// The generated report is readable by the tenant.
	token := e.landingToken(t)
	resp, data = e.do(t, http.MethodGet, "/v1/reports", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list reports = %d", resp.StatusCode)
	}
	var reports []json.RawMessage
	if err := json.Unmarshal(data, &reports); err != nil || len(reports) != 1 {
		t.Fatalf("reports = %s", data)
	}
}

func TestPurgeEphemeral(t *testing.T) {
	e := newEnv(t, nil)
	landlord := e.landlordToken(t)

	tid := e.tenantID
	old := &insight.RawInsight{
		ID: "ins_old", TenantID: &tid, ProductLineID: "pl_1", Text: "vecchio",
		CreatedAt: time.Now().AddDate(0, 0, -30).UnixMilli(),
	}
	recent := &insight.RawInsight{ID: "ins_new", TenantID: &tid, ProductLineID: "pl_1", Text: "nuovo"}
	for _, ins := range []*insight.RawInsight{old, recent} {
		if err := e.insights.Insert(t.Context(), ins); err != nil {
			t.Fatal(err)
		}
	}

	cutoff := time.Now().AddDate(0, 0, -7).Format("2006-01-02")
	resp, data := e.do(t, http.MethodPost, "/v1/admin/jobs/purge-ephemeral", landlord,
		map[string]string{"before": cutoff})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("purge = %d: %s", resp.StatusCode, data)
	}
	var out struct {
		Deleted int    `json:"deleted"`
		Proof   string `json:"proof"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Deleted != 1 || len(out.Proof) != 64 {
		t.Fatalf("response = %+v", out)
	}
	if _, err := e.insights.Get(t.Context(), "ins_new"); err != nil {
		t.Fatalf("recent insight purged: %v", err)
	}
}

func TestSuperAdminTenantHeaderOverride(t *testing.T) {
	e := newEnv(t, nil)
	landlord := e.landlordToken(t)

	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/v1/insights", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+landlord)
	req.Header.Set("X-Tenant-Id", e.tenantID)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scoped list = %d", resp.StatusCode)
	}
}

func TestMaxBody(t *testing.T) {
	e := newEnv(t, func(cfg *server.Config) { cfg.MaxBodyBytes = 256 })
	token := e.landingToken(t)

	big := map[string]string{"productLineId": "pl_1", "text": fmt.Sprintf("%01000d", 1)}
	resp, _ := e.do(t, http.MethodPost, "/v1/insights", token, big)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("oversize body = %d, want 400", resp.StatusCode)
	}
}
