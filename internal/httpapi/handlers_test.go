package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"cpeconnect.org/internal/auth"
	"cpeconnect.org/internal/grants"
	"cpeconnect.org/internal/stream"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	store   *grants.InMemory
	events  *stream.Stream
	t       *testing.T
}

const (
	orgID        = "org-tremblay"
	adminEmail   = "admin@tremblay.example"
	financeEmail = "finance@tremblay.example"
	officerEmail = "officer@cpe.example"
	rootEmail    = "root@cpe.example"
)

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("CPE_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	store := grants.NewInMemory()
	ctx := context.Background()
	if err := store.CreateOrganization(ctx, &grants.Organization{
		ID: orgID, Name: "Boulangerie Tremblay", Sector: "manufacturing", SizeBand: "6-24",
	}); err != nil {
		t.Fatalf("seed org: %v", err)
	}
	seedUsers := []grants.User{
		{ID: "u-admin", Email: adminEmail, FullName: "Marie Tremblay", OrganizationID: orgID, Role: grants.RoleOrgAdmin},
		{ID: "u-fin", Email: financeEmail, OrganizationID: orgID, Role: grants.RoleOrgFinance},
		{ID: "u-off", Email: officerEmail, Role: grants.RoleOfficer},
		{ID: "u-root", Email: rootEmail, Role: grants.RolePlatformAdmin},
	}
	for i := range seedUsers {
		if err := store.CreateUser(ctx, &seedUsers[i]); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	events := stream.New()
	svc, err := grants.NewService(store, grants.WithNotifier(events))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	api := New(svc, store, events, ReadyProbe{}, "test")
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		store:   store,
		events:  events,
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, token string) *http.Response {
	return c.do(http.MethodPost, path, body, token)
}

func (c *apiClient) get(path string, params url.Values, token string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) obtainToken(email string) string {
	c.t.Helper()
	resp := c.post("/v1/auth/token", map[string]any{"email": email}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode token response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return payload.Token
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func wantStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d", resp.StatusCode, want)
	}
}

func TestPublicEndpoints(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/healthz", nil, "")
	wantStatus(t, resp, http.StatusOK)
	body := decode[map[string]any](t, resp)
	if body["service"] != "cpeconnect-api" {
		t.Fatalf("unexpected service: %v", body["service"])
	}

	resp = c.get("/readyz", nil, "")
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = c.get("/v1/info", nil, "")
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestAuthRequired(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/v1/projects", nil, "")
	wantStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = c.get("/v1/projects", nil, "not-a-valid-token")
	wantStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = c.post("/v1/auth/token", map[string]any{"email": "nobody@example.org"}, "")
	wantStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestProjectLifecycleFlow(t *testing.T) {
	c := newTestAPI(t)
	finance := c.obtainToken(financeEmail)
	officer := c.obtainToken(officerEmail)

	// Intake: finance opens a draft.
	resp := c.post("/v1/projects", map[string]any{
		"title":        "Formation numérique",
		"stream":       "digital_productivity",
		"total_budget": 20000,
	}, finance)
	wantStatus(t, resp, http.StatusCreated)
	p := decode[grants.Project](t, resp)
	if p.Status != grants.ProjectDraft || p.FundingRate != 0.75 {
		t.Fatalf("created project: %+v", p)
	}

	// Approving a draft is refused.
	resp = c.post("/v1/projects/"+p.ID+"/approve", nil, officer)
	wantStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	// Submit, review, approve.
	resp = c.post("/v1/projects/"+p.ID+"/submit", nil, finance)
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	// Finance cannot approve its own project.
	resp = c.post("/v1/projects/"+p.ID+"/approve", nil, finance)
	wantStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = c.post("/v1/projects/"+p.ID+"/review", nil, officer)
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = c.post("/v1/projects/"+p.ID+"/approve", nil, officer)
	wantStatus(t, resp, http.StatusOK)
	approved := decode[grants.Project](t, resp)
	if approved.Status != grants.ProjectApproved {
		t.Fatalf("status = %s", approved.Status)
	}
	if approved.ApprovedFunding != approved.TotalBudget*approved.FundingRate {
		t.Fatalf("approved funding = %v", approved.ApprovedFunding)
	}

	// An approved project is no longer approvable.
	resp = c.post("/v1/projects/"+p.ID+"/approve", nil, officer)
	wantStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
}

func TestClaimFlowOverHTTP(t *testing.T) {
	c := newTestAPI(t)
	finance := c.obtainToken(financeEmail)
	officer := c.obtainToken(officerEmail)

	resp := c.post("/v1/projects", map[string]any{
		"title":        "Robotisation",
		"total_budget": 10000,
	}, finance)
	p := decode[grants.Project](t, resp)
	for _, step := range []struct {
		path  string
		token string
	}{
		{"/submit", finance},
		{"/review", officer},
		{"/approve", officer},
	} {
		r := c.post("/v1/projects/"+p.ID+step.path, nil, step.token)
		wantStatus(t, r, http.StatusOK)
		r.Body.Close()
	}

	resp = c.post("/v1/projects/"+p.ID+"/costs", map[string]any{
		"category": "trainer_fees", "quantity": 10, "unit_cost": 150,
	}, finance)
	wantStatus(t, resp, http.StatusCreated)
	line := decode[grants.CostLine](t, resp)

	resp = c.post("/v1/projects/"+p.ID+"/claims", map[string]any{
		"cost_line_ids": []string{line.ID},
	}, finance)
	wantStatus(t, resp, http.StatusCreated)
	claim := decode[grants.PaymentClaim](t, resp)
	if claim.TotalAmount != line.Reimbursable {
		t.Fatalf("claim total = %v, want %v", claim.TotalAmount, line.Reimbursable)
	}

	// Officer rejects; the line goes back to the unclaimed pool and the
	// applicant gets a notification.
	resp = c.post("/v1/claims/"+claim.ID+"/reject", map[string]any{"reason": "Pièces manquantes"}, officer)
	wantStatus(t, resp, http.StatusOK)
	rejected := decode[grants.PaymentClaim](t, resp)
	if rejected.Status != grants.ClaimRejected {
		t.Fatalf("status = %s", rejected.Status)
	}

	resp = c.get("/v1/projects/"+p.ID+"/costs", nil, finance)
	lines := decode[struct {
		Items []grants.CostLine `json:"items"`
	}](t, resp)
	if len(lines.Items) != 1 || lines.Items[0].Claimed() {
		t.Fatalf("cost lines after rejection: %+v", lines.Items)
	}

	resp = c.get("/v1/notifications", nil, finance)
	wantStatus(t, resp, http.StatusOK)
	ns := decode[struct {
		Items []grants.Notification `json:"items"`
	}](t, resp)
	if len(ns.Items) == 0 {
		t.Fatal("expected a rejection notification")
	}

	// Second claim goes through approval and payment.
	resp = c.post("/v1/projects/"+p.ID+"/claims", map[string]any{
		"cost_line_ids": []string{line.ID},
	}, finance)
	wantStatus(t, resp, http.StatusCreated)
	claim2 := decode[grants.PaymentClaim](t, resp)

	resp = c.post("/v1/claims/"+claim2.ID+"/approve", nil, officer)
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = c.post("/v1/claims/"+claim2.ID+"/pay", nil, officer)
	wantStatus(t, resp, http.StatusOK)
	paid := decode[grants.PaymentClaim](t, resp)
	if paid.Status != grants.ClaimPaid || paid.PaidAt == nil {
		t.Fatalf("paid claim: %+v", paid)
	}

	// Finance cannot approve claims.
	resp = c.post("/v1/claims/"+claim2.ID+"/approve", nil, finance)
	wantStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
}

func TestOrganizationEndpoints(t *testing.T) {
	c := newTestAPI(t)
	root := c.obtainToken(rootEmail)
	officer := c.obtainToken(officerEmail)
	admin := c.obtainToken(adminEmail)

	resp := c.post("/v1/organizations", map[string]any{
		"name": "Garage Bouchard", "sector": "services", "size_band": "25-99",
	}, officer)
	wantStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = c.post("/v1/organizations", map[string]any{
		"name": "Garage Bouchard", "sector": "services", "size_band": "25-99",
	}, root)
	wantStatus(t, resp, http.StatusCreated)
	org := decode[grants.Organization](t, resp)

	// Duplicate name conflicts.
	resp = c.post("/v1/organizations", map[string]any{"name": "Garage Bouchard"}, root)
	wantStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	// Org admin provisions staff for its own organization only.
	resp = c.post("/v1/organizations/"+orgID+"/users", map[string]any{
		"email": "new@tremblay.example", "user_role": "org_hr",
	}, admin)
	wantStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = c.post("/v1/organizations/"+org.ID+"/users", map[string]any{
		"email": "x@bouchard.example", "user_role": "org_hr",
	}, admin)
	wantStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
}

func TestFundingReportEndpoint(t *testing.T) {
	c := newTestAPI(t)
	finance := c.obtainToken(financeEmail)
	officer := c.obtainToken(officerEmail)

	resp := c.get("/v1/reports/funding", nil, finance)
	wantStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = c.get("/v1/reports/funding", nil, officer)
	wantStatus(t, resp, http.StatusOK)
	report := decode[struct {
		Items []grants.SectorFunding `json:"items"`
	}](t, resp)
	if report.Items == nil && len(report.Items) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestNotificationStreamDeliversEvents(t *testing.T) {
	c := newTestAPI(t)
	finance := c.obtainToken(financeEmail)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/notifications/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+finance)

	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	lines := make(chan string, 16)
	readFail := make(chan error, 1)
	go func() {
		r := bufio.NewReader(resp.Body)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				readFail <- err
				return
			}
			lines <- strings.TrimRight(line, "\n")
		}
	}()
	readLine := func() string {
		t.Helper()
		select {
		case l := <-lines:
			return l
		case err := <-readFail:
			t.Fatalf("read stream: %v", err)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for stream data")
		}
		return ""
	}

	if got := readLine(); got != ": stream started" {
		t.Fatalf("preamble = %q", got)
	}

	// The subscription is registered before the preamble is written, so
	// publishing now is race-free.
	c.events.Publish(grants.Notification{ID: "n-live", UserEmail: financeEmail, MessageEN: "Claim approved"})

	data := readLine()
	for data == "" {
		data = readLine()
	}
	if !strings.HasPrefix(data, "data: ") {
		t.Fatalf("event line = %q", data)
	}
	var n grants.Notification
	if err := json.Unmarshal([]byte(strings.TrimPrefix(data, "data: ")), &n); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if n.ID != "n-live" || n.UserEmail != financeEmail {
		t.Fatalf("unexpected event: %+v", n)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	c := newTestAPI(t)
	finance := c.obtainToken(financeEmail)

	resp := c.post("/v1/projects", map[string]any{
		"title": "X", "total_budget": 1, "bogus_field": true,
	}, finance)
	wantStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}
