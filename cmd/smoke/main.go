package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"cpeconnect.org/internal/auth"
	"cpeconnect.org/internal/grants"
)

// Smoke client: drives a full grant lifecycle against a running API.
// Shares CPE_AUTH_SECRET with the server to mint its own tokens.
func main() {
	base := os.Getenv("CPE_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	platformToken := mintToken(&grants.User{Email: "smoke-root@cpe.example", Role: grants.RolePlatformAdmin})
	officerToken := mintToken(&grants.User{Email: "smoke-officer@cpe.example", Role: grants.RoleOfficer})

	c := &client{base: base, http: &http.Client{Timeout: 5 * time.Second}}
	suffix := rand.Int()

	var org grants.Organization
	c.call(http.MethodPost, "/v1/organizations", platformToken, map[string]any{
		"name":      fmt.Sprintf("Smoke Org %d", suffix),
		"sector":    "manufacturing",
		"size_band": "6-24",
	}, &org)

	financeEmail := fmt.Sprintf("smoke-finance-%d@cpe.example", suffix)
	var finance grants.User
	c.call(http.MethodPost, "/v1/organizations/"+org.ID+"/users", platformToken, map[string]any{
		"email":     financeEmail,
		"full_name": "Smoke Finance",
		"user_role": "org_finance",
	}, &finance)
	financeToken := mintToken(&finance)

	var p grants.Project
	c.call(http.MethodPost, "/v1/projects", financeToken, map[string]any{
		"title":        "Smoke Project",
		"stream":       "digital_productivity",
		"total_budget": 10000,
	}, &p)
	if p.Status != grants.ProjectDraft {
		log.Fatalf("project status after create: %s", p.Status)
	}

	c.call(http.MethodPost, "/v1/projects/"+p.ID+"/submit", financeToken, nil, &p)
	c.call(http.MethodPost, "/v1/projects/"+p.ID+"/review", officerToken, nil, &p)
	c.call(http.MethodPost, "/v1/projects/"+p.ID+"/approve", officerToken, nil, &p)
	if p.Status != grants.ProjectApproved {
		log.Fatalf("project status after approval: %s", p.Status)
	}
	if p.ApprovedFunding != p.TotalBudget*p.FundingRate {
		log.Fatalf("approved funding mismatch: %v", p.ApprovedFunding)
	}

	var line grants.CostLine
	c.call(http.MethodPost, "/v1/projects/"+p.ID+"/costs", financeToken, map[string]any{
		"category":  "trainer_fees",
		"quantity":  10,
		"unit_cost": 100,
	}, &line)

	var claim grants.PaymentClaim
	c.call(http.MethodPost, "/v1/projects/"+p.ID+"/claims", financeToken, map[string]any{
		"cost_line_ids": []string{line.ID},
	}, &claim)
	if claim.TotalAmount != line.Reimbursable {
		log.Fatalf("claim total mismatch: %v vs %v", claim.TotalAmount, line.Reimbursable)
	}

	c.call(http.MethodPost, "/v1/claims/"+claim.ID+"/approve", officerToken, nil, &claim)
	c.call(http.MethodPost, "/v1/claims/"+claim.ID+"/pay", officerToken, nil, &claim)
	if claim.Status != grants.ClaimPaid {
		log.Fatalf("claim status after payment: %s", claim.Status)
	}

	fmt.Printf("✅ lifecycle smoke test passed: project=%s claim=%s\n", p.ID, claim.ID)
}

func mintToken(u *grants.User) string {
	token, err := auth.GenerateToken(u, 10*time.Minute)
	if err != nil {
		log.Fatalf("mint token for %s: %v", u.Email, err)
	}
	return token
}

type client struct {
	base string
	http *http.Client
}

func (c *client) call(method, path, token string, body any, out any) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal %s: %v", path, err)
		}
	}
	req, err := http.NewRequest(method, c.base+path, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("request %s: %v", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Fatalf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("decode %s: %v", path, err)
		}
	}
}
