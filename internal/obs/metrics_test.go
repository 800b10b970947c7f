package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                              "/",
		"/metrics":                      "/metrics",
		"/v1/projects/01ABC":            "/v1/projects/:id",
		"/v1/projects/01ABC/submit":     "/v1/projects/:id/submit",
		"/v1/claims/01XYZ/reject":       "/v1/claims/:id/reject",
		"/v1/organizations/o-1/users":   "/v1/organizations/:id/users",
		"/v1/projects":                  "/v1/projects",
		"/v1/projects?status=draft":     "/v1/projects",
		"/v1/notifications/n-9/read":    "/v1/notifications/:id/read",
		"/v1/reports/funding":           "/v1/reports/funding",
		"/v1/reports/funding?sector=it": "/v1/reports/funding",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
