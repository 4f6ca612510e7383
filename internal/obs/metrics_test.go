package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                           "/",
		"/metrics":                   "/metrics",
		"/api/admin/users/01HZX":     "/api/admin/users/:id",
		"/api/admin/users":           "/api/admin/users",
		"/api/admin/teams/abc?x=1":   "/api/admin/teams/:id",
		"/api/admin/users/abc/extra": "/api/admin/users/abc/extra",
		"/api/users/dashboard":       "/api/users/dashboard",
		"/api/messages?user_id=u1":   "/api/messages",
		"/api/admin/audit/activity":  "/api/admin/audit/activity",
		"/api/reporting/messages":    "/api/reporting/messages",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
