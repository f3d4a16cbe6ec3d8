package auth

import (
	"testing"

	"github.com/hitoshi/vendorhub/internal/model"
)

func TestAdminPolicy_IsAdmin(t *testing.T) {
	p := NewAdminPolicy([]string{" Admin@Example.com", "", "ops@example.com"})

	tests := []struct {
		name  string
		email string
		flag  bool
		want  bool
	}{
		{"flag wins", "someone@example.com", true, true},
		{"listed email", "admin@example.com", false, true},
		{"case and space insensitive", "  ADMIN@example.COM ", false, true},
		{"not listed", "user@example.com", false, false},
		{"empty email", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.IsAdmin(tt.email, tt.flag); got != tt.want {
				t.Errorf("IsAdmin(%q, %v) = %v, want %v", tt.email, tt.flag, got, tt.want)
			}
		})
	}

	if len(p.Emails) != 2 {
		t.Errorf("Emails = %v, want 2 normalized entries", p.Emails)
	}
	if p.Role("ops@example.com", false) != model.RoleAdmin || p.Role("x@example.com", false) != model.RoleUser {
		t.Error("Role() mismatch")
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		domain string
		want   string
		ok     bool
	}{
		{"trim and lower", "  Hana@Example.COM ", "", "hana@example.com", true},
		{"allowed domain", "hana@example.com", "Example.com", "hana@example.com", true},
		{"other domain", "hana@evil.com", "example.com", "", false},
		{"subdomain is not the domain", "hana@sub.example.com", "example.com", "", false},
		{"suffix trick", "hana@notexample.com", "example.com", "", false},
		{"empty", "   ", "", "", false},
		{"no at", "hana", "", "", false},
		{"display name", "Hana <hana@example.com>", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeEmail(tt.raw, tt.domain)
			if tt.ok {
				if err != nil || got != tt.want {
					t.Errorf("NormalizeEmail(%q) = (%q, %v), want %q", tt.raw, got, err, tt.want)
				}
				return
			}
			assertAPIError(t, err, model.ErrCodeInvalidEmail)
		})
	}
}
