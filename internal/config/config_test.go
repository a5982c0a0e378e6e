package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaultsToServerSideTotals(t *testing.T) {
	t.Setenv("CHECKOUT_TRUST_CLIENT_TOTAL", "")

	cfg := Load()
	if cfg.TrustClientTotal {
		t.Fatalf("client-declared totals must be opt-in")
	}
}

func TestLoadClampsBadTTLValues(t *testing.T) {
	t.Setenv("DASHBOARD_CACHE_TTL_SECONDS", "-5")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "zero")

	cfg := Load()
	if cfg.DashboardCacheTTLSeconds != 60 {
		t.Fatalf("expected dashboard TTL fallback 60, got %d", cfg.DashboardCacheTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected token TTL fallback 480, got %d", cfg.AccessTokenTTLMinutes)
	}
}
