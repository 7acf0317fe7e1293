package internal

import (
	"strings"
	"testing"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.App.RateLimit.Limiter() == nil {
		t.Error("default config should limit graph mutations")
	}
}

func TestGraphConfig_UnknownLayout(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Graph.DefaultLayout = "spiral"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown layout should fail validation")
	}
}

func TestGraphConfig_EmptyLayoutIsCircular(t *testing.T) {
	cfg := GraphConfig{Width: 100, Height: 100}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty layout should pass: %v", err)
	}
	if cfg.Layout() != "circular" {
		t.Errorf("layout = %q, want circular", cfg.Layout())
	}
}

func TestGraphConfig_ZeroViewport(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Graph.Width = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero width should fail validation")
	}
}

func TestRateLimitConfig(t *testing.T) {
	off := RateLimitConfig{}
	if err := off.Validate(); err != nil {
		t.Fatalf("disabled limiter should pass: %v", err)
	}
	if off.Limiter() != nil {
		t.Error("RPS 0 should disable limiting")
	}

	bad := RateLimitConfig{RPS: 5}
	if err := bad.Validate(); err == nil {
		t.Error("RPS without burst should fail validation")
	}
}
