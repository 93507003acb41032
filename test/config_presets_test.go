package test

import (
	"testing"

	authcore "github.com/tauinbox/client-server-starter-app-sub001"
)

func TestDefaultConfigPresetValidates(t *testing.T) {
	cfg := authcore.DefaultConfig()

	if !cfg.Security.EnforceRefreshRotation || !cfg.Security.EnforceRefreshReuseDetection {
		t.Fatal("expected refresh rotation and reuse detection to stay enabled")
	}
	if len(cfg.JWT.PrivateKey) == 0 || len(cfg.JWT.PublicKey) == 0 {
		t.Fatal("expected preset to include generated ed25519 keys")
	}
	if cfg.JWT.SigningMethod != "ed25519" {
		t.Fatalf("expected ed25519 signing, got %q", cfg.JWT.SigningMethod)
	}
	if !cfg.Lockout.Enabled || cfg.Lockout.Threshold != 5 {
		t.Fatalf("unexpected lockout baseline: %+v", cfg.Lockout)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected preset to validate, got %v", err)
	}
}

func TestDefaultConfigPresetsAreIndependent(t *testing.T) {
	a := authcore.DefaultConfig()
	b := authcore.DefaultConfig()

	if len(a.JWT.PrivateKey) == 0 || len(b.JWT.PrivateKey) == 0 {
		t.Fatal("expected generated keys")
	}
	if string(a.JWT.PrivateKey) == string(b.JWT.PrivateKey) {
		t.Fatal("expected each preset call to generate a fresh key pair")
	}
}
