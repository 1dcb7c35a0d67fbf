package main

import (
	"testing"

	"github.com/discord-agent/orchestrator/internal/config"
	"github.com/discord-agent/orchestrator/internal/session"
)

func TestResolveTesterIdentity_AuthDisabledUsesUserFlag(t *testing.T) {
	identity, err := resolveTesterIdentity(config.TesterConfig{}, "", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.UserID != "alice" {
		t.Fatalf("expected user id alice, got %q", identity.UserID)
	}
}

func TestResolveTesterIdentity_AuthEnabledRequiresToken(t *testing.T) {
	_, err := resolveTesterIdentity(config.TesterConfig{Secret: "shh"}, "", "alice")
	if err == nil {
		t.Fatal("expected an error when secret is set but no token is given")
	}
}

func TestResolveTesterIdentity_AuthEnabledValidatesToken(t *testing.T) {
	cfg := config.TesterConfig{Secret: "shh"}
	issuer := session.NewTesterAuth(cfg.Secret, cfg.Expiry)
	token, err := issuer.IssueToken(session.TesterIdentity{UserID: "bob"})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	identity, err := resolveTesterIdentity(cfg, token, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.UserID != "bob" {
		t.Fatalf("expected user id bob, got %q", identity.UserID)
	}
}
