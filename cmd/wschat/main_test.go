package main

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/user/wschat/internal/config"
	"github.com/user/wschat/internal/prefs"
	"github.com/user/wschat/internal/store/local"
	"github.com/user/wschat/internal/types"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResolveWorkspace(t *testing.T) {
	p, err := prefs.Open(filepath.Join(t.TempDir(), "prefs.json"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := resolveWorkspace(p, nil); !errors.Is(err, types.ErrNoWorkspace) {
		t.Errorf("expected ErrNoWorkspace, got %v", err)
	}
	if _, err := resolveWorkspace(p, []string{""}); !errors.Is(err, types.ErrNoWorkspace) {
		t.Errorf("expected ErrNoWorkspace for empty flag, got %v", err)
	}

	if err := p.Set(keyLastWorkspace, "ws-last"); err != nil {
		t.Fatal(err)
	}
	got, err := resolveWorkspace(p, nil)
	if err != nil || got != "ws-last" {
		t.Errorf("expected ws-last, got %q (%v)", got, err)
	}
	got, err = resolveWorkspace(p, []string{"ws-arg"})
	if err != nil || got != "ws-arg" {
		t.Errorf("expected ws-arg, got %q (%v)", got, err)
	}
}

func TestCurrentIdentity(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := local.Open(filepath.Join(dir, "store"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	p, err := prefs.Open(filepath.Join(dir, "prefs.json"))
	if err != nil {
		t.Fatal(err)
	}

	demo, err := currentIdentity(ctx, p, store)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetProfile(ctx, demo.ID); err != nil {
		t.Errorf("expected demo profile created: %v", err)
	}

	ada := types.Identity{ID: "u-ada", DisplayName: "Ada", Email: "ada@example.com"}
	if err := p.SaveIdentity(ada); err != nil {
		t.Fatal(err)
	}
	who, err := currentIdentity(ctx, p, store)
	if err != nil {
		t.Fatal(err)
	}
	if who != ada {
		t.Errorf("expected remembered identity, got %+v", who)
	}
	profile, err := store.GetProfile(ctx, ada.ID)
	if err != nil {
		t.Fatal(err)
	}
	if profile.DisplayName != "Ada" {
		t.Errorf("expected profile name Ada, got %q", profile.DisplayName)
	}
}

func TestAgentDetectorFromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Chat.AgentSenderID = "bot-1"
	cfg.Chat.StrictAgentTags = true
	d := agentDetector(cfg)
	if !d.IsAgent(&types.Message{SenderID: "bot-1"}) {
		t.Error("expected sender id match")
	}
	if d.IsAgent(&types.Message{SenderID: "u1", SenderName: "agent smith"}) {
		t.Error("strict tags should ignore the name marker")
	}
}

func TestOpenBackendUnknown(t *testing.T) {
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.Store.Backend = "postgres"
	if _, err := openBackend(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown backend")
	}
	cfg.Store.Backend = "local"
	b, err := openBackend(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	b.Close()
}

func TestDisplayValueMasksAPIKeys(t *testing.T) {
	tests := []struct {
		key  string
		val  any
		want any
	}{
		{"auth.api_key", "sk-auth-1234", "***1234"},
		{"agent.llm.api_key", "abc", "***abc"},
		{"agent.llm.api_key", "", ""},
		{"relay.endpoint", "http://localhost:8787/relay", "http://localhost:8787/relay"},
		{"agent.max_concurrent", 4.0, 4.0},
	}
	for _, tt := range tests {
		if got := displayValue(tt.key, tt.val); got != tt.want {
			t.Errorf("displayValue(%q, %v) = %v, want %v", tt.key, tt.val, got, tt.want)
		}
	}
}
