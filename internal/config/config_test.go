// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
)

// =============================================================================
// DEFAULTS AND LOADING
// =============================================================================

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DefaultModel == "" {
		t.Error("Default config must set a default model")
	}
	if cfg.Server.Port != 8791 {
		t.Errorf("Server.Port = %d, want 8791", cfg.Server.Port)
	}
	if cfg.Typing.TurboDivisor < 1 {
		t.Errorf("TurboDivisor = %d, want >= 1", cfg.Typing.TurboDivisor)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.DefaultModel != Default().DefaultModel {
		t.Errorf("missing file should yield defaults, got model %q", cfg.DefaultModel)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.DefaultModel = "gemini-1.5-flash"
	cfg.Context.Facts = "Prefers metric units."
	cfg.Context.Assistants = []string{"tutor"}
	cfg.Assistants = map[string]AssistantConfig{
		"tutor": {Name: "Tutor", Instructions: "Be patient.", Model: "gpt-4o"},
	}

	if err := SaveToPath(cfg, path); err != nil {
		t.Fatalf("SaveToPath failed: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if loaded.DefaultModel != "gemini-1.5-flash" {
		t.Errorf("DefaultModel = %q", loaded.DefaultModel)
	}
	if a, ok := loaded.Assistant("tutor"); !ok || a.Model != "gpt-4o" {
		t.Errorf("Assistant tutor = %+v, ok=%v", a, ok)
	}
	if loaded.Context.Facts != "Prefers metric units." {
		t.Errorf("Context.Facts = %q", loaded.Context.Facts)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"empty model", func(c *Config) { c.DefaultModel = "" }, true},
		{"bad port", func(c *Config) { c.Server.Port = -1 }, true},
		{"zero divisor clamped", func(c *Config) { c.Typing.TurboDivisor = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	// Clamping check.
	cfg := Default()
	cfg.Typing.TurboDivisor = 0
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Typing.TurboDivisor != 1 {
		t.Errorf("TurboDivisor after clamp = %d, want 1", cfg.Typing.TurboDivisor)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PLUME_DEFAULT_MODEL", "env-model")
	t.Setenv("PLUME_TURBO", "true")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.DefaultModel != "env-model" {
		t.Errorf("DefaultModel = %q, want env-model", cfg.DefaultModel)
	}
	if !cfg.Typing.Turbo {
		t.Error("Turbo should be enabled via PLUME_TURBO")
	}
}

// =============================================================================
// CONTEXT GATING
// =============================================================================

func TestContextAppliesTo(t *testing.T) {
	tests := []struct {
		name      string
		facts     string
		applyAll  bool
		allowList []string
		sessionID string
		want      bool
	}{
		{"blank facts never apply", "   ", true, nil, "tutor", false},
		{"apply to all", "facts", true, nil, "tutor", true},
		{"apply to all covers main", "facts", true, nil, "main", true},
		{"allow-listed assistant", "facts", false, []string{"tutor"}, "tutor", true},
		{"absent assistant", "facts", false, []string{"tutor"}, "coach", false},
		{"main not in list", "facts", false, []string{"tutor"}, "main", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Context.Facts = tt.facts
			cfg.Context.ApplyToAll = tt.applyAll
			cfg.Context.Assistants = tt.allowList
			if got := cfg.ContextAppliesTo(tt.sessionID); got != tt.want {
				t.Errorf("ContextAppliesTo(%q) = %v, want %v", tt.sessionID, got, tt.want)
			}
		})
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := SaveToPath(Default(), path); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file permissions = %o, want 600", perm)
	}
}
