// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/plumeforge/plume-tui/internal/config"
	"github.com/plumeforge/plume-tui/internal/dispatch"
	"github.com/plumeforge/plume-tui/internal/model"
	"github.com/plumeforge/plume-tui/internal/store"
)

func newTestModel(t *testing.T) *Model {
	t.Helper()
	cfg := config.Default()
	cfg.Assistants = map[string]config.AssistantConfig{
		"coach": {Name: "Coach", Instructions: "You are a running coach."},
	}
	st := store.New(cfg, nil)
	sender := dispatch.New(cfg, st, nil)
	m := New(cfg, st, sender)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

func TestTranscriptShowsStoreMessages(t *testing.T) {
	m := newTestModel(t)
	if _, err := m.store.AddMessage(model.NewUserMessage("hello plume")); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	out := m.renderTranscript()
	if !strings.Contains(out, "hello plume") {
		t.Errorf("transcript missing user message:\n%s", out)
	}
	if !strings.Contains(out, "You") {
		t.Errorf("transcript missing role label:\n%s", out)
	}
}

func TestEmptyTranscriptPlaceholder(t *testing.T) {
	m := newTestModel(t)
	out := m.renderTranscript()
	if !strings.Contains(out, "Start the conversation") {
		t.Errorf("expected placeholder, got:\n%s", out)
	}
}

func TestSlashSessionSwitch(t *testing.T) {
	m := newTestModel(t)

	m.runSlashCommand("/session coach")
	if got := m.store.ActiveSessionID(); got != "coach" {
		t.Errorf("active session = %q, want coach", got)
	}

	m.runSlashCommand("/session nobody")
	if got := m.store.ActiveSessionID(); got != "coach" {
		t.Errorf("unknown assistant switched session to %q", got)
	}
	if !strings.Contains(m.status, "unknown assistant") {
		t.Errorf("status = %q, want unknown assistant notice", m.status)
	}
}

func TestSlashTestMode(t *testing.T) {
	m := newTestModel(t)

	m.runSlashCommand("/test be terse")
	if _, ok := m.store.TestMode(); !ok {
		t.Fatal("test mode should be active")
	}
	if !strings.Contains(m.renderHeader(), "TEST MODE") {
		t.Error("header should show the test-mode banner")
	}

	m.runSlashCommand("/endtest")
	if _, ok := m.store.TestMode(); ok {
		t.Error("test mode should be off")
	}
}

func TestTestModeTranscriptIsLocal(t *testing.T) {
	m := newTestModel(t)
	m.runSlashCommand("/test be terse")

	m.testLog = append(m.testLog, *model.NewUserMessage("draft question"))
	out := m.renderTranscript()
	if !strings.Contains(out, "draft question") {
		t.Errorf("test transcript missing local turn:\n%s", out)
	}

	// Store stays empty; test turns never persist.
	if got := len(m.store.Messages()); got != 0 {
		t.Errorf("store has %d messages, want 0", got)
	}
}

func TestTurboToggle(t *testing.T) {
	m := newTestModel(t)
	if m.turbo {
		t.Fatal("turbo should start off")
	}
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	if !m.turbo {
		t.Error("ctrl+t should enable turbo")
	}
}
