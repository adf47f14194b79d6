// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
)

func TestRoleValid(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleUser, true},
		{RoleAssistant, true},
		{RoleSystem, true},
		{Role("moderator"), false},
		{Role(""), false},
	}
	for _, tt := range tests {
		if got := tt.role.Valid(); got != tt.want {
			t.Errorf("Role(%q).Valid() = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestNewAssistantMessageStartsLoading(t *testing.T) {
	msg := NewAssistantMessage()
	if !msg.IsLoading {
		t.Error("assistant message should start in the loading state")
	}
	if msg.Content != "" {
		t.Errorf("assistant message should start empty, got %q", msg.Content)
	}
	if !strings.HasPrefix(msg.ID, "msg_") {
		t.Errorf("message ID %q missing msg_ prefix", msg.ID)
	}
}

func TestSessionIsMain(t *testing.T) {
	if !(&Session{ID: MainSessionID}).IsMain() {
		t.Error("main session should report IsMain")
	}
	if (&Session{ID: "coach"}).IsMain() {
		t.Error("assistant session should not report IsMain")
	}
}

func TestMemoryPreviewSkipsAssistantTurns(t *testing.T) {
	mem := NewMemory("main", []Message{
		*NewMessage(RoleAssistant, "Hello!"),
		*NewUserMessage("plan my taper"),
	})
	if got := mem.Preview(); got != "plan my taper" {
		t.Errorf("Preview() = %q, want first user message", got)
	}
	if !strings.HasPrefix(mem.ID, "mem_") {
		t.Errorf("memory ID %q missing mem_ prefix", mem.ID)
	}
}
