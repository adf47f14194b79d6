// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// =============================================================================
// SESSION IDENTITY
// =============================================================================

// MainSessionID identifies the single persistent main session. Assistant
// sessions are keyed by the assistant's own identifier.
const MainSessionID = "main"

// Session describes the logical conversation context that determines which
// system instructions apply to outbound requests.
type Session struct {
	// ID is MainSessionID or an assistant identifier.
	ID string `json:"id"`

	// Name is a display name for assistant sessions.
	Name string `json:"name,omitempty"`

	// Instructions are the assistant's system instructions. Empty for the
	// main session.
	Instructions string `json:"instructions,omitempty"`

	// Model overrides the global default model for this session.
	Model string `json:"model,omitempty"`
}

// IsMain reports whether this is the persistent main session.
func (s *Session) IsMain() bool {
	return s.ID == MainSessionID
}

// HasInstructions reports whether the session carries non-blank system
// instructions.
func (s *Session) HasInstructions() bool {
	return strings.TrimSpace(s.Instructions) != ""
}

// =============================================================================
// TEST-MODE CONFIGURATION
// =============================================================================

// TestConfig is an ephemeral override replacing the active session's
// identity, instructions, and model for a one-off trial. It is never
// persisted; while active, store-backed mutation is suspended and the caller
// maintains its own local message slice.
type TestConfig struct {
	Instructions string
	Model        string
}

// HasInstructions reports whether the trial carries non-blank instructions.
func (t *TestConfig) HasInstructions() bool {
	return strings.TrimSpace(t.Instructions) != ""
}
