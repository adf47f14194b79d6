// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// MEMORY TYPE
// =============================================================================

// Memory is a persisted snapshot of a session's message list at last save.
// It is created on the first completed assistant turn of a session, updated
// in place thereafter, and named asynchronously by a background
// title-generation call.
type Memory struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Name      string    `json:"name"`
	Messages  []Message `json:"messages"`
	IsPinned  bool      `json:"is_pinned"`
}

// NewMemory creates an unnamed memory snapshot for a session.
func NewMemory(sessionID string, messages []Message) *Memory {
	return &Memory{
		ID:        NewMemoryID(),
		SessionID: sessionID,
		Timestamp: time.Now(),
		Messages:  messages,
	}
}

// MessageCount returns the number of messages in the snapshot.
func (m *Memory) MessageCount() int {
	return len(m.Messages)
}

// Preview returns the first user message, for list display.
func (m *Memory) Preview() string {
	for _, msg := range m.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			return msg.Content
		}
	}
	return ""
}

// NewMemoryID generates a unique memory identifier.
func NewMemoryID() string {
	return "mem_" + uuid.NewString()
}
