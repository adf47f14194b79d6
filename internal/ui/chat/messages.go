// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/plumeforge/plume-tui/internal/model"
	"github.com/plumeforge/plume-tui/internal/ui/components"
)

// syncViewport re-renders the transcript and keeps the view pinned to the
// bottom while a reply is streaming in.
func (m *Model) syncViewport() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderTranscript())
	if atBottom || m.sending {
		m.viewport.GotoBottom()
	}
}

// renderTranscript renders the visible conversation. In test mode the
// locally kept turns are shown instead of the store's list.
func (m *Model) renderTranscript() string {
	width := m.viewport.Width
	if width < 20 {
		width = 80
	}

	messages := m.store.Messages()
	var draft string
	if _, ok := m.store.TestMode(); ok {
		messages = m.testLog
		draft = m.draft()
	}

	if len(messages) == 0 && draft == "" {
		return m.theme.PendingText.Render("\n  Start the conversation below.")
	}

	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg, width))
		b.WriteString("\n")
	}

	if draft != "" {
		b.WriteString("\n")
		b.WriteString(m.theme.AssistantLabel.Render("Assistant"))
		b.WriteString("\n")
		b.WriteString(m.theme.AssistantText.Render(components.ParseCodeBlocks(draft, width)))
		b.WriteString("\n")
	}

	return b.String()
}

func (m *Model) renderMessage(msg model.Message, width int) string {
	var b strings.Builder

	label := m.theme.AssistantLabel
	if msg.Role == model.RoleUser {
		label = m.theme.UserLabel
	}
	b.WriteString(label.Render(msg.Role.DisplayName()))
	b.WriteString(" ")
	b.WriteString(m.theme.Timestamp.Render(msg.Timestamp.Format("15:04")))
	b.WriteString("\n")

	if msg.ImagePreviewURL != "" {
		b.WriteString(m.theme.ImageTag.Render("[image attached]"))
		b.WriteString("\n")
	}

	switch {
	case msg.IsLoading && msg.Content == "":
		b.WriteString(m.theme.PendingText.Render("..."))
	case msg.Role == model.RoleUser:
		b.WriteString(m.theme.UserBubble.Width(width - 2).Render(msg.Content))
	default:
		b.WriteString(m.theme.AssistantText.Render(components.ParseCodeBlocks(msg.Content, width)))
	}

	return b.String()
}
