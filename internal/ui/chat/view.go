// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/plumeforge/plume-tui/internal/model"
)

// View composes the header, transcript, input, and status bar.
func (m *Model) View() string {
	if !m.ready {
		return "starting plume..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderInput())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m *Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("plume")

	session := m.store.ActiveSessionID()
	label := "main"
	if session != model.MainSessionID {
		label = session
		if a, ok := m.cfg.Assistant(session); ok && a.Name != "" {
			label = a.Name
		}
	}
	if _, ok := m.store.TestMode(); ok {
		return m.theme.Header.Width(m.width).Render(
			title + "  " + m.theme.TestModeBanner.Render("TEST MODE") +
				"  " + m.theme.HeaderSession.Render(label))
	}
	return m.theme.Header.Width(m.width).Render(
		title + "  " + m.theme.HeaderSession.Render(label))
}

func (m *Model) renderInput() string {
	prompt := m.theme.InputPrompt.Render("> ")
	return m.theme.InputContainer.Width(m.width - 2).Render(prompt + m.input.View())
}

func (m *Model) renderStatusBar() string {
	left := m.status
	if m.sending {
		left = m.theme.Spinner.Render(m.spinner.View())
	}
	if left == "" {
		left = fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
			m.theme.StatusKey.Render("enter"), m.theme.StatusDesc.Render("send"),
			m.theme.StatusKey.Render("C-t"), m.theme.StatusDesc.Render("turbo"),
			m.theme.StatusKey.Render("C-l"), m.theme.StatusDesc.Render("clear"),
			m.theme.StatusKey.Render("C-c"), m.theme.StatusDesc.Render("quit"))
	}

	if m.turbo {
		left += "  " + m.theme.TurboTag.Render("turbo")
	}
	return m.theme.StatusBar.Width(m.width).Render(left)
}
