// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/plumeforge/plume-tui/internal/dispatch"
	"github.com/plumeforge/plume-tui/internal/model"
	"github.com/plumeforge/plume-tui/internal/util"
)

// Update routes Bubble Tea messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		cmd := m.spinner.Update(msg)
		return m, cmd

	case refreshMsg:
		m.syncViewport()
		return m, m.waitForRefresh()

	case sendDoneMsg:
		m.sending = false
		m.spinner.Stop()
		if msg.err != nil {
			m.status = m.theme.ErrorText.Render(sendErrText(msg.err))
		}
		if msg.res != nil {
			if _, ok := m.store.TestMode(); ok && msg.res.AssistantMessage != nil {
				m.testLog = append(m.testLog, *msg.res.AssistantMessage)
			}
		}
		m.resetDraft()
		m.syncViewport()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)

	// Header, input frame, and status bar each hold one rendered row.
	reserved := 6
	vpHeight := msg.Height - reserved
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = msg.Width
	m.viewport.Height = vpHeight
	m.input.Width = msg.Width - 6

	m.ready = true
	m.syncViewport()
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Turbo):
		m.turbo = !m.turbo
		m.sender.SetTurbo(m.turbo)
		if m.turbo {
			m.status = m.theme.TurboTag.Render("turbo on")
		} else {
			m.status = "turbo off"
		}
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		m.store.Clear()
		m.syncViewport()
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.handleSubmit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleSubmit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" && m.pendingImage == "" {
		return m, nil
	}

	if strings.HasPrefix(text, "/") {
		m.input.SetValue("")
		return m.runSlashCommand(text)
	}

	if m.sending {
		m.status = m.theme.ErrorText.Render("a send is already in flight")
		return m, nil
	}

	in := dispatch.Input{Text: text, ImageDataURL: m.pendingImage}
	if _, ok := m.store.TestMode(); ok && text != "" {
		m.testLog = append(m.testLog, *model.NewUserMessage(text))
	}
	m.pendingImage = ""
	m.input.SetValue("")
	m.status = ""
	m.sending = true

	return m, tea.Batch(m.spinner.Start(), m.sendCmd(in))
}

// sendCmd runs one round trip off the event loop.
func (m *Model) sendCmd(in dispatch.Input) tea.Cmd {
	return func() tea.Msg {
		res, err := m.sender.Send(context.Background(), in)
		return sendDoneMsg{res: res, err: err}
	}
}

func sendErrText(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrSendInFlight):
		return "a send is already in flight"
	case errors.Is(err, dispatch.ErrEmptySend):
		return "nothing to send"
	case errors.Is(err, dispatch.ErrInvalidImage):
		return "the attached image could not be decoded"
	default:
		return err.Error()
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

func (m *Model) runSlashCommand(line string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(line)
	cmd := strings.ToLower(parts[0])
	rest := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))

	switch cmd {
	case "/quit", "/q":
		return m, tea.Quit

	case "/help", "/h":
		m.status = "/session ID  /assistants  /test TEXT  /endtest  /image PATH  /clear  /quit"

	case "/clear":
		m.store.Clear()
		m.syncViewport()
		m.status = "conversation cleared"

	case "/session":
		if rest == "" {
			m.status = "session: " + m.store.ActiveSessionID()
			break
		}
		if rest != model.MainSessionID {
			if _, ok := m.cfg.Assistant(rest); !ok {
				m.status = m.theme.ErrorText.Render("unknown assistant " + rest)
				break
			}
		}
		m.store.SetActiveSession(rest)
		m.syncViewport()
		m.status = "switched to " + rest

	case "/assistants":
		ids := make([]string, 0, len(m.cfg.Assistants))
		for id := range m.cfg.Assistants {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		if len(ids) == 0 {
			m.status = "no assistants configured"
		} else {
			m.status = "assistants: " + strings.Join(ids, ", ")
		}

	case "/test":
		if rest == "" {
			m.status = "usage: /test INSTRUCTIONS"
			break
		}
		m.store.EnterTestMode(model.TestConfig{Instructions: rest})
		m.testLog = nil
		m.resetDraft()
		m.syncViewport()
		m.status = "test mode on"

	case "/endtest":
		m.store.ExitTestMode()
		m.testLog = nil
		m.resetDraft()
		m.syncViewport()
		m.status = "test mode off"

	case "/image":
		if rest == "" {
			m.status = "usage: /image PATH"
			break
		}
		dataURL, err := util.ImageDataURL(rest)
		if err != nil {
			m.status = m.theme.ErrorText.Render(err.Error())
			break
		}
		m.pendingImage = dataURL
		m.status = m.theme.ImageTag.Render(fmt.Sprintf("image %s attached to next message", rest))

	default:
		m.status = "unknown command " + cmd
	}
	return m, nil
}
