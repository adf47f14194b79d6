// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/plumeforge/plume-tui/internal/config"
	"github.com/plumeforge/plume-tui/internal/dispatch"
	"github.com/plumeforge/plume-tui/internal/model"
	"github.com/plumeforge/plume-tui/internal/store"
	"github.com/plumeforge/plume-tui/internal/ui/components"
	"github.com/plumeforge/plume-tui/internal/ui/styles"
)

// =============================================================================
// MESSAGES
// =============================================================================

// refreshMsg wakes the event loop after a typewriter emission or a session
// change so the transcript repaints from the store.
type refreshMsg struct{}

// sendDoneMsg carries the settled result of one round trip.
type sendDoneMsg struct {
	res *dispatch.Result
	err error
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat interface.
type Model struct {
	cfg    *config.Config
	store  *store.Store
	sender *dispatch.Sender
	theme  *styles.Theme
	keys   KeyMap

	viewport viewport.Model
	input    textinput.Model
	spinner  components.Spinner

	// refresh is fed by the sender's emit mirror and the store's
	// session-change observer; Update re-arms a listener after each wake.
	refresh chan struct{}

	width  int
	height int
	ready  bool

	sending bool
	turbo   bool
	status  string

	// pendingImage is a data URL queued by /image for the next send.
	pendingImage string

	// Test-mode turns never reach the store, so the transcript is kept
	// locally: settled turns in testLog, the in-flight reply in testDraft.
	testLog   []model.Message
	draftMu   sync.Mutex
	testDraft string
}

// New creates the chat model and registers its store observers.
func New(cfg *config.Config, st *store.Store, sender *dispatch.Sender) *Model {
	input := textinput.New()
	input.Placeholder = "Message plume (/help for commands)"
	input.CharLimit = 0
	input.Focus()

	vp := viewport.New(80, 20)

	m := &Model{
		cfg:      cfg,
		store:    st,
		sender:   sender,
		theme:    styles.NewTheme(),
		keys:     DefaultKeyMap(),
		viewport: vp,
		input:    input,
		spinner:  components.NewSpinner(),
		refresh:  make(chan struct{}, 64),
		turbo:    cfg.Typing.Turbo,
	}

	sender.SetOnEmit(func(_, text string) {
		if _, ok := st.TestMode(); ok {
			m.draftMu.Lock()
			m.testDraft += text
			m.draftMu.Unlock()
		}
		m.wake()
	})
	st.SetOnSessionChange(func(string) { m.wake() })

	return m
}

// draft returns the in-flight test-mode reply text.
func (m *Model) draft() string {
	m.draftMu.Lock()
	defer m.draftMu.Unlock()
	return m.testDraft
}

// resetDraft clears the in-flight test-mode reply.
func (m *Model) resetDraft() {
	m.draftMu.Lock()
	m.testDraft = ""
	m.draftMu.Unlock()
}

// wake nudges the event loop without blocking the emitter.
func (m *Model) wake() {
	select {
	case m.refresh <- struct{}{}:
	default:
	}
}

// SetConfig swaps in a freshly reloaded configuration.
func (m *Model) SetConfig(cfg *config.Config) {
	m.cfg = cfg
}

// Init starts the refresh listener and the input cursor blink.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForRefresh())
}

// waitForRefresh blocks until the next store wake-up.
func (m *Model) waitForRefresh() tea.Cmd {
	return func() tea.Msg {
		<-m.refresh
		return refreshMsg{}
	}
}
