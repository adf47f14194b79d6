// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components for the chat interface. It detects the
// terminal's color capability once at startup.
type Theme struct {
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Layout dimensions, updated on resize.
	Width  int
	Height int

	// Header chrome.

	Header        lipgloss.Style
	HeaderTitle   lipgloss.Style
	HeaderSession lipgloss.Style

	// Transcript.

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	UserBubble     lipgloss.Style
	AssistantText  lipgloss.Style
	PendingText    lipgloss.Style
	ErrorText      lipgloss.Style
	ImageTag       lipgloss.Style
	Timestamp      lipgloss.Style

	// Input line.

	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style

	// Status bar.

	StatusBar      lipgloss.Style
	StatusKey      lipgloss.Style
	StatusDesc     lipgloss.Style
	TestModeBanner lipgloss.Style
	TurboTag       lipgloss.Style
	Spinner        lipgloss.Style
}

// NewTheme creates a theme with all styles configured.
func NewTheme() *Theme {
	profile := termenv.ColorProfile()
	t := &Theme{
		IsDark:       termenv.HasDarkBackground(),
		HasTrueColor: profile == termenv.TrueColor,
		ColorProfile: profile,
	}
	t.initStyles()
	return t
}

// SetSize records the terminal dimensions for layout-dependent styles.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Teal).
		Background(SurfaceDim).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Plum)

	t.HeaderSession = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.UserLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Teal)

	t.AssistantLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Plum)

	t.UserBubble = lipgloss.NewStyle().
		Foreground(TextPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(Teal).
		PaddingLeft(1)

	t.AssistantText = lipgloss.NewStyle().
		Foreground(TextPrimary)

	t.PendingText = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.ErrorText = lipgloss.NewStyle().
		Foreground(Rose)

	t.ImageTag = lipgloss.NewStyle().
		Foreground(Amber)

	t.Timestamp = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.InputPrompt = lipgloss.NewStyle().
		Bold(true).
		Foreground(Teal)

	t.StatusBar = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(SurfaceDim).
		Padding(0, 1)

	t.StatusKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(Teal)

	t.StatusDesc = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.TestModeBanner = lipgloss.NewStyle().
		Bold(true).
		Foreground(Surface).
		Background(Amber).
		Padding(0, 1)

	t.TurboTag = lipgloss.NewStyle().
		Bold(true).
		Foreground(Emerald)

	t.Spinner = lipgloss.NewStyle().
		Foreground(Plum)
}
