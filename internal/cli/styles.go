// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - shared terminal styling for plume's CLI commands.
//
// Colors are disabled for non-TTY output and when NO_COLOR is set;
// FORCE_COLOR overrides detection.

package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func init() {
	lipgloss.SetColorProfile(ColorProfile())
}

// ColorProfile returns the termenv profile to render with.
func ColorProfile() termenv.Profile {
	if os.Getenv("NO_COLOR") != "" && os.Getenv("FORCE_COLOR") == "" {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle heads command output.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	// LabelStyle renders field labels in aligned listings.
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(14)

	// PromptStyle renders the REPL prompt.
	PromptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	// InfoStyle renders secondary information lines.
	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	// SuccessStyle renders confirmations.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	// WarnStyle renders warnings.
	WarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	// ErrorStyle renders failures.
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	// PinStyle marks pinned conversations in listings.
	PinStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)
