// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli parses plume's command line and implements every non-TUI
// command: one-shot ask, the interactive chat REPL, the gateway server,
// first-run setup, saved-session management, and configuration editing.
//
// Parsing is two-layered. Parse strips global flags (--model, --turbo,
// --quiet, --json) and maps the first remaining word to a Command; each
// command handler then feeds its leftover arguments to ArgParser for
// subcommands and per-command flags.
package cli
