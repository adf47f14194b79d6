// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the plume TUI: a Bubble Tea model wrapping the
// conversation store, the dispatch sender, and the typewriter playback.
//
// The sender runs each round trip on its own goroutine (a tea.Cmd);
// typewriter emissions land in the store and wake the event loop through
// an internal channel so the transcript repaints as characters arrive.
package chat
