// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the live conversation state: the visible message list,
// the active session identity, and the ephemeral test-mode override.
//
// The Store is the single writer for message content and loading flags.
// Persistence is decoupled through an explicit observer: the store emits
// finalized snapshots and never blocks on durable saves.
package store
