// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package memory persists conversation snapshots as durable memory records.
//
// Records live in a local SQLite database. Saves are designed to be called
// from fire-and-forget goroutines: every write is a single upsert and
// failures surface as ordinary errors for the caller to log. A background
// namer assigns human-readable titles to unnamed records after the fact.
package memory
