// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for messages, sessions,
// and persisted memories.
package model
