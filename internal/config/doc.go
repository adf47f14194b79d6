// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for plume.
//
// Configuration lives in ~/.plume/config.toml. Load applies built-in
// defaults, then the file, then environment variable overrides, and finally
// validates the result. A Watcher can reload the file on change so edits to
// assistants or the standing context apply without a restart.
package config
