// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides utility functions shared across plume.
//
// It contains string helpers (Unicode-safe truncation, normalization) and
// reliable file writing primitives used by the config and persistence layers.
package util
