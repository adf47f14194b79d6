// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider implements the HTTP client for the plume gateway.
//
// The gateway normalizes every upstream AI provider into two response
// shapes: a single JSON object, or a Server-Sent-Events stream of
// data: {json} frames carrying text fragments, a terminal done marker, or an
// inline error. Send returns a tagged Reply decided once at the transport
// boundary so callers reconstruct both shapes through one code path.
package provider
