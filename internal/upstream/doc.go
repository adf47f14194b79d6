// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package upstream holds the gateway's provider-facing HTTP clients.
//
// Each provider family gets its own client: OpenAI-compatible chat and image
// generation, Gemini-style generation with server-side system-instruction
// extraction, and Stability's multipart image endpoint. Provider-specific
// error shapes are normalized into UpstreamError so the gateway can expose
// one uniform error surface.
package upstream
