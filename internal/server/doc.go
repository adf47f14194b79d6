// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the provider gateway: a local HTTP API that fronts
// the upstream AI providers with one uniform request/response surface.
//
// # Endpoints
//
//   - POST /api/chat             - OpenAI-style chat, single-shot or SSE stream
//   - POST /api/gemini/chat      - Gemini-style chat with system extraction
//   - POST /api/images/dalle     - DALL-E image generation
//   - POST /api/images/stability - Stability image generation (multipart upstream)
//   - POST /api/title            - Title a conversation snapshot
//   - POST /api/name             - Name an assistant from its instructions
//   - GET  /health               - Health check
//
// All endpoints are CORS-enabled (OPTIONS preflight answers 200 with an
// empty body) and rate limited per client IP. Provider-specific failures are
// normalized to a uniform {"error": string} body on non-success status.
//
// # Usage
//
//	srv := server.New(cfg)
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
package server
