// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch turns one user submission into one completed assistant
// message, regardless of transport shape.
//
// A Sender owns the full round trip: append the user turn, resolve the
// target model, assemble the outbound history with optional standing-context
// injection, dispatch through the gateway client, and reconstruct the reply
// through the typing scheduler until the assistant message settles. At most
// one send may be in flight per Sender; a second call is rejected
// synchronously.
package dispatch
