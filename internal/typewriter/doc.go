// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package typewriter renders queued response text character by character at
// a punctuation-aware pace, independent of how fast the network delivers it.
//
// A Scheduler moves between three states: idle, draining, and finalizing.
// Network arrival enqueues characters and wakes the drain loop; the drain
// loop emits one character per delay tick. Finalization runs exactly once,
// after the producer has signaled completion and the queue is empty.
package typewriter
