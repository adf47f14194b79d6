// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package typewriter

import (
	"sync"
	"time"
)

// =============================================================================
// DELAY POLICY
// =============================================================================

// Delays holds the per-character delay classes. The class applied to a
// character is chosen by the character that precedes it, so the pause lands
// after punctuation, where a reader expects it.
type Delays struct {
	Base     time.Duration
	Space    time.Duration
	Comma    time.Duration
	Sentence time.Duration
	Newline  time.Duration
}

// DefaultDelays returns a human-readable typing cadence.
func DefaultDelays() Delays {
	return Delays{
		Base:     18 * time.Millisecond,
		Space:    35 * time.Millisecond,
		Comma:    120 * time.Millisecond,
		Sentence: 260 * time.Millisecond,
		Newline:  180 * time.Millisecond,
	}
}

// classify returns the delay for the character following prev.
func (d Delays) classify(prev rune) time.Duration {
	switch prev {
	case '.', '!', '?':
		return d.Sentence
	case ',':
		return d.Comma
	case '\n':
		return d.Newline
	case ' ':
		return d.Space
	default:
		return d.Base
	}
}

// MinDelay is the floor applied to turbo-divided delays.
const MinDelay = time.Millisecond

// =============================================================================
// SCHEDULER
// =============================================================================

// Scheduler drains a queue of pending characters into a message's visible
// content. One scheduler serves one in-flight assistant message.
//
// Concurrency: Enqueue and MarkDeliveryComplete are called from the network
// reader; the drain loop runs on its own goroutine. The queue and flags are
// guarded by a mutex, and at most one drain loop exists at a time, so emits
// are single-writer by construction.
type Scheduler struct {
	mu sync.Mutex

	queue        []rune
	draining     bool
	deliveryDone bool
	finalized    bool
	prev         rune

	delays       Delays
	turbo        bool
	turboDivisor int

	// onEmit appends one character to the visible content.
	onEmit func(text string)
	// onFinalize reconciles the final content and loading flag. Runs
	// exactly once per scheduler.
	onFinalize func()
}

// Config holds scheduler construction options.
type Config struct {
	Delays       Delays
	Turbo        bool
	TurboDivisor int

	OnEmit     func(text string)
	OnFinalize func()
}

// New creates a scheduler in the idle state.
func New(cfg Config) *Scheduler {
	if cfg.TurboDivisor < 1 {
		cfg.TurboDivisor = 1
	}
	zero := Delays{}
	if cfg.Delays == zero {
		cfg.Delays = DefaultDelays()
	}
	return &Scheduler{
		delays:       cfg.Delays,
		turbo:        cfg.Turbo,
		turboDivisor: cfg.TurboDivisor,
		onEmit:       cfg.OnEmit,
		onFinalize:   cfg.OnFinalize,
	}
}

// =============================================================================
// PRODUCER SIDE
// =============================================================================

// Enqueue adds text to the pending queue and starts the drain loop if it is
// idle. A running loop picks up new characters without re-invocation.
func (s *Scheduler) Enqueue(text string) {
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, []rune(text)...)
	start := !s.draining
	if start {
		s.draining = true
	}
	s.mu.Unlock()

	if start {
		go s.drain()
	}
}

// MarkDeliveryComplete signals that the producer has no more text. If the
// queue is already drained and no loop is running, finalization happens
// immediately; otherwise the running loop finalizes when it empties the
// queue.
func (s *Scheduler) MarkDeliveryComplete() {
	s.mu.Lock()
	s.deliveryDone = true
	finalizeNow := !s.draining && len(s.queue) == 0 && !s.finalized
	if finalizeNow {
		s.finalized = true
	}
	s.mu.Unlock()

	if finalizeNow && s.onFinalize != nil {
		s.onFinalize()
	}
}

// Fail aborts the animation: the queue is cleared and finalization runs
// immediately instead of a graceful drain. Whatever was already emitted
// stays visible; the caller appends its error notice before calling Fail.
func (s *Scheduler) Fail() {
	s.mu.Lock()
	s.queue = nil
	s.deliveryDone = true
	finalizeNow := !s.finalized
	if finalizeNow {
		s.finalized = true
	}
	drainRunning := s.draining
	s.mu.Unlock()

	// A running drain loop observes the empty queue and exits without
	// finalizing a second time.
	_ = drainRunning

	if finalizeNow && s.onFinalize != nil {
		s.onFinalize()
	}
}

// SetTurbo toggles fast playback for characters not yet drained.
func (s *Scheduler) SetTurbo(on bool) {
	s.mu.Lock()
	s.turbo = on
	s.mu.Unlock()
}

// Pending returns the number of queued characters, for status display.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// =============================================================================
// DRAIN LOOP
// =============================================================================

// drain emits one character per tick until the queue empties. On empty it
// either finalizes (delivery complete), or parks back to idle and waits for
// the next Enqueue.
func (s *Scheduler) drain() {
	for {
		s.mu.Lock()
		if s.finalized {
			s.draining = false
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			s.draining = false
			finalizeNow := s.deliveryDone && !s.finalized
			if finalizeNow {
				s.finalized = true
			}
			s.mu.Unlock()

			if finalizeNow && s.onFinalize != nil {
				s.onFinalize()
			}
			return
		}

		ch := s.queue[0]
		s.queue = s.queue[1:]
		delay := s.delays.classify(s.prev)
		if s.turbo {
			delay /= time.Duration(s.turboDivisor)
			if delay < MinDelay {
				delay = MinDelay
			}
		}
		s.prev = ch
		emit := s.onEmit
		s.mu.Unlock()

		if emit != nil {
			emit(string(ch))
		}
		time.Sleep(delay)
	}
}
