// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/plumeforge/plume-tui/internal/config"
	"github.com/plumeforge/plume-tui/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidRole is returned for roles outside user/assistant/system.
	ErrInvalidRole = errors.New("invalid message role")
	// ErrEmptyMessage is returned for blank non-assistant messages.
	ErrEmptyMessage = errors.New("message content must not be empty")
	// ErrMessageNotFound is returned when a message ID is unknown.
	ErrMessageNotFound = errors.New("message not found")
)

// =============================================================================
// PERSISTENCE OBSERVER
// =============================================================================

// Persistence is the durable-snapshot collaborator. Saves are best-effort
// and asynchronous; loads happen only on session switch.
type Persistence interface {
	// SaveSession creates or updates the memory linked to a session.
	SaveSession(sessionID string, messages []model.Message) error
	// LatestForSession returns the most recent snapshot for a session.
	LatestForSession(sessionID string) (*model.Memory, bool, error)
}

// =============================================================================
// STORE
// =============================================================================

// Store owns the active session's ordered message list.
type Store struct {
	mu sync.Mutex

	cfg       *config.Config
	sessionID string
	messages  []*model.Message
	testMode  *model.TestConfig

	persistence Persistence

	// onSessionChange notifies the assistant-selection collaborator.
	onSessionChange func(sessionID string)
	// onFinalized fires after an assistant turn resolves, with a snapshot
	// of the session at that point.
	onFinalized func(sessionID string, messages []model.Message)
}

// New creates a store bound to the main session.
func New(cfg *config.Config, persistence Persistence) *Store {
	return &Store{
		cfg:         cfg,
		sessionID:   model.MainSessionID,
		persistence: persistence,
	}
}

// SetOnSessionChange registers the session-switch observer.
func (s *Store) SetOnSessionChange(fn func(sessionID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSessionChange = fn
}

// SetOnFinalized registers the turn-finalized observer. It runs on a
// background goroutine so persistence can never block the send path.
func (s *Store) SetOnFinalized(fn func(sessionID string, messages []model.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFinalized = fn
}

// SetConfig swaps in a freshly reloaded configuration.
func (s *Store) SetConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// =============================================================================
// SESSION MANAGEMENT
// =============================================================================

// ActiveSessionID returns the current session identifier.
func (s *Store) ActiveSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// ActiveSession resolves the current session's identity and instructions.
func (s *Store) ActiveSession() model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionLocked()
}

func (s *Store) sessionLocked() model.Session {
	if s.sessionID == model.MainSessionID {
		return model.Session{ID: model.MainSessionID}
	}
	if a, ok := s.cfg.Assistant(s.sessionID); ok {
		return model.Session{
			ID:           s.sessionID,
			Name:         a.Name,
			Instructions: a.Instructions,
			Model:        a.Model,
		}
	}
	return model.Session{ID: s.sessionID}
}

// SetActiveSession switches the active session. An outgoing non-test session
// with unsaved messages is persisted best-effort first; failures are logged
// and never block the switch. Test mode is cleared, and the most recent
// snapshot for the new session is loaded if one exists.
func (s *Store) SetActiveSession(id string) {
	s.mu.Lock()

	if s.testMode == nil && len(s.messages) > 0 && s.persistence != nil {
		outgoing := s.sessionID
		snapshot := s.snapshotLocked()
		go func() {
			if err := s.persistence.SaveSession(outgoing, snapshot); err != nil {
				log.Printf("STORE: save before switch failed for %s: %v", outgoing, err)
			}
		}()
	}

	s.testMode = nil
	s.sessionID = id
	s.messages = nil

	if s.persistence != nil {
		if mem, ok, err := s.persistence.LatestForSession(id); err != nil {
			log.Printf("STORE: load snapshot for %s failed: %v", id, err)
		} else if ok {
			s.messages = make([]*model.Message, 0, len(mem.Messages))
			for i := range mem.Messages {
				msg := mem.Messages[i]
				s.messages = append(s.messages, &msg)
			}
		}
	}

	notify := s.onSessionChange
	s.mu.Unlock()

	if notify != nil {
		notify(id)
	}
}

// =============================================================================
// TEST MODE
// =============================================================================

// EnterTestMode activates the ephemeral trial override. Store-backed
// mutation is suspended until ExitTestMode.
func (s *Store) EnterTestMode(cfg model.TestConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.testMode = &cfg
}

// ExitTestMode deactivates the trial override.
func (s *Store) ExitTestMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.testMode = nil
}

// TestMode returns the active trial override, if any.
func (s *Store) TestMode() (model.TestConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.testMode == nil {
		return model.TestConfig{}, false
	}
	return *s.testMode, true
}

// =============================================================================
// MESSAGE MUTATION
// =============================================================================

// AddMessage appends a message to the live list. Blank content is rejected
// except for assistant messages, which may start empty and grow via
// streaming. While test mode is active the call is a no-op and returns nil.
// Appending a completed assistant message triggers an asynchronous save.
func (s *Store) AddMessage(msg *model.Message) (*model.Message, error) {
	if !msg.Role.Valid() {
		return nil, ErrInvalidRole
	}
	if msg.Role != model.RoleAssistant && strings.TrimSpace(msg.Content) == "" && msg.ImagePreviewURL == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.testMode != nil {
		s.mu.Unlock()
		return nil, nil
	}
	if msg.ID == "" {
		msg.ID = model.NewMessageID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.messages = append(s.messages, msg)

	completed := msg.Role == model.RoleAssistant && !msg.IsLoading
	s.mu.Unlock()

	if completed {
		s.emitFinalized()
	}
	return msg, nil
}

// AppendToMessage appends text to a message's content. This is the
// typewriter's emit path; the store is the single writer for content.
func (s *Store) AppendToMessage(messageID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.findLocked(messageID)
	if msg == nil {
		return ErrMessageNotFound
	}
	msg.Content += text
	return nil
}

// SetMessageContent replaces a message's content. Used by finalization to
// write the untruncated text exactly once.
func (s *Store) SetMessageContent(messageID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.findLocked(messageID)
	if msg == nil {
		return ErrMessageNotFound
	}
	msg.Content = content
	return nil
}

// UpdateMessageLoadingState flips a message's loading flag. Transitioning an
// assistant message to settled triggers an asynchronous save. No-op in test
// mode.
func (s *Store) UpdateMessageLoadingState(messageID string, isLoading bool) error {
	s.mu.Lock()
	if s.testMode != nil {
		s.mu.Unlock()
		return nil
	}
	msg := s.findLocked(messageID)
	if msg == nil {
		s.mu.Unlock()
		return ErrMessageNotFound
	}
	wasLoading := msg.IsLoading
	msg.IsLoading = isLoading
	settled := wasLoading && !isLoading && msg.Role == model.RoleAssistant
	s.mu.Unlock()

	if settled {
		s.emitFinalized()
	}
	return nil
}

// Messages returns a snapshot copy of the live message list.
func (s *Store) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Message returns a copy of one message by ID.
func (s *Store) Message(messageID string) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg := s.findLocked(messageID); msg != nil {
		return *msg, true
	}
	return model.Message{}, false
}

// Clear drops the live message list without touching persistence.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// =============================================================================
// INTERNAL
// =============================================================================

func (s *Store) findLocked(messageID string) *model.Message {
	for _, m := range s.messages {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}

func (s *Store) snapshotLocked() []model.Message {
	out := make([]model.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, *m)
	}
	return out
}

// emitFinalized delivers a snapshot to the finalized observer on a
// background goroutine.
func (s *Store) emitFinalized() {
	s.mu.Lock()
	fn := s.onFinalized
	id := s.sessionID
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if fn != nil {
		go fn(id, snapshot)
	}
}
