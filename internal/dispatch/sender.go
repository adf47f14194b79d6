// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/plumeforge/plume-tui/internal/config"
	"github.com/plumeforge/plume-tui/internal/model"
	"github.com/plumeforge/plume-tui/internal/provider"
	"github.com/plumeforge/plume-tui/internal/store"
	"github.com/plumeforge/plume-tui/internal/typewriter"
)

// =============================================================================
// ERRORS AND CONSTANTS
// =============================================================================

var (
	// ErrSendInFlight is returned when a send is already pending.
	ErrSendInFlight = errors.New("a send is already in flight")
	// ErrEmptySend is returned when both text and image are empty.
	ErrEmptySend = errors.New("nothing to send")
	// ErrInvalidImage is returned when an attached image cannot be decoded.
	ErrInvalidImage = errors.New("invalid image attachment")
)

// EmptyCompletionPlaceholder is stored when the provider returns an empty
// completion outside of test mode. Test mode keeps the literal empty string
// so the transient history retains the truth.
const EmptyCompletionPlaceholder = "[No response received]"

// errorSuffix annotates partial content after a mid-stream failure.
func errorSuffix(msg string) string {
	return fmt.Sprintf(" [Error: %s]", msg)
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Chatter is the gateway surface the sender needs.
type Chatter interface {
	Send(ctx context.Context, req *provider.ChatRequest) (provider.Reply, error)
}

// Input is one composed user turn.
type Input struct {
	Text string

	// ImageDataURL carries an optional attachment as a browser-style data
	// URL ("data:image/png;base64,..."). Decode failures abort the send
	// before any network activity.
	ImageDataURL string

	// TestContext is the caller-held transient history, required while
	// test mode is active and ignored otherwise.
	TestContext []model.Message
}

// Result mirrors the send's outcome. In normal mode the store holds the
// authoritative messages and these fields are convenience copies; in test
// mode they are the only copies and the caller must keep them.
type Result struct {
	Success          bool
	AIResponse       string
	UserMessage      *model.Message
	AssistantMessage *model.Message
}

// =============================================================================
// SENDER
// =============================================================================

// Sender executes message sends one at a time.
type Sender struct {
	mu       sync.Mutex
	inFlight bool
	active   *typewriter.Scheduler

	cfg    *config.Config
	st     *store.Store
	client Chatter
	turbo  bool

	// onEmit mirrors every typewriter emission to a display layer.
	onEmit func(messageID, text string)
}

// New creates a sender bound to a store and gateway client.
func New(cfg *config.Config, st *store.Store, client Chatter) *Sender {
	return &Sender{cfg: cfg, st: st, client: client}
}

// SetConfig swaps in a freshly reloaded configuration.
func (s *Sender) SetConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// SetTurbo toggles fast playback, including for a drain already running.
func (s *Sender) SetTurbo(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turbo = on
	if s.active != nil {
		s.active.SetTurbo(on)
	}
}

// SetOnEmit registers a mirror for typewriter emissions so terminal front
// ends can render fragments as they land in the store.
func (s *Sender) SetOnEmit(fn func(messageID, text string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEmit = fn
}

// InFlight reports whether a send is currently pending.
func (s *Sender) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Send runs one full round trip and blocks until the assistant message has
// settled. Precondition failures return before any network activity; a
// mid-stream failure still settles the message (partial text plus an error
// suffix) before returning the error.
func (s *Sender) Send(ctx context.Context, in Input) (*Result, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && in.ImageDataURL == "" {
		return nil, ErrEmptySend
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, ErrSendInFlight
	}
	s.inFlight = true
	cfg := s.cfg
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.active = nil
		s.mu.Unlock()
	}()

	attachment, err := decodeImageDataURL(in.ImageDataURL)
	if err != nil {
		return nil, err
	}

	testCfg, testMode := s.st.TestMode()
	sessionID := s.st.ActiveSessionID()

	userMsg := &model.Message{
		Role:            model.RoleUser,
		Content:         text,
		ImagePreviewURL: in.ImageDataURL,
	}
	asstMsg := model.NewAssistantMessage()

	if testMode {
		userMsg.ID = model.NewMessageID()
		userMsg.Timestamp = time.Now()
	} else {
		if _, err := s.st.AddMessage(userMsg); err != nil {
			return nil, err
		}
		if _, err := s.st.AddMessage(asstMsg); err != nil {
			return nil, err
		}
	}

	modelID := resolveModel(cfg, testCfg, testMode, s.st.ActiveSession())

	history := s.st.FormattedHistory(store.HistoryOptions{
		ContextMessages: append(append([]model.Message{}, in.TestContext...), *userMsg),
	})
	history = injectStandingContext(cfg, sessionID, history)
	if len(history) == 0 {
		history = synthesizeFallbackTurn(text, in.ImageDataURL)
	}

	req := &provider.ChatRequest{
		Model:       modelID,
		Messages:    history,
		Temperature: cfg.Gateway.Temperature,
		MaxTokens:   cfg.Gateway.MaxTokens,
		TopP:        cfg.Gateway.TopP,
		Stream:      true,
		Image:       attachment,
	}

	result := &Result{UserMessage: userMsg, AssistantMessage: asstMsg}

	reply, err := s.client.Send(ctx, req)
	if err != nil {
		s.settle(asstMsg, testMode, errorSuffix(err.Error()))
		result.AIResponse = asstMsg.Content
		return result, err
	}

	finalText, streamErr := s.reconstruct(reply, asstMsg, testMode)
	if streamErr != nil {
		s.settle(asstMsg, testMode, finalText)
		result.AIResponse = finalText
		return result, streamErr
	}

	if finalText == "" && !testMode {
		finalText = EmptyCompletionPlaceholder
	}
	s.settle(asstMsg, testMode, finalText)

	result.Success = true
	result.AIResponse = finalText
	return result, nil
}

// =============================================================================
// RECONSTRUCTION
// =============================================================================

// reconstruct feeds the reply through the typing scheduler and returns the
// full accumulated text once both delivery and the drain have completed. On
// failure it returns the accumulated text with an error suffix already
// appended, plus the error itself.
func (s *Sender) reconstruct(reply provider.Reply, asstMsg *model.Message, testMode bool) (string, error) {
	var acc strings.Builder
	done := make(chan struct{})

	s.mu.Lock()
	cfg := s.cfg
	turbo := s.turbo
	onEmit := s.onEmit
	s.mu.Unlock()

	sched := typewriter.New(typewriter.Config{
		Delays:       delaysFrom(cfg.Typing),
		Turbo:        turbo || cfg.Typing.Turbo,
		TurboDivisor: cfg.Typing.TurboDivisor,
		OnEmit: func(text string) {
			if testMode {
				asstMsg.Content += text
			} else if err := s.st.AppendToMessage(asstMsg.ID, text); err != nil {
				// The session moved on mid-stream; the send finishes
				// detached from the visible list.
				log.Printf("DISPATCH: emit into %s dropped: %v", asstMsg.ID, err)
			}
			if onEmit != nil {
				onEmit(asstMsg.ID, text)
			}
		},
		OnFinalize: func() { close(done) },
	})

	s.mu.Lock()
	s.active = sched
	s.mu.Unlock()

	var streamErr error

	switch r := reply.(type) {
	case *provider.StreamedReply:
		for ev := range r.Events {
			switch {
			case ev.Err != nil:
				streamErr = ev.Err
			case ev.ErrorText != "":
				streamErr = &provider.ClientError{
					Type:    provider.ErrTypeUpstream,
					Message: ev.ErrorText,
				}
			case ev.Done:
				// Terminal marker; the channel closes next.
			case ev.Text != "":
				acc.WriteString(ev.Text)
				sched.Enqueue(ev.Text)
			}
			if streamErr != nil {
				break
			}
		}
	case *provider.CompleteReply:
		resp := r.Response
		switch {
		case resp.Error != "":
			streamErr = &provider.ClientError{
				Type:    provider.ErrTypeUpstream,
				Message: resp.Error,
			}
		case resp.AIText == "" && resp.BlockReason != "":
			blocked := fmt.Sprintf("[Blocked: %s]", resp.BlockReason)
			acc.WriteString(blocked)
			sched.Enqueue(blocked)
		default:
			acc.WriteString(resp.AIText)
			sched.Enqueue(resp.AIText)
		}
	default:
		streamErr = &provider.ClientError{
			Type:    provider.ErrTypeInvalidResponse,
			Message: "unknown reply variant",
		}
	}

	if streamErr != nil {
		sched.Fail()
		<-done
		return acc.String() + errorSuffix(streamErr.Error()), streamErr
	}

	sched.MarkDeliveryComplete()
	<-done
	return acc.String(), nil
}

// settle writes the final untruncated text and clears the loading flag,
// exactly once per send. It never leaves a message stuck loading.
func (s *Sender) settle(asstMsg *model.Message, testMode bool, finalText string) {
	if testMode {
		asstMsg.Content = finalText
		asstMsg.IsLoading = false
		return
	}
	if err := s.st.SetMessageContent(asstMsg.ID, finalText); err != nil {
		log.Printf("DISPATCH: final write for %s failed: %v", asstMsg.ID, err)
	} else {
		asstMsg.Content = finalText
	}
	if err := s.st.UpdateMessageLoadingState(asstMsg.ID, false); err != nil {
		log.Printf("DISPATCH: clear loading for %s failed: %v", asstMsg.ID, err)
	}
	asstMsg.IsLoading = false
}

// =============================================================================
// REQUEST ASSEMBLY
// =============================================================================

// resolveModel applies the override chain: trial config, then the active
// assistant's configured model, then the global default.
func resolveModel(cfg *config.Config, testCfg model.TestConfig, testMode bool, session model.Session) string {
	if testMode && strings.TrimSpace(testCfg.Model) != "" {
		return testCfg.Model
	}
	if strings.TrimSpace(session.Model) != "" {
		return session.Model
	}
	return cfg.DefaultModel
}

// injectStandingContext folds the persistent user facts into the outbound
// list when the active session qualifies. An existing system entry gains the
// facts as a prefix; otherwise a new leading system entry is inserted.
func injectStandingContext(cfg *config.Config, sessionID string, history []provider.ChatMessage) []provider.ChatMessage {
	if !cfg.ContextAppliesTo(sessionID) {
		return history
	}
	facts := strings.TrimSpace(cfg.Context.Facts)

	if len(history) > 0 && history[0].Role == model.RoleSystem.String() {
		history[0].Content = facts + "\n\n" + history[0].Content
		return history
	}
	out := make([]provider.ChatMessage, 0, len(history)+1)
	out = append(out, provider.ChatMessage{Role: model.RoleSystem.String(), Content: facts})
	return append(out, history...)
}

// synthesizeFallbackTurn degrades an empty outbound list into a minimal
// single-user-turn payload instead of failing the send.
func synthesizeFallbackTurn(text, imageDataURL string) []provider.ChatMessage {
	content := text
	if imageDataURL != "" {
		content = store.ImagePlaceholder + content
	}
	return []provider.ChatMessage{{Role: model.RoleUser.String(), Content: strings.TrimSpace(content)}}
}

// decodeImageDataURL parses a data URL into a verified attachment. An empty
// input yields no attachment and no error.
func decodeImageDataURL(dataURL string) (*provider.ImageAttachment, error) {
	if dataURL == "" {
		return nil, nil
	}
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return nil, fmt.Errorf("%w: missing data URL prefix", ErrInvalidImage)
	}
	mimeType, payload, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return nil, fmt.Errorf("%w: not base64-encoded", ErrInvalidImage)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w: unsupported type %q", ErrInvalidImage, mimeType)
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return &provider.ImageAttachment{Base64: payload, MimeType: mimeType}, nil
}

func delaysFrom(t config.TypingConfig) typewriter.Delays {
	return typewriter.Delays{
		Base:     time.Duration(t.BaseMs) * time.Millisecond,
		Space:    time.Duration(t.SpaceMs) * time.Millisecond,
		Comma:    time.Duration(t.CommaMs) * time.Millisecond,
		Sentence: time.Duration(t.SentenceMs) * time.Millisecond,
		Newline:  time.Duration(t.NewlineMs) * time.Millisecond,
	}
}
