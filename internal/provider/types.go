// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import "strings"

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the gateway client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeUnavailable
	ErrTypeTimeout
	ErrTypeInvalidResponse
	ErrTypeUpstream
)

// Sentinel errors for easy checking.
var (
	ErrUnavailable = &ClientError{Type: ErrTypeUnavailable, Message: "gateway is not reachable"}
	ErrTimeout     = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
)

// =============================================================================
// CHAT TYPES
// =============================================================================

// ChatMessage is one entry of the provider-ready message list.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body for both text-completion endpoints.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	Stream      bool          `json:"stream,omitempty"`

	// Image carries an out-of-band attachment; the formatted history only
	// holds the textual placeholder.
	Image *ImageAttachment `json:"image,omitempty"`
}

// ImageAttachment is a decoded image payload.
type ImageAttachment struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mime_type"`
}

// Usage reports upstream token accounting when available.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ChatResponse is the single-shot success shape.
type ChatResponse struct {
	AIText      string `json:"aiText"`
	BlockReason string `json:"blockReason,omitempty"`
	Usage       *Usage `json:"usage,omitempty"`
	Error       string `json:"error,omitempty"`
}

// =============================================================================
// STREAM EVENTS
// =============================================================================

// StreamEvent is one decoded SSE frame.
//
// Exactly one of Text, Done, or ErrorText is meaningful per frame; Err
// reports transport-level failures injected by the reader itself.
type StreamEvent struct {
	Text      string `json:"text,omitempty"`
	Done      bool   `json:"done,omitempty"`
	Message   string `json:"message,omitempty"`
	ErrorText string `json:"error,omitempty"`

	Err error `json:"-"`
}

// =============================================================================
// REPLY VARIANTS
// =============================================================================

// Reply is the transport-shape union returned by Send. The variant is
// decided exactly once, from the response Content-Type.
type Reply interface {
	isReply()
}

// StreamedReply exposes the incremental event sequence of an SSE body.
// The channel closes after the done marker, an error event, or EOF.
type StreamedReply struct {
	Events <-chan StreamEvent
}

func (*StreamedReply) isReply() {}

// CompleteReply carries a fully parsed single-shot response.
type CompleteReply struct {
	Response *ChatResponse
}

func (*CompleteReply) isReply() {}

// =============================================================================
// IMAGE GENERATION TYPES
// =============================================================================

// ImageRequest is the body for the DALL-E style endpoint.
type ImageRequest struct {
	Prompt  string `json:"prompt"`
	Model   string `json:"model"`
	Size    string `json:"size"`
	Quality string `json:"quality,omitempty"`
	Style   string `json:"style,omitempty"`
}

// ImageResponse is the image-generation success shape.
type ImageResponse struct {
	ImageBase64   string `json:"imageBase64"`
	RevisedPrompt string `json:"revisedPrompt,omitempty"`
	Error         string `json:"error,omitempty"`
}

// =============================================================================
// TITLE / NAME GENERATION TYPES
// =============================================================================

// TitleRequest asks for a display name for a memory snapshot.
type TitleRequest struct {
	Messages []ChatMessage `json:"messages"`
	MemoryID string        `json:"memoryId"`
}

// TitleResponse carries the generated title.
type TitleResponse struct {
	Title    string `json:"title"`
	MemoryID string `json:"memoryId"`
	Error    string `json:"error,omitempty"`
}

// NameRequest asks for an assistant name derived from instructions.
type NameRequest struct {
	Instructions string `json:"instructions"`
}

// NameResponse carries the generated name.
type NameResponse struct {
	Name  string `json:"name"`
	Error string `json:"error,omitempty"`
}

// =============================================================================
// MODEL FAMILIES
// =============================================================================

// IsGeminiModel reports whether a model identifier belongs to the Gemini
// family, which is served by its own gateway endpoint.
func IsGeminiModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(model), "gemini")
}
