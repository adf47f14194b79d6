// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/plumeforge/plume-tui/internal/config"
	"github.com/plumeforge/plume-tui/internal/upstream"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultPort is the default gateway port.
	DefaultPort = 8791

	// MaxRequestBodySize caps request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// MaxMessageCount is the maximum number of messages in a request.
	MaxMessageCount = 100

	// MaxQueryLength is the maximum length for a single message.
	MaxQueryLength = 100000

	// MaxTokensLimit is the maximum value for max_tokens.
	MaxTokensLimit = 128000

	// MinTemperature and MaxTemperature bound the sampling temperature.
	MinTemperature = 0.0
	MaxTemperature = 2.0

	// Version is the gateway version.
	Version = "0.1.0"
)

// validRoles is the accepted set of message roles.
var validRoles = map[string]bool{
	"user":      true,
	"assistant": true,
	"system":    true,
}

// dalleSizes lists the accepted size per image model. Requests outside
// these tables are rejected outright rather than silently coerced.
var dalleSizes = map[string]map[string]bool{
	"dall-e-2": {"256x256": true, "512x512": true, "1024x1024": true},
	"dall-e-3": {"1024x1024": true, "1792x1024": true, "1024x1792": true},
}

var dalleQualities = map[string]bool{"standard": true, "hd": true}
var dalleStyles = map[string]bool{"vivid": true, "natural": true}

// =============================================================================
// SERVER
// =============================================================================

// Server is the provider gateway.
type Server struct {
	port   int
	router *http.ServeMux
	server *http.Server

	cfg *config.ServerConfig

	openai    *upstream.OpenAIClient
	gemini    *upstream.GeminiClient
	stability *upstream.StabilityClient

	limiter *RateLimiter
}

// New creates a gateway from a server configuration. API keys come from the
// environment first, then the configuration; a client without a key stays
// unconfigured and its endpoints answer with a configuration error.
func New(cfg *config.ServerConfig) *Server {
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}

	s := &Server{
		port:      port,
		router:    http.NewServeMux(),
		cfg:       cfg,
		openai:    upstream.NewOpenAIClient(resolveKey("OPENAI_API_KEY", cfg.OpenAIKey)).WithBaseURL(cfg.OpenAIBaseURL),
		gemini:    upstream.NewGeminiClient(resolveKey("GEMINI_API_KEY", cfg.GeminiKey)).WithBaseURL(cfg.GeminiBaseURL),
		stability: upstream.NewStabilityClient(resolveKey("STABILITY_API_KEY", cfg.StabilityKey)).WithBaseURL(cfg.StabilityBaseURL),
		limiter:   NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
	}
	s.setupRoutes()
	return s
}

// resolveKey prefers the environment variable over the configured value.
func resolveKey(envVar, configured string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return configured
}

// WithOpenAIClient sets a custom OpenAI client.
func (s *Server) WithOpenAIClient(c *upstream.OpenAIClient) *Server {
	s.openai = c
	return s
}

// WithGeminiClient sets a custom Gemini client.
func (s *Server) WithGeminiClient(c *upstream.GeminiClient) *Server {
	s.gemini = c
	return s
}

// WithStabilityClient sets a custom Stability client.
func (s *Server) WithStabilityClient(c *upstream.StabilityClient) *Server {
	s.stability = c
	return s
}

// Port returns the gateway port.
func (s *Server) Port() int {
	return s.port
}

// Handler returns the fully assembled handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(),
		LoggingMiddleware(log.Default()),
		CORSMiddleware(DefaultCORSConfig()),
		RateLimitMiddleware(s.limiter),
	)(s.router)
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/chat", s.handleChat)
	s.router.HandleFunc("POST /api/gemini/chat", s.handleGeminiChat)
	s.router.HandleFunc("POST /api/images/dalle", s.handleDalleImage)
	s.router.HandleFunc("POST /api/images/stability", s.handleStabilityImage)
	s.router.HandleFunc("POST /api/title", s.handleTitle)
	s.router.HandleFunc("POST /api/name", s.handleName)
	s.router.HandleFunc("GET /health", s.handleHealth)
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// ChatMessage is one turn in a chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body for both chat endpoints.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// ChatResponse is the single-shot success body.
type ChatResponse struct {
	AIText      string          `json:"aiText"`
	BlockReason string          `json:"blockReason,omitempty"`
	Usage       *upstream.Usage `json:"usage,omitempty"`
}

// streamFrame is one SSE data payload.
type streamFrame struct {
	Text    string `json:"text,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ImageRequest is the body for /api/images/dalle.
type ImageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
	Style   string `json:"style,omitempty"`
}

// StabilityRequest is the body for /api/images/stability.
type StabilityRequest struct {
	Prompt string `json:"prompt"`
}

// ImageResponse carries one generated image.
type ImageResponse struct {
	ImageBase64   string `json:"imageBase64"`
	RevisedPrompt string `json:"revisedPrompt,omitempty"`
}

// TitleRequest asks for a snapshot title.
type TitleRequest struct {
	Messages []ChatMessage `json:"messages"`
	MemoryID string        `json:"memoryId"`
}

// TitleResponse carries the generated title.
type TitleResponse struct {
	Title    string `json:"title"`
	MemoryID string `json:"memoryId"`
}

// NameRequest asks for an assistant name.
type NameRequest struct {
	Instructions string `json:"instructions"`
}

// NameResponse carries the generated name.
type NameResponse struct {
	Name string `json:"name"`
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}
	if !s.openai.IsConfigured() {
		s.writeError(w, http.StatusInternalServerError, "OpenAI API key not configured")
		return
	}

	params := upstream.ChatParams{
		Model:       req.Model,
		Messages:    toUpstreamMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	}

	if req.Stream {
		s.streamChat(w, r, params)
		return
	}

	res, err := s.openai.Chat(r.Context(), params)
	if err != nil {
		log.Printf("CHAT_ERROR | model=%s error=%v", req.Model, err)
		s.writeError(w, upstreamStatus(err), upstreamMessage(err))
		return
	}
	s.writeJSON(w, http.StatusOK, ChatResponse{
		AIText:      res.Text,
		BlockReason: blockReasonFrom(res.FinishReason),
		Usage:       res.Usage,
	})
}

// streamChat re-frames the upstream delta stream into the gateway's own SSE
// vocabulary: {"text": fragment} frames, one {"done": true} terminator, or a
// single {"error": string} frame on failure.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, params upstream.ChatParams) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	err := s.openai.ChatStream(r.Context(), params, func(delta string) {
		s.sendFrame(w, flusher, streamFrame{Text: delta})
	})
	if err != nil {
		log.Printf("STREAM_ERROR | model=%s error=%v", params.Model, err)
		s.sendFrame(w, flusher, streamFrame{Error: upstreamMessage(err)})
		return
	}
	s.sendFrame(w, flusher, streamFrame{Done: true, Message: "Stream complete"})
}

func (s *Server) sendFrame(w http.ResponseWriter, flusher http.Flusher, frame streamFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// =============================================================================
// GEMINI CHAT HANDLER
// =============================================================================

func (s *Server) handleGeminiChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}
	if !s.gemini.IsConfigured() {
		s.writeError(w, http.StatusInternalServerError, "Gemini API key not configured")
		return
	}

	res, err := s.gemini.Generate(r.Context(), upstream.ChatParams{
		Model:       req.Model,
		Messages:    toUpstreamMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	})
	if err != nil {
		log.Printf("GEMINI_ERROR | model=%s error=%v", req.Model, err)
		s.writeError(w, upstreamStatus(err), upstreamMessage(err))
		return
	}
	s.writeJSON(w, http.StatusOK, ChatResponse{
		AIText:      res.Text,
		BlockReason: res.BlockReason,
	})
}

// =============================================================================
// IMAGE HANDLERS
// =============================================================================

func (s *Server) handleDalleImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req ImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request format")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if req.Model == "" {
		req.Model = "dall-e-3"
	}
	sizes, ok := dalleSizes[req.Model]
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown image model %q", req.Model))
		return
	}
	if req.Size != "" && !sizes[req.Size] {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("size %q not supported by %s", req.Size, req.Model))
		return
	}
	if req.Quality != "" && (req.Model != "dall-e-3" || !dalleQualities[req.Quality]) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("quality %q not supported by %s", req.Quality, req.Model))
		return
	}
	if req.Style != "" && (req.Model != "dall-e-3" || !dalleStyles[req.Style]) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("style %q not supported by %s", req.Style, req.Model))
		return
	}
	if !s.openai.IsConfigured() {
		s.writeError(w, http.StatusInternalServerError, "OpenAI API key not configured")
		return
	}

	res, err := s.openai.GenerateImage(r.Context(), upstream.ImageParams{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Size:    req.Size,
		Quality: req.Quality,
		Style:   req.Style,
	})
	if err != nil {
		log.Printf("DALLE_ERROR | model=%s error=%v", req.Model, err)
		s.writeError(w, upstreamStatus(err), upstreamMessage(err))
		return
	}
	s.writeJSON(w, http.StatusOK, ImageResponse{
		ImageBase64:   res.Base64,
		RevisedPrompt: res.RevisedPrompt,
	})
}

func (s *Server) handleStabilityImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req StabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request format")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if !s.stability.IsConfigured() {
		s.writeError(w, http.StatusInternalServerError, "Stability API key not configured")
		return
	}

	res, err := s.stability.Generate(r.Context(), upstream.StabilityParams{
		Prompt:       req.Prompt,
		OutputFormat: "jpeg",
		AspectRatio:  "1:1",
	})
	if err != nil {
		log.Printf("STABILITY_ERROR | error=%v", err)
		s.writeError(w, upstreamStatus(err), upstreamMessage(err))
		return
	}
	s.writeJSON(w, http.StatusOK, ImageResponse{ImageBase64: res.Base64})
}

// =============================================================================
// TITLE AND NAME HANDLERS
// =============================================================================

const titlePrompt = "Summarize this conversation as a short title of at most six words. Reply with the title only, no quotes."

func (s *Server) handleTitle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req TitleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request format")
		return
	}
	if len(req.Messages) == 0 {
		s.writeError(w, http.StatusBadRequest, "messages are required")
		return
	}
	if !s.openai.IsConfigured() {
		s.writeError(w, http.StatusInternalServerError, "OpenAI API key not configured")
		return
	}

	messages := []upstream.Message{{Role: "system", Content: titlePrompt}}
	messages = append(messages, toUpstreamMessages(req.Messages)...)

	res, err := s.openai.Chat(r.Context(), upstream.ChatParams{
		Model:     "gpt-4o-mini",
		Messages:  messages,
		MaxTokens: 30,
	})
	if err != nil {
		log.Printf("TITLE_ERROR | error=%v", err)
		s.writeError(w, upstreamStatus(err), upstreamMessage(err))
		return
	}
	s.writeJSON(w, http.StatusOK, TitleResponse{
		Title:    strings.Trim(strings.TrimSpace(res.Text), `"`),
		MemoryID: req.MemoryID,
	})
}

const namePrompt = "Given these assistant instructions, invent a short friendly assistant name of one or two words. Reply with the name only."

func (s *Server) handleName(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req NameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request format")
		return
	}
	if strings.TrimSpace(req.Instructions) == "" {
		s.writeError(w, http.StatusBadRequest, "instructions are required")
		return
	}
	if !s.openai.IsConfigured() {
		s.writeError(w, http.StatusInternalServerError, "OpenAI API key not configured")
		return
	}

	res, err := s.openai.Chat(r.Context(), upstream.ChatParams{
		Model: "gpt-4o-mini",
		Messages: []upstream.Message{
			{Role: "system", Content: namePrompt},
			{Role: "user", Content: req.Instructions},
		},
		MaxTokens: 10,
	})
	if err != nil {
		log.Printf("NAME_ERROR | error=%v", err)
		s.writeError(w, upstreamStatus(err), upstreamMessage(err))
		return
	}
	s.writeJSON(w, http.StatusOK, NameResponse{
		Name: strings.Trim(strings.TrimSpace(res.Text), `"`),
	})
}

// =============================================================================
// HEALTH
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": Version,
		"providers": map[string]bool{
			"openai":    s.openai.IsConfigured(),
			"gemini":    s.gemini.IsConfigured(),
			"stability": s.stability.IsConfigured(),
		},
	})
}

// =============================================================================
// SERVER LIFECYCLE
// =============================================================================

// Start starts the gateway on loopback.
func (s *Server) Start() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.Printf("SERVER_START | addr=%s version=%s", addr, Version)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the gateway.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return s.server.Shutdown(ctx)
}

// =============================================================================
// HELPERS
// =============================================================================

// decodeChatRequest parses and validates the shared chat body shape.
func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request) (ChatRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("BAD_REQUEST | error=%v", err)
		s.writeError(w, http.StatusBadRequest, "invalid request format")
		return req, false
	}
	if len(req.Messages) == 0 {
		s.writeError(w, http.StatusBadRequest, "request must contain at least one message")
		return req, false
	}
	if len(req.Messages) > MaxMessageCount {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("too many messages: maximum is %d", MaxMessageCount))
		return req, false
	}
	for i, msg := range req.Messages {
		if !validRoles[msg.Role] {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid role at message %d", i))
			return req, false
		}
		if len(msg.Content) > MaxQueryLength {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("message %d exceeds maximum length of %d", i, MaxQueryLength))
			return req, false
		}
	}
	if req.MaxTokens < 0 || req.MaxTokens > MaxTokensLimit {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("max_tokens must be between 0 and %d", MaxTokensLimit))
		return req, false
	}
	if req.Temperature < MinTemperature || req.Temperature > MaxTemperature {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("temperature must be between %.1f and %.1f", MinTemperature, MaxTemperature))
		return req, false
	}
	return req, true
}

func toUpstreamMessages(messages []ChatMessage) []upstream.Message {
	out := make([]upstream.Message, len(messages))
	for i, msg := range messages {
		out[i] = upstream.Message{Role: msg.Role, Content: msg.Content}
	}
	return out
}

// blockReasonFrom maps terminal finish reasons to a block indicator. A
// normal stop is not a block.
func blockReasonFrom(finishReason string) string {
	switch finishReason {
	case "", "stop", "length":
		return ""
	default:
		return finishReason
	}
}

// upstreamStatus picks the response status for an upstream failure. Provider
// errors keep their status; transport failures become 502.
func upstreamStatus(err error) int {
	var ue *upstream.UpstreamError
	if errors.As(err, &ue) && ue.StatusCode >= 400 {
		return ue.StatusCode
	}
	return http.StatusBadGateway
}

func upstreamMessage(err error) string {
	var ue *upstream.UpstreamError
	if errors.As(err, &ue) {
		return ue.Message
	}
	return err.Error()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError emits the uniform {error} shape.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
