// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the gateway client.
type ClientConfig struct {
	// BaseURL is the gateway base URL (default: http://127.0.0.1:8791).
	BaseURL string

	// Timeout for single-shot requests (default: 60s). Streaming requests
	// are bounded only by their context.
	Timeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL: "http://127.0.0.1:8791",
		Timeout: 60 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the plume gateway.
// It is safe for concurrent use.
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient creates a gateway client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a gateway client with custom configuration.
func NewClientWithConfig(cfg *ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		// No client timeout for streaming; the context governs lifetime.
		streamClient: &http.Client{},
	}
}

// endpointFor selects the text-completion endpoint by model family.
func (c *Client) endpointFor(model string) string {
	if IsGeminiModel(model) {
		return c.config.BaseURL + "/api/gemini/chat"
	}
	return c.config.BaseURL + "/api/chat"
}

// =============================================================================
// CHAT DISPATCH
// =============================================================================

// Send dispatches a chat request and returns the transport-shape variant.
// A text/event-stream response yields a StreamedReply whose channel is fed by
// a background reader; anything else is parsed as a CompleteReply.
func (c *Client) Send(ctx context.Context, req *ChatRequest) (Reply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointFor(req.Model), bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeUnavailable, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	client := c.httpClient
	if req.Stream {
		client = c.streamClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, &ClientError{Type: ErrTypeUnavailable, Message: "gateway is not reachable", Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readErrorBody(resp)
	}

	// The variant is decided here, once, from the Content-Type.
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		events := make(chan StreamEvent, 64)
		go readEvents(ctx, resp.Body, events)
		return &StreamedReply{Events: events}, nil
	}

	defer resp.Body.Close()
	var parsed ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return &CompleteReply{Response: &parsed}, nil
}

// =============================================================================
// IMAGE GENERATION
// =============================================================================

// GenerateImage calls the DALL-E style endpoint.
func (c *Client) GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResponse, error) {
	var out ImageResponse
	if err := c.postJSON(ctx, "/api/images/dalle", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateImageStability calls the Stability style endpoint, which takes a
// multipart form rather than JSON.
func (c *Client) GenerateImageStability(ctx context.Context, prompt string) (*ImageResponse, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	form.WriteField("prompt", prompt)
	form.WriteField("output_format", "jpeg")
	form.WriteField("aspect_ratio", "1:1")
	if err := form.Close(); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to build form", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/images/stability", &buf)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeUnavailable, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, &ClientError{Type: ErrTypeUnavailable, Message: "gateway is not reachable", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readErrorBody(resp)
	}

	var out ImageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return &out, nil
}

// =============================================================================
// TITLE / NAME GENERATION
// =============================================================================

// GenerateTitle asks the gateway to name a memory snapshot.
func (c *Client) GenerateTitle(ctx context.Context, req *TitleRequest) (*TitleResponse, error) {
	var out TitleResponse
	if err := c.postJSON(ctx, "/api/title", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateName asks the gateway for an assistant name.
func (c *Client) GenerateName(ctx context.Context, instructions string) (*NameResponse, error) {
	var out NameResponse
	if err := c.postJSON(ctx, "/api/name", &NameRequest{Instructions: instructions}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// postJSON posts a JSON body and decodes a JSON response.
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeUnavailable, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return &ClientError{Type: ErrTypeUnavailable, Message: "gateway is not reachable", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readErrorBody(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return nil
}

// readErrorBody extracts the gateway's uniform {error} shape from a
// non-success response.
func readErrorBody(resp *http.Response) error {
	var gatewayErr struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&gatewayErr); err == nil && gatewayErr.Error != "" {
		return &ClientError{Type: ErrTypeUpstream, Message: gatewayErr.Error}
	}
	return &ClientError{Type: ErrTypeUpstream, Message: "request failed: " + resp.Status}
}
