// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotConfigured is returned when a client has no API key.
var ErrNotConfigured = errors.New("upstream client not configured")

// UpstreamError is a provider error normalized to one shape.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// =============================================================================
// SHARED TYPES
// =============================================================================

// Message is one chat turn in provider wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams are the tunables shared by both chat families.
type ChatParams struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Usage reports upstream token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResult is a completed non-streaming chat turn.
type ChatResult struct {
	Text         string
	FinishReason string
	Usage        *Usage
}

// =============================================================================
// OPENAI CLIENT
// =============================================================================

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultTimeout       = 120 * time.Second

	// maxErrorBodySize caps how much of an error body is read back.
	maxErrorBodySize = 4096
)

// OpenAIClient talks to an OpenAI-compatible API.
type OpenAIClient struct {
	apiKey  string
	baseURL string

	httpClient   *http.Client
	streamClient *http.Client
}

// NewOpenAIClient creates a client for the given key. An empty key produces
// an unconfigured client that fails fast on use.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: defaultOpenAIBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		// Streaming reads are paced by the provider; only the context
		// bounds them.
		streamClient: &http.Client{},
	}
}

// WithBaseURL overrides the API base URL.
func (c *OpenAIClient) WithBaseURL(url string) *OpenAIClient {
	if url != "" {
		c.baseURL = strings.TrimRight(url, "/")
	}
	return c
}

// WithTimeout overrides the non-streaming request timeout.
func (c *OpenAIClient) WithTimeout(timeout time.Duration) *OpenAIClient {
	c.httpClient.Timeout = timeout
	return c
}

// IsConfigured reports whether the client holds an API key.
func (c *OpenAIClient) IsConfigured() bool {
	return c.apiKey != ""
}

// APIKeyMasked returns a log-safe form of the key.
func (c *OpenAIClient) APIKeyMasked() string {
	if len(c.apiKey) < 8 {
		return "****"
	}
	return c.apiKey[:4] + "..." + c.apiKey[len(c.apiKey)-4:]
}

func (c *OpenAIClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

// -----------------------------------------------------------------------------
// Chat
// -----------------------------------------------------------------------------

type openAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// Chat performs a non-streaming completion.
func (c *OpenAIClient) Chat(ctx context.Context, params ChatParams) (*ChatResult, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	body := openAIChatRequest{
		Model:       params.Model,
		Messages:    params.Messages,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		TopP:        params.TopP,
	}
	resp, err := c.post(ctx, c.httpClient, c.baseURL+"/chat/completions", body, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp)
	}

	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return &ChatResult{Usage: out.Usage}, nil
	}
	return &ChatResult{
		Text:         out.Choices[0].Message.Content,
		FinishReason: out.Choices[0].FinishReason,
		Usage:        out.Usage,
	}, nil
}

// -----------------------------------------------------------------------------
// Streaming chat
// -----------------------------------------------------------------------------

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// ChatStream performs a streaming completion, invoking fn for every content
// delta. It returns once the provider sends its done marker or the body ends.
func (c *OpenAIClient) ChatStream(ctx context.Context, params ChatParams, fn func(delta string)) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	body := openAIChatRequest{
		Model:       params.Model,
		Messages:    params.Messages,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		TopP:        params.TopP,
		Stream:      true,
	}
	resp, err := c.post(ctx, c.streamClient, c.baseURL+"/chat/completions", body, "text/event-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.errorFromResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		data := bytes.TrimSpace(line[len("data:"):])
		if bytes.Equal(data, []byte("[DONE]")) {
			return nil
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			// Skip malformed frames rather than killing the stream.
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			fn(delta)
		}
		if chunk.Choices[0].FinishReason != "" {
			return nil
		}
	}
	return scanner.Err()
}

// -----------------------------------------------------------------------------
// Image generation
// -----------------------------------------------------------------------------

// ImageParams describe one image-generation request.
type ImageParams struct {
	Model   string
	Prompt  string
	Size    string
	Quality string
	Style   string
}

type openAIImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	Style          string `json:"style,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type openAIImageResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// ImageResult carries one generated image.
type ImageResult struct {
	Base64        string
	RevisedPrompt string
}

// GenerateImage requests one base64-encoded image.
func (c *OpenAIClient) GenerateImage(ctx context.Context, params ImageParams) (*ImageResult, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	body := openAIImageRequest{
		Model:          params.Model,
		Prompt:         params.Prompt,
		N:              1,
		Size:           params.Size,
		Quality:        params.Quality,
		Style:          params.Style,
		ResponseFormat: "b64_json",
	}
	resp, err := c.post(ctx, c.httpClient, c.baseURL+"/images/generations", body, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp)
	}

	var out openAIImageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode image response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, &UpstreamError{Provider: "openai", StatusCode: resp.StatusCode, Message: "no image in response"}
	}
	return &ImageResult{
		Base64:        out.Data[0].B64JSON,
		RevisedPrompt: out.Data[0].RevisedPrompt,
	}, nil
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

func (c *OpenAIClient) post(ctx context.Context, client *http.Client, url string, body any, accept string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	if accept != "" {
		req.Header.Set("Accept", accept)
		req.Header.Set("Cache-Control", "no-cache")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *OpenAIClient) errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	var parsed openAIErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return &UpstreamError{Provider: "openai", StatusCode: resp.StatusCode, Message: parsed.Error.Message}
	}
	return &UpstreamError{Provider: "openai", StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
}
