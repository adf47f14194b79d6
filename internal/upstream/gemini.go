// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient talks to the Gemini generateContent API.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiClient creates a client for the given key.
func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{
		apiKey:  apiKey,
		baseURL: defaultGeminiBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// WithBaseURL overrides the API base URL.
func (c *GeminiClient) WithBaseURL(url string) *GeminiClient {
	if url != "" {
		c.baseURL = strings.TrimRight(url, "/")
	}
	return c
}

// WithTimeout overrides the request timeout.
func (c *GeminiClient) WithTimeout(timeout time.Duration) *GeminiClient {
	c.httpClient.Timeout = timeout
	return c
}

// IsConfigured reports whether the client holds an API key.
func (c *GeminiClient) IsConfigured() bool {
	return c.apiKey != ""
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"system_instruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GeminiResult is a completed generation.
type GeminiResult struct {
	Text        string
	BlockReason string
}

// =============================================================================
// GENERATION
// =============================================================================

// Generate runs one generateContent call. A leading system turn in the
// message list is extracted into the request's system-instruction field, and
// assistant turns are mapped to the provider's model role.
func (c *GeminiClient) Generate(ctx context.Context, params ChatParams) (*GeminiResult, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	body := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			Temperature:     params.Temperature,
			MaxOutputTokens: params.MaxTokens,
			TopP:            params.TopP,
		},
	}

	messages := params.Messages
	if len(messages) > 0 && messages[0].Role == "system" {
		body.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: messages[0].Content}},
		}
		messages = messages[1:]
	}
	for _, msg := range messages {
		role := msg.Role
		if role == "assistant" {
			role = "model"
		}
		body.Contents = append(body.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, params.Model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out geminiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return nil, &UpstreamError{Provider: "gemini", StatusCode: resp.StatusCode, Message: msg}
	}

	result := &GeminiResult{BlockReason: out.PromptFeedback.BlockReason}
	if len(out.Candidates) > 0 {
		var text strings.Builder
		for _, part := range out.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
		result.Text = text.String()
		if result.BlockReason == "" && result.Text == "" {
			result.BlockReason = out.Candidates[0].FinishReason
		}
	}
	return result, nil
}
