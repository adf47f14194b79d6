// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const defaultStabilityBaseURL = "https://api.stability.ai"

// StabilityClient talks to Stability's stable-image endpoint.
type StabilityClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewStabilityClient creates a client for the given key.
func NewStabilityClient(apiKey string) *StabilityClient {
	return &StabilityClient{
		apiKey:  apiKey,
		baseURL: defaultStabilityBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// WithBaseURL overrides the API base URL.
func (c *StabilityClient) WithBaseURL(url string) *StabilityClient {
	if url != "" {
		c.baseURL = strings.TrimRight(url, "/")
	}
	return c
}

// WithTimeout overrides the request timeout.
func (c *StabilityClient) WithTimeout(timeout time.Duration) *StabilityClient {
	c.httpClient.Timeout = timeout
	return c
}

// IsConfigured reports whether the client holds an API key.
func (c *StabilityClient) IsConfigured() bool {
	return c.apiKey != ""
}

// StabilityParams describe one stable-image request. Fields map directly to
// the endpoint's multipart form fields.
type StabilityParams struct {
	Prompt       string
	OutputFormat string
	AspectRatio  string
}

type stabilityResponse struct {
	Image        string `json:"image"`
	FinishReason string `json:"finish_reason"`
	Errors       []string `json:"errors"`
}

// Generate requests one base64-encoded image via multipart form upload.
func (c *StabilityClient) Generate(ctx context.Context, params StabilityParams) (*ImageResult, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	fields := map[string]string{
		"prompt":        params.Prompt,
		"output_format": params.OutputFormat,
		"aspect_ratio":  params.AspectRatio,
	}
	for key, val := range fields {
		if val == "" {
			continue
		}
		if err := form.WriteField(key, val); err != nil {
			return nil, fmt.Errorf("build form: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}

	url := c.baseURL + "/v2beta/stable-image/generate/core"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out stabilityResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if len(out.Errors) > 0 {
			msg = strings.Join(out.Errors, "; ")
		}
		return nil, &UpstreamError{Provider: "stability", StatusCode: resp.StatusCode, Message: msg}
	}
	if out.Image == "" {
		return nil, &UpstreamError{Provider: "stability", StatusCode: resp.StatusCode, Message: "no image in response"}
	}
	return &ImageResult{Base64: out.Image}, nil
}
