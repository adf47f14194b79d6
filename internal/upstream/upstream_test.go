// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIChatParsesChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		var req openAIChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "gpt-4o-mini" || len(req.Messages) != 1 {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": "Hello!"},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key").WithBaseURL(srv.URL)
	res, err := c.Chat(context.Background(), ChatParams{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "Hello!" || res.FinishReason != "stop" {
		t.Errorf("result = %+v", res)
	}
	if res.Usage == nil || res.Usage.TotalTokens != 7 {
		t.Errorf("usage = %+v", res.Usage)
	}
}

func TestOpenAIChatErrorNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited","type":"rate_limit_error"}}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key").WithBaseURL(srv.URL)
	_, err := c.Chat(context.Background(), ChatParams{Model: "gpt-4o-mini"})

	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
	if ue.StatusCode != http.StatusTooManyRequests || ue.Message != "rate limited" {
		t.Errorf("error = %+v", ue)
	}
}

func TestOpenAIChatStreamCollectsDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"content":"Hel"},"finish_reason":""}]}`,
			`{"choices":[{"delta":{"content":"lo"},"finish_reason":""}]}`,
			`not json at all`,
			`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		}
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key").WithBaseURL(srv.URL)
	var got strings.Builder
	err := c.ChatStream(context.Background(), ChatParams{Model: "gpt-4o-mini"}, func(delta string) {
		got.WriteString(delta)
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "Hello" {
		t.Errorf("collected = %q", got.String())
	}
}

func TestOpenAIUnconfigured(t *testing.T) {
	c := NewOpenAIClient("")
	if _, err := c.Chat(context.Background(), ChatParams{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v", err)
	}
}

func TestGeminiExtractsSystemAndMapsRoles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "models/gemini-1.5-pro:generateContent") {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "be brief" {
			t.Errorf("system instruction = %+v", req.SystemInstruction)
		}
		if len(req.Contents) != 2 || req.Contents[1].Role != "model" {
			t.Errorf("contents = %+v", req.Contents)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]string{{"text": "Sure."}}},
			}},
		})
	}))
	defer srv.Close()

	c := NewGeminiClient("test-key").WithBaseURL(srv.URL)
	res, err := c.Generate(context.Background(), ChatParams{
		Model: "gemini-1.5-pro",
		Messages: []Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "Sure." {
		t.Errorf("text = %q", res.Text)
	}
}

func TestGeminiSurfacesBlockReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"promptFeedback": map[string]string{"blockReason": "SAFETY"},
		})
	}))
	defer srv.Close()

	c := NewGeminiClient("test-key").WithBaseURL(srv.URL)
	res, err := c.Generate(context.Background(), ChatParams{
		Model:    "gemini-1.5-pro",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.BlockReason != "SAFETY" || res.Text != "" {
		t.Errorf("result = %+v", res)
	}
}

func TestStabilityMultipartForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatal(err)
		}
		if got := r.FormValue("prompt"); got != "a red fox" {
			t.Errorf("prompt = %q", got)
		}
		if got := r.FormValue("output_format"); got != "jpeg" {
			t.Errorf("output_format = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"image": "aW1hZ2U=", "finish_reason": "SUCCESS"})
	}))
	defer srv.Close()

	c := NewStabilityClient("test-key").WithBaseURL(srv.URL)
	res, err := c.Generate(context.Background(), StabilityParams{
		Prompt:       "a red fox",
		OutputFormat: "jpeg",
		AspectRatio:  "1:1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Base64 != "aW1hZ2U=" {
		t.Errorf("image = %q", res.Base64)
	}
}

func TestStabilityErrorList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"errors":["prompt too long"]}`)
	}))
	defer srv.Close()

	c := NewStabilityClient("test-key").WithBaseURL(srv.URL)
	_, err := c.Generate(context.Background(), StabilityParams{Prompt: "x"})

	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v", err)
	}
	if ue.Message != "prompt too long" {
		t.Errorf("message = %q", ue.Message)
	}
}
