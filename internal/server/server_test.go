// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/plumeforge/plume-tui/internal/config"
	"github.com/plumeforge/plume-tui/internal/upstream"
)

// newTestServer builds a gateway whose OpenAI upstream is the given handler.
func newTestServer(t *testing.T, openaiHandler http.HandlerFunc) *Server {
	t.Helper()
	up := httptest.NewServer(openaiHandler)
	t.Cleanup(up.Close)

	cfg := &config.ServerConfig{Port: 0, RateLimit: 1000, RateBurst: 1000}
	s := New(cfg)
	s.WithOpenAIClient(upstream.NewOpenAIClient("test-key").WithBaseURL(up.URL))
	return s
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

const chatBody = `{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hi"}]}`

func TestChatSingleShot(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": "Hello!"},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"total_tokens": 7},
		})
	})

	rec := postJSON(t, s.Handler(), "/api/chat", chatBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.AIText != "Hello!" || resp.BlockReason != "" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 7 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestChatBlockReasonSurfaced(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": ""},
				"finish_reason": "content_filter",
			}},
		})
	})

	rec := postJSON(t, s.Handler(), "/api/chat", chatBody)
	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.BlockReason != "content_filter" {
		t.Errorf("blockReason = %q", resp.BlockReason)
	}
}

func TestChatStreamReframed(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"},\"finish_reason\":\"\"}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" there\"},\"finish_reason\":\"\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	rec := postJSON(t, s.Handler(), "/api/chat",
		`{"model":"gpt-4o-mini","stream":true,"messages":[{"role":"user","content":"hi"}]}`)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `data: {"text":"Hi"}`) ||
		!strings.Contains(body, `data: {"text":" there"}`) {
		t.Errorf("missing text frames: %s", body)
	}
	if !strings.Contains(body, `"done":true`) || !strings.Contains(body, "Stream complete") {
		t.Errorf("missing done frame: %s", body)
	}
}

func TestChatStreamErrorFrame(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"upstream exploded"}}`)
	})

	rec := postJSON(t, s.Handler(), "/api/chat",
		`{"model":"gpt-4o-mini","stream":true,"messages":[{"role":"user","content":"hi"}]}`)

	body := rec.Body.String()
	if !strings.Contains(body, `"error":"upstream exploded"`) {
		t.Errorf("missing error frame: %s", body)
	}
	if strings.Contains(body, `"done":true`) {
		t.Errorf("done frame after error: %s", body)
	}
}

func TestChatMissingKey(t *testing.T) {
	cfg := &config.ServerConfig{RateLimit: 1000, RateBurst: 1000}
	s := New(cfg)
	s.WithOpenAIClient(upstream.NewOpenAIClient(""))

	rec := postJSON(t, s.Handler(), "/api/chat", chatBody)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp["error"], "not configured") {
		t.Errorf("error = %q", resp["error"])
	}
}

func TestChatValidation(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("validation failure reached upstream")
	})
	handler := s.Handler()

	tests := []struct {
		name string
		body string
	}{
		{"no messages", `{"model":"gpt-4o-mini","messages":[]}`},
		{"bad role", `{"model":"gpt-4o-mini","messages":[{"role":"robot","content":"x"}]}`},
		{"bad temperature", `{"model":"gpt-4o-mini","temperature":9,"messages":[{"role":"user","content":"x"}]}`},
		{"not json", `{{{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, handler, "/api/chat", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), "error") {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestGeminiChat(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]string{{"text": "Bonjour."}}},
			}},
		})
	}))
	defer up.Close()

	s := New(&config.ServerConfig{RateLimit: 1000, RateBurst: 1000})
	s.WithGeminiClient(upstream.NewGeminiClient("test-key").WithBaseURL(up.URL))

	rec := postJSON(t, s.Handler(), "/api/gemini/chat",
		`{"model":"gemini-1.5-pro","messages":[{"role":"system","content":"fr"},{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.AIText != "Bonjour." {
		t.Errorf("aiText = %q", resp.AIText)
	}
}

func TestDalleValidation(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("invalid image request reached upstream")
	})
	handler := s.Handler()

	tests := []struct {
		name string
		body string
	}{
		{"missing prompt", `{"model":"dall-e-3"}`},
		{"unknown model", `{"model":"dall-e-9","prompt":"a cat"}`},
		{"bad size", `{"model":"dall-e-3","prompt":"a cat","size":"640x480"}`},
		{"quality on dall-e-2", `{"model":"dall-e-2","prompt":"a cat","quality":"hd"}`},
		{"bad style", `{"model":"dall-e-3","prompt":"a cat","style":"cubist"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, handler, "/api/images/dalle", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestDalleSuccess(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"b64_json": "aW1n", "revised_prompt": "a fluffy cat"}},
		})
	})

	rec := postJSON(t, s.Handler(), "/api/images/dalle",
		`{"model":"dall-e-3","prompt":"a cat","size":"1024x1024","quality":"hd","style":"vivid"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp ImageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ImageBase64 != "aW1n" || resp.RevisedPrompt != "a fluffy cat" {
		t.Errorf("response = %+v", resp)
	}
}

func TestStabilityImage(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatal(err)
		}
		if got := r.FormValue("output_format"); got != "jpeg" {
			t.Errorf("output_format = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"image": "aW1n"})
	}))
	defer up.Close()

	s := New(&config.ServerConfig{RateLimit: 1000, RateBurst: 1000})
	s.WithStabilityClient(upstream.NewStabilityClient("test-key").WithBaseURL(up.URL))

	rec := postJSON(t, s.Handler(), "/api/images/stability", `{"prompt":"a red fox"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp ImageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ImageBase64 != "aW1n" {
		t.Errorf("image = %q", resp.ImageBase64)
	}
}

func TestTitleEndpoint(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": "\"Marathon Planning\""},
				"finish_reason": "stop",
			}},
		})
	})

	rec := postJSON(t, s.Handler(), "/api/title",
		`{"memoryId":"mem_1","messages":[{"role":"user","content":"plan my race"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp TitleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Title != "Marathon Planning" || resp.MemoryID != "mem_1" {
		t.Errorf("response = %+v", resp)
	}
}

func TestNameEndpoint(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": "Coach"},
				"finish_reason": "stop",
			}},
		})
	})

	rec := postJSON(t, s.Handler(), "/api/name", `{"instructions":"You are a running coach."}`)
	var resp NameResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Name != "Coach" {
		t.Errorf("name = %q", resp.Name)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("preflight status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("preflight body = %q, want empty", rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("missing Access-Control-Allow-Origin")
	}
}

func TestRateLimiting(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []map[string]any{{
			"message": map[string]string{"content": "ok"}, "finish_reason": "stop",
		}}})
	}))
	defer up.Close()

	s := New(&config.ServerConfig{RateLimit: 1, RateBurst: 1})
	s.WithOpenAIClient(upstream.NewOpenAIClient("test-key").WithBaseURL(up.URL))
	handler := s.Handler()

	first := postJSON(t, handler, "/api/chat", chatBody)
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d", first.Code)
	}
	second := postJSON(t, handler, "/api/chat", chatBody)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.Code)
	}
}

func TestRateLimiterDisabledAtZero(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d blocked with limiting disabled", i)
		}
	}
}

func TestRateLimiterFractionalRate(t *testing.T) {
	rl := NewRateLimiter(0.5, 1)
	if !rl.Allow("10.0.0.1") {
		t.Fatal("first request blocked")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("second request allowed at 0.5 rps with burst 1")
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Errorf("health = %+v", resp)
	}
}
