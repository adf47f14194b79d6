// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// TRANSPORT SHAPE SELECTION
// =============================================================================

func TestSendSingleShot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"aiText":"hello","usage":{"total_tokens":5}}`))
	}))
	defer srv.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
	reply, err := client.Send(context.Background(), &ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	complete, ok := reply.(*CompleteReply)
	if !ok {
		t.Fatalf("reply type = %T, want *CompleteReply", reply)
	}
	if complete.Response.AIText != "hello" {
		t.Errorf("AIText = %q, want hello", complete.Response.AIText)
	}
	if complete.Response.Usage == nil || complete.Response.Usage.TotalTokens != 5 {
		t.Errorf("Usage = %+v", complete.Response.Usage)
	}
}

func TestSendStreamed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"text\":\"Hi\"}\n\n"))
		w.Write([]byte("data: {\"text\":\" there\"}\n\n"))
		w.Write([]byte("data: {\"done\":true,\"message\":\"Stream complete\"}\n\n"))
	}))
	defer srv.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
	reply, err := client.Send(context.Background(), &ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
		Stream:   true,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	streamed, ok := reply.(*StreamedReply)
	if !ok {
		t.Fatalf("reply type = %T, want *StreamedReply", reply)
	}

	var text strings.Builder
	var sawDone bool
	for ev := range streamed.Events {
		if ev.Err != nil {
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
		text.WriteString(ev.Text)
		if ev.Done {
			sawDone = true
			if ev.Message != "Stream complete" {
				t.Errorf("done message = %q", ev.Message)
			}
		}
	}

	if text.String() != "Hi there" {
		t.Errorf("accumulated text = %q, want %q", text.String(), "Hi there")
	}
	if !sawDone {
		t.Error("stream never delivered the done marker")
	}
}

func TestSendStreamInlineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"text\":\"partial\"}\n\n"))
		w.Write([]byte("data: {\"error\":\"upstream exploded\"}\n\n"))
	}))
	defer srv.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
	reply, err := client.Send(context.Background(), &ChatRequest{Model: "gpt-4o-mini", Stream: true})
	if err != nil {
		t.Fatal(err)
	}

	var events []StreamEvent
	for ev := range reply.(*StreamedReply).Events {
		events = append(events, ev)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Text != "partial" {
		t.Errorf("first event text = %q", events[0].Text)
	}
	if events[1].ErrorText != "upstream exploded" {
		t.Errorf("second event error = %q", events[1].ErrorText)
	}
}

func TestSendGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"upstream unavailable"}`))
	}))
	defer srv.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
	_, err := client.Send(context.Background(), &ChatRequest{Model: "gpt-4o-mini"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "upstream unavailable") {
		t.Errorf("error = %v, want gateway message surfaced", err)
	}
}

func TestSendGeminiRouting(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"aiText":"ok"}`))
	}))
	defer srv.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
	if _, err := client.Send(context.Background(), &ChatRequest{Model: "gemini-1.5-flash"}); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/api/gemini/chat" {
		t.Errorf("gemini model routed to %q", gotPath)
	}
}

func TestIsGeminiModel(t *testing.T) {
	tests := []struct {
		model string
		want  bool
	}{
		{"gemini-1.5-flash", true},
		{"Gemini-pro", true},
		{"gpt-4o", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsGeminiModel(tt.model); got != tt.want {
			t.Errorf("IsGeminiModel(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

// =============================================================================
// TITLE / NAME / IMAGE
// =============================================================================

func TestGenerateTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/title" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"title":"Trip planning","memoryId":"mem_1"}`))
	}))
	defer srv.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
	resp, err := client.GenerateTitle(context.Background(), &TitleRequest{
		Messages: []ChatMessage{{Role: "user", Content: "plan a trip"}},
		MemoryID: "mem_1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Title != "Trip planning" || resp.MemoryID != "mem_1" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestGenerateImageStabilityForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("not a multipart form: %v", err)
		}
		if got := r.FormValue("output_format"); got != "jpeg" {
			t.Errorf("output_format = %q", got)
		}
		if got := r.FormValue("aspect_ratio"); got != "1:1" {
			t.Errorf("aspect_ratio = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"imageBase64":"aGk="}`))
	}))
	defer srv.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
	resp, err := client.GenerateImageStability(context.Background(), "a red fox")
	if err != nil {
		t.Fatal(err)
	}
	if resp.ImageBase64 != "aGk=" {
		t.Errorf("ImageBase64 = %q", resp.ImageBase64)
	}
}

func TestSendTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := client.Send(context.Background(), &ChatRequest{Model: "gpt-4o-mini"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
}
