package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIComplete(t *testing.T) {
	var gotReq oaiChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "  a reply  "}},
			},
		})
	}))
	defer srv.Close()

	svc := NewOpenAIService("test-key", srv.URL, "", "")
	got, err := svc.Complete(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "a reply" {
		t.Errorf("Complete = %q, want trimmed reply", got)
	}
	if gotReq.Model != defaultChatModel {
		t.Errorf("model = %q, want default %q", gotReq.Model, defaultChatModel)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("messages = %+v, want system then user", gotReq.Messages)
	}
	if gotReq.ResponseFormat != nil {
		t.Error("plain Complete should not set response_format")
	}
}

func TestOpenAICompleteJSONSetsResponseFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req oaiChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("response_format = %+v, want json_object", req.ResponseFormat)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": `{"ok":true}`}},
			},
		})
	}))
	defer srv.Close()

	svc := NewOpenAIService("test-key", srv.URL, "", "")
	got, err := svc.CompleteJSON(context.Background(), "", "prompt")
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if got != `{"ok":true}` {
		t.Errorf("CompleteJSON = %q", got)
	}
}

func TestOpenAIErrorBodyDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limit exceeded", "type": "rate_limit"},
		})
	}))
	defer srv.Close()

	svc := NewOpenAIService("test-key", srv.URL, "", "")
	_, err := svc.Complete(context.Background(), "", "prompt")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Errorf("error = %v, want decoded API message", err)
	}
}

func TestOpenAIEmptyChoicesRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	svc := NewOpenAIService("test-key", srv.URL, "", "")
	if _, err := svc.Complete(context.Background(), "", "prompt"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestOpenAITranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s, want /audio/transcriptions", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if model := r.FormValue("model"); model != defaultTranscribeModel {
			t.Errorf("model = %q, want %q", model, defaultTranscribeModel)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		file.Close()
		if header.Filename != "audio.webm" {
			t.Errorf("filename = %q, want audio.webm for unknown mime", header.Filename)
		}
		json.NewEncoder(w).Encode(map[string]string{"text": " hello world "})
	}))
	defer srv.Close()

	svc := NewOpenAIService("test-key", srv.URL, "", "")
	got, err := svc.Transcribe(context.Background(), []byte("fake-audio"), "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "hello world" {
		t.Errorf("Transcribe = %q", got)
	}
}

func TestAudioFileName(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{"audio/mpeg", "audio.mp3"},
		{"audio/wav", "audio.wav"},
		{"audio/ogg", "audio.ogg"},
		{"AUDIO/MP4", "audio.m4a"},
		{"", "audio.webm"},
		{"audio/webm;codecs=opus", "audio.webm"},
	}
	for _, tt := range tests {
		if got := audioFileName(tt.mime); got != tt.want {
			t.Errorf("audioFileName(%q) = %q, want %q", tt.mime, got, tt.want)
		}
	}
}
