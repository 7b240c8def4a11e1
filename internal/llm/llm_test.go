package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseJSONResponsePlain(t *testing.T) {
	result := ParseJSONResponse(`{"key": "value", "num": 42}`)
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
	if result["num"] != float64(42) {
		t.Errorf("expected num=42, got %v", result["num"])
	}
}

func TestParseJSONResponseWithCodeFence(t *testing.T) {
	text := "```json\n{\"key\": \"value\"}\n```"
	result := ParseJSONResponse(text)
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
}

func TestParseJSONResponseWithPlainFence(t *testing.T) {
	text := "```\n{\"key\": \"value\"}\n```"
	result := ParseJSONResponse(text)
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
}

func TestParseJSONResponseSingleLineFence(t *testing.T) {
	result := ParseJSONResponse("```json{\"key\": \"value\"}```")
	if result == nil || result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result)
	}
}

func TestParseJSONResponseInvalid(t *testing.T) {
	result := ParseJSONResponse("not json at all")
	if result != nil {
		t.Error("expected nil for invalid JSON")
	}
}

func TestParseJSONResponseEmpty(t *testing.T) {
	result := ParseJSONResponse("")
	if result != nil {
		t.Error("expected nil for empty string")
	}
}

func TestParseJSONResponseWhitespace(t *testing.T) {
	result := ParseJSONResponse("  \n  {\"key\": \"value\"}  \n  ")
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
}

func TestParseJSONResponseWithProse(t *testing.T) {
	result := ParseJSONResponse("Aquí está el análisis:\n{\"sentiment\": \"negative\"}\nEspero que ayude.")
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["sentiment"] != "negative" {
		t.Errorf("expected sentiment='negative', got %v", result["sentiment"])
	}
}

func TestParseJSONResponseArray(t *testing.T) {
	if result := ParseJSONResponse(`["a", "b"]`); result != nil {
		t.Errorf("expected nil for a JSON array, got %v", result)
	}
}

func TestAnthropicGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "test-key" {
			t.Errorf("expected api key header, got %q", got)
		}
		if got := r.Header.Get("Anthropic-Version"); got != anthropicVersion {
			t.Errorf("expected version header, got %q", got)
		}
		var body struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if body.MaxTokens != 300 {
			t.Errorf("expected max_tokens=300, got %d", body.MaxTokens)
		}
		w.Write([]byte(`{"content": [{"type": "text", "text": "{\"sentiment\": "}, {"type": "text", "text": "\"neutral\"}"}], "stop_reason": "end_turn"}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("claude-test", "test-key")
	p.BaseURL = srv.URL
	out, err := p.Generate(context.Background(), "hola", 300)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `{"sentiment": "neutral"}` {
		t.Errorf("unexpected output %q", out)
	}
}

func TestAnthropicNotConfigured(t *testing.T) {
	p := NewAnthropicProvider("claude-test", "")
	if p.IsConfigured() {
		t.Error("expected provider without key to be unconfigured")
	}
	if _, err := p.Generate(context.Background(), "hola", 10); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestOpenAIGenerateErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limit"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("gpt-test", "k")
	p.BaseURL = srv.URL
	_, err := p.Generate(context.Background(), "hola", 10)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected 429 error, got %v", err)
	}
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write([]byte(`{"models": [{"name": "qwen2.5:7b"}]}`))
		case "/api/chat":
			w.Write([]byte(`{"message": {"content": "{\"ok\": true}"}}`))
		}
	}))
	defer srv.Close()

	p := NewOllamaProvider("qwen2.5:7b", srv.URL+"/")
	if !p.IsConfigured() {
		t.Fatal("expected ollama to be configured")
	}
	out, err := p.Generate(context.Background(), "hola", 10)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `{"ok": true}` {
		t.Errorf("unexpected output %q", out)
	}
}
