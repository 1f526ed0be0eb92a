package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAnthropicProvider_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Expected path /v1/messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("api key header missing")
		}

		resp := anthropicResponse{ID: "msg_1", Model: "claude-3-5-haiku-latest"}
		resp.Content = []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{{Type: "text", Text: "scenario: happy path"}}
		resp.Usage.InputTokens = 12
		resp.Usage.OutputTokens = 8
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	resp, err := provider.Complete(context.Background(), CompletionRequest{
		Prompt:  "Phrase a scenario.",
		Context: RoleContext{Role: "scenario-author", System: "You phrase test scenarios."},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Text != "scenario: happy path" {
		t.Errorf("Unexpected text: %s", resp.Text)
	}
	if resp.TokensUsed != 20 {
		t.Errorf("Unexpected token usage: %d", resp.TokensUsed)
	}
}

func TestAnthropicProvider_RequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropicProvider(Config{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNewProvider_Factory(t *testing.T) {
	if p, err := NewProvider(Config{}); err != nil || p != nil {
		t.Errorf("empty provider should disable the proxy, got %v/%v", p, err)
	}
	if _, err := NewProvider(Config{Provider: "unknown"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if p, err := NewProvider(Config{Provider: "ollama"}); err != nil || p == nil {
		t.Errorf("ollama provider should construct without key, got %v/%v", p, err)
	}
}
