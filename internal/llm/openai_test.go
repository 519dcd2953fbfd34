package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
)

func TestOpenAIProvider_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected Authorization header: %s", r.Header.Get("Authorization"))
		}

		var chatReq openai.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&chatReq)
		if len(chatReq.Messages) != 2 || chatReq.Messages[0].Role != "system" {
			t.Errorf("expected system+user messages, got %+v", chatReq.Messages)
		}

		resp := openai.ChatCompletionResponse{
			ID:     "chatcmpl-123",
			Object: "chat.completion",
			Model:  "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{
				{
					Index: 0,
					Message: openai.ChatCompletionMessage{
						Role:    "assistant",
						Content: `{"value": "BANK ABC", "confidence": "high", "source_chunk_ids": ["doc-1:0"]}`,
					},
					FinishReason: "stop",
				},
			},
			Usage: openai.Usage{TotalTokens: 42},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "gpt-4o-mini",
		Timeout: 5,
	})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}

	resp, err := provider.Generate(context.Background(), GenerateRequest{
		System: "You extract fields.",
		Prompt: "Field: Counterparty",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text == "" || resp.TokensUsed != 42 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestOpenAIProvider_Generate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "Internal Server Error", "type": "server_error"}}`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}

	if _, err := provider.Generate(context.Background(), GenerateRequest{Prompt: "x"}); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestOpenAIProvider_RequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIProvider(Config{}); err == nil {
		t.Error("expected error without API key")
	}
}
