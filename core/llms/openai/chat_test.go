package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/koscakluka/ema-docchat/core/llms"
)

func TestChatSendsCompletionRequest(t *testing.T) {
	var received requestBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"It is about foxes."},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer server.Close()

	client, err := NewClient("secret", WithBaseURL(server.URL+"/"))
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}

	response, err := client.Chat(context.Background(),
		[]llms.Message{llms.SystemMessage("context"), llms.UserMessage("What is it about?")},
		llms.WithMaxTokens(150),
	)
	if err != nil {
		t.Fatalf("expected response, got %v", err)
	}

	if response.Content != "It is about foxes." {
		t.Fatalf("unexpected content %q", response.Content)
	}
	if response.Usage.TotalTokens != 15 {
		t.Fatalf("expected 15 total tokens, got %d", response.Usage.TotalTokens)
	}
	if received.Model != DefaultModel {
		t.Fatalf("expected model %s, got %s", DefaultModel, received.Model)
	}
	if received.MaxTokens != 150 {
		t.Fatalf("expected max tokens 150, got %d", received.MaxTokens)
	}
	if len(received.Messages) != 2 || received.Messages[1].Content != "What is it about?" {
		t.Fatalf("unexpected messages %+v", received.Messages)
	}
}

func TestChatReturnsProviderErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewClient("secret", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}

	_, err = client.Chat(context.Background(), []llms.Message{llms.UserMessage("hi")})
	if err == nil {
		t.Fatalf("expected error for non-OK status")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected provider message in error, got %v", err)
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(""); err == nil {
		t.Fatalf("expected missing api key to be rejected")
	}
}
