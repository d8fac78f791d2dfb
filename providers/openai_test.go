package providers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kelly.science/models"
	"kelly.science/providers"
)

func testDeployment(baseURL string) *models.Deployment {
	return &models.Deployment{
		ID:              "test-hosted",
		ModelID:         "gpt-4o-mini",
		Provider:        models.ProviderOpenAI,
		ProviderModelID: "gpt-4o-mini",
		Endpoint: models.EndpointConfig{
			BaseURL: baseURL,
			Timeout: 10 * time.Second,
			Auth: models.AuthConfig{
				Type:   models.AuthAPIKey,
				APIKey: "sk-test",
			},
		},
		Status: models.DeploymentStatus{
			Available: true,
		},
	}
}

func TestOpenAITranslateRequest(t *testing.T) {
	provider := providers.NewOpenAIProvider()

	req := &providers.UnifiedRequest{
		Model: "gpt-4o-mini",
		Messages: []providers.Message{
			{Role: "system", Content: "You are Kelly."},
			{Role: "user", Content: "Can AI truly think?"},
		},
		Temperature: 0.7,
		MaxTokens:   250,
	}

	deployment := testDeployment("https://api.openai.com/v1/chat/completions")

	providerReq, err := provider.TranslateRequest(context.Background(), req, deployment)
	if err != nil {
		t.Fatalf("Failed to translate request: %v", err)
	}

	if providerReq.URL != deployment.Endpoint.BaseURL {
		t.Errorf("URL = %s, want %s (base URL must be used as-is)", providerReq.URL, deployment.Endpoint.BaseURL)
	}
	if providerReq.Headers["Authorization"] != "Bearer sk-test" {
		t.Errorf("Authorization header = %q, want bearer token", providerReq.Headers["Authorization"])
	}

	body, ok := providerReq.Body.(map[string]interface{})
	if !ok {
		t.Fatalf("Body is not a map: %T", providerReq.Body)
	}
	if body["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v, want gpt-4o-mini", body["model"])
	}
	if body["temperature"] != 0.7 {
		t.Errorf("temperature = %v, want 0.7", body["temperature"])
	}
	if body["max_tokens"] != 250 {
		t.Errorf("max_tokens = %v, want 250", body["max_tokens"])
	}
}

func TestOpenAITranslateRequestNoAuth(t *testing.T) {
	provider := providers.NewOpenAIProvider()

	deployment := testDeployment("http://localhost:8000/v1/chat/completions")
	deployment.Endpoint.Auth = models.AuthConfig{Type: models.AuthNone}

	req := &providers.UnifiedRequest{
		Model:    "gpt-4o-mini",
		Messages: []providers.Message{{Role: "user", Content: "Hi"}},
	}

	providerReq, err := provider.TranslateRequest(context.Background(), req, deployment)
	if err != nil {
		t.Fatalf("Failed to translate request: %v", err)
	}

	if _, exists := providerReq.Headers["Authorization"]; exists {
		t.Error("Authorization header set without an API key")
	}
}

func TestOpenAIExecuteAndTranslate(t *testing.T) {
	// Stand-in for a hosted chat-completions endpoint
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-123",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "A poem of doubt,\nin measured lines."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 40, "completion_tokens": 12, "total_tokens": 52}
		}`)
	}))
	defer server.Close()

	provider := providers.NewOpenAIProvider()
	deployment := testDeployment(server.URL)

	req := &providers.UnifiedRequest{
		Model:    "gpt-4o-mini",
		Messages: []providers.Message{{Role: "user", Content: "Can AI truly think?"}},
	}

	providerReq, err := provider.TranslateRequest(context.Background(), req, deployment)
	if err != nil {
		t.Fatalf("Failed to translate request: %v", err)
	}

	providerResp, err := provider.Execute(context.Background(), providerReq)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	unified, err := provider.TranslateResponse(context.Background(), providerResp, deployment)
	if err != nil {
		t.Fatalf("TranslateResponse failed: %v", err)
	}

	if len(unified.Choices) != 1 {
		t.Fatalf("got %d choices, want 1", len(unified.Choices))
	}
	if unified.Choices[0].Message.Content == "" {
		t.Error("response content is empty")
	}
	if unified.Usage.CompletionTokens != 12 {
		t.Errorf("completion tokens = %d, want 12", unified.Usage.CompletionTokens)
	}
	if unified.Metadata["deployment_id"] != "test-hosted" {
		t.Errorf("deployment_id metadata = %v, want test-hosted", unified.Metadata["deployment_id"])
	}
}

func TestOpenAITranslateResponseErrorStatus(t *testing.T) {
	provider := providers.NewOpenAIProvider()
	deployment := testDeployment("https://api.openai.com/v1/chat/completions")

	resp := &providers.ProviderResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       json.RawMessage(`{"error": {"message": "invalid key"}}`),
	}

	if _, err := provider.TranslateResponse(context.Background(), resp, deployment); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestOpenAIStreamingSSEFormat(t *testing.T) {
	// Emits the SSE chunk format hosted endpoints use
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		chunks := []string{"Doubt ", "the ", "grand ", "claim."}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", c)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	provider := providers.NewOpenAIProvider()
	deployment := testDeployment(server.URL)

	req := &providers.UnifiedRequest{
		Model:    "gpt-4o-mini",
		Messages: []providers.Message{{Role: "user", Content: "Say hello in 3 words"}},
		Stream:   true,
	}

	providerReq, err := provider.TranslateRequest(context.Background(), req, deployment)
	if err != nil {
		t.Fatalf("Failed to translate request: %v", err)
	}

	stream := make(chan providers.StreamChunk)
	go func() {
		if err := provider.Stream(context.Background(), providerReq, stream); err != nil {
			t.Errorf("Stream error: %v", err)
		}
	}()

	var content string
	for chunk := range stream {
		if chunk.Error != nil {
			t.Fatalf("Chunk error: %v", chunk.Error)
		}
		if chunk.Done {
			break
		}
		content += chunk.Data
	}

	if content != "Doubt the grand claim." {
		t.Errorf("streamed content = %q, want %q", content, "Doubt the grand claim.")
	}
}

func TestOpenAIValidateConfig(t *testing.T) {
	provider := providers.NewOpenAIProvider()

	deployment := testDeployment("")
	if err := provider.ValidateConfig(deployment); err == nil {
		t.Error("expected error for empty base URL")
	}

	deployment = testDeployment("https://api.openai.com/v1/chat/completions")
	deployment.ProviderModelID = ""
	if err := provider.ValidateConfig(deployment); err == nil {
		t.Error("expected error for empty provider model ID")
	}

	deployment = testDeployment("https://api.openai.com/v1/chat/completions")
	if err := provider.ValidateConfig(deployment); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
