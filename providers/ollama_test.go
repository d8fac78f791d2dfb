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

func localDeployment(baseURL string) *models.Deployment {
	return &models.Deployment{
		ID:              "local-fallback",
		ModelID:         "llama3.2",
		Provider:        models.ProviderOllama,
		ProviderModelID: "llama3.2",
		Endpoint: models.EndpointConfig{
			BaseURL: baseURL,
			Timeout: 30 * time.Second,
			Auth:    models.AuthConfig{Type: models.AuthNone},
		},
		Status: models.DeploymentStatus{
			Available: true,
		},
	}
}

func TestOllamaTranslateRequest(t *testing.T) {
	provider := providers.NewOllamaProvider()

	req := &providers.UnifiedRequest{
		Model: "llama3.2",
		Messages: []providers.Message{
			{Role: "system", Content: "You are Kelly."},
			{Role: "user", Content: "Can AI truly think?"},
		},
		Temperature: 0.8,
		MaxTokens:   250,
	}

	providerReq, err := provider.TranslateRequest(context.Background(), req, localDeployment("http://localhost:11434/"))
	if err != nil {
		t.Fatalf("Failed to translate request: %v", err)
	}

	if providerReq.URL != "http://localhost:11434/api/chat" {
		t.Errorf("URL = %s, want http://localhost:11434/api/chat", providerReq.URL)
	}

	body := providerReq.Body.(map[string]interface{})
	options, ok := body["options"].(map[string]interface{})
	if !ok {
		t.Fatal("options missing from request body")
	}
	if options["num_predict"] != 250 {
		t.Errorf("num_predict = %v, want 250", options["num_predict"])
	}
	if options["temperature"] != 0.8 {
		t.Errorf("temperature = %v, want 0.8", options["temperature"])
	}
}

func TestOllamaTranslateRequestDefaultBaseURL(t *testing.T) {
	provider := providers.NewOllamaProvider()

	req := &providers.UnifiedRequest{
		Model:    "llama3.2",
		Messages: []providers.Message{{Role: "user", Content: "Hi"}},
	}

	providerReq, err := provider.TranslateRequest(context.Background(), req, localDeployment(""))
	if err != nil {
		t.Fatalf("Failed to translate request: %v", err)
	}

	want := providers.DefaultOllamaBaseURL + "/api/chat"
	if providerReq.URL != want {
		t.Errorf("URL = %s, want %s", providerReq.URL, want)
	}
}

func TestOllamaExecuteAndTranslate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"model": "llama3.2",
			"message": {"role": "assistant", "content": "Small model, small poem,\nstill it rhymes."},
			"done": true,
			"done_reason": "stop",
			"prompt_eval_count": 38,
			"eval_count": 11
		}`)
	}))
	defer server.Close()

	provider := providers.NewOllamaProvider()
	deployment := localDeployment(server.URL)

	req := &providers.UnifiedRequest{
		Model:    "llama3.2",
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
	if unified.Choices[0].FinishReason != "stop" {
		t.Errorf("finish reason = %q, want stop", unified.Choices[0].FinishReason)
	}
	if unified.Usage.TotalTokens != 49 {
		t.Errorf("total tokens = %d, want 49", unified.Usage.TotalTokens)
	}
}

func TestOllamaTranslateResponseErrorStatus(t *testing.T) {
	provider := providers.NewOllamaProvider()

	resp := &providers.ProviderResponse{
		StatusCode: http.StatusNotFound,
		Body:       json.RawMessage(`{"error": "model 'llama3.2' not found"}`),
	}

	if _, err := provider.TranslateResponse(context.Background(), resp, localDeployment("")); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestOllamaStreamingNDJSON(t *testing.T) {
	// Ollama streams newline-delimited JSON objects, not SSE
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		chunks := []string{"Verse ", "by ", "verse."}
		for _, c := range chunks {
			fmt.Fprintf(w, "{\"model\":\"llama3.2\",\"message\":{\"role\":\"assistant\",\"content\":%q},\"done\":false}\n", c)
			flusher.Flush()
		}
		fmt.Fprint(w, "{\"model\":\"llama3.2\",\"message\":{\"role\":\"assistant\",\"content\":\"\"},\"done\":true,\"done_reason\":\"stop\"}\n")
	}))
	defer server.Close()

	provider := providers.NewOllamaProvider()
	deployment := localDeployment(server.URL)

	req := &providers.UnifiedRequest{
		Model:    "llama3.2",
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
	var done bool
	for chunk := range stream {
		if chunk.Error != nil {
			t.Fatalf("Chunk error: %v", chunk.Error)
		}
		if chunk.Done {
			done = true
			break
		}
		content += chunk.Data
	}

	if content != "Verse by verse." {
		t.Errorf("streamed content = %q, want %q", content, "Verse by verse.")
	}
	if !done {
		t.Error("stream never signalled done")
	}
}

func TestOllamaHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			fmt.Fprint(w, `{"models": []}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	provider := providers.NewOllamaProvider()
	if err := provider.HealthCheck(context.Background(), localDeployment(server.URL)); err != nil {
		t.Errorf("health check failed: %v", err)
	}
}
