package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"kelly.science/models"
)

// DefaultOllamaBaseURL is the default base URL for a local Ollama server.
const DefaultOllamaBaseURL = "http://localhost:11434"

// OllamaProvider handles local generation through an Ollama server.
// The deployment BaseURL is the server root (e.g. http://localhost:11434);
// the /api/chat path is appended here.
type OllamaProvider struct {
	client *http.Client
}

// NewOllamaProvider creates a new local provider
func NewOllamaProvider() *OllamaProvider {
	return &OllamaProvider{
		client: &http.Client{
			Timeout: 120 * time.Second, // local inference can be slow on CPU
		},
	}
}

// ollamaResponse is the shape of a single /api/chat response object.
// Streaming responses are newline-delimited JSON objects of the same shape.
type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
}

// TranslateRequest converts unified request to Ollama /api/chat format
func (p *OllamaProvider) TranslateRequest(ctx context.Context, req *UnifiedRequest, deployment *models.Deployment) (*ProviderRequest, error) {
	options := map[string]interface{}{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if req.TopP > 0 {
		options["top_p"] = req.TopP
	}
	if len(req.Stop) > 0 {
		options["stop"] = req.Stop
	}

	body := map[string]interface{}{
		"model":    deployment.ProviderModelID,
		"messages": req.Messages,
		"stream":   req.Stream,
	}
	if len(options) > 0 {
		body["options"] = options
	}

	baseURL := strings.TrimSuffix(deployment.Endpoint.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}

	return &ProviderRequest{
		URL:    baseURL + "/api/chat",
		Method: "POST",
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body:    body,
		Timeout: deployment.Endpoint.Timeout,
	}, nil
}

// Execute sends the request to the Ollama server
func (p *OllamaProvider) Execute(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error) {
	jsonBody, err := json.Marshal(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	headers := make(map[string]string)
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return &ProviderResponse{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       body,
	}, nil
}

// TranslateResponse converts an Ollama response to unified format
func (p *OllamaProvider) TranslateResponse(ctx context.Context, resp *ProviderResponse, deployment *models.Deployment) (*UnifiedResponse, error) {
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(resp.Body))
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(resp.Body, &ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	finishReason := ollamaResp.DoneReason
	if finishReason == "" && ollamaResp.Done {
		finishReason = "stop"
	}

	unifiedResp := &UnifiedResponse{
		ID:      fmt.Sprintf("ollama-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   ollamaResp.Model,
		Choices: []Choice{{
			Index: 0,
			Message: Message{
				Role:    ollamaResp.Message.Role,
				Content: ollamaResp.Message.Content,
			},
			FinishReason: finishReason,
		}},
		Usage: Usage{
			PromptTokens:     ollamaResp.PromptEvalCount,
			CompletionTokens: ollamaResp.EvalCount,
			TotalTokens:      ollamaResp.PromptEvalCount + ollamaResp.EvalCount,
		},
		Metadata: map[string]interface{}{
			"deployment_id":  deployment.ID,
			"provider":       string(deployment.Provider),
			"provider_model": deployment.ProviderModelID,
		},
	}

	return unifiedResp, nil
}

// Stream handles streaming responses (newline-delimited JSON objects)
func (p *OllamaProvider) Stream(ctx context.Context, req *ProviderRequest, stream chan<- StreamChunk) error {
	defer close(stream)

	if body, ok := req.Body.(map[string]interface{}); ok {
		body["stream"] = true
	}

	jsonBody, err := json.Marshal(req.Body)
	if err != nil {
		stream <- StreamChunk{Error: err}
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewBuffer(jsonBody))
	if err != nil {
		stream <- StreamChunk{Error: err}
		return err
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		stream <- StreamChunk{Error: err}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("ollama error (status %d)", resp.StatusCode)
		stream <- StreamChunk{Error: err}
		return err
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk ollamaResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			// Skip malformed JSON
			continue
		}

		if chunk.Message.Content != "" {
			stream <- StreamChunk{
				Data: chunk.Message.Content,
				Done: false,
			}
		}

		if chunk.Done {
			stream <- StreamChunk{Done: true}
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		stream <- StreamChunk{Error: err}
		return err
	}

	return nil
}

// ValidateConfig validates deployment configuration
func (p *OllamaProvider) ValidateConfig(deployment *models.Deployment) error {
	if deployment.ProviderModelID == "" {
		return fmt.Errorf("provider model ID is required")
	}
	// An empty BaseURL falls back to the local default
	return nil
}

// HealthCheck verifies the Ollama server is reachable
func (p *OllamaProvider) HealthCheck(ctx context.Context, deployment *models.Deployment) error {
	baseURL := strings.TrimSuffix(deployment.Endpoint.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(healthCtx, "GET", baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// GetInfo returns provider information
func (p *OllamaProvider) GetInfo() ProviderInfo {
	return ProviderInfo{
		Name:           "Ollama Local",
		Version:        "1.0",
		SupportsStream: true,
		RequiresAuth:   false,
		MaxRequestSize: 4 * 1024 * 1024, // 4MB
		RateLimits: map[string]int{
			"requests_per_minute": 60,
		},
	}
}