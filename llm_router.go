package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"kelly.science/models"
	"kelly.science/providers"
	"kelly.science/routing"
)

// RouterParams carries per-request generation overrides
type RouterParams struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stop        []string
}

// LLMWithRouter calls the language model through the routing system.
// Input is a string (wrapped as a user message) or []map[string]string for
// full message history. If stream is non-nil, chunks are sent to the channel
// and the channel is closed when generation finishes.
func LLMWithRouter(input interface{}, requestedModel string, params *RouterParams, stream chan<- string) (*LLMResponse, error) {
	return LLMWithRouterConv(input, requestedModel, "", params, stream)
}

// LLMWithRouterConv is LLMWithRouter with an explicit conversation ID for
// audit logging.
func LLMWithRouterConv(input interface{}, requestedModel string, conversationID string, params *RouterParams, stream chan<- string) (*LLMResponse, error) {
	if debugMode {
		log.Printf("[LLMWithRouter] Starting routing for model: %s", requestedModel)
	}

	// Build unified request
	var messages []providers.Message
	var fullInput string

	switch v := input.(type) {
	case string:
		fullInput = v
		messages = []providers.Message{
			{Role: "user", Content: v},
		}
	case []map[string]string:
		for _, msg := range v {
			messages = append(messages, providers.Message{
				Role:    msg["role"],
				Content: msg["content"],
			})
			fullInput += msg["role"] + ": " + msg["content"] + "\n"
		}
	default:
		if stream != nil {
			close(stream)
		}
		return nil, fmt.Errorf("invalid input type")
	}

	// Create unified request with Kelly's defaults
	unifiedReq := &providers.UnifiedRequest{
		Model:       requestedModel,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   250,
		Stream:      stream != nil,
	}
	if params != nil {
		if params.MaxTokens > 0 {
			unifiedReq.MaxTokens = params.MaxTokens
		}
		if params.Temperature > 0 {
			unifiedReq.Temperature = params.Temperature
		}
		if params.TopP > 0 {
			unifiedReq.TopP = params.TopP
		}
		if len(params.Stop) > 0 {
			unifiedReq.Stop = params.Stop
		}
	}

	// Create request context
	reqCtx := &routing.RequestContext{
		RequestID: generateRequestID(),
		ModelID:   requestedModel,
	}

	// Get routing decision
	decision, err := modelRouter.RouteRequest(context.Background(), requestedModel, reqCtx)
	if err != nil {
		// Fall back to the direct path if routing has nothing to offer
		log.Printf("[LLMWithRouter] Routing failed, falling back to direct endpoint: %v", err)
		return LLM(input, stream)
	}

	if debugMode {
		log.Printf("[LLMWithRouter] Selected deployment: %s (provider: %s, model: %s)",
			decision.Primary.ID,
			decision.Primary.Provider,
			decision.Primary.ProviderModelID)
	}

	// Create response object
	response := &LLMResponse{
		Model:       decision.Primary.ModelID,
		InputHash:   generateSignature(fullInput),
		InputTokens: countTokens(fullInput, requestedModel),
	}

	beacon("llm_request_start", map[string]interface{}{
		"model":        requestedModel,
		"deployment":   decision.Primary.ID,
		"provider":     string(decision.Primary.Provider),
		"streaming":    stream != nil,
		"input_hash":   response.InputHash,
		"input_tokens": response.InputTokens,
	})

	// Handle streaming if requested
	if stream != nil {
		defer close(stream)
		err = handleStreamingWithRouter(unifiedReq, decision, stream, response)
	} else {
		// Execute non-streaming request
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		var unifiedResp *providers.UnifiedResponse
		unifiedResp, err = modelRouter.ExecuteRequest(ctx, unifiedReq, decision)
		if err != nil {
			beacon("llm_error", map[string]interface{}{
				"type":       "routing_error",
				"error":      err.Error(),
				"model":      requestedModel,
				"deployment": decision.Primary.ID,
			})
			LogLLMInteraction(conversationID, requestedModel, decision.Primary.ID,
				string(decision.Primary.Provider), input, "", response.InputTokens, 0, err)
			return nil, err
		}

		// Extract content from response
		if len(unifiedResp.Choices) > 0 {
			response.Content = unifiedResp.Choices[0].Message.Content
			response.OutputHash = generateSignature(response.Content)
			response.FinishReason = unifiedResp.Choices[0].FinishReason
		}
		if unifiedResp.Model != "" {
			response.Model = unifiedResp.Model
		}

		// Use token counts from response if available
		if unifiedResp.Usage.CompletionTokens > 0 {
			response.OutputTokens = unifiedResp.Usage.CompletionTokens
		} else {
			response.OutputTokens = countTokens(response.Content, requestedModel)
		}
	}

	LogLLMInteraction(conversationID, requestedModel, decision.Primary.ID,
		string(decision.Primary.Provider), input, response.Content,
		response.InputTokens, response.OutputTokens, err)

	beacon("llm_request_complete", map[string]interface{}{
		"model":         requestedModel,
		"deployment":    decision.Primary.ID,
		"provider":      string(decision.Primary.Provider),
		"success":       err == nil,
		"streaming":     stream != nil,
		"input_hash":    response.InputHash,
		"output_hash":   response.OutputHash,
		"input_tokens":  response.InputTokens,
		"output_tokens": response.OutputTokens,
		"total_tokens":  response.InputTokens + response.OutputTokens,
		"finish_reason": response.FinishReason,
	})

	return response, err
}

// handleStreamingWithRouter handles streaming responses through the router.
// The primary deployment streams directly; if it fails before producing any
// output, fallbacks are tried in order.
func handleStreamingWithRouter(req *providers.UnifiedRequest, decision *routing.RoutingDecision, stream chan<- string, response *LLMResponse) error {
	deployments := append([]*models.Deployment{decision.Primary}, decision.Fallbacks...)

	var lastErr error
	for _, deployment := range deployments {
		provider, exists := modelRouter.Providers[deployment.Provider]
		if !exists {
			lastErr = fmt.Errorf("provider not found: %s", deployment.Provider)
			continue
		}

		ctx := context.Background()
		providerReq, err := provider.TranslateRequest(ctx, req, deployment)
		if err != nil {
			lastErr = fmt.Errorf("failed to translate request: %w", err)
			modelRouter.RecordFailure(deployment.ID)
			continue
		}

		providerStream := make(chan providers.StreamChunk)
		go func() {
			if err := provider.Stream(ctx, providerReq, providerStream); err != nil {
				log.Printf("[LLMWithRouter] Stream error: %v", err)
			}
		}()

		var outputBuilder strings.Builder
		streamErr := error(nil)
		for chunk := range providerStream {
			if chunk.Error != nil {
				streamErr = chunk.Error
				break
			}
			if chunk.Done {
				break
			}
			stream <- chunk.Data
			outputBuilder.WriteString(chunk.Data)
		}

		if streamErr != nil && outputBuilder.Len() == 0 {
			// Nothing was sent yet; the next deployment can take over
			lastErr = streamErr
			modelRouter.RecordFailure(deployment.ID)
			continue
		}
		if streamErr != nil {
			modelRouter.RecordFailure(deployment.ID)
			return streamErr
		}

		modelRouter.RecordSuccess(deployment.ID)
		response.Content = outputBuilder.String()
		response.OutputHash = generateSignature(response.Content)
		response.OutputTokens = countTokens(response.Content, req.Model)
		response.Model = deployment.ModelID
		return nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("all deployments failed")
	}
	return lastErr
}
