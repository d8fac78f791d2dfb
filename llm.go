package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
)

var (
	apiKey    string
	apiURL    string
	modelName string
)

func init() {
	loadLLMConfig()
	if debugMode {
		log.Printf("[LLM init] apiURL: %s, modelName: %s, apiKey set: %v", apiURL, modelName, apiKey != "")
	}
}

func loadLLMConfig() {
	apiKey = os.Getenv("OPENAI_API_KEY")
	apiURL = os.Getenv("API_URL")
	modelName = os.Getenv("MODEL_NAME")
}

// LLMResponse contains the response and metadata from an LLM call
type LLMResponse struct {
	Content         string
	InputTokens     int
	OutputTokens    int
	InputHash       string
	OutputHash      string
	Model           string
	FinishReason    string
	ContentFiltered bool
}

// LLM calls an OpenAI-compatible endpoint directly, bypassing the router.
// Kept as the escape hatch for when the router cannot be initialized.
// If stream is nil the complete response is returned; otherwise chunks are
// sent to the channel. Input is a string (wrapped as a user message) or
// []map[string]string for full message history.
func LLM(input interface{}, stream chan<- string) (*LLMResponse, error) {
	// Ensure config is loaded
	if apiURL == "" {
		loadLLMConfig()
		if apiURL == "" {
			if stream != nil {
				close(stream)
			}
			return nil, fmt.Errorf("API URL not configured")
		}
	}

	// Build messages array
	var messages []map[string]string
	var fullInput string
	switch v := input.(type) {
	case string:
		messages = []map[string]string{
			{"role": "user", "content": v},
		}
		fullInput = v
	case []map[string]string:
		messages = v
		for _, msg := range v {
			fullInput += msg["role"] + ": " + msg["content"] + "\n"
		}
	default:
		if stream != nil {
			close(stream)
		}
		return nil, fmt.Errorf("invalid input type")
	}

	response := &LLMResponse{
		Model:       modelName,
		InputHash:   generateSignature(fullInput),
		InputTokens: countTokens(fullInput, modelName),
	}

	// Build request
	requestBody := map[string]interface{}{
		"model":       modelName,
		"messages":    messages,
		"temperature": 0.7,
		"max_tokens":  250,
	}

	if stream != nil {
		requestBody["stream"] = true
		defer close(stream)
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", apiURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	// Handle streaming response
	if stream != nil {
		var outputBuilder strings.Builder
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data: ") {
				data := strings.TrimPrefix(line, "data: ")
				if data == "[DONE]" {
					break
				}

				var chunk map[string]interface{}
				if err := json.Unmarshal([]byte(data), &chunk); err == nil {
					if choices, ok := chunk["choices"].([]interface{}); ok && len(choices) > 0 {
						if choice, ok := choices[0].(map[string]interface{}); ok {
							if delta, ok := choice["delta"].(map[string]interface{}); ok {
								if content, ok := delta["content"].(string); ok {
									stream <- content
									outputBuilder.WriteString(content)
								}
							}
						}
					}
				}
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		response.Content = outputBuilder.String()
		response.OutputHash = generateSignature(response.Content)
		response.OutputTokens = countTokens(response.Content, modelName)
		return response, nil
	}

	// Handle non-streaming response
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}

	if choices, ok := parsed["choices"].([]interface{}); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]interface{}); ok {
			if message, ok := choice["message"].(map[string]interface{}); ok {
				if content, ok := message["content"].(string); ok {
					response.Content = content
					response.OutputHash = generateSignature(content)
					response.OutputTokens = countTokens(content, modelName)
					if reason, ok := choice["finish_reason"].(string); ok {
						response.FinishReason = reason
					}
					return response, nil
				}
			}
		}
	}

	return nil, fmt.Errorf("unexpected response format")
}
