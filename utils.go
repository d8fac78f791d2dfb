package main

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strconv"
)

// generateSignature creates a hash signature for content
// Used for deduplication and tracking in telemetry
func generateSignature(content string) string {
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", hash)[:16] // First 16 chars of hash
}

// ServiceConfig holds generation settings for one of the serving surfaces
type ServiceConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// getServiceConfig returns the generation settings for a service
func getServiceConfig(serviceName string) ServiceConfig {
	return ServiceConfig{
		Model:       getServiceModel(serviceName),
		MaxTokens:   getServiceMaxTokens(serviceName),
		Temperature: getServiceTemperature(serviceName),
	}
}

// getServiceModel returns the model to use for a service, with fallback logic
func getServiceModel(serviceName string) string {
	// First try service-specific model (e.g., DNS_LLM_MODEL)
	serviceModel := os.Getenv(serviceName + "_LLM_MODEL")
	if serviceModel != "" {
		return serviceModel
	}

	// Fall back to the shared default
	if defaultModel := os.Getenv("KELLY_DEFAULT_MODEL"); defaultModel != "" {
		return defaultModel
	}

	return defaultModelID()
}

// defaultModelID picks the hosted model when a key is present, the local
// fallback otherwise. The fallback name must match what the built-in router
// registers, so OLLAMA_MODEL wins over the llama3.2 default.
func defaultModelID() string {
	if os.Getenv("OPENAI_API_KEY") != "" {
		return "gpt-4o-mini"
	}
	if localModel := os.Getenv("OLLAMA_MODEL"); localModel != "" {
		return localModel
	}
	return "llama3.2"
}

// getServiceMaxTokens returns max tokens for a service with defaults
func getServiceMaxTokens(serviceName string) int {
	// Service-specific defaults
	defaults := map[string]int{
		"DNS": 120, // poem must fit in TXT records
		"SSH": 250,
	}

	// Try service-specific env var
	envVar := os.Getenv(serviceName + "_LLM_MAX_TOKENS")
	if envVar != "" {
		if val, err := strconv.Atoi(envVar); err == nil {
			return val
		}
	}

	// Return service default or generic default
	if defaultVal, ok := defaults[serviceName]; ok {
		return defaultVal
	}
	return 250 // Kelly's poems are short
}

// getServiceTemperature returns temperature for a service with defaults
func getServiceTemperature(serviceName string) float64 {
	// Try service-specific env var
	envVar := os.Getenv(serviceName + "_LLM_TEMPERATURE")
	if envVar != "" {
		if val, err := strconv.ParseFloat(envVar, 64); err == nil {
			return val
		}
	}

	return 0.7
}
