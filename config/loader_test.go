package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"kelly.science/config"
	"kelly.science/models"
)

func writeConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	modelsYAML := `models:
  gpt-4o-mini:
    name: GPT-4o Mini
    family: gpt
    capabilities:
      max_tokens: 16384
      supports_streaming: true
    deployments:
      - openai-gpt-4o-mini
  llama3.2:
    name: Llama 3.2 (local)
    family: llama
    deployments:
      - ollama-llama3.2
`
	deploymentsYAML := `deployments:
  openai-gpt-4o-mini:
    model_id: gpt-4o-mini
    provider: openai
    provider_model_id: gpt-4o-mini
    priority: 1
    weight: 100
    endpoint:
      base_url: ${TEST_OPENAI_URL:-https://api.openai.com/v1/chat/completions}
      timeout: 30s
      auth:
        type: api_key
        env_var: TEST_OPENAI_KEY
  ollama-llama3.2:
    model_id: llama3.2
    provider: ollama
    provider_model_id: llama3.2
    priority: 10
    weight: 10
    endpoint:
      base_url: http://localhost:11434
      timeout: 120s
      auth:
        type: none
`
	routingYAML := `routing:
  strategy: priority
  health_check:
    enabled: false
  fallback:
    enabled: true
    max_fallbacks: 3
`

	files := map[string]string{
		"models.yaml":      modelsYAML,
		"deployments.yaml": deploymentsYAML,
		"routing.yaml":     routingYAML,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadConfig(t *testing.T) {
	dir := writeConfigDir(t)

	cfg, err := config.LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if len(cfg.Models) != 2 {
		t.Errorf("Expected 2 models, got %d", len(cfg.Models))
	}
	if len(cfg.Deployments) != 2 {
		t.Errorf("Expected 2 deployments, got %d", len(cfg.Deployments))
	}
	if cfg.Routing.Strategy != "priority" {
		t.Errorf("Expected priority strategy, got %s", cfg.Routing.Strategy)
	}

	model, ok := cfg.Models["gpt-4o-mini"]
	if !ok {
		t.Fatal("Expected gpt-4o-mini model")
	}
	if !model.Capabilities.SupportsStreaming {
		t.Error("Expected streaming capability")
	}
}

func TestLoadConfigExpandsEnvDefaults(t *testing.T) {
	dir := writeConfigDir(t)

	os.Unsetenv("TEST_OPENAI_URL")
	cfg, err := config.LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	got := cfg.Deployments["openai-gpt-4o-mini"].Endpoint.BaseURL
	if got != "https://api.openai.com/v1/chat/completions" {
		t.Errorf("Expected default base URL, got %s", got)
	}
}

func TestLoadConfigExpandsEnvOverride(t *testing.T) {
	dir := writeConfigDir(t)

	t.Setenv("TEST_OPENAI_URL", "http://localhost:9999/v1/chat/completions")
	cfg, err := config.LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	got := cfg.Deployments["openai-gpt-4o-mini"].Endpoint.BaseURL
	if got != "http://localhost:9999/v1/chat/completions" {
		t.Errorf("Expected overridden base URL, got %s", got)
	}
}

func TestLoadConfigMissingDir(t *testing.T) {
	if _, err := config.LoadConfig("/nonexistent/config/dir"); err == nil {
		t.Error("Expected error for missing config dir")
	}
}

func TestBuildRouter(t *testing.T) {
	dir := writeConfigDir(t)

	t.Setenv("TEST_OPENAI_KEY", "sk-test-key")
	cfg, err := config.LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	router, modelReg, deploymentReg, err := config.BuildRouter(cfg)
	if err != nil {
		t.Fatalf("BuildRouter failed: %v", err)
	}
	if router == nil {
		t.Fatal("Expected router")
	}

	if _, ok := modelReg.Get("gpt-4o-mini"); !ok {
		t.Error("Expected gpt-4o-mini registered")
	}
	if _, ok := modelReg.Get("llama3.2"); !ok {
		t.Error("Expected llama3.2 registered")
	}

	hosted, ok := deploymentReg.Get("openai-gpt-4o-mini")
	if !ok {
		t.Fatal("Expected hosted deployment")
	}
	if hosted.Endpoint.Auth.Type != models.AuthAPIKey {
		t.Errorf("Expected api_key auth, got %s", hosted.Endpoint.Auth.Type)
	}
	if hosted.Endpoint.Auth.APIKey != "sk-test-key" {
		t.Error("Expected API key resolved from env")
	}
	if hosted.Endpoint.Timeout != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %v", hosted.Endpoint.Timeout)
	}

	local, ok := deploymentReg.Get("ollama-llama3.2")
	if !ok {
		t.Fatal("Expected local deployment")
	}
	if local.Endpoint.Auth.Type != models.AuthNone {
		t.Errorf("Expected none auth, got %s", local.Endpoint.Auth.Type)
	}
	if local.Provider != models.ProviderOllama {
		t.Errorf("Expected ollama provider, got %s", local.Provider)
	}
}

func TestHealthCheckSettings(t *testing.T) {
	dir := writeConfigDir(t)

	cfg, err := config.LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	// routing.yaml disables the checker; the caller must not start one
	enabled, interval, timeout := cfg.HealthCheckSettings()
	if enabled {
		t.Error("Expected health checker disabled by config")
	}
	if interval != 30*time.Second {
		t.Errorf("Expected 30s default interval, got %v", interval)
	}
	if timeout != 5*time.Second {
		t.Errorf("Expected 5s default timeout, got %v", timeout)
	}

	cfg.Routing.HealthCheck = config.HealthCheckConfig{
		Enabled:  true,
		Interval: "10s",
		Timeout:  "2s",
	}
	enabled, interval, timeout = cfg.HealthCheckSettings()
	if !enabled {
		t.Error("Expected health checker enabled")
	}
	if interval != 10*time.Second {
		t.Errorf("Expected 10s interval, got %v", interval)
	}
	if timeout != 2*time.Second {
		t.Errorf("Expected 2s timeout, got %v", timeout)
	}
}
