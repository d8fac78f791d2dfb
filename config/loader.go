package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"kelly.science/models"
	"kelly.science/routing"
)

// Config represents the complete configuration
type Config struct {
	Models      map[string]ModelConfig      `yaml:"models"`
	Deployments map[string]DeploymentConfig `yaml:"deployments"`
	Routing     RoutingConfig               `yaml:"routing"`
}

// ModelConfig from YAML
type ModelConfig struct {
	Name         string                   `yaml:"name"`
	Family       string                   `yaml:"family"`
	Version      string                   `yaml:"version"`
	Capabilities models.ModelCapabilities `yaml:"capabilities"`
	Deployments  []string                 `yaml:"deployments"`
	Tags         map[string]string        `yaml:"tags"`
}

// DeploymentConfig from YAML
type DeploymentConfig struct {
	ModelID         string            `yaml:"model_id"`
	Provider        string            `yaml:"provider"`
	ProviderModelID string            `yaml:"provider_model_id"`
	Priority        int               `yaml:"priority"`
	Weight          int               `yaml:"weight"`
	Endpoint        EndpointConfig    `yaml:"endpoint"`
	Tags            map[string]string `yaml:"tags"`
}

// EndpointConfig from YAML
type EndpointConfig struct {
	BaseURL       string            `yaml:"base_url"`
	Timeout       string            `yaml:"timeout"`
	MaxRetries    int               `yaml:"max_retries"`
	Auth          AuthConfig        `yaml:"auth"`
	CustomHeaders map[string]string `yaml:"custom_headers,omitempty"`
}

// AuthConfig from YAML
type AuthConfig struct {
	Type   string `yaml:"type"`
	EnvVar string `yaml:"env_var,omitempty"`
}

// RoutingConfig from YAML
type RoutingConfig struct {
	Strategy    string            `yaml:"strategy"`
	HealthCheck HealthCheckConfig `yaml:"health_check"`
	Fallback    FallbackConfig    `yaml:"fallback"`
}

// HealthCheckConfig from YAML
type HealthCheckConfig struct {
	Enabled             bool   `yaml:"enabled"`
	Interval            string `yaml:"interval"`
	Timeout             string `yaml:"timeout"`
	MaxConsecutiveFails int    `yaml:"max_consecutive_fails"`
	CheckOnStartup      bool   `yaml:"check_on_startup"`
}

// FallbackConfig from YAML
type FallbackConfig struct {
	Enabled      bool `yaml:"enabled"`
	MaxFallbacks int  `yaml:"max_fallbacks"`
}

// LoadConfig loads configuration from YAML files
func LoadConfig(configDir string) (*Config, error) {
	config := &Config{
		Models:      make(map[string]ModelConfig),
		Deployments: make(map[string]DeploymentConfig),
	}

	// Load models.yaml
	modelsPath := filepath.Join(configDir, "models.yaml")
	if err := loadYAMLFile(modelsPath, &struct {
		Models map[string]ModelConfig `yaml:"models"`
	}{Models: config.Models}); err != nil {
		return nil, fmt.Errorf("failed to load models.yaml: %w", err)
	}

	// Load deployments.yaml
	deploymentsPath := filepath.Join(configDir, "deployments.yaml")
	if err := loadYAMLFile(deploymentsPath, &struct {
		Deployments map[string]DeploymentConfig `yaml:"deployments"`
	}{Deployments: config.Deployments}); err != nil {
		return nil, fmt.Errorf("failed to load deployments.yaml: %w", err)
	}

	// Load routing.yaml
	routingPath := filepath.Join(configDir, "routing.yaml")
	var routingWrapper struct {
		Routing RoutingConfig `yaml:"routing"`
	}
	if err := loadYAMLFile(routingPath, &routingWrapper); err != nil {
		return nil, fmt.Errorf("failed to load routing.yaml: %w", err)
	}
	config.Routing = routingWrapper.Routing

	// Expand environment variables
	expandEnvVars(config)

	return config, nil
}

// loadYAMLFile loads a YAML file into a structure
func loadYAMLFile(path string, v interface{}) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}

// expandEnvVars expands environment variables in configuration
func expandEnvVars(config *Config) {
	for id, deployment := range config.Deployments {
		deployment.Endpoint.BaseURL = expandEnv(deployment.Endpoint.BaseURL)
		config.Deployments[id] = deployment
	}
}

// expandEnv expands environment variables in a string
func expandEnv(s string) string {
	if strings.Contains(s, "${") {
		return os.Expand(s, func(key string) string {
			// Handle default values like ${VAR:-default}
			parts := strings.SplitN(key, ":-", 2)
			value := os.Getenv(parts[0])
			if value == "" && len(parts) > 1 {
				return parts[1]
			}
			return value
		})
	}
	return s
}

// BuildRouter creates a router from configuration
func BuildRouter(config *Config) (*routing.Router, *models.ModelRegistry, *models.DeploymentRegistry, error) {
	// Convert strategy string to RoutingStrategy
	var strategy routing.RoutingStrategy
	switch config.Routing.Strategy {
	case "round_robin":
		strategy = routing.StrategyRoundRobin
	case "weighted":
		strategy = routing.StrategyWeighted
	case "least_latency":
		strategy = routing.StrategyLeastLatency
	case "priority":
		strategy = routing.StrategyPriority
	default:
		strategy = routing.StrategyPriority
	}

	// Create router
	router := routing.NewRouter(strategy)

	// Create registries
	modelRegistry := models.NewModelRegistry()
	deploymentRegistry := models.NewDeploymentRegistry()

	// Register models
	for id, modelConfig := range config.Models {
		model := &models.Model{
			ID:           id,
			Name:         modelConfig.Name,
			Family:       modelConfig.Family,
			Version:      modelConfig.Version,
			Capabilities: modelConfig.Capabilities,
			Deployments:  modelConfig.Deployments,
			Tags:         modelConfig.Tags,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}
		modelRegistry.Register(model)
		router.RegisterModel(model)
	}

	// Register deployments
	for id, deploymentConfig := range config.Deployments {
		// Parse timeout
		timeout, _ := time.ParseDuration(deploymentConfig.Endpoint.Timeout)
		if timeout == 0 {
			timeout = 30 * time.Second
		}

		// Get auth type
		authType := models.AuthAPIKey
		if deploymentConfig.Endpoint.Auth.Type == "none" {
			authType = models.AuthNone
		}

		// Resolve API key from environment
		apiKey := ""
		if authType == models.AuthAPIKey {
			envVar := deploymentConfig.Endpoint.Auth.EnvVar
			if envVar == "" {
				envVar = "OPENAI_API_KEY"
			}
			apiKey = os.Getenv(envVar)
		}

		deployment := &models.Deployment{
			ID:              id,
			ModelID:         deploymentConfig.ModelID,
			Provider:        models.ProviderType(deploymentConfig.Provider),
			ProviderModelID: deploymentConfig.ProviderModelID,
			Priority:        deploymentConfig.Priority,
			Weight:          deploymentConfig.Weight,
			Endpoint: models.EndpointConfig{
				BaseURL:    deploymentConfig.Endpoint.BaseURL,
				Timeout:    timeout,
				MaxRetries: deploymentConfig.Endpoint.MaxRetries,
				Auth: models.AuthConfig{
					Type:   authType,
					APIKey: apiKey,
				},
				CustomHeaders: deploymentConfig.Endpoint.CustomHeaders,
			},
			Status: models.DeploymentStatus{
				Available: true,
				Healthy:   true,
			},
			Tags:      deploymentConfig.Tags,
			CreatedAt: time.Now(),
		}

		deploymentRegistry.Register(deployment)
		router.RegisterDeployment(deployment)
	}

	return router, modelRegistry, deploymentRegistry, nil
}

// HealthCheckSettings resolves the health-check block to concrete values.
// The caller owns starting the checker, so only one ever runs.
func (c *Config) HealthCheckSettings() (enabled bool, interval, timeout time.Duration) {
	hc := c.Routing.HealthCheck
	interval, _ = time.ParseDuration(hc.Interval)
	timeout, _ = time.ParseDuration(hc.Timeout)

	if interval == 0 {
		interval = 30 * time.Second
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return hc.Enabled, interval, timeout
}
