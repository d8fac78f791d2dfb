package models

import (
	"time"
)

// Deployment represents a specific model instance on a provider
type Deployment struct {
	// Identification
	ID      string `json:"id" yaml:"id"`
	ModelID string `json:"model_id" yaml:"model_id"`

	// Provider configuration
	Provider        ProviderType `json:"provider" yaml:"provider"`
	ProviderModelID string       `json:"provider_model_id" yaml:"provider_model_id"`

	// Endpoint configuration
	Endpoint EndpointConfig `json:"endpoint" yaml:"endpoint"`

	// Routing configuration
	Priority int `json:"priority" yaml:"priority"` // Lower is higher priority
	Weight   int `json:"weight" yaml:"weight"`     // For weighted routing

	// Runtime state
	Status  DeploymentStatus  `json:"status"`
	Metrics DeploymentMetrics `json:"metrics"`

	// Metadata
	Tags      map[string]string `json:"tags" yaml:"tags"`
	CreatedAt time.Time         `json:"created_at" yaml:"created_at"`
}

// ProviderType represents supported generation backends
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai" // hosted OpenAI-compatible endpoint
	ProviderOllama ProviderType = "ollama" // local Ollama server
)

// EndpointConfig contains provider-specific endpoint configuration
type EndpointConfig struct {
	// Connection
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`

	// Authentication
	Auth AuthConfig `json:"auth" yaml:"auth"`

	// Headers
	CustomHeaders map[string]string `json:"custom_headers,omitempty" yaml:"custom_headers,omitempty"`
}

// AuthType defines authentication methods
type AuthType string

const (
	AuthAPIKey AuthType = "api_key"
	AuthNone   AuthType = "none" // local models need no credentials
)

// AuthConfig for endpoint authentication
type AuthConfig struct {
	Type   AuthType `json:"type" yaml:"type"`
	APIKey string   `json:"-"` // Never serialize
}

// DeploymentStatus tracks deployment health
type DeploymentStatus struct {
	Available        bool          `json:"available"`
	Healthy          bool          `json:"healthy"`
	LastHealthCheck  time.Time     `json:"last_health_check"`
	LastSuccessful   time.Time     `json:"last_successful"`
	ConsecutiveFails int           `json:"consecutive_fails"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	ResponseTime     time.Duration `json:"response_time"`
}

// DeploymentMetrics tracks performance and usage
type DeploymentMetrics struct {
	// Request metrics
	TotalRequests   int64 `json:"total_requests"`
	SuccessRequests int64 `json:"success_requests"`
	FailedRequests  int64 `json:"failed_requests"`

	// Latency metrics (milliseconds)
	AverageLatency float64 `json:"average_latency"`

	// Token metrics
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`

	// Time window
	WindowStart time.Time `json:"window_start"`
	LastUpdated time.Time `json:"last_updated"`
}

// DeploymentRegistry manages all deployments
type DeploymentRegistry struct {
	deployments map[string]*Deployment
}

// NewDeploymentRegistry creates a new deployment registry
func NewDeploymentRegistry() *DeploymentRegistry {
	return &DeploymentRegistry{
		deployments: make(map[string]*Deployment),
	}
}

// Register adds a deployment to the registry
func (r *DeploymentRegistry) Register(deployment *Deployment) {
	r.deployments[deployment.ID] = deployment
}

// Get retrieves a deployment by ID
func (r *DeploymentRegistry) Get(id string) (*Deployment, bool) {
	deployment, exists := r.deployments[id]
	return deployment, exists
}

// GetByModel returns all deployments for a model
func (r *DeploymentRegistry) GetByModel(modelID string) []*Deployment {
	var deployments []*Deployment
	for _, deployment := range r.deployments {
		if deployment.ModelID == modelID {
			deployments = append(deployments, deployment)
		}
	}
	return deployments
}

// List returns all deployments
func (r *DeploymentRegistry) List() []*Deployment {
	deployments := make([]*Deployment, 0, len(r.deployments))
	for _, deployment := range r.deployments {
		deployments = append(deployments, deployment)
	}
	return deployments
}

// GetHealthy returns all healthy deployments
func (r *DeploymentRegistry) GetHealthy() []*Deployment {
	var deployments []*Deployment
	for _, deployment := range r.deployments {
		if deployment.Status.Healthy && deployment.Status.Available {
			deployments = append(deployments, deployment)
		}
	}
	return deployments
}
