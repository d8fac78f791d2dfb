package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"kelly.science/config"
	"kelly.science/models"
	"kelly.science/providers"
	"kelly.science/routing"
)

// InitializeModelRouter initializes the model routing system.
//
// The hosted deployment is only usable when OPENAI_API_KEY is set; the local
// Ollama deployment is always registered at lower priority, so a keyless
// install still serves poems.
func InitializeModelRouter() error {
	log.Println("[InitializeModelRouter] Starting model router initialization...")

	err := initializeFullRouter()
	if err != nil {
		log.Printf("[InitializeModelRouter] Config-based initialization failed: %v", err)
		// Continue - we'll build a minimal router below
	} else {
		log.Println("[InitializeModelRouter] Router initialized from config")
	}

	// If config loading produced nothing, build the built-in two-deployment
	// router: hosted model when a key is present, local fallback always.
	if modelRouter == nil {
		log.Println("[InitializeModelRouter] Creating built-in router")
		if err := initializeBuiltinRouter(); err != nil {
			return fmt.Errorf("failed to create built-in router: %w", err)
		}
	}

	// Without a key the hosted deployment can only return auth errors, so
	// take it out of rotation up front.
	if os.Getenv("OPENAI_API_KEY") == "" {
		disableHostedDeployments()
	}

	// Validate service configurations
	if err := validateServiceConfigurations(); err != nil {
		return fmt.Errorf("service configuration validation failed: %w", err)
	}

	return nil
}

// initializeFullRouter loads the YAML config and builds the routing system
func initializeFullRouter() error {
	// Determine config directory
	configDir := os.Getenv("LLM_CONFIG_DIR")
	if configDir == "" {
		configDir = "./config"
	}

	// Check if config directory exists
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		log.Printf("[initializeFullRouter] Config directory not found: %s", configDir)
		return fmt.Errorf("config directory not found")
	}

	// Load configuration
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		log.Printf("[initializeFullRouter] Failed to load config: %v", err)
		return err
	}

	// Build router and registries
	router, modelReg, deploymentReg, err := config.BuildRouter(cfg)
	if err != nil {
		log.Printf("[initializeFullRouter] Failed to build router: %v", err)
		return err
	}

	// Register providers
	registerProviders(router)

	// Set global instances
	modelRouter = router
	modelRegistry = modelReg
	deploymentRegistry = deploymentReg

	// Start the health checker (unless routing.yaml disables it) so a downed
	// Ollama or unreachable API is marked unhealthy and routing adapts
	if enabled, interval, timeout := cfg.HealthCheckSettings(); enabled {
		healthChecker := routing.NewHealthChecker(router, interval, timeout)
		healthChecker.Start()
		log.Println("[initializeFullRouter] Started health checker for deployments")
	} else {
		log.Println("[initializeFullRouter] Health checker disabled by config")
	}

	logInitSummary()

	return nil
}

// initializeBuiltinRouter creates the default Kelly router without YAML config
func initializeBuiltinRouter() error {
	modelReg := models.NewModelRegistry()
	deploymentReg := models.NewDeploymentRegistry()
	router := routing.NewRouter(routing.StrategyPriority)
	registerProviders(router)

	// Hosted model (requires OPENAI_API_KEY to be usable)
	hostedURL := os.Getenv("OPENAI_API_URL")
	if hostedURL == "" {
		hostedURL = "https://api.openai.com/v1/chat/completions"
	}
	hostedModel := &models.Model{
		ID:     "gpt-4o-mini",
		Name:   "GPT-4o Mini",
		Family: "gpt",
		Capabilities: models.ModelCapabilities{
			MaxTokens:         16384,
			SupportsStreaming: true,
		},
		Deployments: []string{"openai-gpt-4o-mini"},
	}
	hostedDeployment := &models.Deployment{
		ID:              "openai-gpt-4o-mini",
		ModelID:         "gpt-4o-mini",
		Provider:        models.ProviderOpenAI,
		ProviderModelID: "gpt-4o-mini",
		Priority:        1,
		Weight:          100,
		Endpoint: models.EndpointConfig{
			BaseURL:    hostedURL,
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			Auth: models.AuthConfig{
				Type:   models.AuthAPIKey,
				APIKey: os.Getenv("OPENAI_API_KEY"),
			},
		},
		Status: models.DeploymentStatus{
			Available: true,
			Healthy:   true,
		},
		Tags: map[string]string{"tier": "hosted"},
	}

	// Local fallback model, always registered
	ollamaURL := os.Getenv("OLLAMA_URL")
	if ollamaURL == "" {
		ollamaURL = providers.DefaultOllamaBaseURL
	}
	localModelID := os.Getenv("OLLAMA_MODEL")
	if localModelID == "" {
		localModelID = "llama3.2"
	}
	localModel := &models.Model{
		ID:     localModelID,
		Name:   localModelID + " (local)",
		Family: "llama",
		Capabilities: models.ModelCapabilities{
			MaxTokens:         4096,
			SupportsStreaming: true,
		},
		Deployments: []string{"ollama-" + localModelID},
	}
	localDeployment := &models.Deployment{
		ID:              "ollama-" + localModelID,
		ModelID:         localModelID,
		Provider:        models.ProviderOllama,
		ProviderModelID: localModelID,
		Priority:        10,
		Weight:          10,
		Endpoint: models.EndpointConfig{
			BaseURL:    ollamaURL,
			Timeout:    120 * time.Second,
			MaxRetries: 1,
			Auth: models.AuthConfig{
				Type: models.AuthNone,
			},
		},
		Status: models.DeploymentStatus{
			Available: true,
			Healthy:   true,
		},
		Tags: map[string]string{"tier": "local"},
	}

	for _, m := range []*models.Model{hostedModel, localModel} {
		modelReg.Register(m)
		router.RegisterModel(m)
	}
	for _, d := range []*models.Deployment{hostedDeployment, localDeployment} {
		deploymentReg.Register(d)
		router.RegisterDeployment(d)
	}

	modelRouter = router
	modelRegistry = modelReg
	deploymentRegistry = deploymentReg

	healthChecker := routing.NewHealthChecker(router, 30*time.Second, 5*time.Second)
	healthChecker.Start()

	logInitSummary()

	return nil
}

// disableHostedDeployments marks API-key deployments without a key as
// unavailable so routing goes straight to the local fallback.
func disableHostedDeployments() {
	if deploymentRegistry == nil {
		return
	}
	for _, deployment := range deploymentRegistry.List() {
		if deployment.Endpoint.Auth.Type == models.AuthAPIKey && deployment.Endpoint.Auth.APIKey == "" {
			deployment.Status.Available = false
			deployment.Status.Healthy = false
			deployment.Status.ErrorMessage = "no API key configured"
			log.Printf("[InitializeModelRouter] Deployment %s disabled: no API key", deployment.ID)
			beacon("router_fallback_activated", map[string]interface{}{
				"deployment": deployment.ID,
				"reason":     "missing_api_key",
			})
		}
	}
}

// registerProviders registers all provider implementations
func registerProviders(router *routing.Router) {
	router.RegisterProvider(models.ProviderOpenAI, providers.NewOpenAIProvider())
	router.RegisterProvider(models.ProviderOllama, providers.NewOllamaProvider())
	log.Println("[registerProviders] Registered OpenAI and Ollama providers")
}

// logInitSummary logs initialization summary
func logInitSummary() {
	if modelRegistry == nil || deploymentRegistry == nil {
		return
	}

	allModels := modelRegistry.List()
	healthyDeployments := deploymentRegistry.GetHealthy()

	log.Printf("[InitSummary] Loaded %d models", len(allModels))
	log.Printf("[InitSummary] Registered %d healthy deployments", len(healthyDeployments))

	for _, model := range allModels {
		log.Printf("[InitSummary] Model: %s (%s) - %d deployments",
			model.ID, model.Name, len(model.Deployments))
	}
}

// CheckRouterHealth checks if the router is healthy
func CheckRouterHealth() bool {
	if modelRouter == nil || modelRegistry == nil || deploymentRegistry == nil {
		return false
	}

	// Check if we have at least one healthy deployment
	healthyDeployments := deploymentRegistry.GetHealthy()
	return len(healthyDeployments) > 0
}

// GetRouterStatus returns router status information
func GetRouterStatus() map[string]interface{} {
	status := map[string]interface{}{
		"initialized": modelRouter != nil,
		"healthy":     false,
		"models":      0,
		"deployments": 0,
	}

	if modelRouter == nil {
		return status
	}

	allModels := modelRegistry.List()
	healthyDeployments := deploymentRegistry.GetHealthy()

	status["healthy"] = len(healthyDeployments) > 0
	status["models"] = len(allModels)
	status["deployments"] = len(healthyDeployments)

	return status
}

// validateServiceConfigurations ensures all serving surfaces have usable models
func validateServiceConfigurations() error {
	services := []struct {
		name     string
		envVar   string
		required bool
	}{
		{"HTTP", "HTTP_LLM_MODEL", true},
		{"DNS", "DNS_LLM_MODEL", false},
		{"SSH", "SSH_LLM_MODEL", false},
	}

	log.Println("[ValidateServices] Validating service model configurations...")

	for _, service := range services {
		model := getServiceModel(service.name)

		if explicit := os.Getenv(service.envVar); explicit != "" {
			log.Printf("[ValidateServices] %s: Explicitly configured to use '%s'", service.name, explicit)
		} else {
			log.Printf("[ValidateServices] %s: Using default model '%s'", service.name, model)
		}

		if modelRegistry == nil {
			if service.required {
				return fmt.Errorf("service %s requires model '%s' but router not initialized", service.name, model)
			}
			continue
		}

		modelObj, exists := modelRegistry.Get(model)
		if !exists || modelObj == nil {
			if service.required {
				return fmt.Errorf("service %s requires model '%s' which is not available in router", service.name, model)
			}
			log.Printf("[ValidateServices] WARNING: %s model '%s' not found in registry", service.name, model)
			continue
		}

		healthyCount := 0
		for _, deploymentID := range modelObj.Deployments {
			if deployment, ok := deploymentRegistry.Get(deploymentID); ok && deployment != nil && deployment.Status.Healthy {
				healthyCount++
			}
		}
		if healthyCount == 0 {
			log.Printf("[ValidateServices] WARNING: %s model '%s' has no healthy deployments", service.name, model)
		} else {
			log.Printf("[ValidateServices] %s: Model '%s' validated (%d healthy deployments)", service.name, model, healthyCount)
		}
	}

	log.Println("[ValidateServices] Service configuration summary:")
	for _, name := range []string{"HTTP", "DNS", "SSH"} {
		cfg := getServiceConfig(name)
		log.Printf("[ValidateServices]   %s: %s (temp=%.1f, max_tokens=%d)",
			name, cfg.Model, cfg.Temperature, cfg.MaxTokens)
	}

	return nil
}
