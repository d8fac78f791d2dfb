package routing_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"kelly.science/models"
	"kelly.science/providers"
	"kelly.science/routing"
)

// fakeProvider is a scriptable provider for routing tests.
type fakeProvider struct {
	failFor map[string]bool // deployment IDs that should fail Execute
	calls   []string        // deployment IDs in call order
	reply   string
}

func (f *fakeProvider) TranslateRequest(ctx context.Context, req *providers.UnifiedRequest, deployment *models.Deployment) (*providers.ProviderRequest, error) {
	// Carry the deployment ID in the URL so Execute can tell calls apart
	return &providers.ProviderRequest{
		URL:    "http://example.invalid/" + deployment.ID,
		Method: "POST",
	}, nil
}

func (f *fakeProvider) Execute(ctx context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	id := strings.TrimPrefix(req.URL, "http://example.invalid/")
	f.calls = append(f.calls, id)
	if f.failFor[id] {
		return nil, errors.New("deployment unavailable")
	}
	return &providers.ProviderResponse{StatusCode: 200}, nil
}

func (f *fakeProvider) TranslateResponse(ctx context.Context, resp *providers.ProviderResponse, deployment *models.Deployment) (*providers.UnifiedResponse, error) {
	return &providers.UnifiedResponse{
		ID:    "test",
		Model: deployment.ModelID,
		Choices: []providers.Choice{
			{Message: providers.Message{Role: "assistant", Content: f.reply}},
		},
	}, nil
}

func (f *fakeProvider) Stream(ctx context.Context, req *providers.ProviderRequest, stream chan<- providers.StreamChunk) error {
	stream <- providers.StreamChunk{Data: f.reply}
	stream <- providers.StreamChunk{Done: true}
	close(stream)
	return nil
}

func (f *fakeProvider) ValidateConfig(deployment *models.Deployment) error { return nil }

func (f *fakeProvider) HealthCheck(ctx context.Context, deployment *models.Deployment) error {
	return nil
}

func (f *fakeProvider) GetInfo() providers.ProviderInfo {
	return providers.ProviderInfo{Name: "Fake", Version: "test"}
}

func testDeployment(id, modelID string, priority int) *models.Deployment {
	return &models.Deployment{
		ID:              id,
		ModelID:         modelID,
		Provider:        models.ProviderType("fake"),
		ProviderModelID: modelID,
		Priority:        priority,
		Weight:          100,
		Endpoint: models.EndpointConfig{
			BaseURL: "http://example.invalid/" + id,
		},
		Status: models.DeploymentStatus{
			Available: true,
			Healthy:   true,
		},
	}
}

func setupRouter(strategy routing.RoutingStrategy, fake *fakeProvider, deployments ...*models.Deployment) *routing.Router {
	router := routing.NewRouter(strategy)
	router.RegisterModel(&models.Model{
		ID:     "kelly-verse",
		Name:   "Kelly Verse",
		Family: "kelly",
	})
	router.RegisterProvider(models.ProviderType("fake"), fake)
	for _, d := range deployments {
		router.RegisterDeployment(d)
	}
	return router
}

func TestRouteRequestPrioritySelectsLowest(t *testing.T) {
	fake := &fakeProvider{reply: "a short skeptical verse"}
	router := setupRouter(routing.StrategyPriority, fake,
		testDeployment("dep-fallback", "kelly-verse", 2),
		testDeployment("dep-primary", "kelly-verse", 1),
	)

	decision, err := router.RouteRequest(context.Background(), "kelly-verse", &routing.RequestContext{
		RequestID: "req-1",
		ModelID:   "kelly-verse",
	})
	if err != nil {
		t.Fatalf("RouteRequest failed: %v", err)
	}

	if decision.Primary.ID != "dep-primary" {
		t.Errorf("Expected primary dep-primary, got %s", decision.Primary.ID)
	}
	if len(decision.Fallbacks) != 1 || decision.Fallbacks[0].ID != "dep-fallback" {
		t.Errorf("Expected single fallback dep-fallback, got %+v", decision.Fallbacks)
	}
}

func TestRouteRequestUnknownModel(t *testing.T) {
	fake := &fakeProvider{}
	router := setupRouter(routing.StrategyPriority, fake)

	_, err := router.RouteRequest(context.Background(), "no-such-model", &routing.RequestContext{
		RequestID: "req-2",
	})
	if err == nil {
		t.Error("Expected error for unknown model")
	}
}

func TestExecuteRequestFallsBackOnFailure(t *testing.T) {
	fake := &fakeProvider{
		reply:   "fallback verse",
		failFor: map[string]bool{"dep-primary": true},
	}
	router := setupRouter(routing.StrategyPriority, fake,
		testDeployment("dep-primary", "kelly-verse", 1),
		testDeployment("dep-fallback", "kelly-verse", 2),
	)

	decision, err := router.RouteRequest(context.Background(), "kelly-verse", &routing.RequestContext{
		RequestID: "req-3",
		ModelID:   "kelly-verse",
	})
	if err != nil {
		t.Fatalf("RouteRequest failed: %v", err)
	}

	req := &providers.UnifiedRequest{
		Model:    "kelly-verse",
		Messages: []providers.Message{{Role: "user", Content: "Is AGI imminent?"}},
	}
	resp, err := router.ExecuteRequest(context.Background(), req, decision)
	if err != nil {
		t.Fatalf("ExecuteRequest failed: %v", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content != "fallback verse" {
		t.Errorf("Expected fallback response, got %+v", resp.Choices)
	}
	if len(fake.calls) != 2 || fake.calls[0] != "dep-primary" || fake.calls[1] != "dep-fallback" {
		t.Errorf("Expected primary then fallback calls, got %v", fake.calls)
	}
}

func TestExecuteRequestAllDeploymentsFail(t *testing.T) {
	fake := &fakeProvider{
		failFor: map[string]bool{"dep-a": true, "dep-b": true},
	}
	router := setupRouter(routing.StrategyPriority, fake,
		testDeployment("dep-a", "kelly-verse", 1),
		testDeployment("dep-b", "kelly-verse", 2),
	)

	decision, err := router.RouteRequest(context.Background(), "kelly-verse", &routing.RequestContext{
		RequestID: "req-4",
		ModelID:   "kelly-verse",
	})
	if err != nil {
		t.Fatalf("RouteRequest failed: %v", err)
	}

	req := &providers.UnifiedRequest{
		Model:    "kelly-verse",
		Messages: []providers.Message{{Role: "user", Content: "hello"}},
	}
	if _, err := router.ExecuteRequest(context.Background(), req, decision); err == nil {
		t.Error("Expected error when all deployments fail")
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := routing.NewCircuitBreaker("dep-x", 3, 50*time.Millisecond)

	if !cb.Allow() {
		t.Fatal("Expected closed breaker to allow requests")
	}

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	if cb.State() != routing.CircuitOpen {
		t.Errorf("Expected open state after failures, got %v", cb.State())
	}
	if cb.Allow() {
		t.Error("Expected open breaker to block requests")
	}

	// After the cooldown the breaker lets one probe through
	time.Sleep(60 * time.Millisecond)
	if !cb.Allow() {
		t.Error("Expected half-open breaker to allow a probe")
	}
	if cb.State() != routing.CircuitHalfOpen {
		t.Errorf("Expected half-open state, got %v", cb.State())
	}

	cb.RecordSuccess()
	if cb.State() != routing.CircuitClosed {
		t.Errorf("Expected closed state after success, got %v", cb.State())
	}
}

func TestRoundRobinRotatesDeployments(t *testing.T) {
	fake := &fakeProvider{reply: "verse"}
	router := setupRouter(routing.StrategyRoundRobin, fake,
		testDeployment("dep-1", "kelly-verse", 1),
		testDeployment("dep-2", "kelly-verse", 1),
	)

	seen := make(map[string]int)
	for i := 0; i < 4; i++ {
		decision, err := router.RouteRequest(context.Background(), "kelly-verse", &routing.RequestContext{
			RequestID: "req-rr",
			ModelID:   "kelly-verse",
		})
		if err != nil {
			t.Fatalf("RouteRequest failed: %v", err)
		}
		seen[decision.Primary.ID]++
	}

	if len(seen) != 2 {
		t.Errorf("Expected round-robin to use both deployments, got %v", seen)
	}
}

func TestRecordedOutcomesUpdateDeploymentState(t *testing.T) {
	fake := &fakeProvider{reply: "verse"}
	dep := testDeployment("dep-stream", "kelly-verse", 1)
	router := setupRouter(routing.StrategyPriority, fake, dep)

	// Streaming callers report outcomes through the exported methods
	for i := 0; i < 3; i++ {
		router.RecordFailure("dep-stream")
	}

	if dep.Status.ConsecutiveFails != 3 {
		t.Errorf("ConsecutiveFails = %d, want 3", dep.Status.ConsecutiveFails)
	}
	if dep.Metrics.FailedRequests != 3 {
		t.Errorf("FailedRequests = %d, want 3", dep.Metrics.FailedRequests)
	}
	if dep.Metrics.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", dep.Metrics.TotalRequests)
	}

	// Three consecutive failures take the deployment out of rotation
	if _, err := router.RouteRequest(context.Background(), "kelly-verse", &routing.RequestContext{
		RequestID: "req-failing",
		ModelID:   "kelly-verse",
	}); err == nil {
		t.Error("Expected routing to skip a deployment with repeated failures")
	}

	router.RecordSuccess("dep-stream")
	if dep.Status.ConsecutiveFails != 0 {
		t.Errorf("ConsecutiveFails after success = %d, want 0", dep.Status.ConsecutiveFails)
	}
	if dep.Metrics.SuccessRequests != 1 {
		t.Errorf("SuccessRequests = %d, want 1", dep.Metrics.SuccessRequests)
	}
	if dep.Status.LastSuccessful.IsZero() {
		t.Error("Expected LastSuccessful to be set")
	}

	if _, err := router.RouteRequest(context.Background(), "kelly-verse", &routing.RequestContext{
		RequestID: "req-recovered",
		ModelID:   "kelly-verse",
	}); err != nil {
		t.Errorf("RouteRequest after recovery failed: %v", err)
	}
}
