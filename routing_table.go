package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// handleRoutingTable provides an operator view of model routing
func handleRoutingTable(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	// Check if JSON response requested
	if r.Header.Get("Accept") == "application/json" {
		handleRoutingTableJSON(w, r)
		return
	}

	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Kelly Routing Table</title>
    <style>
        body { font-family: monospace; background: #0a0a0a; color: #00ff41; padding: 20px; }
        h1 { color: #ffcc00; border-bottom: 2px solid #00ff41; padding-bottom: 10px; }
        h2 { color: #00ccff; margin-top: 30px; }
        table { width: 100%%; border-collapse: collapse; margin: 20px 0; }
        th { background: #1a1a1a; color: #00ff41; padding: 10px; text-align: left; border: 1px solid #00ff41; }
        td { padding: 8px; border: 1px solid #333; }
        tr:hover { background: #1a1a1a; }
        .success { color: #00ff41; }
        .error { color: #ff3333; }
        .warning { color: #ffcc00; }
        .info { color: #00ccff; }
        .deployment { color: #ff00ff; font-family: monospace; }
        .healthy { background: #00ff41; color: #000; padding: 2px 6px; border-radius: 3px; }
        .unhealthy { background: #ff3333; color: #fff; padding: 2px 6px; border-radius: 3px; }
        .stats { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 20px; margin: 20px 0; }
        .stat-card { background: #1a1a1a; padding: 15px; border: 1px solid #00ff41; }
        .stat-value { font-size: 2em; color: #ffcc00; }
        .stat-label { color: #888; margin-top: 5px; }
    </style>
</head>
<body>
    <h1>Kelly Model Routing Table</h1>
`)

	// Privacy notice
	privacyStatus := "LOGGING ENABLED"
	privacyClass := "error"
	privacyMessage := "LLM interactions are being logged to the audit database"
	if !auditEnabled {
		privacyStatus = "LOGGING DISABLED"
		privacyClass = "success"
		privacyMessage = "LLM interactions are NOT being logged"
	}

	fmt.Fprintf(w, `
    <div style="background: #1a1a1a; border: 2px solid #%s; padding: 15px; margin: 20px 0;">
        <h2 style="margin-top: 0;">Privacy Status</h2>
        <div style="font-size: 1.5em; margin: 10px 0;" class="%s">%s</div>
        <p class="info">%s</p>
        <p style="color: #888; font-size: 0.9em;">
            To change logging settings, set ENABLE_LLM_AUDIT in .env file and restart server.<br>
            See <a href="/about" style="color: #00ff41;">About Kelly</a> for the complete privacy policy.
        </p>
    </div>
`,
		ternary(auditEnabled, "ff3333", "00ff41"),
		privacyClass,
		privacyStatus,
		privacyMessage,
	)

	if modelRegistry == nil || deploymentRegistry == nil {
		fmt.Fprintf(w, `<div class="error">System not initialized!</div></body></html>`)
		return
	}

	allModels := modelRegistry.List()
	healthyDeployments := deploymentRegistry.GetHealthy()

	fmt.Fprintf(w, `
    <div class="stats">
        <div class="stat-card">
            <div class="stat-value">%d</div>
            <div class="stat-label">Total Models</div>
        </div>
        <div class="stat-card">
            <div class="stat-value">%d</div>
            <div class="stat-label">Healthy Deployments</div>
        </div>
        <div class="stat-card">
            <div class="stat-value">%s</div>
            <div class="stat-label">Router Status</div>
        </div>
        <div class="stat-card">
            <div class="stat-value">%s</div>
            <div class="stat-label">Default Model</div>
        </div>
    </div>
`,
		len(allModels),
		len(healthyDeployments),
		ternary(modelRouter != nil, "ACTIVE", "INACTIVE"),
		defaultModelID(),
	)

	// Model routing table
	fmt.Fprintf(w, `
    <h2>Model Routing</h2>
    <table>
        <tr>
            <th>Model ID</th>
            <th>Name</th>
            <th>Family</th>
            <th>Deployment</th>
            <th>Provider</th>
            <th>Priority</th>
            <th>Status</th>
            <th>Test Command</th>
        </tr>
`)

	sort.Slice(allModels, func(i, j int) bool {
		if allModels[i].Family != allModels[j].Family {
			return allModels[i].Family < allModels[j].Family
		}
		return allModels[i].ID < allModels[j].ID
	})

	for _, model := range allModels {
		var deploymentID, provider, status string
		var priority int
		var healthClass string

		if len(model.Deployments) > 0 {
			deploymentID = model.Deployments[0]
			if deployment, exists := deploymentRegistry.Get(deploymentID); exists {
				provider = string(deployment.Provider)
				priority = deployment.Priority
				if deployment.Status.Healthy {
					status = "Healthy"
					healthClass = "healthy"
				} else {
					status = "Unhealthy"
					healthClass = "unhealthy"
				}
			} else {
				status = "Not Found"
				healthClass = "warning"
			}
		} else {
			deploymentID = "No deployments"
			status = "No Config"
			healthClass = "error"
		}

		testCmd := fmt.Sprintf(`curl "http://localhost:%d/?q=can-ai-think"`, HTTP_PORT)

		fmt.Fprintf(w, `
        <tr>
            <td><strong class="info">%s</strong></td>
            <td>%s</td>
            <td>%s</td>
            <td class="deployment">%s</td>
            <td>%s</td>
            <td>%d</td>
            <td class="%s">%s</td>
            <td><code style="font-size: 0.8em;">%s</code></td>
        </tr>
`,
			model.ID,
			model.Name,
			model.Family,
			deploymentID,
			provider,
			priority,
			healthClass, status,
			testCmd,
		)
	}

	fmt.Fprintf(w, `</table>`)

	// Deployment health detail
	fmt.Fprintf(w, `
    <h2>Deployment Health</h2>
    <table>
        <tr>
            <th>Deployment</th>
            <th>Model</th>
            <th>Provider</th>
            <th>Available</th>
            <th>Avg Latency (ms)</th>
            <th>Consecutive Fails</th>
        </tr>
`)

	allDeployments := deploymentRegistry.List()
	sort.Slice(allDeployments, func(i, j int) bool {
		return allDeployments[i].ID < allDeployments[j].ID
	})

	for _, dep := range allDeployments {
		fmt.Fprintf(w, `
        <tr>
            <td class="deployment">%s</td>
            <td>%s</td>
            <td>%s</td>
            <td class="%s">%v</td>
            <td>%d</td>
            <td>%d</td>
        </tr>
`,
			dep.ID,
			dep.ModelID,
			dep.Provider,
			ternary(dep.Status.Available, "success", "error"),
			dep.Status.Available,
			dep.Status.ResponseTime.Milliseconds(),
			dep.Status.ConsecutiveFails,
		)
	}

	fmt.Fprintf(w, `</table>`)

	fmt.Fprintf(w, `
    <hr style="border-color: #333; margin-top: 40px;">
    <p style="color: #666; text-align: center;">
        Generated at %s |
        <a href="/routing_table" style="color: #00ff41;">Refresh</a> |
        <a href="/about" style="color: #00ff41;">About</a> |
        <a href="/health" style="color: #00ff41;">Health</a>
    </p>
</body>
</html>
`, time.Now().Format("2006-01-02 15:04:05"))
}

// handleRoutingTableJSON returns JSON routing information
func handleRoutingTableJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	result := map[string]interface{}{
		"timestamp":          time.Now().Unix(),
		"router_initialized": modelRouter != nil,
		"audit_enabled":      auditEnabled,
		"default_model":      defaultModelID(),
		"models":             []map[string]interface{}{},
		"deployments":        []map[string]interface{}{},
	}

	if modelRegistry != nil {
		models := modelRegistry.List()
		result["total_models"] = len(models)

		for _, model := range models {
			modelInfo := map[string]interface{}{
				"id":          model.ID,
				"name":        model.Name,
				"family":      model.Family,
				"deployments": model.Deployments,
			}

			if len(model.Deployments) > 0 && deploymentRegistry != nil {
				if deployment, exists := deploymentRegistry.Get(model.Deployments[0]); exists {
					modelInfo["healthy"] = deployment.Status.Healthy
					modelInfo["priority"] = deployment.Priority
				}
			}

			modelsList := result["models"].([]map[string]interface{})
			modelsList = append(modelsList, modelInfo)
			result["models"] = modelsList
		}
	}

	if deploymentRegistry != nil {
		result["healthy_deployments"] = len(deploymentRegistry.GetHealthy())

		var deps []map[string]interface{}
		for _, dep := range deploymentRegistry.List() {
			deps = append(deps, map[string]interface{}{
				"id":                dep.ID,
				"model_id":          dep.ModelID,
				"provider":          dep.Provider,
				"available":         dep.Status.Available,
				"avg_latency_ms":    dep.Status.ResponseTime.Milliseconds(),
				"consecutive_fails": dep.Status.ConsecutiveFails,
			})
		}
		result["deployments"] = deps
	}

	json.NewEncoder(w).Encode(result)
}

// Helper function
func ternary(condition bool, ifTrue, ifFalse string) string {
	if condition {
		return ifTrue
	}
	return ifFalse
}
