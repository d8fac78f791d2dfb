package main

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"
)

const (
	ABOUT_VERSION = "1.0.0"
	ABOUT_DATE    = "2026-08-26"
)

// Provider terms URLs, keyed by provider type
var providerTermsMap = map[string]map[string]string{
	"openai": {
		"name":        "OpenAI Terms of Service",
		"url":         "https://openai.com/policies/terms-of-use",
		"description": "Applies when Kelly answers through hosted GPT models",
	},
	"ollama": {
		"name":        "Meta Llama License",
		"url":         "https://ai.meta.com/llama/license/",
		"description": "Applies when Kelly answers through the local Llama fallback",
	},
}

// getActiveProviders returns the provider types with at least one healthy
// deployment
func getActiveProviders() []string {
	providersMap := make(map[string]bool)

	if deploymentRegistry != nil {
		for _, dep := range deploymentRegistry.GetHealthy() {
			providersMap[strings.ToLower(string(dep.Provider))] = true
		}
	}

	var providers []string
	for provider := range providersMap {
		providers = append(providers, provider)
	}
	return providers
}

// handleAbout serves who Kelly is plus the privacy and terms details, as HTML
// or JSON depending on the caller
func handleAbout(w http.ResponseWriter, r *http.Request) {
	acceptHeader := r.Header.Get("Accept")
	isJSON := strings.Contains(acceptHeader, "application/json") || r.URL.Query().Get("format") == "json"

	activeProviders := getActiveProviders()

	if isJSON {
		w.Header().Set("Content-Type", "application/json")

		response := map[string]interface{}{
			"name":           "Kelly - The AI Scientist",
			"about":          aboutKelly,
			"version":        ABOUT_VERSION,
			"effective_date": ABOUT_DATE,
			"last_modified":  time.Now().Format(time.RFC3339),
			"current_configuration": map[string]interface{}{
				"audit_logging_enabled": auditEnabled,
				"active_providers":      activeProviders,
				"default_model":         defaultModelID(),
			},
			"privacy": map[string]interface{}{
				"chat_history": "Conversations live in the page's hidden history field; the server keeps nothing between requests",
				"audit_log":    "Operators may enable request auditing via ENABLE_LLM_AUDIT; it is independent of the chat history",
			},
		}

		if modelRegistry != nil {
			response["current_configuration"].(map[string]interface{})["total_models"] = len(modelRegistry.List())
		}
		if deploymentRegistry != nil {
			response["current_configuration"].(map[string]interface{})["healthy_deployments"] = len(deploymentRegistry.GetHealthy())
		}

		var terms []map[string]string
		for _, provider := range activeProviders {
			if info, exists := providerTermsMap[provider]; exists {
				terms = append(terms, info)
			}
		}
		response["provider_terms"] = terms

		json.NewEncoder(w).Encode(response)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	auditStatus := "enabled - requests are logged for operations"
	if !auditEnabled {
		auditStatus = "disabled - no request logging"
	}

	providersList := "none configured"
	if len(activeProviders) > 0 {
		providersList = strings.Join(activeProviders, ", ")
	}

	fmt.Fprint(w, htmlHeader)
	fmt.Fprintf(w, `<div class="chat-container kelly"><b>About Kelly</b><br>%s</div>
<div class="chat-container"><b>Privacy</b><br>
Your conversation lives in the page itself, not on the server.<br>
Request auditing is currently <b>%s</b> (operators toggle it with the ENABLE_LLM_AUDIT environment variable).<br>
Active providers: %s</div>
`, aboutHTML(), html.EscapeString(auditStatus), html.EscapeString(providersList))

	fmt.Fprint(w, `<div class="chat-container"><b>Provider terms</b><br>`)
	wrote := false
	for _, provider := range activeProviders {
		if info, exists := providerTermsMap[provider]; exists {
			fmt.Fprintf(w, `<a href="%s">%s</a> - %s<br>`, info["url"], html.EscapeString(info["name"]), html.EscapeString(info["description"]))
			wrote = true
		}
	}
	if !wrote {
		fmt.Fprint(w, "No hosted providers active.")
	}
	fmt.Fprint(w, "</div>\n</div>\n")

	fmt.Fprintf(w, `<p class="footnote">Version %s &middot; <a href="/about?format=json">JSON</a> &middot; <a href="/health">Health</a> &middot; <a href="/">Ask Kelly</a></p>
</div>
</body>
</html>`, ABOUT_VERSION)
}
