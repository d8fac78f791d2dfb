package main

import (
	"log"
	"os"

	"github.com/google/uuid"
)

var debugMode = os.Getenv("DEBUG") == "true"

// beacon emits a structured telemetry event to the log. Events carry hashes
// and token counts, never question or poem text.
func beacon(event string, fields map[string]interface{}) {
	if os.Getenv("TELEMETRY_DISABLED") == "true" {
		return
	}
	log.Printf("[beacon] %s %v", event, fields)
}

// generateRequestID returns a unique ID for request tracking
func generateRequestID() string {
	return uuid.NewString()
}
