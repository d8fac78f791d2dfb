package main

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Per-IP rate limiting. Entries idle for an hour are dropped by the reaper.
var (
	rateLimitMu      sync.Mutex
	rateLimiters     = make(map[string]*rateLimiterEntry)
	rateLimitRate    = rate.Limit(1) // requests per second per IP
	rateLimitBurst   = 10
	rateLimitMaxIdle = time.Hour
)

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func init() {
	go reapRateLimiters()
}

// rateLimitAllow reports whether a request from remoteAddr may proceed.
func rateLimitAllow(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	rateLimitMu.Lock()
	defer rateLimitMu.Unlock()

	entry, ok := rateLimiters[host]
	if !ok {
		entry = &rateLimiterEntry{
			limiter: rate.NewLimiter(rateLimitRate, rateLimitBurst),
		}
		rateLimiters[host] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter.Allow()
}

func reapRateLimiters() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rateLimitMu.Lock()
		for host, entry := range rateLimiters {
			if time.Since(entry.lastSeen) > rateLimitMaxIdle {
				delete(rateLimiters, host)
			}
		}
		rateLimitMu.Unlock()
	}
}
