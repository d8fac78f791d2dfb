package main

import (
	"fmt"
	"testing"
)

func TestRateLimitAllowsBurstThenBlocks(t *testing.T) {
	addr := "203.0.113.50:1234"

	for i := 0; i < rateLimitBurst; i++ {
		if !rateLimitAllow(addr) {
			t.Fatalf("request %d within burst was blocked", i+1)
		}
	}
	if rateLimitAllow(addr) {
		t.Error("request beyond burst was allowed")
	}
}

func TestRateLimitIsPerIP(t *testing.T) {
	for i := 0; i < rateLimitBurst; i++ {
		rateLimitAllow("203.0.113.60:1234")
	}

	if !rateLimitAllow("203.0.113.61:1234") {
		t.Error("different IP was blocked by another IP's limit")
	}
}

func TestRateLimitIgnoresPort(t *testing.T) {
	for i := 0; i < rateLimitBurst; i++ {
		rateLimitAllow(fmt.Sprintf("203.0.113.70:%d", 1000+i))
	}

	if rateLimitAllow("203.0.113.70:9999") {
		t.Error("same IP on a new port escaped the limit")
	}
}

func TestRateLimitHandlesBareHost(t *testing.T) {
	// Addresses without a port still get limited rather than rejected
	if !rateLimitAllow("203.0.113.80") {
		t.Error("bare host address was blocked on first request")
	}
}
