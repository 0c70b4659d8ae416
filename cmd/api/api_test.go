package main

import (
	"testing"
	"time"

	"vision/internal/gateway"
)

func TestRequestTimeoutTracksGatewayTimeout(t *testing.T) {
	app := &application{config: config{gateway: gateway.Config{RequestTimeout: 150 * time.Second}}}
	if got := app.requestTimeout(); got != 170*time.Second {
		t.Fatalf("requestTimeout = %v, want 170s", got)
	}

	app.config.gateway.RequestTimeout = 0
	if got := app.requestTimeout(); got != gateway.DefaultRequestTimeout+20*time.Second {
		t.Fatalf("requestTimeout = %v, want default+20s", got)
	}
}
