package stt

import (
	"context"
	"testing"

	"github.com/lexiqai/conversation-pipeline/internal/config"
)

func TestDeepgramRecognizer_HealthCheckFollowsBreaker(t *testing.T) {
	r := NewDeepgramRecognizer(&config.Config{
		DeepgramAPIKey:             "test-key",
		CircuitBreakerMaxFailures:  2,
		CircuitBreakerResetTimeout: 30,
		CircuitBreakerProbes:       1,
	})

	if ok, err := r.HealthCheck(context.Background()); !ok || err != nil {
		t.Errorf("Expected healthy with a closed circuit, got %v, %v", ok, err)
	}

	r.breaker.RecordResult(false)
	r.breaker.RecordResult(false)

	ok, err := r.HealthCheck(context.Background())
	if ok {
		t.Error("Expected not ready while the circuit is open")
	}
	if err == nil {
		t.Error("Expected an error describing the open circuit")
	}
}
