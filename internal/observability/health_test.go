package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthCheckHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheckHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if status.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", status.Status)
	}
}

func TestReadinessHandler(t *testing.T) {
	ok := func(ctx context.Context) (bool, error) { return true, nil }
	down := func(ctx context.Context) (bool, error) { return false, errors.New("connection refused") }

	tests := []struct {
		name     string
		checks   map[string]HealthCheckFunc
		expected int
		status   string
	}{
		{"all healthy", map[string]HealthCheckFunc{"storage": ok, "kafka": ok}, http.StatusOK, "ready"},
		{"one down", map[string]HealthCheckFunc{"storage": ok, "kafka": down}, http.StatusServiceUnavailable, "not_ready"},
		{"nil skipped", map[string]HealthCheckFunc{"storage": ok, "kafka": nil}, http.StatusOK, "ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ReadinessHandler(tt.checks)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rec.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, rec.Code)
			}

			var status HealthStatus
			if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
				t.Fatalf("Failed to decode body: %v", err)
			}
			if status.Status != tt.status {
				t.Errorf("Expected status '%s', got '%s'", tt.status, status.Status)
			}
		})
	}
}

func TestRunChecks_ReportsMessage(t *testing.T) {
	deps, healthy := RunChecks(context.Background(), map[string]HealthCheckFunc{
		"storage": func(ctx context.Context) (bool, error) { return false, errors.New("disk full") },
	})

	if healthy {
		t.Error("Expected unhealthy result")
	}
	if deps["storage"].Message != "disk full" {
		t.Errorf("Expected message 'disk full', got '%s'", deps["storage"].Message)
	}
}
