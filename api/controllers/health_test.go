package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agrimarket/fulfillment-backend/pkg/config"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

var testConfig = &config.Config{App: config.AppConfig{Env: "test"}}

func TestHealthLive(t *testing.T) {
	resp := httptest.NewRecorder()
	HealthLive(testConfig)(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get(envHeader) != "test" {
		t.Fatalf("expected env header")
	}
}

func TestHealthReadyAllHealthy(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	handler := HealthReady(testConfig, nil,
		Dependency{Name: "database", Pinger: ok},
		Dependency{Name: "redis", Pinger: ok},
		Dependency{Name: "bigquery"},
	)

	resp := httptest.NewRecorder()
	handler(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	var body struct {
		Data struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Checks["database"] != "ok" || body.Data.Checks["bigquery"] != "disabled" {
		t.Fatalf("unexpected checks %v", body.Data.Checks)
	}
}

func TestHealthReadyReportsFailure(t *testing.T) {
	handler := HealthReady(testConfig, nil,
		Dependency{Name: "database", Pinger: pingFunc(func(context.Context) error { return nil })},
		Dependency{Name: "redis", Pinger: pingFunc(func(context.Context) error { return errors.New("connection refused") })},
	)

	resp := httptest.NewRecorder()
	handler(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}
