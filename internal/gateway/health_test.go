// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arcasadev/tidegate/internal/client"
	"github.com/arcasadev/tidegate/internal/config"
)

func TestHealthCheckerMarksBackends(t *testing.T) {
	healthyBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected probe path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	}))
	defer healthyBackend.Close()

	sickBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "degraded", http.StatusInternalServerError)
	}))
	defer sickBackend.Close()

	registry := NewRegistry([]config.BackendConfig{
		{Service: "copernicus", URLs: []string{healthyBackend.URL, sickBackend.URL}},
	})
	checker := NewHealthChecker(registry, client.New(testClientConfig(), nil), 30*time.Second, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- checker.Serve(ctx) }()

	// Serve probes immediately; wait for both results to land.
	deadline := time.After(2 * time.Second)
	for {
		healthy := findStatus(t, registry, healthyBackend.URL)
		sick := findStatus(t, registry, sickBackend.URL)
		if !healthy.LastCheck.IsZero() && !sick.LastCheck.IsZero() {
			if !healthy.Healthy {
				t.Error("expected healthy backend marked healthy")
			}
			if sick.Healthy {
				t.Error("expected failing backend marked unhealthy")
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("health probes did not complete in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled on shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("checker did not stop on cancellation")
	}
}

func TestHealthCheckerSelectionIntegration(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	}))
	defer backend.Close()

	registry := NewRegistry([]config.BackendConfig{
		{Service: "species", URLs: []string{backend.URL}},
	})
	checker := NewHealthChecker(registry, client.New(testClientConfig(), nil), 30*time.Second, 100)
	checker.probeAll(context.Background())

	got, err := registry.Select("species")
	if err != nil {
		t.Fatal(err)
	}
	if got != backend.URL {
		t.Errorf("expected probed backend selected, got %s", got)
	}
}
