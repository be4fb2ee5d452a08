package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"cvlive/internal/config"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestApplication_StartServeStop(t *testing.T) {
	cfg := config.New()
	cfg.Addr = freeAddr(t)
	cfg.DataDir = t.TempDir()

	application, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Start(ctx) }()

	baseURL := "http://" + cfg.Addr
	waitForServer(t, baseURL+"/health")

	// Create a session through the full stack.
	resp, err := http.Post(baseURL+"/api/sessions", "application/json",
		strings.NewReader(`{"sessionName":"Workshop","studentCount":2}`))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create session status = %d", resp.StatusCode)
	}
	var created struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil || !created.Success {
		t.Fatalf("create session response: %+v, %v", created, err)
	}

	// Metrics endpoint is wired.
	metricsResp, err := http.Get(baseURL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	metricsResp.Body.Close()
	if metricsResp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", metricsResp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := application.Stop(stopCtx); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestNewApplication_InvalidConfig(t *testing.T) {
	cfg := config.New()
	cfg.StorageDriver = "redis"
	if _, err := NewApplication(cfg); err == nil {
		t.Fatal("NewApplication accepted an unknown storage driver")
	}
}

func waitForServer(t *testing.T, url string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server at %s never came up", url)
}
