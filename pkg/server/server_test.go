package server

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"
)

func TestRunServesUntilCancelled(t *testing.T) {
	fetcher, _ := newTestFetcher(t)
	api := NewAPI(fetcher)
	defer api.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, HTTPConfig{Addr: "127.0.0.1:0", ReadTimeout: time.Second, WriteTimeout: time.Second},
			api.Routes(), slog.Default(), ready)
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunFailsOnBadAddress(t *testing.T) {
	err := Run(context.Background(), HTTPConfig{Addr: "not-an-address"}, http.NotFoundHandler(), slog.Default(), nil)
	if err == nil {
		t.Fatal("expected listen error")
	}
}
