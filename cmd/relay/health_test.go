package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rickgao/wsrelay/internal/connection"
	"github.com/rickgao/wsrelay/internal/router"
)

// blockingDialer never completes a dial until its context is cancelled.
type blockingDialer struct{}

func (blockingDialer) Dial(ctx context.Context, endpoint string) (connection.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func newTestDeps(t *testing.T) healthDeps {
	t.Helper()
	rtr := router.New(router.DefaultConfig(), nil)
	mgr := connection.NewManager(connection.ManagerConfig{Endpoint: "ws://test.invalid"}, rtr,
		connection.WithDialer(blockingDialer{}),
	)
	t.Cleanup(func() {
		mgr.Close(connection.CloseNormalClosure, "")
		rtr.Close()
	})
	return healthDeps{instanceID: "relay-test", manager: mgr, router: rtr}
}

func getHealth(t *testing.T, deps healthDeps) (int, healthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	createHealthHandler(deps, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	return rec.Code, body
}

func TestHealth_Unconnected(t *testing.T) {
	deps := newTestDeps(t)

	code, body := getHealth(t, deps)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want 503", code)
	}
	if body.Status != "unhealthy" {
		t.Errorf("Status = %q, want unhealthy", body.Status)
	}
	if body.Instance != "relay-test" {
		t.Errorf("Instance = %q, want relay-test", body.Instance)
	}
}

func TestHealth_Connecting(t *testing.T) {
	deps := newTestDeps(t)
	deps.manager.Connect()

	code, body := getHealth(t, deps)
	if code != http.StatusOK {
		t.Errorf("status code = %d, want 200", code)
	}
	if body.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", body.Status)
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	deps := newTestDeps(t)
	deps.manager.Connect()
	deps.db = fakePinger{err: errors.New("connection refused")}

	code, body := getHealth(t, deps)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want 503", code)
	}
	if body.Status != "unhealthy" {
		t.Errorf("Status = %q, want unhealthy", body.Status)
	}
	if _, ok := body.Components["database"]; !ok {
		t.Error("database component missing")
	}
}

func TestHealth_DatabaseUp(t *testing.T) {
	deps := newTestDeps(t)
	deps.manager.Connect()
	deps.db = fakePinger{}

	_, body := getHealth(t, deps)
	if body.Components["database"] != "connected" {
		t.Errorf("database = %v, want connected", body.Components["database"])
	}
}

func TestStats(t *testing.T) {
	deps := newTestDeps(t)
	deps.router.Publish(connection.Event{Name: "foo", Data: json.RawMessage(`1`)})

	rec := httptest.NewRecorder()
	createHealthHandler(deps, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}

	var body struct {
		Connection struct {
			State string `json:"state"`
		} `json:"connection"`
		Router router.Stats `json:"router"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if body.Connection.State != connection.StateUnconnected.String() {
		t.Errorf("state = %q, want %q", body.Connection.State, connection.StateUnconnected.String())
	}
	if body.Router.Published != 1 || body.Router.Unrouted != 1 {
		t.Errorf("router = %+v, want Published=1 Unrouted=1", body.Router)
	}
}
