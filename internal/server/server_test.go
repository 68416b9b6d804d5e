package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/rfsensor/internal/ground"
	"github.com/danmuck/rfsensor/internal/mission"
	"github.com/danmuck/rfsensor/internal/sensor"
	"github.com/danmuck/rfsensor/internal/testutil/testlog"
)

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	var body map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rr, body
}

func TestHealth(t *testing.T) {
	testlog.Start(t)
	s := New("vehicle-1", Config{}, Sources{})
	rr, body := get(t, s, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body["status"] != "ok" || body["node"] != "vehicle-1" {
		t.Fatalf("unexpected health body: %#v", body)
	}
}

func TestStatusIncludesSources(t *testing.T) {
	testlog.Start(t)
	s := New("vehicle-1", Config{}, Sources{
		Node: func() sensor.Status {
			return sensor.Status{ID: 1, Name: "vehicle-1", State: sensor.StateStarted, RelayQueued: 3}
		},
		Mission: func() mission.Progress {
			return mission.Progress{NextIndex: 4, Complete: true, Waypoints: 4}
		},
	})
	rr, body := get(t, s, "/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	node, ok := body["sensor"].(map[string]any)
	if !ok || node["state"] != string(sensor.StateStarted) || node["relay_queued"] != float64(3) {
		t.Fatalf("unexpected sensor status: %#v", body["sensor"])
	}
	m, ok := body["mission"].(map[string]any)
	if !ok || m["complete"] != true {
		t.Fatalf("unexpected mission progress: %#v", body["mission"])
	}
	if _, ok := body["uploads"]; ok {
		t.Fatalf("uploads must be omitted without a source")
	}
}

func TestStatusOnGroundStation(t *testing.T) {
	testlog.Start(t)
	s := New("ground", Config{}, Sources{
		Uploads: func() []ground.VehicleProgress {
			return []ground.VehicleProgress{{Vehicle: 1, Total: 2, Index: 2, Complete: true}}
		},
	})
	_, body := get(t, s, "/status")
	uploads, ok := body["uploads"].([]any)
	if !ok || len(uploads) != 1 {
		t.Fatalf("unexpected uploads: %#v", body["uploads"])
	}
}

func TestMeasurements(t *testing.T) {
	testlog.Start(t)
	var gotLimit int
	s := New("ground", Config{}, Sources{
		Measurements: func(ctx context.Context, limit int) ([]ground.Measurement, error) {
			gotLimit = limit
			return []ground.Measurement{{SensorID: 2, RSSI: -42, ReceivedAt: time.Unix(1, 0)}}, nil
		},
	})
	rr, body := get(t, s, "/measurements?limit=5")
	if rr.Code != http.StatusOK || gotLimit != 5 {
		t.Fatalf("unexpected response code=%d limit=%d", rr.Code, gotLimit)
	}
	rows, ok := body["measurements"].([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("unexpected measurements: %#v", body)
	}

	if rr, _ := get(t, s, "/measurements?limit=x"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rr.Code)
	}

	failing := New("ground", Config{}, Sources{
		Measurements: func(context.Context, int) ([]ground.Measurement, error) {
			return nil, errors.New("db gone")
		},
	})
	if rr, _ := get(t, failing, "/measurements"); rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if rr, _ := get(t, New("vehicle-1", Config{}, Sources{}), "/measurements"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without recorder, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	testlog.Start(t)
	s := New("vehicle-1", Config{}, Sources{})
	get(t, s, "/health")
	rr, _ := get(t, s, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "rfsensor_http_requests_total") {
		t.Fatalf("request metric missing from /metrics")
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	testlog.Start(t)
	s := New("vehicle-1", Config{Addr: "127.0.0.1:0"}, Sources{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not return after cancel")
	}
}
