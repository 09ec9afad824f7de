package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
)

type fakeQueue struct{ err error }

func (f *fakeQueue) GetStats(ctx context.Context) (map[string]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return map[string]int64{"waiting": 3, "processing": 1, "completed": 7, "failed": 0}, nil
}

type fakeDB struct{ err error }

func (f *fakeDB) Ping(ctx context.Context) error { return f.err }

func (f *fakeDB) GetStats() map[string]interface{} {
	return map[string]interface{}{"open_connections": 2}
}

type fixedEngines int

func (n fixedEngines) Len() int { return int(n) }

func get(t *testing.T, s *server, path string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := newServer(s).Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	testCases := []struct {
		name       string
		server     *server
		wantStatus int
		wantState  string
	}{
		{"healthy without db", &server{queue: &fakeQueue{}, recognizer: fixedEngines(0)}, 200, "healthy"},
		{"healthy with db", &server{queue: &fakeQueue{}, db: &fakeDB{}, recognizer: fixedEngines(0)}, 200, "healthy"},
		{"queue down", &server{queue: &fakeQueue{err: errors.New("dial tcp")}, recognizer: fixedEngines(0)}, 503, "degraded"},
		{"db down", &server{queue: &fakeQueue{}, db: &fakeDB{err: errors.New("timeout")}, recognizer: fixedEngines(0)}, 503, "degraded"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := get(t, tc.server, "/health")
			if status != tc.wantStatus || body["status"] != tc.wantState {
				t.Errorf("status = %d, body = %v", status, body)
			}
		})
	}
}

func TestStats(t *testing.T) {
	status, body := get(t, &server{queue: &fakeQueue{}, db: &fakeDB{}, recognizer: fixedEngines(2), backend: "redis"}, "/stats")
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	if body["backend"] != "redis" || body["ocr_engines"] != 2.0 {
		t.Errorf("body = %v", body)
	}
	if q := body["queue"].(map[string]interface{}); q["completed"] != 7.0 {
		t.Errorf("queue = %v", q)
	}
	if _, ok := body["db"]; !ok {
		t.Error("db stats missing")
	}
}
