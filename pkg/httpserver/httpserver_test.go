package httpserver

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestHealthz(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	reporter := NewReporter(time.Unix(1700000000, 0))
	handler := New(reporter, log)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("want 200, got %d", rec.Code)
	}
}

func TestStatusReflectsRecordedHeaders(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	reporter := NewReporter(time.Unix(1700000000, 0))
	reporter.RecordHeader(time.Unix(1700000100, 0))
	handler := New(reporter, log)

	req := httptest.NewRequest("GET", "/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var status Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.HeadersSeen != 1 {
		t.Fatalf("want 1 header seen, got %d", status.HeadersSeen)
	}
	if !status.Healthy {
		t.Fatalf("want healthy true")
	}
}
