// Package httpserver exposes the indexer's operational status over HTTP
// (spec §6 External Interfaces: additive ops surface, not a data API).
// Routing follows the teacher's go-chi/chi/v5 usage.
package httpserver

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Status is the snapshot /status reports.
type Status struct {
	Healthy       bool      `json:"healthy"`
	StartedAt     time.Time `json:"started_at"`
	LastHeaderAt  time.Time `json:"last_header_at,omitempty"`
	HeadersSeen   int64     `json:"headers_seen"`
	LastError     string    `json:"last_error,omitempty"`
}

// Reporter is updated through RecordHeader and RecordError, and read by
// the HTTP handlers. cmd/indexer calls only RecordError, with each
// headers-stream termination error; the indexing pipeline does not call
// RecordHeader, so there HeadersSeen stays 0 and LastHeaderAt stays unset.
// All fields are accessed atomically so writers never block on an HTTP
// request in flight.
type Reporter struct {
	startedAt    time.Time
	headersSeen  atomic.Int64
	lastHeaderAt atomic.Int64 // unix nanos
	lastError    atomic.Value // string
}

// NewReporter returns a Reporter stamped with the current time as start.
func NewReporter(startedAt time.Time) *Reporter {
	r := &Reporter{startedAt: startedAt}
	r.lastError.Store("")
	return r
}

// RecordHeader marks that a header was processed at t.
func (r *Reporter) RecordHeader(t time.Time) {
	r.headersSeen.Add(1)
	r.lastHeaderAt.Store(t.UnixNano())
}

// RecordError records the most recent processing error's message.
func (r *Reporter) RecordError(err error) {
	if err == nil {
		return
	}
	r.lastError.Store(err.Error())
}

func (r *Reporter) snapshot() Status {
	s := Status{
		Healthy:     true,
		StartedAt:   r.startedAt,
		HeadersSeen: r.headersSeen.Load(),
	}
	if nanos := r.lastHeaderAt.Load(); nanos != 0 {
		s.LastHeaderAt = time.Unix(0, nanos)
	}
	if msg, _ := r.lastError.Load().(string); msg != "" {
		s.LastError = msg
	}
	return s
}

// New builds the ops router: GET /healthz (liveness only) and
// GET /status (Reporter's snapshot as JSON).
func New(reporter *Reporter, log *logrus.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(reporter.snapshot())
	})

	return r
}

func requestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, req)
			log.WithFields(logrus.Fields{
				"method":   req.Method,
				"path":     req.URL.Path,
				"duration": time.Since(start),
			}).Debug("handled request")
		})
	}
}
