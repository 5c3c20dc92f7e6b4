// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api exposes the intake service over HTTP: message ingestion
// (JSON or raw MIME), item and audit lookups, reviewer actions, health and
// Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bcem/intake/internal/extract"
	"github.com/bcem/intake/internal/intake"
	"github.com/bcem/intake/internal/mailparse"
	"github.com/bcem/intake/internal/models"
)

// maxBodyBytes caps request bodies, raw MIME included.
const maxBodyBytes = 10 << 20

// Service is the orchestrator surface the handler needs.
type Service interface {
	Ingest(ctx context.Context, msg *models.InboxMessage) (*models.IngestResult, error)
	Review(ctx context.Context, itemID string, action models.ReviewAction) (*models.ReviewResult, error)
	GetItem(ctx context.Context, itemID string) (*models.Item, error)
	ListItems(ctx context.Context, status *models.Status) ([]models.Item, error)
	ListAudit(ctx context.Context, itemID string) ([]models.AuditEvent, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Handler serves the intake HTTP API.
type Handler struct {
	svc      Service
	checks   map[string]HealthCheck
	gatherer prometheus.Gatherer
	now      func() time.Time
}

// NewHandler creates the API handler. checks may be nil; gatherer may be
// nil to disable /metrics.
func NewHandler(svc Service, checks map[string]HealthCheck, gatherer prometheus.Gatherer) *Handler {
	return &Handler{
		svc:      svc,
		checks:   checks,
		gatherer: gatherer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Routes returns the API mux wrapped in request logging.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.ServeHealth)
	mux.HandleFunc("POST /ingest", h.ServeIngest)
	mux.HandleFunc("POST /ingest/raw", h.ServeIngestRaw)
	mux.HandleFunc("GET /items", h.ServeListItems)
	mux.HandleFunc("GET /items/{id}", h.ServeGetItem)
	mux.HandleFunc("GET /items/{id}/audit", h.ServeAudit)
	mux.HandleFunc("POST /items/{id}/review", h.ServeReview)
	if h.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	return withRequestID(mux)
}

// ServeHealth runs every dependency check.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			slog.Warn("health check failed", "dependency", name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"failed": name,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ts": h.now().Format(time.RFC3339)})
}

// ServeIngest accepts an InboxMessage JSON document.
func (h *Handler) ServeIngest(w http.ResponseWriter, r *http.Request) {
	var msg models.InboxMessage
	if err := decodeJSON(w, r, &msg); err != nil {
		writeError(w, r, err)
		return
	}
	h.ingest(w, r, &msg)
}

// ServeIngestRaw accepts a message/rfc822 body.
func (h *Handler) ServeIngestRaw(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	msg, err := mailparse.Parse(r.Body, h.now())
	if err != nil {
		writeError(w, r, &models.ValidationError{Problems: []string{err.Error()}})
		return
	}
	h.ingest(w, r, msg)
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request, msg *models.InboxMessage) {
	result, err := h.svc.Ingest(r.Context(), msg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ServeListItems lists items, optionally filtered by ?status=.
func (h *Handler) ServeListItems(w http.ResponseWriter, r *http.Request) {
	var filter *models.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := models.ParseStatus(raw)
		if err != nil {
			writeError(w, r, &models.ValidationError{Problems: []string{"status: " + err.Error()}})
			return
		}
		filter = &st
	}

	items, err := h.svc.ListItems(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ServeGetItem returns one item.
func (h *Handler) ServeGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.GetItem(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// ServeAudit returns an item's audit log.
func (h *Handler) ServeAudit(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListAudit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// ServeReview applies a reviewer action.
func (h *Handler) ServeReview(w http.ResponseWriter, r *http.Request) {
	var action models.ReviewAction
	if err := decodeJSON(w, r, &action); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.svc.Review(r.Context(), r.PathValue("id"), action)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string   `json:"error"`
	Detail []string `json:"detail,omitempty"`
}

// writeError maps service errors to status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *models.ValidationError
		xerr *extract.Error
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "validation_error", Detail: verr.Problems})
	case errors.As(err, &xerr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "extraction_failed", Detail: xerr.Violations})
	case errors.Is(err, intake.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, intake.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", w.Header().Get(requestIDHeader),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return &models.ValidationError{Problems: []string{"body: " + err.Error()}}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

const requestIDHeader = "X-Request-ID"

// withRequestID tags every request with an id and logs its completion.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"request_id", id,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Serve starts the API server on the given port.
// It binds the port immediately and signals readiness via the returned channel
// before starting to accept connections. The server shuts down gracefully
// when ctx is cancelled; done is closed once it has stopped.
func Serve(ctx context.Context, port int, handler http.Handler) (ready <-chan struct{}, done <-chan struct{}, err error) {
	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, nil, fmt.Errorf("bind api port %d: %w", port, err)
	}

	readyCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		<-ctx.Done()
		slog.Info("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("api server shutdown error", "error", err)
		}
	}()

	go func() {
		slog.Info("api server listening", "port", port)
		close(readyCh)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
		}
	}()

	return readyCh, doneCh, nil
}
