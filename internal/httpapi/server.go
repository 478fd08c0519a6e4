// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package httpapi is a small read-only operational status surface:
// health, aggregate stats, Prometheus metrics, and a live handoff
// stream. It never exposes the memory/graph/handoff RPC surface
// itself — agents call through tools.Dispatch, not this server.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/memory-palace/core/handoff"
	"github.com/memory-palace/core/memory"
	"github.com/memory-palace/core/observability/logging"
	"github.com/memory-palace/core/observability/metrics"
)

// Config bundles Server's construction-time dependencies.
type Config struct {
	Addr string

	Store   *memory.Store
	Handoff *handoff.Bus

	// Collector, when non-nil, registers a /metrics handler. Nil
	// disables the endpoint rather than serving an empty registry.
	Collector *metrics.PrometheusCollector

	Log logging.Logger
}

// Server serves /healthz, /stats, /metrics (if configured), and
// /handoffs/stream over a single HTTP listener.
type Server struct {
	httpServer *http.Server
	store      *memory.Store
	handoff    *handoff.Bus
	log        logging.Logger
	upgrader   websocket.Upgrader
}

// New constructs a Server. Call ListenAndServe to start it.
func New(cfg Config) *Server {
	s := &Server{
		store:   cfg.Store,
		handoff: cfg.Handoff,
		log:     cfg.Log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The debug server trusts its local network per spec.md's
			// Non-goals on tool-surface auth; a deployment fronting it
			// with a reverse proxy should restrict origin there.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	router := mux.NewRouter()
	router.Use(s.requestIDMiddleware)
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	router.HandleFunc("/handoffs/stream", s.handleHandoffStream).Methods(http.MethodGet)
	if cfg.Collector != nil {
		router.Handle("/metrics", cfg.Collector.Handler()).Methods(http.MethodGet)
	}

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}).Handler(router)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's root http.Handler, useful for tests
// that want to drive it through httptest.NewServer without binding a
// real listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks serving until Shutdown is called, returning nil
// on a clean shutdown rather than http.ErrServerClosed.
func (s *Server) ListenAndServe() error {
	if s.log != nil {
		s.log.Info(context.Background(), "httpapi: listening", logging.String("addr", s.httpServer.Addr))
	}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// requestIDMiddleware stamps every request with a fresh request ID so
// handler-side log lines can be correlated, matching the request_id
// context key observability/logging already defines.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithRequestID(r.Context(), uuid.New().String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

// handleHandoffStream pushes newly created handoff messages live over
// a websocket, complementing the durable/poll-based get_handoffs tool.
// It requires the bus to be configured with Redis; without it, the
// endpoint reports 503 rather than silently never sending anything.
func (s *Server) handleHandoffStream(w http.ResponseWriter, r *http.Request) {
	sub := s.handoff.Subscribe(r.Context())
	if sub == nil {
		http.Error(w, "handoff streaming requires redis configuration", http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.log != nil {
			s.log.Warn(r.Context(), "httpapi: websocket upgrade failed", logging.Error(err))
		}
		return
	}
	defer conn.Close()

	ch := sub.Channel()
	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		}
	}
}
