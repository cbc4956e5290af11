// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package monitor serves the engine's observation surface over HTTP.
//
// The monitor exposes liveness, run status, journal history, Prometheus
// metrics and a websocket event stream. It never touches simulation
// state directly; everything it reports comes from the engine's own
// snapshots, the journal, and the event bus.
//
// # Endpoints
//
//	GET /healthz - Liveness check
//	GET /metrics - Prometheus metrics (when the exporter is enabled)
//	GET /v1/engine/status - Engine run status snapshot
//	GET /v1/engine/runs - Journaled run history
//	GET /v1/engine/runs/:id - One journaled run
//	GET /v1/engine/steps - Journaled step history for a run
//	GET /v1/engine/ws - Websocket stream of engine events
//
// # Usage
//
//	srv, err := monitor.New(monitor.Config{Addr: "127.0.0.1:8089"}, monitor.Deps{
//	    Engine:  engine,
//	    Journal: jnl,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Shutdown(context.Background())
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianSwarm/services/engine/events"
	"github.com/AleutianAI/AleutianSwarm/services/engine/journal"
	"github.com/AleutianAI/AleutianSwarm/services/engine/sim"
	"github.com/AleutianAI/AleutianSwarm/services/engine/telemetry"
)

// ServiceVersion is the monitor API version.
const ServiceVersion = "1.0.0"

// serviceName labels monitor spans and metrics.
const serviceName = "swarm-monitor"

// readHeaderTimeout bounds how long a client may take to send request
// headers.
const readHeaderTimeout = 10 * time.Second

// ErrNilEngine is returned when New is called without an engine.
var ErrNilEngine = errors.New("monitor needs an engine to report on")

// Config controls the monitor server.
type Config struct {
	// Addr is the listen address, host:port. Port 0 picks a free port;
	// Addr() reports the bound address after Start.
	Addr string
}

// Deps carries the monitor's collaborators.
//
// Engine is required. The rest are optional: a nil Journal turns the
// history endpoints into 503 responses, a nil Metrics disables
// per-request HTTP metrics, and a nil Logger falls back to
// slog.Default().
type Deps struct {
	Engine  *sim.Engine
	Journal *journal.Journal
	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// Server is the engine monitor HTTP server.
//
// # Thread Safety
//
// Safe for concurrent use after New. Start and Shutdown are expected to
// be called once each, in that order.
type Server struct {
	cfg     Config
	engine  *sim.Engine
	journal *journal.Journal
	bus     *events.Bus
	logger  *slog.Logger

	router *gin.Engine
	http   *http.Server
	addr   string
}

// New builds the monitor server and its routes.
//
// Gin's global mode is left alone; set it in main (or to gin.TestMode
// in tests) before calling New.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Engine == nil {
		return nil, ErrNilEngine
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "monitor"))

	s := &Server{
		cfg:     cfg,
		engine:  deps.Engine,
		journal: deps.Journal,
		bus:     deps.Engine.Events(),
		logger:  logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	if deps.Metrics != nil {
		router.Use(metricsMiddleware(deps.Metrics))
	}

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", s.handleMetrics)

	v1 := router.Group("/v1/engine")
	{
		v1.GET("/status", s.handleStatus)
		v1.GET("/runs", s.handleRuns)
		v1.GET("/runs/:id", s.handleRun)
		v1.GET("/steps", s.handleSteps)
		v1.GET("/ws", s.handleEvents)
	}

	s.router = router
	s.http = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// Router returns the underlying Gin engine for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Addr returns the bound listen address. Valid after Start.
func (s *Server) Addr() string {
	return s.addr
}

// Start binds the listener and serves in the background. Bind failures
// surface here; later serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	s.addr = ln.Addr().String()
	s.logger.Info("monitor listening", slog.String("addr", s.addr))

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("monitor server stopped", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Shutdown drains in-flight requests and stops the server. Hijacked
// websocket streams are not waited for; they end when their clients
// disconnect or the process exits.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown monitor: %w", err)
	}
	return nil
}
