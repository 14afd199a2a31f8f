// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the evidence engine as a JSON API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pdiddy/evidence-engine/internal/engine"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Engine is the part of *engine.Engine the handlers call.
type Engine interface {
	RetrieveEvidence(ctx context.Context, q types.Query, opts ...engine.Option) (types.EvidenceSet, error)
	ReportOutcome(ctx context.Context, clientID string, s types.InteractionSummary) error
	ClientContext(ctx context.Context, clientID string) (types.ClientContext, error)
}

// Pinger reports whether the backing store is reachable. *store.Store
// implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the evidence engine HTTP server.
type Server struct {
	engine Engine
	health Pinger
	cfg    types.ServerConfig
	log    *zap.Logger
	router *gin.Engine
}

// New creates a server over eng. health may be nil, in which case /healthz
// always reports ok.
func New(eng Engine, health Pinger, cfg types.ServerConfig, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	router := gin.New()
	s := &Server{
		engine: eng,
		health: health,
		cfg:    cfg,
		log:    log,
		router: router,
	}

	router.Use(gin.Recovery(), s.logRequests)
	router.GET("/healthz", s.handleHealth)

	api := router.Group("/v1")
	{
		api.POST("/evidence", s.withTimeout, s.handleEvidence)
		api.GET("/clients/:id/context", s.withTimeout, s.handleClientContext)
		api.POST("/clients/:id/outcomes", s.withTimeout, s.handleOutcome)
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.cfg.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// withTimeout bounds the request context by cfg.RequestTimeout.
func (s *Server) withTimeout(c *gin.Context) {
	if s.cfg.RequestTimeout <= 0 {
		c.Next()
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("latency", time.Since(start)))
}
