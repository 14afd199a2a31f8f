// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pdiddy/evidence-engine/internal/engine"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

const maxQueryText = 10 << 10 // 10KB

// statusClientClosedRequest is the nginx convention for a client that went
// away before the response.
const statusClientClosedRequest = 499

// EvidenceRequest is the body of POST /v1/evidence.
type EvidenceRequest struct {
	types.Query
	BestEffort bool `json:"best_effort,omitempty"`
}

func (s *Server) handleEvidence(c *gin.Context) {
	var req EvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	if len(req.RawText) > maxQueryText {
		s.fail(c, http.StatusBadRequest, errors.New("raw_text exceeds maximum size of 10KB"))
		return
	}
	if req.Depth != "" && !req.Depth.Valid() {
		s.fail(c, http.StatusBadRequest, errors.New("unknown depth "+string(req.Depth)))
		return
	}

	var opts []engine.Option
	if req.BestEffort {
		opts = append(opts, engine.BestEffort())
	}
	set, err := s.engine.RetrieveEvidence(c.Request.Context(), req.Query, opts...)
	if err != nil {
		s.fail(c, statusFor(c.Request.Context(), err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    set,
	})
}

func (s *Server) handleClientContext(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	cc, err := s.engine.ClientContext(c.Request.Context(), id)
	if err != nil {
		// Defaults are still usable; report the degradation alongside them.
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"data":     cc,
			"degraded": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    cc,
	})
}

func (s *Server) handleOutcome(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var summary types.InteractionSummary
	if err := c.ShouldBindJSON(&summary); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	for _, e := range summary.Engagements {
		if !e.Kind.Valid() {
			s.fail(c, http.StatusBadRequest, errors.New("unknown source kind "+string(e.Kind)))
			return
		}
	}
	if err := s.engine.ReportOutcome(c.Request.Context(), id, summary); err != nil {
		s.fail(c, statusFor(c.Request.Context(), err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health != nil {
		if err := s.health.Ping(c.Request.Context()); err != nil {
			s.fail(c, http.StatusServiceUnavailable, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "ok"})
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.log.Warn("request failed", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

// statusFor maps an engine error to an HTTP status.
func statusFor(ctx context.Context, err error) int {
	// An all-sources failure joins every per-source error, so it is checked
	// before the per-source kinds.
	switch {
	case errors.Is(err, types.ErrAllSourcesUnavailable), errors.Is(err, types.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrRequestCancelled):
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return statusClientClosedRequest
	case errors.Is(err, types.ErrUnresolvableQuery):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrMalformedQuery):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
