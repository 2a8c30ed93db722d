// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aiverse/hybridstack/internal/cache"
	"github.com/aiverse/hybridstack/internal/orchestrator"
	"github.com/aiverse/hybridstack/internal/router"
	"github.com/aiverse/hybridstack/internal/task"
)

// TaskRequest is the task submission body.
type TaskRequest struct {
	Type         string                 `json:"type" binding:"required"`
	Content      string                 `json:"content" binding:"required"`
	SystemPrompt string                 `json:"system_prompt,omitempty"`
	Context      map[string]interface{} `json:"context,omitempty"`
	Priority     string                 `json:"priority,omitempty"`
	MaxCost      float64                `json:"max_cost,omitempty"`
	MaxTokens    int                    `json:"max_tokens,omitempty"`
	TimeoutSec   int                    `json:"timeout_sec,omitempty"`
	Complex      bool                   `json:"complex,omitempty"`
}

// EmbedRequest is the embedding request body.
type EmbedRequest struct {
	Text string `json:"text" binding:"required"`
}

// handleStatus serves GET /v1/status.
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.SystemStatus())
}

// handleMetrics serves GET /v1/metrics. The trailing window defaults to 24h
// and is set with ?window=1h style duration strings.
func (s *Server) handleMetrics(c *gin.Context) {
	window := 24 * time.Hour
	if raw := c.Query("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window duration"})
			return
		}
		window = parsed
	}
	c.JSON(http.StatusOK, gin.H{
		"window":    window.String(),
		"providers": s.orch.PerformanceMetrics(window),
	})
}

// handleTask serves POST /v1/tasks.
func (s *Server) handleTask(c *gin.Context) {
	var req TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t := task.New(task.Type(req.Type), req.Content)
	t.SystemPrompt = req.SystemPrompt
	t.Context = req.Context
	t.MaxCost = req.MaxCost
	t.MaxTokens = req.MaxTokens
	t.Complex = req.Complex
	if req.Priority != "" {
		t.Priority = task.Priority(req.Priority)
	}
	if req.TimeoutSec > 0 {
		t.Timeout = time.Duration(req.TimeoutSec) * time.Second
	}

	result, err := s.orch.ExecuteTask(c.Request.Context(), t)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error(), "task_id": t.ID})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleEmbed serves POST /v1/embeddings.
func (s *Server) handleEmbed(c *gin.Context) {
	var req EmbedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	vec, err := s.orch.Embed(c.Request.Context(), req.Text)
	if err != nil {
		if errors.Is(err, orchestrator.ErrNoEmbedder) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"embedding": vec, "dimensions": len(vec)})
}

// statusForError maps execution errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidTask):
		return http.StatusBadRequest
	case errors.Is(err, router.ErrBudgetExceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, router.ErrNoProvidersAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, router.ErrAllProvidersFailed), errors.Is(err, cache.ErrExhausted):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
