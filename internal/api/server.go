// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the read-only status surface and the task submission
// endpoint over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/aiverse/hybridstack/internal/config"
	"github.com/aiverse/hybridstack/internal/orchestrator"
)

// Server hosts the HTTP API in front of the orchestrator.
type Server struct {
	orch *orchestrator.Orchestrator
	cfg  config.ServerConfig
	srv  *http.Server
}

// NewServer creates an API server. Call Start to begin listening.
func NewServer(orch *orchestrator.Orchestrator, cfg config.ServerConfig, debug bool) *Server {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{orch: orch, cfg: cfg}

	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/v1")
	v1.GET("/status", s.handleStatus)
	v1.GET("/metrics", s.handleMetrics)
	v1.POST("/tasks", s.handleTask)
	v1.POST("/embeddings", s.handleEmbed)

	s.srv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: r,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		log.Infof("api server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("api server stopped: %v", err)
		}
	}()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
