// Package api exposes a read-only status API over HTTP. The interactive
// dashboard lives elsewhere; this surface is observability only.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fentz26/drover/internal/models"
	"github.com/fentz26/drover/internal/orchestrator"
	"github.com/fentz26/drover/internal/store"
	"github.com/gin-gonic/gin"
)

// Deps bundles the API's collaborators.
type Deps struct {
	Store        *store.Store
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger
}

// Server serves the status API.
type Server struct {
	deps Deps
	srv  *http.Server
}

// New creates the API server.
func New(addr string, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		if err := deps.Store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	v1 := r.Group("/v1")
	v1.GET("/status", statusHandler(deps))
	v1.GET("/devices", devicesHandler(deps))
	v1.GET("/jobs", jobsHandler(deps))
	v1.GET("/sessions", sessionsHandler(deps))
	v1.GET("/events", eventsHandler(deps))

	return &Server{
		deps: deps,
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start listens and serves until shutdown.
func (s *Server) Start() error {
	s.deps.Logger.Info("status API listening", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func statusHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"devices": deps.Orchestrator.Status()})
	}
}

func devicesHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		devices, err := deps.Store.ListDevices()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"devices": devices})
	}
}

func jobsHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobs, err := deps.Store.ListJobs(models.JobStatus(c.Query("status")))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": jobs})
	}
}

func sessionsHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions, err := deps.Store.ListRecentSessions(50)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	}
}

func eventsHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := deps.Store.ListOpenHealthEvents()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	}
}
