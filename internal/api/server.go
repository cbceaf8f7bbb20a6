// Package api exposes the tracker over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ipotracker/internal/core/domain"
	"ipotracker/internal/core/ports"
)

// Session is the tracked job of this server instance.
type Session interface {
	Start(ctx context.Context, entities []domain.Entity) (string, error)
	Reset()
	Snapshot() domain.Snapshot
	Subscribe() (<-chan domain.Snapshot, func())
}

// Server holds the collaborators of the HTTP handlers.
type Server struct {
	dispatcher ports.Dispatcher
	fetcher    ports.ArtifactFetcher
	opener     ports.ArchiveOpener
	session    Session
	version    string
}

func NewServer(dispatcher ports.Dispatcher, fetcher ports.ArtifactFetcher, opener ports.ArchiveOpener, session Session, version string) *Server {
	return &Server{
		dispatcher: dispatcher,
		fetcher:    fetcher,
		opener:     opener,
		session:    session,
		version:    version,
	}
}

// Router builds the gin engine. The gin mode must be set by the caller.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/health", s.handleHealth)

	api := router.Group("/api")
	{
		api.POST("/trigger-workflow", s.handleTrigger)
		api.GET("/fetch-logs", s.handleFetchLogs)

		session := api.Group("/session")
		{
			session.POST("", s.handleStart)
			session.GET("", s.handleSnapshot)
			session.DELETE("", s.handleReset)
			session.GET("/events", s.handleEvents)
		}
	}
	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "ipotracker",
		"version": s.version,
	})
}

// requestLogger replaces gin's text logger with slog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		slog.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
