// Package server implements the HTTP and WebSocket API over the workflow
// store and the execution engine.
package server

import (
	"log/slog"
	"net/http"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"
	"github.com/kode4food/timebox"

	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/schema"
	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/internal/util"
)

// Server implements the HTTP API server for the workflow engine
type Server struct {
	engine    *engine.Engine
	workflows *store.Store
	schemas   *schema.Registry
	eventHub  timebox.EventHub
	sockets   util.Set[*Client]
	mu        sync.Mutex
}

// NewServer creates a new HTTP API server
func NewServer(
	eng *engine.Engine, workflows *store.Store, schemas *schema.Registry,
	hub timebox.EventHub,
) *Server {
	return &Server{
		engine:    eng,
		workflows: workflows,
		schemas:   schemas,
		eventHub:  hub,
		sockets:   util.Set[*Client]{},
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods",
			"GET, POST, PUT, DELETE, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers",
			"Content-Type, Authorization",
		)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", s.handleHealth)

	// Engine state
	router.GET("/engine", s.handleEngine)

	// Workflow definition endpoints
	wf := router.Group("/workflow")
	{
		wf.GET("", s.listWorkflows)
		wf.POST("", s.createWorkflow)
		wf.POST("/validate", s.validateWorkflow)
		wf.POST("/layout", s.layoutWorkflow)
		wf.POST("/convert/:form", s.convertWorkflow)
		wf.GET("/:workflowID", s.getWorkflow)
		wf.PUT("/:workflowID", s.updateWorkflow)
		wf.DELETE("/:workflowID", s.deleteWorkflow)
		wf.POST("/:workflowID/execute", s.executeWorkflow)
	}

	// Execution endpoints
	ex := router.Group("/execution")
	{
		ex.GET("", s.listExecutions)
		ex.GET("/:executionID", s.getExecution)
		ex.POST("/:executionID/cancel", s.cancelExecution)
	}

	// Config schema endpoints
	sc := router.Group("/schema")
	{
		sc.GET("", s.listSchemas)
		sc.GET("/:stepType", s.getSchema)
	}

	// WebSocket
	router.GET("/ws", s.handleWebSocket)

	return router
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Add(c)
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Remove(c)
}

// CloseWebSockets closes all active WebSocket connections.
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := make([]*Client, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
