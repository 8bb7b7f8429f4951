package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"tracker/internal/events"
	"tracker/internal/tracker"
)

// Pinger reports storage readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP layer.
type Options struct {
	StaticDir string
	JWTSecret string
	DB        Pinger
}

// Server provides HTTP handlers for the project tracker.
type Server struct {
	engine    *gin.Engine
	tracker   *tracker.Engine
	hub       *events.Hub
	db        Pinger
	logger    *slog.Logger
	staticDir string
	secret    []byte
}

// New constructs the HTTP server with routes and middleware configured.
func New(tr *tracker.Engine, hub *events.Hub, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(requestLogger(logger))
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/events"})))

	srv := &Server{
		engine:    router,
		tracker:   tr,
		hub:       hub,
		db:        opts.DB,
		logger:    logger,
		staticDir: opts.StaticDir,
		secret:    []byte(opts.JWTSecret),
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires all API and static handlers together.
func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	api.GET("/healthz", s.handleHealth)

	authed := api.Group("", s.authenticate())
	{
		authed.GET("/events", s.handleEvents)

		projects := authed.Group("/projects")
		{
			projects.GET("", s.handleListProjects)
			projects.POST("", s.handleCreateProject)
			projects.GET(":projectId", s.handleGetProject)
			projects.PUT(":projectId", s.handleUpdateProject)
			projects.DELETE(":projectId", s.handleDeleteProject)

			projects.GET(":projectId/members", s.handleListMembers)
			projects.POST(":projectId/members", s.handleAddMember)
			projects.PATCH(":projectId/members/:userId", s.handleUpdateMemberRole)
			projects.DELETE(":projectId/members/:userId", s.handleRemoveMember)

			projects.GET(":projectId/tasks", s.handleListTasks)
			projects.POST(":projectId/tasks", s.handleCreateTask)
			projects.GET(":projectId/tasks/:taskId", s.handleGetTask)
			projects.PUT(":projectId/tasks/:taskId", s.handleUpdateTask)
			projects.PATCH(":projectId/tasks/:taskId/status", s.handleUpdateTaskStatus)
			projects.DELETE(":projectId/tasks/:taskId", s.handleDeleteTask)
			projects.GET(":projectId/tasks/:taskId/history", s.handleTaskHistory)
			projects.POST(":projectId/tasks/:taskId/comments", s.handleAddComment)

			projects.GET(":projectId/tasks/:taskId/reports", s.handleListReports)
			projects.POST(":projectId/tasks/:taskId/reports", s.handleSubmitReport)
			projects.PATCH(":projectId/tasks/:taskId/reports/:reportId", s.handleReviewReport)
		}
	}

	s.mountStatic()
}

// handleHealth reports readiness, including the database when configured.
func (s *Server) handleHealth(c *gin.Context) {
	if s.db != nil {
		if err := s.db.Ping(c.Request.Context()); err != nil {
			s.logger.Error("health check failed", slog.String("error", err.Error()))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusFor maps an engine error kind onto an HTTP status.
func statusFor(kind tracker.Kind) int {
	switch kind {
	case tracker.KindNotFound:
		return http.StatusNotFound
	case tracker.KindForbidden:
		return http.StatusForbidden
	case tracker.KindValidation:
		return http.StatusUnprocessableEntity
	case tracker.KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// respondError logs the error and returns a JSON payload. Internal details
// never reach the client.
func (s *Server) respondError(c *gin.Context, err error) {
	kind := tracker.KindOf(err)
	status := statusFor(kind)
	body := gin.H{"kind": kind.String(), "message": "internal error"}

	if kind == tracker.KindInternal {
		s.logger.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.String("request_id", c.GetString(ctxRequestID)),
			slog.String("error", err.Error()))
	} else {
		var e *tracker.Error
		if errors.As(err, &e) {
			body["message"] = e.Message
			if len(e.Fields) > 0 {
				body["fields"] = e.Fields
			}
		}
		s.logger.Debug("request rejected", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

// respondBadRequest reports a body or query that could not be decoded.
func (s *Server) respondBadRequest(c *gin.Context, err error) {
	s.logger.Debug("malformed request", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": gin.H{"kind": "bad_request", "message": "malformed request body"}})
}

// respondSuccess wraps a payload in a JSON envelope for consistency.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}
