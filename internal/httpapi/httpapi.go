// Package httpapi is the example gin-based facade standing in for the
// out-of-scope HTTP host: it exposes the orchestrator's operations over
// REST so a deployment has something to point a load balancer at.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quantumlayer-dev/agentmesh/internal/domain"
	"github.com/quantumlayer-dev/agentmesh/internal/orchestrator"
)

// Server wraps gin.Engine around an Orchestrator.
type Server struct {
	engine *gin.Engine
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
	srv    *http.Server
}

func New(addr string, orch *orchestrator.Orchestrator, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(loggerMiddleware(logger), gin.Recovery())

	s := &Server{engine: engine, orch: orch, logger: logger}
	s.routes()
	s.srv = &http.Server{Addr: addr, Handler: engine}
	return s
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/api/v1")
	v1.POST("/tasks", s.submitTask)
	v1.GET("/tasks/:id", s.getTask)
	v1.DELETE("/tasks/:id", s.cancelTask)
	v1.GET("/agents", s.listAgents)
}

type submitTaskRequest struct {
	Type                  string                 `json:"type" binding:"required"`
	Priority              int                    `json:"priority"`
	RequiredCapabilities  []string               `json:"requiredCapabilities"`
	PreferredCapabilities []string               `json:"preferredCapabilities"`
	Payload               map[string]interface{} `json:"payload"`
	MaxRetries            *int                   `json:"maxRetries"`
	TimeoutMs             *int64                 `json:"timeoutMs"`
	Dependencies          []string               `json:"dependencies"`
	Metadata              map[string]string      `json:"metadata"`
}

func (s *Server) submitTask(c *gin.Context) {
	var req submitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payload, err := domain.JSON(req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	priority := domain.Priority(req.Priority)
	if priority == 0 {
		priority = domain.PriorityNormal
	}
	task, err := s.orch.SubmitTask(c.Request.Context(), domain.PartialTask{
		Type:                  req.Type,
		Priority:              priority,
		Payload:               payload,
		RequiredCapabilities:  req.RequiredCapabilities,
		PreferredCapabilities: req.PreferredCapabilities,
		MaxRetries:            req.MaxRetries,
		TimeoutMs:             req.TimeoutMs,
		Dependencies:          req.Dependencies,
		Metadata:              req.Metadata,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) getTask(c *gin.Context) {
	task, ok := s.orch.GetTask(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) cancelTask(c *gin.Context) {
	if err := s.orch.CancelTask(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) listAgents(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.GetAgents())
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindQueueFull, domain.KindDuplicate, domain.KindInvalidTransition, domain.KindCapabilityMismatch:
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// ServeHTTP lets tests drive routes directly without binding a port.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
