// Package server exposes the engine over HTTP: orchestration and
// recommendation endpoints, per-request control commands, a stats
// snapshot, prometheus metrics, and a websocket event stream scoped to
// one request.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/omarpiose00/NeuronVault-sub003/internal/engine"
	"github.com/omarpiose00/NeuronVault-sub003/internal/events"
	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
)

// Server serves the HTTP API.
type Server struct {
	engine   *engine.Engine
	logger   *logrus.Logger
	http     *http.Server
	upgrader websocket.Upgrader
}

// New builds the server and its routes.
func New(addr string, eng *engine.Engine, gatherer prometheus.Gatherer, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		engine: eng,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLog())

	v1 := router.Group("/v1")
	{
		v1.POST("/orchestrate", s.handleOrchestrate)
		v1.POST("/recommend", s.handleRecommend)
		v1.POST("/requests/:id/stop", s.handleStop)
		v1.POST("/requests/:id/pause", s.handlePause)
		v1.POST("/requests/:id/resume", s.handleResume)
		v1.GET("/requests/:id/events", s.handleEvents)
		v1.GET("/stats", s.handleStats)
	}
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	s.http = &http.Server{Addr: addr, Handler: router}
	return s
}

// Run blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.WithField("addr", s.http.Addr).Info("http server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start),
		}).Debug("http request")
	}
}

func (s *Server) handleOrchestrate(c *gin.Context) {
	var req models.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(&models.ValidationError{Field: "body", Reason: err.Error()}))
		return
	}

	resp, err := s.engine.Orchestrate(c.Request.Context(), &req)
	if err != nil {
		c.JSON(statusFor(err), errorBody(err))
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRecommend(c *gin.Context) {
	var req models.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(&models.ValidationError{Field: "body", Reason: err.Error()}))
		return
	}

	decision, err := s.engine.Recommend(c.Request.Context(), &req)
	if err != nil {
		c.JSON(statusFor(err), errorBody(err))
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (s *Server) handleStop(c *gin.Context)   { s.ackCommand(c, s.engine.Stop) }
func (s *Server) handlePause(c *gin.Context)  { s.ackCommand(c, s.engine.Pause) }
func (s *Server) handleResume(c *gin.Context) { s.ackCommand(c, s.engine.Resume) }

// ackCommand maps the gateway's synchronous acknowledgment onto HTTP.
func (s *Server) ackCommand(c *gin.Context, cmd func(string) error) {
	id := c.Param("id")
	switch err := cmd(id); {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"request_id": id, "acknowledged": true})
	case errors.Is(err, events.ErrUnknownRequest):
		c.JSON(http.StatusNotFound, gin.H{"request_id": id, "error": err.Error()})
	case errors.Is(err, events.ErrAlreadyStopped):
		c.JSON(http.StatusConflict, gin.H{"request_id": id, "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"request_id": id, "error": err.Error()})
	}
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Stats())
}

// handleEvents upgrades to a websocket and streams the request's events
// until the subscription closes or the client goes away.
func (s *Server) handleEvents(c *gin.Context) {
	id := c.Param("id")
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch := s.engine.Subscribe(id)

	// Reads only service close frames; writes come from the event channel.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			s.logger.WithError(err).WithField("request", id).Debug("websocket write failed")
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "request finished"))
}

func errorBody(err error) gin.H {
	return gin.H{"error": err.Error(), "kind": models.ErrorKind(err)}
}

// statusFor maps typed engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch models.ErrorKind(err) {
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindNoAvailableModels:
		return http.StatusUnprocessableEntity
	case models.KindAllModelsFailed:
		return http.StatusBadGateway
	case models.KindModelTimeout:
		return http.StatusGatewayTimeout
	case models.KindRequestStopped:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
