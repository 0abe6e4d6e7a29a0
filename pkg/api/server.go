// Package api exposes the cistern state over HTTP.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/itohio/cisterna/pkg/cistern"
	"github.com/itohio/cisterna/pkg/measurement"
	"github.com/itohio/cisterna/pkg/poller"
)

// NoDetectionMessage is returned while the cell holds no valid reading.
const NoDetectionMessage = "Fluid surface not detected or too far away"

// Cistern answers state queries.
type Cistern interface {
	State() (cistern.State, error)
	Geometry() cistern.Geometry
	Distance() (mm uint64, detected bool)
}

// StatsProvider reports polling activity.
type StatsProvider interface {
	Stats() poller.Stats
}

// SensorStatus is the body of GET /cistern/sensor.
type SensorStatus struct {
	DistanceMM uint64 `json:"distance_mm"`
	Detected   bool   `json:"detected"`
	poller.Stats
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server holds the HTTP handlers.
type Server struct {
	cistern Cistern
	stats   StatsProvider
	log     *zap.Logger
}

// NewServer creates a server. stats may be nil.
func NewServer(c Cistern, stats StatsProvider, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cistern: c,
		stats:   stats,
		log:     log,
	}
}

// Router builds the gin engine with all routes.
func (s *Server) Router() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(LoggingMiddleware(s.log))

	group := engine.Group("/cistern")
	{
		group.GET("/state", s.getState)
		group.GET("/geometry", s.getGeometry)
		group.GET("/sensor", s.getSensor)
	}

	return engine
}

func (s *Server) getState(c *gin.Context) {
	state, err := s.cistern.State()
	if err != nil {
		msg := err.Error()
		if errors.Is(err, measurement.ErrNoDetection) {
			msg = NoDetectionMessage
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msg})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) getGeometry(c *gin.Context) {
	c.JSON(http.StatusOK, s.cistern.Geometry())
}

func (s *Server) getSensor(c *gin.Context) {
	mm, detected := s.cistern.Distance()
	status := SensorStatus{
		DistanceMM: mm,
		Detected:   detected,
	}
	if s.stats != nil {
		status.Stats = s.stats.Stats()
	}
	c.JSON(http.StatusOK, status)
}

// LoggingMiddleware logs every request with its status and latency.
func LoggingMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("request", fields...)
			return
		}
		log.Debug("request", fields...)
	}
}
