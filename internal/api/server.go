// Package api exposes the operations surface: status and risk endpoints, an
// audit verification hook, a websocket event stream, and Prometheus metrics.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"forex-agent/config"
	"forex-agent/internal/auth"
	"forex-agent/internal/events"
	"forex-agent/internal/execution"
	"forex-agent/internal/health"
	"forex-agent/internal/risk"
	"forex-agent/internal/sequencer"
)

// Server is the HTTP operations API.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        config.ServerConfig
	logger     zerolog.Logger

	auditPath string
	seq       *sequencer.Sequencer
	riskMgr   *risk.Manager
	exec      *execution.Engine
	monitor   *health.Monitor
	hub       *WSHub
}

// NewServer wires routes and the websocket hub. tokens may be nil to run the
// API unauthenticated, which is only reasonable on a loopback bind.
func NewServer(cfg config.ServerConfig, auditPath string, seq *sequencer.Sequencer, riskMgr *risk.Manager, exec *execution.Engine, monitor *health.Monitor, bus *events.EventBus, tokens *auth.TokenService, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:    gin.New(),
		cfg:       cfg,
		logger:    logger.With().Str("component", "api").Logger(),
		auditPath: auditPath,
		seq:       seq,
		riskMgr:   riskMgr,
		exec:      exec,
		monitor:   monitor,
		hub:       newWSHub(bus, logger),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/ws", s.handleWebSocket)

	apiGroup := s.router.Group("/api", auth.Middleware(tokens))
	{
		apiGroup.GET("/status", s.handleStatus)
		apiGroup.GET("/positions", s.handlePositions)
		apiGroup.GET("/risk/metrics", s.handleRiskMetrics)
		apiGroup.GET("/audit/verify", s.handleAuditVerify)
	}

	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
	}

	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("api listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("api server failed")
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
