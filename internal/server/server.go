package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"collaboraid-sync/config"
	"collaboraid-sync/internal/handler"
	"collaboraid-sync/internal/middleware"
	"collaboraid-sync/internal/transport/httpdto"
	"collaboraid-sync/internal/websocket"
	"collaboraid-sync/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Server is the local bridge that exposes the sync engine to a UI.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Conversations *handler.ConversationHandler
	Status        *handler.StatusHandler
	Account       *handler.AccountHandler
	WebSocket     *websocket.Handler
	Metrics       prometheus.Gatherer
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("127.0.0.1:%s", cfg.BridgePort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: logger.OrNop(l).Named("bridge"),
	}
}

func (s *Server) SetupRoutes(handlers *Handlers) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})
	if handlers.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(handlers.Metrics, promhttp.HandlerOpts{})))
	}

	v1 := s.engine.Group("/v1", middleware.BridgeAuth(s.config.BridgeToken))
	{
		v1.GET("/status", handlers.Status.Status)
		v1.POST("/refresh", handlers.Status.Refresh)
		v1.GET("/ws", handlers.WebSocket.Connect)

		writes := middleware.RateLimitMiddleware(rate.NewLimiter(rate.Limit(5), 20))
		conv := v1.Group("/conversations")
		conv.GET("", handlers.Conversations.List)
		conv.GET("/:id", handlers.Conversations.Get)
		conv.POST("/:id/open", handlers.Conversations.Open)
		conv.POST("/:id/messages", writes, handlers.Conversations.Send)
		conv.POST("/:id/retry/:clientId", writes, handlers.Conversations.Retry)
		conv.GET("/:id/failed", handlers.Conversations.Failed)

		if handlers.Account != nil {
			v1.GET("/admins", handlers.Account.Admins)
			v1.GET("/admin-request", handlers.Account.AdminCooldown)
			v1.POST("/admin-request", writes, handlers.Account.RequestAdmin)
		}
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting the bridge on %s...", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.logger.Errorf("Error in starting the bridge: %s", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Infof("Shutting down the bridge")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Infof("Error in the graceful shutdown of the bridge: %s", err)
		return err
	}
	s.logger.Infof("Bridge stopped gracefully")
	return nil
}
