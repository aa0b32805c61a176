// Package server wires the reference task API: storage, middleware and
// routes behind one http.Server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"taskboard/internal/config"
	"taskboard/internal/handlers"
	"taskboard/internal/middleware"
	"taskboard/internal/monitoring"
	"taskboard/internal/services"
)

type Server struct {
	cfg     *config.Config
	db      *gorm.DB
	logger  *log.Logger
	monitor *monitoring.Monitor
	engine  *gin.Engine
}

// New builds the router. db must already be migrated.
func New(cfg *config.Config, db *gorm.DB, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:     cfg,
		db:      db,
		logger:  logger,
		monitor: monitoring.NewMonitor(),
		engine:  gin.New(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Monitor() *monitoring.Monitor { return s.monitor }

func (s *Server) routes() {
	r := s.engine
	r.Use(middleware.RecoveryWithLog(s.logger))
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(s.monitor.Middleware())
	corsConfig := cors.Config{
		AllowOrigins:     s.cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsConfig.AllowOrigins) == 0 {
		// cors.New panics on an empty origin list.
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	r.Use(cors.New(corsConfig))

	if s.db != nil {
		s.monitor.RegisterHealthCheck("database", func(ctx context.Context) error {
			sqlDB, err := s.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		})
	}

	r.GET("/health", s.monitor.HealthHandler())
	r.GET("/ready", s.monitor.ReadinessHandler())
	r.GET("/live", s.monitor.LivenessHandler())
	r.GET("/metrics", s.monitor.MetricsHandler())

	api := r.Group("/api")
	if s.cfg.RateLimit.Enabled {
		rl := middleware.NewRateLimiter(s.cfg.RateLimit.RequestsPerMin, s.cfg.RateLimit.BurstSize, s.cfg.RateLimit.CleanupInterval)
		api.Use(middleware.RateLimitMiddleware(rl))
	}
	api.Use(middleware.AuthzMiddleware(middleware.AuthzConfig{
		Secret: s.cfg.Auth.JWTSecret,
		Issuer: s.cfg.Auth.Issuer,
		Logger: s.logger,
	}))

	handlers.NewTaskHandler(s.db, services.NewTaskService(), s.logger).Register(api)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.GetServerAddr(),
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", srv.Addr).Info("server.listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("server.shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
