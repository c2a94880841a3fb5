package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"BarFeed/pkg/http/middleware"
	applogger "BarFeed/pkg/logger"

	"github.com/labstack/echo/v4"
)

type ServerOption func(*ServerConfig)

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	SlowRequest     time.Duration
	Metrics         middleware.HTTPRecorder
	MetricsPath     string
	MetricsHandler  http.Handler
}

// Server wraps an Echo instance.
type Server struct {
	echo   *echo.Echo
	config *ServerConfig
	log    *applogger.Logger
}

// NewServer builds the Echo instance, installs middleware and registers
// every handler's routes.
func NewServer(log *applogger.Logger, handlers []Handler, opts ...ServerOption) *Server {
	cfg := &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		CORSOrigins:     []string{"*"},
		MetricsPath:     "/metrics",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if log == nil {
		log = applogger.Nop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(middleware.Recover(log))
	e.Use(middleware.RequestLogging(log, cfg.SlowRequest))
	if cfg.Metrics != nil {
		e.Use(middleware.Metrics(cfg.Metrics))
	}
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORS(middleware.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	for _, h := range handlers {
		h.RegisterRoutes(e)
	}
	if cfg.MetricsHandler != nil {
		e.GET(cfg.MetricsPath, echo.WrapHandler(cfg.MetricsHandler))
	}

	return &Server{echo: e, config: cfg, log: log}
}

// Start listens in the background. Listen failures are logged.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	go func() {
		s.log.Info("http server listening", applogger.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server failed", applogger.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the server within the configured timeout.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

func (s *Server) Echo() *echo.Echo { return s.echo }

func WithHost(host string) ServerOption {
	return func(c *ServerConfig) { c.Host = host }
}

func WithPort(port int) ServerOption {
	return func(c *ServerConfig) { c.Port = port }
}

// WithTimeouts sets read/write/shutdown timeouts.
func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *ServerConfig) {
		c.ReadTimeout = read
		c.WriteTimeout = write
		c.ShutdownTimeout = shutdown
	}
}

// WithCORS sets allowed origins. No origins disables CORS handling.
func WithCORS(origins []string) ServerOption {
	return func(c *ServerConfig) { c.CORSOrigins = origins }
}

// WithSlowRequest logs requests slower than d as warnings.
func WithSlowRequest(d time.Duration) ServerOption {
	return func(c *ServerConfig) { c.SlowRequest = d }
}

// WithMetrics records request metrics on rec and serves handler at path.
func WithMetrics(rec middleware.HTTPRecorder, path string, handler http.Handler) ServerOption {
	return func(c *ServerConfig) {
		c.Metrics = rec
		if path != "" {
			c.MetricsPath = path
		}
		c.MetricsHandler = handler
	}
}
