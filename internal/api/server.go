package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/spaceportal/spaceportal/internal/logger"
)

const (
	shutdownTimeout = 10 * time.Second
	// imports fetch and store up to a thousand records per request
	writeTimeout = 5 * time.Minute
)

// Config holds server settings.
type Config struct {
	Listen    string
	AssetRoot string // served at / when set; cached asset paths are web paths below it
}

// Server is the HTTP server for the import API.
type Server struct {
	echo   *echo.Echo
	config Config
	log    logger.Logger
	api    *Controller
}

// NewServer builds the echo instance, middleware and routes.
func NewServer(cfg Config, importer Importer, log logger.Logger, opts ...ControllerOption) *Server {
	if log == nil {
		log = logger.NewDiscardLogger()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadHeaderTimeout = 10 * time.Second
	e.Server.WriteTimeout = writeTimeout

	s := &Server{echo: e, config: cfg, log: log}
	s.setupMiddleware()

	if cfg.AssetRoot != "" {
		e.Static("/", cfg.AssetRoot)
	}

	opts = append([]ControllerOption{WithLogger(log)}, opts...)
	s.api = NewController(e, importer, opts...)
	return s
}

func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())
	s.echo.Use(NewRequestLogger(s.log))
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server starting", logger.String("address", s.config.Listen))
		errCh <- s.echo.Start(s.config.Listen)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutdown signal received, stopping HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}

// NewRequestLogger logs one record per request.
func NewRequestLogger(log logger.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}
			log.Info("request", fields...)
			return nil
		},
	})
}
