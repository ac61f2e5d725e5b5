package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spaceportal/spaceportal/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Endpoint serves /metrics on its own listener
type Endpoint struct {
	listenAddress string
	metrics       *Metrics
	log           logger.Logger
}

// NewEndpoint creates an endpoint for m on listen.
func NewEndpoint(listen string, m *Metrics, log logger.Logger) *Endpoint {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Endpoint{listenAddress: listen, metrics: m, log: log}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (e *Endpoint) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.metrics.Handler())

	server := &http.Server{
		Addr:              e.listenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		e.log.Info("metrics endpoint starting", logger.String("address", e.listenAddress))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	e.log.Info("stopping metrics endpoint")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}
