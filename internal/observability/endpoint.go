package observability

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/tphakala/fragring/internal/errors"
	"github.com/tphakala/fragring/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Endpoint serves the Prometheus scrape endpoint.
type Endpoint struct {
	listenAddress string
	metrics       *Metrics
}

// NewEndpoint creates an endpoint for the given listen address.
func NewEndpoint(listenAddress string, metrics *Metrics) (*Endpoint, error) {
	if listenAddress == "" {
		return nil, errors.Newf("metrics listen address is empty").
			Component("observability").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return &Endpoint{
		listenAddress: listenAddress,
		metrics:       metrics,
	}, nil
}

// Run serves /metrics until ctx is cancelled, then shuts the server down.
func (e *Endpoint) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return errors.New(err).
			Component("observability").
			Category(errors.CategorySystem).
			Context("address", e.listenAddress).
			Build()
	}
	return e.Serve(ctx, listener)
}

// Serve is Run with a caller-supplied listener.
func (e *Endpoint) Serve(ctx context.Context, listener net.Listener) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics endpoint starting", logger.String("address", listener.Addr().String()))
		errCh <- server.Serve(listener)
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

	log.Info("stopping metrics endpoint")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics endpoint shutdown error", logger.Error(err))
		return err
	}
	<-errCh
	return nil
}
