package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gifttrack/gifttrack-go/internal/conf"
	"github.com/gifttrack/gifttrack-go/internal/logging"
)

// shutdownTimeout bounds the graceful shutdown of the telemetry server.
const shutdownTimeout = 5 * time.Second

// Endpoint serves the Prometheus-compatible telemetry endpoint.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
	logger        *slog.Logger
}

// NewEndpoint creates a new telemetry Endpoint. It returns an error when
// telemetry is not enabled in the settings. The Metrics instance must be
// initialized by the caller.
func NewEndpoint(settings *conf.Settings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Realtime.Telemetry.Enabled {
		return nil, fmt.Errorf("telemetry not enabled in settings")
	}

	logger := logging.ForService("telemetry")
	if logger == nil {
		logger = slog.Default().With("service", "telemetry")
	}

	return &Endpoint{
		listenAddress: settings.Realtime.Telemetry.Listen,
		metrics:       metrics,
		logger:        logger,
	}, nil
}

// Start runs the HTTP server for the telemetry endpoint in a goroutine and
// shuts it down when quitChan closes.
func (e *Endpoint) Start(wg *sync.WaitGroup, quitChan <-chan struct{}) {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	e.server = &http.Server{
		Addr:    e.listenAddress,
		Handler: mux,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.logger.Info("Telemetry endpoint starting", "address", e.listenAddress)
		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.logger.Error("Telemetry HTTP server error", "error", err)
		}
	}()

	go e.gracefulShutdown(quitChan)
}

// gracefulShutdown waits for the quit signal and shuts down the server.
func (e *Endpoint) gracefulShutdown(quitChan <-chan struct{}) {
	<-quitChan
	e.logger.Info("Stopping telemetry server")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(ctx); err != nil {
		e.logger.Error("Telemetry server shutdown error", "error", err)
	}
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
