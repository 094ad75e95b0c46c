// Package monitor wires the long-running tracking mode: catalog polling,
// the REST API, MQTT publishing, notifications and telemetry.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gifttrack/gifttrack-go/internal/analytics"
	api "github.com/gifttrack/gifttrack-go/internal/api/v2"
	"github.com/gifttrack/gifttrack-go/internal/conf"
	"github.com/gifttrack/gifttrack-go/internal/datastore"
	"github.com/gifttrack/gifttrack-go/internal/giftsync"
	"github.com/gifttrack/gifttrack-go/internal/logging"
	"github.com/gifttrack/gifttrack-go/internal/mqtt"
	"github.com/gifttrack/gifttrack-go/internal/notification"
	"github.com/gifttrack/gifttrack-go/internal/observability"
	"github.com/gifttrack/gifttrack-go/internal/telegram"
)

const apiShutdownTimeout = 10 * time.Second

// Run starts the monitor mode and blocks until SIGINT or SIGTERM.
func Run(settings *conf.Settings) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ds := datastore.New(settings)
	if err := ds.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logging.Error("Error closing datastore", "error", err)
		}
	}()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	client, err := telegram.NewClient(telegram.ConfigFromSettings(settings))
	if err != nil {
		return fmt.Errorf("failed to create source client: %w", err)
	}

	syncOpts := []giftsync.Option{giftsync.WithMetrics(metrics.Sync)}

	if settings.Realtime.Notification.Enabled {
		notifier, err := notification.NewService(&settings.Realtime.Notification)
		if err != nil {
			return fmt.Errorf("failed to initialize notifications: %w", err)
		}
		syncOpts = append(syncOpts, giftsync.WithNotifier(notifier))
	}

	var publisher *mqtt.Publisher
	if settings.Realtime.MQTT.Enabled {
		publisher, err = mqtt.NewPublisher(settings, metrics.MQTT)
		if err != nil {
			return fmt.Errorf("failed to initialize MQTT publisher: %w", err)
		}
		connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
		if err := publisher.Connect(connectCtx); err != nil {
			// The publisher reconnects on its own; sync continues without it
			logging.Warn("MQTT broker not reachable at startup", "error", err)
		}
		connectCancel()
		defer publisher.Disconnect()
		syncOpts = append(syncOpts, giftsync.WithPublisher(publisher))
	}

	engine := analytics.NewEngine(ds,
		settings.Analytics.WindowHours,
		time.Duration(settings.Analytics.StalenessMinutes)*time.Minute,
		analytics.WithMetrics(metrics.Analytics))

	// Each catalog upsert refreshes that gift's prediction right away, so
	// API reads see a prediction matching the counts just written.
	syncOpts = append(syncOpts, giftsync.WithUpdateHook(func(giftID string) {
		if err := engine.RefreshPrediction(giftID); err != nil {
			logging.Warn("Post-update prediction refresh failed", "gift_id", giftID, "error", err)
		}
	}))

	syncService := giftsync.NewService(settings, ds, client, syncOpts...)
	defer syncService.Close()

	var wg sync.WaitGroup
	quitChan := make(chan struct{})

	if settings.Realtime.Telemetry.Enabled {
		endpoint, err := observability.NewEndpoint(settings, metrics)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry endpoint: %w", err)
		}
		endpoint.Start(&wg, quitChan)
	}

	var apiServer *echo.Echo
	if settings.Realtime.API.Enabled {
		apiServer = echo.New()
		apiServer.HideBanner = true

		controller, err := api.New(apiServer, ds, settings, engine, log.Default(), metrics)
		if err != nil {
			return fmt.Errorf("failed to initialize API: %w", err)
		}
		defer controller.Shutdown()

		wg.Add(1)
		go func() {
			defer wg.Done()
			logging.Info("Starting API server", "listen", settings.Realtime.API.Listen)
			if err := apiServer.Start(settings.Realtime.API.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("API server failed", "error", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		syncService.StartPolling(ctx, quitChan)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logging.Info("Shutting down", "signal", sig.String())

	cancel()
	close(quitChan)

	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), apiShutdownTimeout)
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("API server shutdown failed", "error", err)
		}
		shutdownCancel()
	}

	wg.Wait()
	return nil
}
