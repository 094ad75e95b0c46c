// Package mqtt publishes gift catalog change events to an MQTT broker.
package mqtt

import (
	"log/slog"
	"time"

	"github.com/gifttrack/gifttrack-go/internal/logging"
)

// Config holds the configuration for the MQTT publisher.
type Config struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	TopicPrefix       string // prefix for delta and sold-out topics
	ReconnectCooldown time.Duration
	ReconnectDelay    time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// Package-level logger for MQTT related events
var mqttLogger *slog.Logger

func init() {
	var err error
	mqttLogger, _, err = logging.NewFileLogger("logs/mqtt.log", "mqtt", slog.LevelInfo)
	if err != nil {
		logging.Error("Failed to initialize MQTT file logger", "error", err)
		if base := logging.Structured(); base != nil {
			mqttLogger = base.With("service", "mqtt")
		} else {
			mqttLogger = slog.Default().With("service", "mqtt")
		}
	}
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ReconnectCooldown: 5 * time.Second,
		ReconnectDelay:    1 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}
