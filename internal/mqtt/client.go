package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gifttrack/gifttrack-go/internal/conf"
	"github.com/gifttrack/gifttrack-go/internal/datastore"
	"github.com/gifttrack/gifttrack-go/internal/observability/metrics"
)

// Publisher delivers catalog change events to an MQTT broker. It satisfies
// the sync service's DeltaPublisher contract.
type Publisher struct {
	config          Config
	internalClient  pahomqtt.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	reconnectTimer  *time.Timer
	reconnectStop   chan struct{}
	metrics         *metrics.MQTTMetrics
}

// NewPublisher creates an MQTT publisher from the application settings.
func NewPublisher(settings *conf.Settings, m *metrics.MQTTMetrics) (*Publisher, error) {
	if settings.Realtime.MQTT.Broker == "" {
		return nil, fmt.Errorf("mqtt broker not configured")
	}

	config := DefaultConfig()
	config.Broker = settings.Realtime.MQTT.Broker
	config.ClientID = settings.Main.Name
	config.Username = settings.Realtime.MQTT.Username
	config.Password = settings.Realtime.MQTT.Password
	config.TopicPrefix = settings.Realtime.MQTT.Topic
	if config.TopicPrefix == "" {
		config.TopicPrefix = "gifttrack"
	}

	return &Publisher{
		config:        config,
		reconnectStop: make(chan struct{}),
		metrics:       m,
	}, nil
}

// Connect attempts to establish a connection to the MQTT broker.
// It first resolves the broker's hostname and then attempts to connect.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.lastConnAttempt) < p.config.ReconnectCooldown {
		return fmt.Errorf("connection attempt too recent, last attempt was %v ago", time.Since(p.lastConnAttempt))
	}
	p.lastConnAttempt = time.Now()

	u, err := url.Parse(p.config.Broker)
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		// Not an IP address, resolve before handing off to paho
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			if dnsErr, ok := err.(*net.DNSError); ok {
				return dnsErr
			}
			return fmt.Errorf("failed to resolve hostname %s: %w", host, err)
		}
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(p.config.Broker)
	opts.SetClientID(p.config.ClientID)
	opts.SetUsername(p.config.Username)
	opts.SetPassword(p.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(p.onConnect)
	opts.SetConnectionLostHandler(p.onConnectionLost)
	opts.SetConnectRetry(true)

	p.internalClient = pahomqtt.NewClient(opts)

	token := p.internalClient.Connect()
	if !token.WaitTimeout(p.config.ConnectTimeout) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connection error: %w", err)
	}

	if p.metrics != nil {
		p.metrics.UpdateConnectionStatus(true)
	}

	return nil
}

// PublishDelta sends one ledger delta as JSON to <prefix>/delta.
func (p *Publisher) PublishDelta(ctx context.Context, entry *datastore.GiftHistory) error {
	event := DeltaEvent{
		GiftID:         entry.GiftID,
		RemainingCount: entry.RemainingCount,
		TotalCount:     entry.TotalCount,
		Delta:          entry.Delta,
		Timestamp:      entry.Timestamp,
	}
	return p.publishJSON(ctx, p.config.TopicPrefix+"/delta", "delta", event)
}

// PublishSoldOut sends a sold-out transition as JSON to <prefix>/soldout.
func (p *Publisher) PublishSoldOut(ctx context.Context, gift *datastore.Gift) error {
	event := SoldOutEvent{
		GiftID:    gift.ID,
		Name:      gift.Name,
		Total:     gift.Total,
		Version:   gift.Version,
		SoldOutAt: gift.LastUpdated,
	}
	return p.publishJSON(ctx, p.config.TopicPrefix+"/soldout", "sold_out", event)
}

func (p *Publisher) publishJSON(ctx context.Context, topic, kind string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", kind, err)
	}
	return p.publish(ctx, topic, kind, string(payload))
}

func (p *Publisher) publish(ctx context.Context, topic, kind, payload string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if !p.IsConnected() {
		if p.metrics != nil {
			p.metrics.RecordPublishError("disconnected")
		}
		return fmt.Errorf("not connected to MQTT broker")
	}

	token := p.internalClient.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(p.config.PublishTimeout) {
		if p.metrics != nil {
			p.metrics.RecordPublishError("timeout")
		}
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		if p.metrics != nil {
			p.metrics.RecordPublishError("broker")
		}
		return err
	}

	if p.metrics != nil {
		p.metrics.RecordMessagePublished(kind)
	}
	mqttLogger.Debug("Published event", "topic", topic, "bytes", len(payload))

	return nil
}

// IsConnected returns true if the publisher holds a live broker connection.
func (p *Publisher) IsConnected() bool {
	return p.internalClient != nil && p.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (p *Publisher) Disconnect() {
	if p.internalClient != nil && p.internalClient.IsConnected() {
		p.internalClient.Disconnect(uint(p.config.DisconnectTimeout.Milliseconds()))
		if p.metrics != nil {
			p.metrics.UpdateConnectionStatus(false)
		}
	}
	if p.reconnectTimer != nil {
		p.reconnectTimer.Stop()
	}
	close(p.reconnectStop)
}

func (p *Publisher) onConnect(client pahomqtt.Client) {
	mqttLogger.Info("Connected to MQTT broker", "broker", p.config.Broker)
	if p.metrics != nil {
		p.metrics.UpdateConnectionStatus(true)
	}
}

func (p *Publisher) onConnectionLost(client pahomqtt.Client, err error) {
	mqttLogger.Warn("Connection to MQTT broker lost", "broker", p.config.Broker, "error", err)
	if p.metrics != nil {
		p.metrics.UpdateConnectionStatus(false)
	}
	p.startReconnectTimer()
}

func (p *Publisher) startReconnectTimer() {
	p.reconnectTimer = time.AfterFunc(p.config.ReconnectDelay, func() {
		select {
		case <-p.reconnectStop:
			return
		default:
			p.reconnectWithBackoff()
		}
	})
}

func (p *Publisher) reconnectWithBackoff() {
	backoff := time.Second
	maxBackoff := 5 * time.Minute

	for {
		if p.metrics != nil {
			p.metrics.RecordReconnect()
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.config.ConnectTimeout)
		err := p.Connect(ctx)
		cancel()

		if err == nil {
			mqttLogger.Info("Reconnected to MQTT broker", "broker", p.config.Broker)
			return
		}

		mqttLogger.Warn("Failed to reconnect to MQTT broker",
			"broker", p.config.Broker,
			"error", err,
			"retry_in", backoff)

		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		case <-p.reconnectStop:
			return
		}
	}
}
