package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gifttrack/gifttrack-go/internal/conf"
	"github.com/gifttrack/gifttrack-go/internal/datastore"
)

func testPublisher(t *testing.T) *Publisher {
	t.Helper()

	settings := &conf.Settings{}
	settings.Main.Name = "gifttrack-test"
	settings.Realtime.MQTT.Enabled = true
	settings.Realtime.MQTT.Broker = "tcp://127.0.0.1:1883"
	settings.Realtime.MQTT.Topic = "gifttrack/test"

	publisher, err := NewPublisher(settings, nil)
	require.NoError(t, err)
	return publisher
}

func TestNewPublisherRequiresBroker(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	_, err := NewPublisher(settings, nil)
	assert.Error(t, err)
}

func TestNewPublisherDefaults(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Main.Name = "node"
	settings.Realtime.MQTT.Broker = "tcp://broker.local:1883"

	publisher, err := NewPublisher(settings, nil)
	require.NoError(t, err)

	assert.Equal(t, "gifttrack", publisher.config.TopicPrefix, "topic prefix falls back to the app default")
	assert.Equal(t, "node", publisher.config.ClientID)
	assert.Equal(t, 30*time.Second, publisher.config.ConnectTimeout)
}

func TestPublishWhileDisconnected(t *testing.T) {
	t.Parallel()
	publisher := testPublisher(t)

	entry := &datastore.GiftHistory{
		GiftID:         "DurovsCap",
		RemainingCount: 90,
		TotalCount:     100,
		Delta:          10,
		Timestamp:      time.Now().UTC(),
	}

	err := publisher.PublishDelta(context.Background(), entry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestConnectCooldown(t *testing.T) {
	t.Parallel()
	publisher := testPublisher(t)

	publisher.lastConnAttempt = time.Now()

	err := publisher.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too recent")
}

func TestConnectRejectsInvalidBrokerURL(t *testing.T) {
	t.Parallel()
	publisher := testPublisher(t)
	publisher.config.Broker = "://not-a-url"

	err := publisher.Connect(context.Background())
	assert.Error(t, err)
}

func TestDeltaEventPayload(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	event := DeltaEvent{
		GiftID:         "DurovsCap",
		RemainingCount: 90,
		TotalCount:     100,
		Delta:          10,
		Timestamp:      ts,
	}

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "DurovsCap", decoded["gift_id"])
	assert.EqualValues(t, 10, decoded["delta"])
	assert.Contains(t, string(payload), "2025-06-01T12:00:00Z")
}
