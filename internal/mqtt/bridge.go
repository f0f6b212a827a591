// Package mqtt mirrors published snapshots to an MQTT broker as
// retained per-device state topics.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/joshp123/kumocloud/internal/config"
	"github.com/joshp123/kumocloud/internal/coordinator"
)

const publishTimeout = 5 * time.Second

// Bridge publishes device state to <prefix>/<site>/<serial>/state.
type Bridge struct {
	client paho.Client
	prefix string
	siteID string
	log    zerolog.Logger
}

func Connect(cfg *config.MQTTConfig, siteID string, logger zerolog.Logger) (*Bridge, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "kumocloudd"
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return nil, fmt.Errorf("connect to %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}

	return &Bridge{
		client: client,
		prefix: cfg.Topic,
		siteID: siteID,
		log:    logger.With().Str("component", "mqtt").Logger(),
	}, nil
}

// Attach subscribes the bridge to coordinator snapshots. The returned
// func detaches it again.
func (b *Bridge) Attach(coord *coordinator.Coordinator) func() {
	return coord.Subscribe(b.PublishSnapshot)
}

// PublishSnapshot writes one retained state message per device.
// Publish failures are logged and counted, never propagated; the next
// snapshot retries anyway.
func (b *Bridge) PublishSnapshot(snap *coordinator.Snapshot) {
	for serial, detail := range snap.Devices {
		payload, err := json.Marshal(detail)
		if err != nil {
			b.log.Error().Err(err).Str("serial", serial).Msg("marshal device state")
			continue
		}
		topic := fmt.Sprintf("%s/%s/%s/state", b.prefix, b.siteID, serial)
		token := b.client.Publish(topic, 0, true, payload)
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			publishFailures.Inc()
			b.log.Warn().Err(token.Error()).Str("topic", topic).Msg("publish failed")
			continue
		}
		publishes.Inc()
	}
}

func (b *Bridge) Close() {
	b.client.Disconnect(250)
}
