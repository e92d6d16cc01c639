// Package publisher pushes KPI snapshots to an MQTT broker so home
// automation dashboards can show them.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultTopicPrefix = "recargas"
	publishTimeout     = 5 * time.Second
)

// Config configures the broker connection.
type Config struct {
	Broker      string // host:port or a full tcp:// URL
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Publisher publishes retained JSON snapshots on <prefix>/<username>/kpis.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
}

func New(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("MQTT broker address is required")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg.Broker))
	if cfg.ClientID == "" {
		cfg.ClientID = "recargas"
	}
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}
	return newPublisher(client, cfg.TopicPrefix), nil
}

func newPublisher(client mqtt.Client, prefix string) *Publisher {
	prefix = strings.Trim(prefix, "/ ")
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	return &Publisher{client: client, topicPrefix: prefix}
}

// Topic returns the KPI topic of a user.
func (p *Publisher) Topic(username string) string {
	return fmt.Sprintf("%s/%s/kpis", p.topicPrefix, username)
}

// PublishKPIs marshals payload and publishes it retained with QoS 1.
func (p *Publisher) PublishKPIs(ctx context.Context, username string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	topic := p.Topic(username)
	token := p.client.Publish(topic, 1, true, body)

	wait := publishTimeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < wait {
		wait = time.Until(dl)
	}
	if !token.WaitTimeout(wait) {
		return fmt.Errorf("publish %s: timed out after %s", topic, wait)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	slog.DebugContext(ctx, "Published KPIs", "topic", topic, "bytes", len(body))
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}
