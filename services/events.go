package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/RobNhz/zaptec-invoice-app/config"
)

const (
	EventSyncCompleted    = "sync.completed"
	EventInvoiceGenerated = "invoice.generated"
)

// EventPublisher announces finished work. Publishing never fails the caller.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload any)
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) {}

type eventEnvelope struct {
	Event      string    `json:"event"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// MQTTPublisher sends events as JSON to <prefix>/<event>.
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	logger *zap.Logger
}

func NewMQTTPublisher(cfg config.MQTT, logger *zap.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(fmt.Sprintf("zaptec-invoices-%d", time.Now().UnixNano()))
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetWriteTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.String("broker", cfg.Broker), zap.Error(err))
	})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("timed out connecting to mqtt broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: %w", cfg.Broker, err)
	}

	logger.Info("connected to mqtt broker", zap.String("broker", cfg.Broker))
	return &MQTTPublisher{client: client, prefix: cfg.TopicPrefix, logger: logger}, nil
}

func (p *MQTTPublisher) Publish(ctx context.Context, event string, payload any) {
	data, err := json.Marshal(eventEnvelope{Event: event, OccurredAt: time.Now().UTC(), Data: payload})
	if err != nil {
		p.logger.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}

	topic := p.prefix + "/" + event
	token := p.client.Publish(topic, 1, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		p.logger.Warn("timed out publishing event", zap.String("topic", topic))
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Warn("failed to publish event", zap.String("topic", topic), zap.Error(err))
	}
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
