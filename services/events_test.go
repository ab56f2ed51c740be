package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeToken struct {
	err      error
	timesOut bool
}

func (t *fakeToken) Wait() bool                     { return !t.timesOut }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timesOut }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type publishedMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeMQTTClient records publishes. Methods the publisher never calls
// panic through the nil embedded interface.
type fakeMQTTClient struct {
	mqtt.Client

	mu           sync.Mutex
	published    []publishedMessage
	token        *fakeToken
	disconnected bool
}

func (c *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publishedMessage{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	if c.token != nil {
		return c.token
	}
	return &fakeToken{}
}

func (c *fakeMQTTClient) Disconnect(quiesce uint) {
	c.disconnected = true
}

func TestMQTTPublisher_Publish(t *testing.T) {
	client := &fakeMQTTClient{}
	publisher := &MQTTPublisher{client: client, prefix: "zaptec-invoices", logger: zap.NewNop()}

	publisher.Publish(context.Background(), EventInvoiceGenerated, map[string]any{"invoice_number": 52, "owner_id": "60996"})

	require.Len(t, client.published, 1)
	msg := client.published[0]
	assert.Equal(t, "zaptec-invoices/invoice.generated", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.False(t, msg.retained)

	var envelope struct {
		Event      string         `json:"event"`
		OccurredAt time.Time      `json:"occurred_at"`
		Data       map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.payload, &envelope))
	assert.Equal(t, EventInvoiceGenerated, envelope.Event)
	assert.False(t, envelope.OccurredAt.IsZero())
	assert.Equal(t, "60996", envelope.Data["owner_id"])
	assert.EqualValues(t, 52, envelope.Data["invoice_number"])

	publisher.Close()
	assert.True(t, client.disconnected)
}

func TestMQTTPublisher_FailuresAreLogged(t *testing.T) {
	tests := []struct {
		name    string
		token   *fakeToken
		message string
	}{
		{"broker error", &fakeToken{err: errors.New("not connected")}, "failed to publish event"},
		{"timeout", &fakeToken{timesOut: true}, "timed out publishing event"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			client := &fakeMQTTClient{token: tt.token}
			publisher := &MQTTPublisher{client: client, prefix: "zaptec-invoices", logger: zap.New(core)}

			publisher.Publish(context.Background(), EventSyncCompleted, map[string]int{"records_inserted": 3})

			require.Len(t, client.published, 1)
			entries := logs.FilterMessage(tt.message).All()
			require.Len(t, entries, 1)
			assert.Equal(t, "zaptec-invoices/sync.completed", entries[0].ContextMap()["topic"])
		})
	}
}

func TestMQTTPublisher_UnencodablePayload(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	client := &fakeMQTTClient{}
	publisher := &MQTTPublisher{client: client, prefix: "zaptec-invoices", logger: zap.New(core)}

	publisher.Publish(context.Background(), EventSyncCompleted, func() {})

	assert.Empty(t, client.published)
	assert.Equal(t, 1, logs.FilterMessage("failed to encode event").Len())
}
