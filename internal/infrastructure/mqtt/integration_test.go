//go:build integration

package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/mqtt-inspect/internal/infrastructure/config"
)

// Integration tests against a live broker.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "mqttinspect-it",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestIntegration_ConnectAndClose(t *testing.T) {
	client, err := Connect(integrationConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestIntegration_BrokerRefused(t *testing.T) {
	cfg := integrationConfig()
	cfg.Broker.Port = 19998

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	client, err := Connect(integrationConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topics := []string{"mqttinspect/it/a", "mqttinspect/it/+", "mqttinspect/it/#"}
	handler := func(Delivery) error { return nil }

	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if client.SubscriptionCount() != len(topics) {
		t.Errorf("SubscriptionCount() = %d, want %d", client.SubscriptionCount(), len(topics))
	}

	if err := client.Unsubscribe(topics[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(topics[0]) {
		t.Errorf("HasSubscription(%s) = true after unsubscribe", topics[0])
	}
}

func TestIntegration_MessageRoundtrip(t *testing.T) {
	pubClient, err := Connect(integrationConfig())
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pubClient.Close()

	subClient, err := Connect(integrationConfig())
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer subClient.Close()

	if pubClient.ClientID() == subClient.ClientID() {
		t.Fatalf("two clients share id %q", pubClient.ClientID())
	}

	topic := "mqttinspect/it/roundtrip"
	expected := `{"value":21.5}`

	received := make(chan Delivery, 1)
	var once sync.Once

	err = subClient.Subscribe("mqttinspect/it/+", 1, func(d Delivery) error {
		once.Do(func() { received <- d })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pubClient.Publish(topic, []byte(expected), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case d := <-received:
		if d.Topic != topic || string(d.Payload) != expected {
			t.Errorf("Received %s = %q, want %s = %q", d.Topic, d.Payload, topic, expected)
		}
		if d.QoS != 1 {
			t.Errorf("Received QoS = %d, want 1", d.QoS)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for message")
	}
}

func TestIntegration_RetainedFlag(t *testing.T) {
	client, err := Connect(integrationConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topic := "mqttinspect/it/retained"
	if err := client.Publish(topic, []byte("kept"), 1, true); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	defer client.ClearRetained(topic) //nolint:errcheck // best-effort cleanup

	received := make(chan Delivery, 1)
	err = client.Subscribe(topic, 1, func(d Delivery) error {
		select {
		case received <- d:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case d := <-received:
		if !d.Retained {
			t.Error("Delivery.Retained = false for retained message")
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for retained message")
	}
}
