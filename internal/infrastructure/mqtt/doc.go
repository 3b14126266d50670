// Package mqtt provides MQTT client connectivity for mqttinspect.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Optional presence with a Last Will and Testament
//
// Each connection gets a unique client id (configured prefix plus a random
// suffix), so several operators can inspect the same broker at once.
//
// # Security Considerations
//
//   - Use TLS (cfg.Broker.TLS=true) for brokers outside localhost
//   - Credentials are validated against the broker ACL
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("sensors/#", 0, func(d mqtt.Delivery) error {
//	    log.Printf("%s = %s (retained=%v)", d.Topic, d.Payload, d.Retained)
//	    return nil
//	})
//
//	client.Publish("sensors/kitchen/temperature", []byte(`{"value":21.5}`), 1, false)
package mqtt
