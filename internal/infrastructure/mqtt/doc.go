// Package mqtt provides MQTT client connectivity for the Naboom ingestion service.
//
// This package manages:
//   - Single connect attempts over TCP, TLS, or WebSocket transports
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The Naboom platform uses MQTT as the event bus between the community
// portal, the panic/emergency services, and this ingestion service. The
// broker (Mosquitto) decouples the portal from its consumers.
//
//	Portal & mobile apps ↔ MQTT Broker ↔ Naboom ingestion service
//
// Reconnection is intentionally NOT handled here. The connection manager in
// internal/ingest owns the retry loop so that retries can be counted in the
// health store, backed off exponentially, and capped.
//
// # Security Considerations
//
//   - TLS is required for production deployments (broker.tls=true)
//   - Certificate verification is on by default; tls.insecure opts out for
//     self-signed broker certificates in development only
//   - Credentials are validated against broker ACL
//
// # Usage
//
//	client, err := mqtt.Connect(cfg)
//	if err != nil {
//	    // one attempt failed; caller decides whether to retry
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCommunity(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
