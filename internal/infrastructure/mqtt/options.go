package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/naboomcommunity/mqtt-core/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for a connect attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// brokerURL builds the broker URL for the configured transport.
//
// Four transport combinations are supported:
//   - tcp://host:port          plain TCP
//   - ssl://host:tls_port      TCP with TLS
//   - ws://host:port/path      WebSocket
//   - wss://host:tls_port/path WebSocket with TLS
func brokerURL(cfg config.Config) string {
	host := cfg.Broker.Host
	port := cfg.BrokerPort()

	if cfg.Broker.Websocket {
		scheme := "ws"
		if cfg.Broker.TLS {
			scheme = "wss"
		}
		return fmt.Sprintf("%s://%s:%d%s", scheme, host, port, cfg.Broker.WebsocketPath)
	}

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// buildClientOptions creates paho MQTT options from service config.
//
// This configures:
//   - Broker URL (transport scheme from TLS/WebSocket settings)
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - Keepalive interval
//   - TLS trust configuration (if enabled)
//   - Clean session mode
//
// Automatic reconnection is deliberately disabled: the connection manager
// owns the retry loop so that retries are counted, backed off, and capped.
func buildClientOptions(cfg config.Config) (*pahomqtt.ClientOptions, error) {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Clean session - start fresh on connect (no persistent session on broker)
	opts.SetCleanSession(true)

	// The service retry loop decides when to reconnect.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(time.Duration(cfg.Broker.Keepalive) * time.Second)

	// Inbound messages are delivered to handlers in publish order.
	opts.SetOrderMatters(true)

	if cfg.Broker.TLS {
		tlsConfig, err := buildTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return opts, nil
}

// buildTLSConfig creates the TLS configuration for the broker connection.
//
// Certificate verification is on by default. A CA bundle may be supplied for
// private CAs; Insecure skips verification entirely for self-signed broker
// certificates in non-production deployments.
func buildTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tlsMinVersion,
	}

	if cfg.Insecure {
		tlsConfig.InsecureSkipVerify = true //nolint:gosec // Explicit opt-in for self-signed brokers
		return tlsConfig, nil
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: reading CA file: %w", ErrTLSConfig, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: no certificates found in %s", ErrTLSConfig, cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The LWT message is published by the broker if the client disconnects
// unexpectedly (crash, network failure, etc.). This lets the rest of the
// platform detect when the ingestion service goes offline.
//
// Topic: naboom/system/status
// QoS: 1 (guaranteed delivery)
// Retained: true (new subscribers see last status)
//
// The will is registered at connect time but fired by the broker at
// some later point, so the payload carries no timestamp; consumers
// read the broker's delivery time instead.
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	willTopic := Topics{}.SystemStatus()
	willPayload := fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"unexpected_disconnect"}`,
		clientID,
	)

	opts.SetWill(willTopic, willPayload, 1, true)
}

// buildOnlinePayload creates the JSON payload for online status messages.
func buildOnlinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"online","client_id":"%s","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// buildOfflinePayload creates the JSON payload for graceful offline status.
func buildOfflinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"graceful_shutdown","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}
