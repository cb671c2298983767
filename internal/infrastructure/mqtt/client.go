package mqtt

import (
	"fmt"
	"sort"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/naboomcommunity/mqtt-core/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for the Naboom ingestion service.
//
// One call to Connect is one attempt against the configured transport
// (TCP, TLS, WebSocket); reconnection policy lives in the connection
// manager so it can count attempts, back off, and cap retries.
//
// All methods are safe for concurrent use.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.Config

	// subscriptions tracks active topics, reported through SubscribedTopics.
	subscriptions map[string]struct{}
	subMu         sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	// pendingDisconnect buffers a connection-lost error that arrived
	// before SetOnDisconnect registered a callback, so the event is
	// replayed instead of dropped.
	onDisconnect      func(err error)
	pendingDisconnect error
	callbackMu        sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the logging surface the client needs. Satisfied by
// logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
// Handlers run on paho's router goroutine and should not block for
// extended periods. A returned error is logged but does not affect
// message acknowledgment.
type MessageHandler func(topic string, payload []byte) error

// Connect makes a single connection attempt against the configured
// broker. The session registers a retained Last Will so the broker
// announces an unexpected drop, and publishes online status once the
// connection is up.
func Connect(cfg config.Config) (*Client, error) {
	opts, err := buildClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	configureLWT(opts, cfg.Broker.ClientID)

	c := &Client{
		cfg:           cfg,
		options:       opts,
		subscriptions: make(map[string]struct{}),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler runs asynchronously and may not have fired
	// yet; mark connected here so IsConnected is true on return.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return c, nil
}

func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.publishOnlineStatus()
}

// handleDisconnect delivers the connection-lost error to the registered
// callback. A loss that races callback registration is buffered and
// replayed by SetOnDisconnect rather than dropped.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.callbackMu.Lock()
	callback := c.onDisconnect
	if callback == nil {
		c.pendingDisconnect = err
		c.callbackMu.Unlock()
		return
	}
	c.callbackMu.Unlock()

	callback(err)
}

// publishOnlineStatus announces the service on the retained status topic.
func (c *Client) publishOnlineStatus() {
	topic := Topics{}.SystemStatus()
	payload := buildOnlinePayload(c.cfg.Broker.ClientID)
	c.client.Publish(topic, byte(c.cfg.QoS), true, payload)
}

// SubscribedTopics returns the tracked subscription topics in sorted order.
func (c *Client) SubscribedTopics() []string {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	topics := make([]string, 0, len(c.subscriptions))
	for topic := range c.subscriptions {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Close publishes a graceful offline status (distinct from the LWT
// crash status) and disconnects, leaving a quiesce window for pending
// operations. Closing an already-closed client is not an error.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		topic := Topics{}.SystemStatus()
		payload := buildOfflinePayload(c.cfg.Broker.ClientID)
		token := c.client.Publish(topic, byte(c.cfg.QoS), true, payload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetOnDisconnect registers a callback for connection loss. If the
// connection was already lost before registration, the callback is
// invoked immediately with the buffered error.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	pending := c.pendingDisconnect
	c.pendingDisconnect = nil
	c.callbackMu.Unlock()

	if pending != nil && callback != nil {
		callback(pending)
	}
}

// SetLogger sets a logger for error and panic logging. If not set,
// handler errors are silently dropped.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler adds panic recovery and error logging around a handler.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
