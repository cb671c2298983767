package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/naboomcommunity/mqtt-core/internal/infrastructure/config"
	"github.com/naboomcommunity/mqtt-core/internal/infrastructure/logging"
	"github.com/naboomcommunity/mqtt-core/internal/infrastructure/mqtt"

	"github.com/naboomcommunity/mqtt-core/internal/health"
)

// ErrRetriesExhausted is returned by Run when the connect-retry cap is
// reached. The process is expected to exit non-zero and let its
// supervisor restart it.
var ErrRetriesExhausted = errors.New("ingest: connect retries exhausted")

// brokerClient is the slice of mqtt.Client the connection manager
// drives. Narrowed to an interface so tests can connect a fake broker.
type brokerClient interface {
	Publisher
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	SubscribedTopics() []string
	SetOnDisconnect(callback func(err error))
	SetLogger(logger mqtt.Logger)
	Close() error
}

// broker connection factory, swappable in tests
type connectFunc func(cfg config.Config) (brokerClient, error)

func connectBroker(cfg config.Config) (brokerClient, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Service owns the broker connection lifecycle: connect with bounded
// exponential backoff, subscribe the fixed topic set, hand inbound
// messages to the dispatcher, and reconnect when the broker drops us.
//
// The client handle never leaves this type; handlers publish replies
// through the dispatcher's transient Publisher only.
type Service struct {
	cfg        config.Config
	health     *health.State
	dispatcher *Dispatcher
	log        *logging.Logger

	connect    connectFunc
	connLost   chan error
	client     brokerClient
	onShutdown func()
}

// NewService wires a connection manager around the shared health store
// and dispatcher.
func NewService(cfg config.Config, state *health.State, dispatcher *Dispatcher, log *logging.Logger) *Service {
	return &Service{
		cfg:        cfg,
		health:     state,
		dispatcher: dispatcher,
		log:        log,
		connect:    connectBroker,
		connLost:   make(chan error, 1),
	}
}

// OnShutdown registers a hook that Run invokes on clean shutdown while
// the broker connection is still up. Used to flush a final health
// report before the client goes away.
func (s *Service) OnShutdown(fn func()) {
	s.onShutdown = fn
}

// Run connects and consumes until ctx is cancelled or the retry cap is
// exhausted. Each unexpected disconnect restarts the backoff sequence
// from its initial delay, because a successful connect resets it.
func (s *Service) Run(ctx context.Context) error {
	for {
		if err := s.connectWithBackoff(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			if s.onShutdown != nil {
				s.onShutdown()
			}
			s.shutdown()
			return nil

		case err := <-s.connLost:
			s.health.RecordConnection(false)
			s.health.RecordError(fmt.Sprintf("connection lost: %v", err))
			s.log.Warn("broker connection lost, reconnecting", "error", err)
			s.teardownClient()
		}
	}
}

// connectWithBackoff attempts to connect until success or the attempt
// cap. Backoff starts at the configured initial delay and doubles to
// the cap; the sleep aborts promptly on ctx cancellation.
func (s *Service) connectWithBackoff(ctx context.Context) error {
	delay := time.Duration(s.cfg.Reconnect.InitialDelay) * time.Second
	maxDelay := time.Duration(s.cfg.Reconnect.MaxDelay) * time.Second

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return nil // treated as clean shutdown by Run's caller
		}

		client, err := s.connect(s.cfg)
		if err == nil {
			err = s.establish(client)
			if err == nil {
				s.log.Info("connected to broker",
					"host", s.cfg.Broker.Host,
					"port", s.cfg.BrokerPort(),
					"attempt", attempt)
				return nil
			}
			client.Close()
		}
		s.health.RecordError(err.Error())

		s.health.RecordRetry()
		s.log.Warn("connect attempt failed",
			"attempt", attempt,
			"max_attempts", s.cfg.Reconnect.MaxAttempts,
			"retry_in", delay.String())

		if s.cfg.Reconnect.MaxAttempts > 0 && attempt >= s.cfg.Reconnect.MaxAttempts {
			return fmt.Errorf("%w: %d attempts", ErrRetriesExhausted, attempt)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// establish subscribes the fixed topic set and publishes the connection
// into the health store and dispatcher. A subscribe failure tears the
// client down and counts as a failed attempt.
func (s *Service) establish(client brokerClient) error {
	client.SetLogger(s.log)
	client.SetOnDisconnect(func(err error) {
		select {
		case s.connLost <- err:
		default: // a reconnect is already pending
		}
	})

	for _, topic := range mqtt.SubscriptionSet() {
		if err := client.Subscribe(topic, byte(s.cfg.QoS), s.dispatcher.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}

	s.client = client
	s.dispatcher.SetPublisher(client)
	s.health.RecordConnection(true)
	s.health.SetSubscribedTopics(client.SubscribedTopics())
	return nil
}

// shutdown disconnects cleanly. The offline status message is published
// by the client's Close.
func (s *Service) shutdown() {
	s.log.Info("shutting down broker connection")
	s.health.RecordConnection(false)
	s.teardownClient()
}

func (s *Service) teardownClient() {
	if s.client == nil {
		return
	}
	s.dispatcher.SetPublisher(nil)
	if err := s.client.Close(); err != nil {
		s.log.Warn("client close", "error", err)
	}
	s.client = nil
}
