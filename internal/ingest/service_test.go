package ingest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/naboomcommunity/mqtt-core/internal/health"
	"github.com/naboomcommunity/mqtt-core/internal/infrastructure/config"
	"github.com/naboomcommunity/mqtt-core/internal/infrastructure/mqtt"
)

// mockBroker is an in-process stand-in for a connected mqtt client so
// the connect/subscribe/reconnect paths run without a broker.
type mockBroker struct {
	mu           sync.Mutex
	subs         map[string]byte
	calls        []publishCall
	onDisconnect func(err error)
	connected    bool
	subErr       error
	closed       bool
}

func newMockBroker() *mockBroker {
	return &mockBroker{subs: make(map[string]byte), connected: true}
}

func (b *mockBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, publishCall{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (b *mockBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *mockBroker) Subscribe(topic string, qos byte, _ mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subErr != nil {
		return b.subErr
	}
	b.subs[topic] = qos
	return nil
}

func (b *mockBroker) SubscribedTopics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	topics := make([]string, 0, len(b.subs))
	for topic := range b.subs {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

func (b *mockBroker) SetOnDisconnect(callback func(err error)) {
	b.mu.Lock()
	b.onDisconnect = callback
	b.mu.Unlock()
}

func (b *mockBroker) SetLogger(mqtt.Logger) {}

func (b *mockBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	b.closed = true
	return nil
}

// dropConnection simulates the broker going away mid-session.
func (b *mockBroker) dropConnection(err error) {
	b.mu.Lock()
	b.connected = false
	callback := b.onDisconnect
	b.mu.Unlock()
	if callback != nil {
		callback(err)
	}
}

func (b *mockBroker) published() []publishCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]publishCall(nil), b.calls...)
}

func (b *mockBroker) subscriptionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *mockBroker) wasClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func newTestService(maxAttempts int) (*Service, *health.State) {
	cfg := config.Config{
		Broker: config.BrokerConfig{Host: "localhost", Port: 1883, ClientID: "test"},
		QoS:    1,
		Reconnect: config.ReconnectConfig{
			InitialDelay: 0, // no sleeping in tests
			MaxDelay:     0,
			MaxAttempts:  maxAttempts,
		},
	}

	state := health.NewState(health.ConnectionInfo{BrokerHost: "localhost", BrokerPort: 1883})
	d := NewDispatcher(state, testLogger(), 1)
	return NewService(cfg, state, d, testLogger()), state
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestService_ConnectSubscribesFixedTopicSet(t *testing.T) {
	svc, state := newTestService(1)
	broker := newMockBroker()
	svc.connect = func(config.Config) (brokerClient, error) { return broker, nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	waitFor(t, func() bool { return state.Snapshot().Connected }, "service never reported connected")

	want := append([]string(nil), mqtt.SubscriptionSet()...)
	sort.Strings(want)

	snap := state.Snapshot()
	if len(snap.SubscribedTopics) != len(want) {
		t.Fatalf("SubscribedTopics = %v, want %v", snap.SubscribedTopics, want)
	}
	for i := range want {
		if snap.SubscribedTopics[i] != want[i] {
			t.Errorf("SubscribedTopics[%d] = %q, want %q", i, snap.SubscribedTopics[i], want[i])
		}
	}
	if snap.ConnectionRetries != 0 {
		t.Errorf("ConnectionRetries = %d, want 0 on first-try connect", snap.ConnectionRetries)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() = %v, want nil on cancellation", err)
	}
	if !broker.wasClosed() {
		t.Error("broker client not closed on shutdown")
	}
	if state.Snapshot().Connected {
		t.Error("Connected should be false after shutdown")
	}
}

func TestService_SubscribeFailureCountsAsRetry(t *testing.T) {
	svc, state := newTestService(0)
	bad := newMockBroker()
	bad.subErr = errors.New("subscribe denied")
	good := newMockBroker()

	var attempts int
	svc.connect = func(config.Config) (brokerClient, error) {
		attempts++
		if attempts == 1 {
			return bad, nil
		}
		return good, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	waitFor(t, func() bool { return state.Snapshot().Connected }, "service never recovered from subscribe failure")

	if !bad.wasClosed() {
		t.Error("client with failed subscription must be torn down")
	}
	if got := good.subscriptionCount(); got != len(mqtt.SubscriptionSet()) {
		t.Errorf("second client has %d subscriptions, want %d", got, len(mqtt.SubscriptionSet()))
	}
	if snap := state.Snapshot(); snap.ConnectionRetries != 1 {
		t.Errorf("ConnectionRetries = %d, want 1", snap.ConnectionRetries)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() = %v, want nil on cancellation", err)
	}
}

func TestService_ReconnectsAfterConnectionLost(t *testing.T) {
	svc, state := newTestService(0)
	first := newMockBroker()
	second := newMockBroker()

	var attempts int
	svc.connect = func(config.Config) (brokerClient, error) {
		attempts++
		if attempts == 1 {
			return first, nil
		}
		return second, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	waitFor(t, func() bool {
		return first.subscriptionCount() == len(mqtt.SubscriptionSet()) && state.Snapshot().Connected
	}, "first connection never established")

	first.dropConnection(errors.New("broker restart"))

	waitFor(t, func() bool {
		return second.subscriptionCount() == len(mqtt.SubscriptionSet()) && state.Snapshot().Connected
	}, "service never reconnected after connection loss")

	if !first.wasClosed() {
		t.Error("lost client not torn down before reconnect")
	}
	if snap := state.Snapshot(); snap.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1 for the connection loss", snap.ErrorCount)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() = %v, want nil on cancellation", err)
	}
}

func TestService_ShutdownHookPublishesFinalReport(t *testing.T) {
	svc, state := newTestService(1)
	broker := newMockBroker()
	svc.connect = func(config.Config) (brokerClient, error) { return broker, nil }

	// Interval long enough that only the final publish can fire.
	reporter := NewReporter(svc.dispatcher, state, time.Hour, nil, testLogger())
	svc.OnShutdown(reporter.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	reporter.Start(ctx)

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	waitFor(t, func() bool { return state.Snapshot().Connected }, "service never reported connected")

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() = %v, want nil on cancellation", err)
	}

	var healthReplies int
	for _, call := range broker.published() {
		if call.topic == "naboom/system/health" {
			healthReplies++
		}
	}
	if healthReplies != 1 {
		t.Errorf("final health replies = %d, want exactly 1 before teardown", healthReplies)
	}
	if snap := state.Snapshot(); snap.ErrorCount != 0 {
		t.Errorf("ErrorCount = %d, want 0 for a clean shutdown", snap.ErrorCount)
	}
}

func TestService_RetriesExhausted(t *testing.T) {
	svc, state := newTestService(3)

	var attempts int
	svc.connect = func(config.Config) (brokerClient, error) {
		attempts++
		return nil, errors.New("connection refused")
	}

	err := svc.Run(context.Background())
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Run() error = %v, want ErrRetriesExhausted", err)
	}
	if attempts != 3 {
		t.Errorf("connect attempts = %d, want 3", attempts)
	}

	snap := state.Snapshot()
	if snap.ConnectionRetries != 3 {
		t.Errorf("ConnectionRetries = %d, want 3", snap.ConnectionRetries)
	}
	if snap.ErrorCount != 3 {
		t.Errorf("ErrorCount = %d, want 3", snap.ErrorCount)
	}
	if snap.LastError == "" {
		t.Error("LastError should carry the connect failure")
	}
	if snap.Connected {
		t.Error("Connected should remain false")
	}
}

func TestService_BackoffDelayDoublesToCap(t *testing.T) {
	svc, _ := newTestService(5)
	svc.cfg.Reconnect.InitialDelay = 1
	svc.cfg.Reconnect.MaxDelay = 4

	// Drive the doubling arithmetic directly rather than sleeping
	// through real backoff.
	delay := time.Duration(svc.cfg.Reconnect.InitialDelay) * time.Second
	maxDelay := time.Duration(svc.cfg.Reconnect.MaxDelay) * time.Second

	var observed []time.Duration
	for i := 0; i < 5; i++ {
		observed = append(observed, delay)
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}

	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second}
	for i := range want {
		if observed[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, observed[i], want[i])
		}
	}
}

func TestService_CancelDuringBackoff(t *testing.T) {
	svc, _ := newTestService(0) // unbounded retries
	svc.cfg.Reconnect.InitialDelay = 1
	svc.cfg.Reconnect.MaxDelay = 60

	svc.connect = func(config.Config) (brokerClient, error) {
		return nil, errors.New("connection refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	if err := svc.Run(ctx); err != nil {
		t.Fatalf("Run() after cancel = %v, want nil", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("shutdown took %v, backoff sleep not interrupted", elapsed)
	}
}

func TestService_CancelledContextIsCleanShutdown(t *testing.T) {
	svc, state := newTestService(3)
	svc.connect = func(config.Config) (brokerClient, error) {
		t.Fatal("connect must not be called with a cancelled context")
		return nil, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Run(ctx); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}
	if snap := state.Snapshot(); snap.ConnectionRetries != 0 {
		t.Errorf("ConnectionRetries = %d, want 0", snap.ConnectionRetries)
	}
}

func TestService_UnboundedRetriesKeepGoing(t *testing.T) {
	svc, state := newTestService(0)

	var attempts int
	ctx, cancel := context.WithCancel(context.Background())
	svc.connect = func(config.Config) (brokerClient, error) {
		attempts++
		if attempts >= 20 {
			cancel()
		}
		return nil, errors.New("connection refused")
	}

	if err := svc.Run(ctx); err != nil {
		t.Fatalf("Run() = %v, want nil on cancellation", err)
	}
	if attempts < 20 {
		t.Errorf("attempts = %d, want at least 20 with no cap", attempts)
	}
	if snap := state.Snapshot(); snap.ConnectionRetries < 20 {
		t.Errorf("ConnectionRetries = %d, want >= 20", snap.ConnectionRetries)
	}
}
