package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/naboomcommunity/mqtt-core/internal/health"
	"github.com/naboomcommunity/mqtt-core/internal/infrastructure/logging"
	"github.com/naboomcommunity/mqtt-core/internal/infrastructure/mqtt"
	"github.com/naboomcommunity/mqtt-core/internal/journal"
)

// Publisher is the transient reply surface handed to the dispatcher.
// Only the connection manager owns the underlying client; handlers
// publish through this and never retain it across messages.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// NotificationSink receives per-user notification payloads. The portal
// backend provides the real implementation; a logging stub is used when
// none is wired.
type NotificationSink interface {
	Deliver(userID string, payload map[string]any) error
}

// Recorder persists routed messages for audit. Satisfied by
// journal.Store; nil disables journaling.
type Recorder interface {
	Record(ctx context.Context, entry journal.Entry) error
}

// Telemetry receives per-message data points. Satisfied by the
// influxdb writer; nil disables telemetry.
type Telemetry interface {
	WriteMessagePoint(category, action string)
}

// Known community actions. Anything else is logged and skipped.
var communityActions = map[string]struct{}{
	"post":       {},
	"comment":    {},
	"user_join":  {},
	"user_leave": {},
	"reaction":   {},
	"update":     {},
}

// Known alert types. panic and emergency log at error severity.
var alertTypes = map[string]struct{}{
	"panic":     {},
	"emergency": {},
	"security":  {},
	"system":    {},
	"community": {},
}

// Dispatcher routes inbound broker messages to per-category handlers.
//
// Every inbound message and every successful reply publish increments
// the health store's processed counter. Decode
// failures and malformed topics are recorded as errors and dropped;
// unrecognized categories and actions are logged and dropped without an
// error, since they represent newer message shapes rather than faults.
type Dispatcher struct {
	health    *health.State
	log       *logging.Logger
	topics    mqtt.Topics
	qos       byte
	journal   Recorder
	telemetry Telemetry
	notifier  NotificationSink

	mu  sync.RWMutex
	pub Publisher

	now func() time.Time
}

// DispatcherOption configures optional dispatcher collaborators.
type DispatcherOption func(*Dispatcher)

// WithJournal enables the message audit journal.
func WithJournal(r Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.journal = r }
}

// WithTelemetry enables per-message telemetry points.
func WithTelemetry(t Telemetry) DispatcherOption {
	return func(d *Dispatcher) { d.telemetry = t }
}

// WithNotificationSink sets the per-user notification delivery target.
func WithNotificationSink(n NotificationSink) DispatcherOption {
	return func(d *Dispatcher) { d.notifier = n }
}

// NewDispatcher creates a dispatcher writing into the given health
// store. The publisher is attached later, once a connection exists.
func NewDispatcher(state *health.State, log *logging.Logger, qos byte, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		health: state,
		log:    log,
		qos:    qos,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetPublisher attaches the current connection's publish surface.
// Called by the connection manager on every successful connect.
func (d *Dispatcher) SetPublisher(pub Publisher) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pub = pub
}

func (d *Dispatcher) publisher() Publisher {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pub
}

// Handle processes one inbound message. It satisfies mqtt.MessageHandler
// and never returns an error or panics: every failure mode is recorded
// in the health store and the consume loop moves on.
func (d *Dispatcher) Handle(topic string, payload []byte) error {
	defer func() {
		if r := recover(); r != nil {
			d.health.RecordError(fmt.Sprintf("handler panic on %s: %v", topic, r))
			d.log.Error("handler panic recovered", "topic", topic, "panic", r)
		}
	}()

	d.health.RecordMessage()

	route, err := ParseRoute(topic)
	if err != nil {
		if errors.Is(err, ErrUnknownCategory) {
			d.log.Warn("unrecognized topic category", "topic", topic)
			return nil
		}
		d.health.RecordError(err.Error())
		d.log.Warn("dropping malformed topic", "topic", topic, "error", err)
		return nil
	}

	decoded, err := decodePayload(payload)
	if err != nil {
		d.health.RecordError(fmt.Sprintf("invalid JSON on %s: %v", topic, err))
		d.log.Warn("dropping undecodable payload", "topic", topic, "error", err)
		return nil
	}

	switch route.Category {
	case CategoryCommunity:
		d.handleCommunity(route, payload, decoded)
	case CategorySystem:
		d.handleSystem(route)
	case CategoryNotifications:
		d.handleNotification(route, payload, decoded)
	case CategoryAlerts:
		d.handleAlert(route, payload, decoded)
	case CategoryHealth:
		d.handleServiceHealth(route, payload)
	case CategoryUnknown:
		// ParseRoute never returns this without an error.
	}

	return nil
}

// decodePayload parses the message body as a JSON object. An empty
// body is the empty object.
func decodePayload(payload []byte) (map[string]any, error) {
	if len(payload) == 0 {
		return map[string]any{}, nil
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, err
	}
	if decoded == nil {
		decoded = map[string]any{}
	}
	return decoded, nil
}

func (d *Dispatcher) handleCommunity(route Route, raw []byte, decoded map[string]any) {
	channelID := route.Segments[0]
	action := route.Segments[1]

	if _, known := communityActions[action]; !known {
		d.log.Warn("unknown community action", "channel", channelID, "action", action)
		return
	}

	d.log.Info("community message", "channel", channelID, "action", action, "fields", len(decoded))
	d.record(route, channelID, action, raw)
}

func (d *Dispatcher) handleSystem(route Route) {
	action := route.Segments[0]

	switch action {
	case "status":
		d.log.Info("peer status message", "segments", route.Segments)
	case "health_check":
		d.publishHealth()
	case "metrics_request":
		d.publishMetrics()
	case "metrics":
		// Our own metrics replies echo back through the broker when a
		// subscriber overlaps naboom/system/#; nothing to do.
		d.log.Debug("metrics message observed")
	default:
		d.log.Warn("unknown system action", "action", action)
	}
}

func (d *Dispatcher) handleNotification(route Route, raw []byte, decoded map[string]any) {
	userID := route.Segments[0]

	if d.notifier != nil {
		if err := d.notifier.Deliver(userID, decoded); err != nil {
			d.health.RecordError(fmt.Sprintf("notification delivery for %s: %v", userID, err))
			d.log.Warn("notification delivery failed", "user_id", userID, "error", err)
		}
	} else {
		d.log.Info("notification received", "user_id", userID)
	}

	d.record(route, userID, "notify", raw)
}

func (d *Dispatcher) handleAlert(route Route, raw []byte, decoded map[string]any) {
	alertType := route.Segments[0]

	if _, known := alertTypes[alertType]; !known {
		d.log.Warn("unknown alert type", "alert_type", alertType)
		return
	}

	// panic and emergency alerts represent real-world urgency and must
	// stand out from routine traffic.
	switch alertType {
	case "panic", "emergency":
		d.log.Error("EMERGENCY ALERT", "alert_type", alertType, "fields", len(decoded))
	default:
		d.log.Warn("alert received", "alert_type", alertType)
	}

	d.record(route, alertType, "alert", raw)
}

func (d *Dispatcher) handleServiceHealth(route Route, raw []byte) {
	service := route.Segments[0]
	d.log.Debug("service health report", "service", service)
	d.record(route, service, "health", raw)
}

// publishHealth sends the full health payload to the reply topic.
// Best effort: failures are recorded, never propagated.
func (d *Dispatcher) publishHealth() {
	now := d.now()
	payload := health.BuildHealthPayload(d.health.Snapshot(), now)
	d.reply(d.topics.SystemHealth(), payload)
}

// publishMetrics sends the derived metrics payload to the reply topic.
func (d *Dispatcher) publishMetrics() {
	now := d.now()
	payload := health.BuildMetricsPayload(d.health.Snapshot(), now)
	d.reply(d.topics.SystemMetrics(), payload)
}

func (d *Dispatcher) reply(topic string, payload any) {
	pub := d.publisher()
	if pub == nil || !pub.IsConnected() {
		// Expected during reconnect windows and shutdown; not an error.
		d.log.Debug("reply skipped, no connection", "topic", topic)
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		d.health.RecordError(fmt.Sprintf("reply to %s: %v", topic, err))
		d.log.Error("reply payload marshal failed", "topic", topic, "error", err)
		return
	}

	if err := pub.Publish(topic, data, d.qos, false); err != nil {
		d.health.RecordError(fmt.Sprintf("reply to %s: %v", topic, err))
		d.log.Warn("reply publish failed", "topic", topic, "error", err)
		return
	}

	d.health.RecordMessage()
	d.log.Debug("reply published", "topic", topic, "bytes", len(data))
}

// record writes the routed message to the audit journal and telemetry.
// Both are best effort.
func (d *Dispatcher) record(route Route, channelID, action string, raw []byte) {
	if d.telemetry != nil {
		d.telemetry.WriteMessagePoint(route.Category.String(), action)
	}

	if d.journal == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	entry := journal.Entry{
		Topic:      topicOf(route),
		Category:   route.Category.String(),
		ChannelID:  channelID,
		Action:     action,
		Payload:    raw,
		ReceivedAt: d.now(),
	}
	if err := d.journal.Record(ctx, entry); err != nil {
		d.health.RecordError(fmt.Sprintf("journal write: %v", err))
		d.log.Warn("journal write failed", "topic", entry.Topic, "error", err)
	}
}

func topicOf(route Route) string {
	topic := mqtt.TopicPrefix + "/" + route.Category.String()
	for _, s := range route.Segments {
		topic += "/" + s
	}
	return topic
}
