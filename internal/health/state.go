package health

import (
	"sync"
	"time"
)

// ConnectionInfo is the static broker identity recorded at construction.
// It is carried into every snapshot unchanged.
type ConnectionInfo struct {
	BrokerHost string
	BrokerPort int
	ClientID   string
	Keepalive  int
}

// State is the shared health metrics store for the ingestion service.
//
// A single instance is constructed at startup and passed by reference to
// the connection manager (writer) and the exposition endpoints (readers).
// All mutation methods take the internal lock, so the store is safe for
// concurrent use from the consume loop, HTTP handlers, and the health
// reporter.
type State struct {
	mu sync.Mutex

	connected         bool
	startTime         time.Time
	messagesProcessed uint64
	connectionRetries uint64
	errorCount        uint64
	lastError         string
	lastActivity      time.Time // zero value means no activity yet
	topics            []string

	info ConnectionInfo

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewState creates a health store with uptime measured from now.
func NewState(info ConnectionInfo) *State {
	s := &State{
		info: info,
		now:  time.Now,
	}
	s.startTime = s.now()
	return s
}

// RecordConnection records a broker connection state change.
// A successful connect also counts as activity; a disconnect does not
// touch the activity timestamp.
func (s *State) RecordConnection(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = connected
	if connected {
		s.lastActivity = s.now()
	}
}

// RecordMessage counts one processed message (publish or receive) and
// refreshes the activity timestamp.
func (s *State) RecordMessage() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messagesProcessed++
	s.lastActivity = s.now()
}

// RecordError counts one error event and keeps the most recent message.
// Earlier errors are overwritten, not appended.
func (s *State) RecordError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errorCount++
	s.lastError = msg
}

// RecordRetry counts one reconnect attempt.
func (s *State) RecordRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connectionRetries++
}

// SetSubscribedTopics replaces the last-known subscription set.
func (s *State) SetSubscribedTopics(topics []string) {
	copied := make([]string, len(topics))
	copy(copied, topics)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = copied
}

// Snapshot returns an immutable point-in-time copy of the health state.
// The critical section is a plain field copy, so readers never block
// writers for long and never observe a half-applied mutation.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	topics := make([]string, len(s.topics))
	copy(topics, s.topics)

	snap := Snapshot{
		Connected:         s.connected,
		UptimeSeconds:     s.now().Sub(s.startTime).Seconds(),
		MessagesProcessed: s.messagesProcessed,
		ConnectionRetries: s.connectionRetries,
		ErrorCount:        s.errorCount,
		LastError:         s.lastError,
		SubscribedTopics:  topics,
		BrokerHost:        s.info.BrokerHost,
		BrokerPort:        s.info.BrokerPort,
		ClientID:          s.info.ClientID,
		Keepalive:         s.info.Keepalive,
	}
	if !s.lastActivity.IsZero() {
		activity := s.lastActivity
		snap.LastActivity = &activity
	}
	return snap
}

// Snapshot is an immutable view of the health state.
type Snapshot struct {
	Connected         bool
	UptimeSeconds     float64
	MessagesProcessed uint64
	ConnectionRetries uint64
	ErrorCount        uint64
	LastError         string
	SubscribedTopics  []string
	LastActivity      *time.Time

	BrokerHost string
	BrokerPort int
	ClientID   string
	Keepalive  int
}

// MessagesPerMinute derives the message rate from the snapshot.
// Returns zero when uptime is zero.
func (s Snapshot) MessagesPerMinute() float64 {
	if s.UptimeSeconds <= 0 {
		return 0
	}
	return float64(s.MessagesProcessed) / (s.UptimeSeconds / 60.0)
}

// MessagesPerHour derives the hourly message rate.
func (s Snapshot) MessagesPerHour() float64 {
	return s.MessagesPerMinute() * 60.0
}

// ErrorRatePercent derives the error ratio against processed messages.
// A message floor of 1 avoids division by zero on an idle service.
func (s Snapshot) ErrorRatePercent() float64 {
	processed := s.MessagesProcessed
	if processed == 0 {
		processed = 1
	}
	return float64(s.ErrorCount) / float64(processed) * 100.0
}
