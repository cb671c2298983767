package health

import "time"

// HealthPayload is the wire shape served on the health endpoint and
// published to the health reply topic.
type HealthPayload struct {
	Status        Status              `json:"status"`
	Timestamp     string              `json:"timestamp"`
	Connected     bool                `json:"connected"`
	UptimeSeconds float64             `json:"uptime_seconds"`
	Metrics       healthMetrics       `json:"metrics"`
	Connection    healthConnection    `json:"connection"`
	Subscriptions healthSubscriptions `json:"subscriptions"`
	Activity      healthActivity      `json:"activity"`
}

type healthMetrics struct {
	MessagesProcessed uint64  `json:"messages_processed"`
	MessagesPerMinute float64 `json:"messages_per_minute"`
	ConnectionRetries uint64  `json:"connection_retries"`
	ErrorCount        uint64  `json:"error_count"`
	LastError         *string `json:"last_error"`
}

type healthConnection struct {
	BrokerHost string `json:"broker_host"`
	BrokerPort int    `json:"broker_port"`
	ClientID   string `json:"client_id"`
	Keepalive  int    `json:"keepalive"`
}

type healthSubscriptions struct {
	Topics []string `json:"topics"`
	Count  int      `json:"count"`
}

type healthActivity struct {
	LastActivity *string `json:"last_activity"`
}

// BuildHealthPayload projects the snapshot into the health wire shape
// as of the given instant.
func BuildHealthPayload(snap Snapshot, now time.Time) HealthPayload {
	p := HealthPayload{
		Status:        snap.Status(now),
		Timestamp:     now.UTC().Format(time.RFC3339),
		Connected:     snap.Connected,
		UptimeSeconds: snap.UptimeSeconds,
		Metrics: healthMetrics{
			MessagesProcessed: snap.MessagesProcessed,
			MessagesPerMinute: snap.MessagesPerMinute(),
			ConnectionRetries: snap.ConnectionRetries,
			ErrorCount:        snap.ErrorCount,
		},
		Connection: healthConnection{
			BrokerHost: snap.BrokerHost,
			BrokerPort: snap.BrokerPort,
			ClientID:   snap.ClientID,
			Keepalive:  snap.Keepalive,
		},
		Subscriptions: healthSubscriptions{
			Topics: snap.SubscribedTopics,
			Count:  len(snap.SubscribedTopics),
		},
	}
	if p.Subscriptions.Topics == nil {
		p.Subscriptions.Topics = []string{}
	}
	if snap.LastError != "" {
		lastErr := snap.LastError
		p.Metrics.LastError = &lastErr
	}
	if snap.LastActivity != nil {
		activity := snap.LastActivity.UTC().Format(time.RFC3339)
		p.Activity.LastActivity = &activity
	}
	return p
}

// MetricsPayload is the wire shape served on the metrics endpoint and
// published to the metrics reply topic.
type MetricsPayload struct {
	Timestamp   string             `json:"timestamp"`
	Uptime      metricsUptime      `json:"uptime"`
	Performance metricsPerformance `json:"performance"`
	Reliability metricsReliability `json:"reliability"`
}

type metricsUptime struct {
	Seconds float64 `json:"seconds"`
	Hours   float64 `json:"hours"`
	Human   string  `json:"human"`
}

type metricsPerformance struct {
	MessagesProcessed uint64  `json:"messages_processed"`
	MessagesPerMinute float64 `json:"messages_per_minute"`
	MessagesPerHour   float64 `json:"messages_per_hour"`
}

type metricsReliability struct {
	ConnectionRetries uint64  `json:"connection_retries"`
	ErrorCount        uint64  `json:"error_count"`
	ErrorRatePercent  float64 `json:"error_rate_percent"`
	LastError         *string `json:"last_error"`
}

// BuildMetricsPayload projects the snapshot into the metrics wire shape.
func BuildMetricsPayload(snap Snapshot, now time.Time) MetricsPayload {
	uptime := time.Duration(snap.UptimeSeconds * float64(time.Second))

	p := MetricsPayload{
		Timestamp: now.UTC().Format(time.RFC3339),
		Uptime: metricsUptime{
			Seconds: snap.UptimeSeconds,
			Hours:   snap.UptimeSeconds / 3600.0,
			Human:   uptime.Truncate(time.Second).String(),
		},
		Performance: metricsPerformance{
			MessagesProcessed: snap.MessagesProcessed,
			MessagesPerMinute: snap.MessagesPerMinute(),
			MessagesPerHour:   snap.MessagesPerHour(),
		},
		Reliability: metricsReliability{
			ConnectionRetries: snap.ConnectionRetries,
			ErrorCount:        snap.ErrorCount,
			ErrorRatePercent:  snap.ErrorRatePercent(),
		},
	}
	if snap.LastError != "" {
		lastErr := snap.LastError
		p.Reliability.LastError = &lastErr
	}
	return p
}
