package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/naboomcommunity/mqtt-core/internal/health"
)

// WriteMessagePoint records one routed broker message.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Category and action are tags so dashboards can group by them.
//
// Example:
//
//	client.WriteMessagePoint("community", "post")
//	client.WriteMessagePoint("alerts", "alert")
func (c *Client) WriteMessagePoint(category, action string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"messages",
		map[string]string{
			"category": category,
			"action":   action,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteHealthPoint records the service health gauges from a snapshot.
//
// Written periodically by the health reporter so dashboards show
// message throughput and error accumulation over time.
func (c *Client) WriteHealthPoint(snap health.Snapshot) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"service_health",
		map[string]string{
			"client_id": snap.ClientID,
		},
		map[string]interface{}{
			"connected":           snap.Connected,
			"uptime_seconds":      snap.UptimeSeconds,
			"messages_processed":  int64(snap.MessagesProcessed),
			"messages_per_minute": snap.MessagesPerMinute(),
			"connection_retries":  int64(snap.ConnectionRetries),
			"error_count":         int64(snap.ErrorCount),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
