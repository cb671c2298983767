// Package health tracks runtime metrics for the MQTT ingestion service.
//
// A single State instance is shared between the connection manager, the
// message dispatcher, and the HTTP exposition endpoints. Writers record
// connection changes, processed messages, errors, and retries; readers
// take an immutable Snapshot and classify it as healthy, degraded, or
// unhealthy.
//
// The package also builds the JSON payload shapes published to the
// naboom/system/health and naboom/system/metrics reply topics and
// served over HTTP.
package health
