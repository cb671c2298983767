// Package ingest is the message-ingestion core of the Naboom MQTT
// service: topic routing, per-category handlers, and the broker
// connection lifecycle.
//
// Service owns the single broker client. It connects with bounded
// exponential backoff, subscribes the fixed naboom/ topic set, and
// feeds every inbound message to the Dispatcher, which routes on a
// closed category enum and writes outcomes into the shared health
// store. Reply publishes (health_check, metrics_request) are best
// effort and never fail the consume loop.
package ingest
