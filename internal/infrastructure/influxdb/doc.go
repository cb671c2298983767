// Package influxdb writes the service's time-series telemetry through
// the official influxdb-client-go v2 library.
//
// Two measurements are produced: per-message counters tagged by
// category and action, and periodic health gauges (uptime, throughput,
// retries, errors) sampled from the health store.
//
// Writes are non-blocking and batched per the config.yaml settings;
// batch errors are delivered through the SetOnError callback. All
// methods are safe for concurrent use.
package influxdb
