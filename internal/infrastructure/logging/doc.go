// Package logging wraps log/slog for the Naboom MQTT service.
//
// Every line carries service and version attributes so aggregated
// platform logs can be filtered to this process. Output format and
// level come from the logging section of config.yaml: JSON for
// production, text for development.
//
// Never log secrets, tokens, or passwords; truncate identifying
// prefixes instead.
package logging
