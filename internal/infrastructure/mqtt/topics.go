package mqtt

import "fmt"

// Topic prefixes for the Naboom community platform.
//
// All platform topics use the scheme: naboom/{category}/{...segments}
// The category set is fixed; segment shapes are category-specific.
const (
	// TopicPrefix is the base for all Naboom topics.
	TopicPrefix = "naboom"

	// TopicPrefixCommunity is the base for community channel traffic.
	// Shape: naboom/community/{channel_id}/{action}
	TopicPrefixCommunity = "naboom/community"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "naboom/system"

	// TopicPrefixNotifications is the base for per-user notification topics.
	TopicPrefixNotifications = "naboom/notifications"

	// TopicPrefixAlerts is the base for emergency/alert topics.
	TopicPrefixAlerts = "naboom/alerts"

	// TopicPrefixHealth is the base for per-service health topics.
	TopicPrefixHealth = "naboom/health"
)

// Topics provides builders for Naboom MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	replyTopic := topics.SystemHealth()
//	// Returns: "naboom/system/health"
type Topics struct{}

// Community returns the topic for a community channel action.
//
// Example: naboom/community/42/post
func (Topics) Community(channelID, action string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixCommunity, channelID, action)
}

// System returns the topic for a system action.
//
// Example: naboom/system/health_check
func (Topics) System(action string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixSystem, action)
}

// SystemStatus returns the service status topic (online/offline, LWT).
//
// Example: naboom/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemHealth returns the reply topic for health payloads.
//
// Example: naboom/system/health
func (Topics) SystemHealth() string {
	return fmt.Sprintf("%s/health", TopicPrefixSystem)
}

// SystemMetrics returns the reply topic for metrics payloads.
//
// Example: naboom/system/metrics
func (Topics) SystemMetrics() string {
	return fmt.Sprintf("%s/metrics", TopicPrefixSystem)
}

// Notification returns the notification topic for a specific user.
//
// Example: naboom/notifications/user-17
func (Topics) Notification(userID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixNotifications, userID)
}

// Alert returns the topic for a specific alert type.
//
// Example: naboom/alerts/panic
func (Topics) Alert(alertType string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixAlerts, alertType)
}

// ServiceHealth returns the health topic for a named platform service.
//
// Example: naboom/health/panic-api
func (Topics) ServiceHealth(service string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixHealth, service)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllCommunity returns a pattern matching all community channel actions.
//
// Pattern: naboom/community/+/+
func (Topics) AllCommunity() string {
	return fmt.Sprintf("%s/+/+", TopicPrefixCommunity)
}

// AllNotifications returns a pattern matching all per-user notifications.
//
// Pattern: naboom/notifications/+
func (Topics) AllNotifications() string {
	return fmt.Sprintf("%s/+", TopicPrefixNotifications)
}

// AllAlerts returns a pattern matching all alert types.
//
// Pattern: naboom/alerts/+
func (Topics) AllAlerts() string {
	return fmt.Sprintf("%s/+", TopicPrefixAlerts)
}

// AllServiceHealth returns a pattern matching all per-service health topics.
//
// Pattern: naboom/health/+
func (Topics) AllServiceHealth() string {
	return fmt.Sprintf("%s/+", TopicPrefixHealth)
}

// AllTopics returns a pattern matching all Naboom topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: naboom/#
func (Topics) AllTopics() string {
	return "naboom/#"
}

// SubscriptionSet returns the fixed set of topic patterns the ingestion
// service subscribes to on every successful connect. The set is part of the
// platform wire protocol and must not be changed without coordinating with
// the publishers.
func SubscriptionSet() []string {
	t := Topics{}
	return []string{
		t.AllCommunity(),
		t.SystemStatus(),
		t.AllNotifications(),
		t.AllAlerts(),
		t.AllServiceHealth(),
	}
}
