package health

import (
	"net/http"
	"time"
)

// Status is the three-level service health classification.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Degradation thresholds. A service past any one of these is still
// serving but needs attention.
const (
	degradedErrorCount = 10
	degradedRetryCount = 5
	activityStaleAfter = 300 * time.Second
)

// HTTPStatus maps the classification onto a probe response code.
// Degraded still returns 200 so orchestrators do not restart a service
// that is working through transient trouble.
func (s Status) HTTPStatus() int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// Status classifies the snapshot as of the given instant.
//
// Disconnected is unhealthy regardless of any other field. A connected
// service is degraded when the error count or retry count have crossed
// their thresholds, or when no message activity has been seen within
// the staleness window.
func (s Snapshot) Status(now time.Time) Status {
	if !s.Connected {
		return StatusUnhealthy
	}
	if s.ErrorCount > degradedErrorCount {
		return StatusDegraded
	}
	if s.ConnectionRetries > degradedRetryCount {
		return StatusDegraded
	}
	if s.LastActivity != nil && now.Sub(*s.LastActivity) > activityStaleAfter {
		return StatusDegraded
	}
	return StatusHealthy
}
