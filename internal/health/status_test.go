package health

import (
	"net/http"
	"testing"
	"time"
)

func TestSnapshot_Status(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-10 * time.Second)
	stale := now.Add(-301 * time.Second)
	boundary := now.Add(-300 * time.Second)

	tests := []struct {
		name string
		snap Snapshot
		want Status
	}{
		{
			name: "connected and quiet counters",
			snap: Snapshot{Connected: true, LastActivity: &recent},
			want: StatusHealthy,
		},
		{
			name: "disconnected",
			snap: Snapshot{Connected: false},
			want: StatusUnhealthy,
		},
		{
			name: "disconnected overrides clean counters",
			snap: Snapshot{Connected: false, LastActivity: &recent},
			want: StatusUnhealthy,
		},
		{
			name: "error count over threshold",
			snap: Snapshot{Connected: true, ErrorCount: 11, LastActivity: &recent},
			want: StatusDegraded,
		},
		{
			name: "error count at threshold stays healthy",
			snap: Snapshot{Connected: true, ErrorCount: 10, LastActivity: &recent},
			want: StatusHealthy,
		},
		{
			name: "retries over threshold",
			snap: Snapshot{Connected: true, ConnectionRetries: 6, LastActivity: &recent},
			want: StatusDegraded,
		},
		{
			name: "retries at threshold stays healthy",
			snap: Snapshot{Connected: true, ConnectionRetries: 5, LastActivity: &recent},
			want: StatusHealthy,
		},
		{
			name: "stale activity",
			snap: Snapshot{Connected: true, LastActivity: &stale},
			want: StatusDegraded,
		},
		{
			name: "activity exactly at window edge stays healthy",
			snap: Snapshot{Connected: true, LastActivity: &boundary},
			want: StatusHealthy,
		},
		{
			name: "no activity recorded yet",
			snap: Snapshot{Connected: true},
			want: StatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snap.Status(now); got != tt.want {
				t.Errorf("Status() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatus_HTTPStatus(t *testing.T) {
	tests := []struct {
		status Status
		want   int
	}{
		{StatusHealthy, http.StatusOK},
		{StatusDegraded, http.StatusOK},
		{StatusUnhealthy, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		if got := tt.status.HTTPStatus(); got != tt.want {
			t.Errorf("%q.HTTPStatus() = %d, want %d", tt.status, got, tt.want)
		}
	}
}
