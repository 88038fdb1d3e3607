package metrics

import (
	"time"

	"github.com/lostmyalias/skyspoofer-trial-bot/internal/observability"
)

// Application-level metrics following Prometheus conventions
var (
	// Link flow metrics
	LinkAttemptsTotal  = "app_link_attempts_total"
	KeysDispensedTotal = "app_keys_dispensed_total"
	KeyPoolSize        = "app_key_pool_size"

	// Rate limiter metrics
	RateLimitAddresses = "app_rate_limit_tracked_addresses"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

// RecordLinkAttempt records one callback flow terminating with the given
// outcome (linked, rate_limited, invalid_request, invalid_state,
// exchange_failed, store_error).
func RecordLinkAttempt(outcome string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			LinkAttemptsTotal,
			1,
			map[string]string{
				"outcome": outcome,
			},
		)
	}
}

// RecordKeyDispensed records one successful pool claim.
func RecordKeyDispensed() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			KeysDispensedTotal,
			1,
			nil,
		)
	}
}

// SetKeyPoolSize sets the current number of keys available in the pool.
func SetKeyPoolSize(count int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			KeyPoolSize,
			float64(count),
			nil,
		)
	}
}

// SetRateLimitAddresses sets the number of client addresses the limiter is
// currently tracking.
func SetRateLimitAddresses(count int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			RateLimitAddresses,
			float64(count),
			nil,
		)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerUptime,
			float64(seconds),
			nil,
		)
	}
}
