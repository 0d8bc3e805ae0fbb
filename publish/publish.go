// Package publish pushes thermostat health snapshots to MQTT.
package publish

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/andy-wilson/thermostat_dashboard/dashboard"
)

// DefaultTopic is where health snapshots land when no topic is configured.
const DefaultTopic = "thermostat/dashboard/health"

// Publisher publishes health reports.
type Publisher interface {
	// PublishHealth sends one report. Errors must not crash the caller.
	PublishHealth(report dashboard.HealthReport) error

	// Close disconnects from the broker.
	Close() error
}

// HealthSource computes the current health report.
type HealthSource interface {
	Health(ctx context.Context) (dashboard.HealthReport, error)
}

// Payload is the JSON message body.
type Payload struct {
	Timestamp string                 `json:"timestamp"`
	Health    dashboard.HealthReport `json:"health"`
}

// FormatPayload renders the message for a report published at t.
func FormatPayload(report dashboard.HealthReport, t time.Time) ([]byte, error) {
	return json.Marshal(Payload{
		Timestamp: t.UTC().Format(time.RFC3339),
		Health:    report,
	})
}

// Loop recomputes health on every tick and publishes it until ctx is done.
// Failures are logged and the loop carries on.
func Loop(ctx context.Context, src HealthSource, pub Publisher, tick <-chan time.Time, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			report, err := src.Health(ctx)
			if err != nil {
				logger.Warn("health snapshot skipped", "error", err)
				continue
			}
			if err := pub.PublishHealth(report); err != nil {
				logger.Error("failed to publish health", "error", err)
				continue
			}
			logger.Debug("published health", "overall", report.Overall)
		}
	}
}
