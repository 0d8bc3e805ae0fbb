// Package reading defines the thermostat sample type and the slicing helpers
// (windows, ranges, filters, grouping) shared by the store and the dashboard.
package reading

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// Operating modes reported by the thermostat. Any other value is treated as fan.
const (
	ModeHeating = "heating"
	ModeCooling = "cooling"
	ModeOff     = "off"
)

// Plausible sensor bounds, in °F and percent.
const (
	MinTempF    = -40.0
	MaxTempF    = 140.0
	MinHumidity = 0.0
	MaxHumidity = 100.0
)

// Reading is a single hourly sample from the thermostat. Readings are never
// mutated once loaded; every derived value is recomputed from a slice of them.
type Reading struct {
	Timestamp   time.Time `json:"timestamp"`
	CurrentTemp float64   `json:"currentTemp"`
	TargetTemp  float64   `json:"targetTemp"`
	Humidity    float64   `json:"humidity"`
	EnergyUsage float64   `json:"energyUsage"`
	Mode        string    `json:"mode"`
	Occupancy   bool      `json:"occupancy"`
	OutsideTemp float64   `json:"outsideTemp"`
}

// Validate checks a reading against the field contract. Stores drop readings
// that fail it before they reach any computation.
func Validate(r Reading) error {
	if r.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	temps := []struct {
		name  string
		value float64
	}{
		{"currentTemp", r.CurrentTemp},
		{"targetTemp", r.TargetTemp},
		{"outsideTemp", r.OutsideTemp},
	}
	for _, t := range temps {
		if math.IsNaN(t.value) || t.value < MinTempF || t.value > MaxTempF {
			return errors.Errorf("%s %.1f out of range [%.0f, %.0f]", t.name, t.value, MinTempF, MaxTempF)
		}
	}
	if math.IsNaN(r.Humidity) || r.Humidity < MinHumidity || r.Humidity > MaxHumidity {
		return errors.Errorf("humidity %.1f out of range [%.0f, %.0f]", r.Humidity, MinHumidity, MaxHumidity)
	}
	if math.IsNaN(r.EnergyUsage) || math.IsInf(r.EnergyUsage, 0) || r.EnergyUsage < 0 {
		return errors.Errorf("energyUsage %v must be a non-negative number", r.EnergyUsage)
	}
	if r.Mode == "" {
		return errors.New("mode is required")
	}
	return nil
}

// timestampLayouts are tried in order by ParseTimestamp. Layouts without a zone
// are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an ISO 8601 instant or date.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Wrapf(ErrInvalidRange, "unparseable timestamp %q", s)
}
