// Package storage persists thermostat readings. Two backends are provided: the
// JSON array file the dashboard has always read, and SQLite for larger
// histories. Both return readings sorted ascending by timestamp.
package storage

import (
	"context"
	"time"

	"github.com/andy-wilson/thermostat_dashboard/reading"
)

// Backend defines the interface for the reading store implementations.
type Backend interface {
	// Initialize sets up the storage backend
	Initialize() error

	// All returns every stored reading
	All(ctx context.Context) ([]reading.Reading, error)

	// Window returns the readings of the last hours hours, measured back from
	// the latest stored reading
	Window(ctx context.Context, hours int) ([]reading.Reading, error)

	// Range returns the readings between start and end, both inclusive
	Range(ctx context.Context, start, end time.Time) ([]reading.Reading, error)

	// Latest returns the most recent reading, or metrics.ErrNoData
	Latest(ctx context.Context) (reading.Reading, error)

	// SaveReadings stores readings, replacing any with the same timestamp
	SaveReadings(ctx context.Context, readings []reading.Reading) error

	// Count returns the total number of readings
	Count(ctx context.Context) (int64, error)

	// HourlyAggregates returns per-hour aggregates between from and to
	HourlyAggregates(ctx context.Context, from, to time.Time) ([]Aggregate, error)

	// Close closes the storage backend
	Close() error
}

// Aggregate summarizes the readings of one clock hour.
type Aggregate struct {
	Hour        time.Time `json:"hour"`
	AvgTemp     float64   `json:"avgTemp"`
	MinTemp     float64   `json:"minTemp"`
	MaxTemp     float64   `json:"maxTemp"`
	AvgHumidity float64   `json:"avgHumidity"`
	EnergyUsage float64   `json:"energyUsage"`
	Count       int       `json:"count"`
}

// aggregate groups ascending readings by clock hour (UTC).
func aggregate(rs []reading.Reading) []Aggregate {
	var out []Aggregate
	for _, r := range rs {
		hour := r.Timestamp.UTC().Truncate(time.Hour)
		if n := len(out); n > 0 && out[n-1].Hour.Equal(hour) {
			agg := &out[n-1]
			agg.AvgTemp = (agg.AvgTemp*float64(agg.Count) + r.CurrentTemp) / float64(agg.Count+1)
			agg.AvgHumidity = (agg.AvgHumidity*float64(agg.Count) + r.Humidity) / float64(agg.Count+1)
			if r.CurrentTemp < agg.MinTemp {
				agg.MinTemp = r.CurrentTemp
			}
			if r.CurrentTemp > agg.MaxTemp {
				agg.MaxTemp = r.CurrentTemp
			}
			agg.EnergyUsage += r.EnergyUsage
			agg.Count++
			continue
		}
		out = append(out, Aggregate{
			Hour:        hour,
			AvgTemp:     r.CurrentTemp,
			MinTemp:     r.CurrentTemp,
			MaxTemp:     r.CurrentTemp,
			AvgHumidity: r.Humidity,
			EnergyUsage: r.EnergyUsage,
			Count:       1,
		})
	}
	if out == nil {
		out = []Aggregate{}
	}
	return out
}
