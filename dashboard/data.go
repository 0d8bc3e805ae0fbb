package dashboard

import (
	"context"
	"math"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"github.com/andy-wilson/thermostat_dashboard/metrics"
	"github.com/andy-wilson/thermostat_dashboard/reading"
)

// Readings returns the readings matching f. An empty result is not an error.
func (s *Service) Readings(ctx context.Context, f Filters) ([]reading.Reading, error) {
	_, rs, err := s.filtered(ctx, f)
	return rs, err
}

// Latest returns the most recent reading.
func (s *Service) Latest(ctx context.Context) (reading.Reading, error) {
	rs, err := s.all(ctx)
	if err != nil {
		return reading.Reading{}, err
	}
	if err := requireData(rs, "latest reading"); err != nil {
		return reading.Reading{}, err
	}
	return rs[len(rs)-1], nil
}

// Recent returns the readings of the last hours hours.
func (s *Service) Recent(ctx context.Context, hours int) ([]reading.Reading, error) {
	if hours <= 0 || hours > reading.MaxWindowHours {
		return nil, errors.Wrapf(ErrInvalidRange, "hours must be between 1 and %d", reading.MaxWindowHours)
	}
	return s.window(ctx, hours)
}

// Range returns the readings inside p.
func (s *Service) Range(ctx context.Context, p Period) ([]reading.Reading, error) {
	return s.between(ctx, p)
}

// Stats describes the stored history.
type Stats struct {
	TotalReadings     int      `json:"totalReadings"`
	DateRange         Period   `json:"dateRange"`
	Modes             []string `json:"modes"`
	AvgReadingsPerDay float64  `json:"avgReadingsPerDay"`
}

// Stats counts the readings, the span they cover and the modes seen. Readings
// per day divides by the span rounded up to whole days, at least one.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	rs, err := s.all(ctx)
	if err != nil {
		return Stats{}, err
	}
	if err := requireData(rs, "data statistics"); err != nil {
		return Stats{}, err
	}

	seen := mapset.NewSet[string]()
	var modes []string
	start, end := rs[0].Timestamp, rs[0].Timestamp
	for _, r := range rs {
		if seen.Add(r.Mode) {
			modes = append(modes, r.Mode)
		}
		if r.Timestamp.Before(start) {
			start = r.Timestamp
		}
		if r.Timestamp.After(end) {
			end = r.Timestamp
		}
	}
	days := math.Max(1, math.Ceil(end.Sub(start).Hours()/24))

	return Stats{
		TotalReadings:     len(rs),
		DateRange:         Period{Start: start.UTC(), End: end.UTC()},
		Modes:             modes,
		AvgReadingsPerDay: metrics.Round(float64(len(rs)) / days),
	}, nil
}

// GroupedByDay buckets the history by calendar date.
func (s *Service) GroupedByDay(ctx context.Context) ([]reading.DayGroup, error) {
	rs, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	return reading.GroupByDay(rs), nil
}

// GroupedByHour buckets the history by hour of day.
func (s *Service) GroupedByHour(ctx context.Context) ([]reading.HourGroup, error) {
	rs, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	return reading.GroupByHour(rs), nil
}

// Insights are the analytics the charts do not draw.
type Insights struct {
	TimeRange           string               `json:"timeRange"`
	DataPoints          int                  `json:"dataPoints"`
	OccupancyEfficiency float64              `json:"occupancyEfficiency"`
	ModeDistribution    []metrics.ModeShare  `json:"modeDistribution"`
	WeatherImpact       float64              `json:"weatherImpact"`
	TemperatureVariance float64              `json:"temperatureVariance"`
	TemperatureExtremes metrics.Extremes     `json:"temperatureExtremes"`
	CurrentTemperature  metrics.CurrentTemps `json:"currentTemperature"`
	Comfort             metrics.Comfort      `json:"comfort"`
	LastUpdated         time.Time            `json:"lastUpdated"`
}

// Insights computes occupancy, mode, weather and temperature analytics over the
// window named by timeRange.
func (s *Service) Insights(ctx context.Context, timeRange string) (Insights, error) {
	rs, err := s.window(ctx, ParseTimeRange(timeRange))
	if err != nil {
		return Insights{}, err
	}
	if err := requireData(rs, "insights"); err != nil {
		return Insights{}, err
	}
	if timeRange == "" {
		timeRange = "all"
	}

	in := Insights{TimeRange: timeRange, DataPoints: len(rs), LastUpdated: s.now().UTC()}
	if in.OccupancyEfficiency, err = metrics.OccupancyEfficiency(rs); err != nil {
		return Insights{}, err
	}
	if in.ModeDistribution, err = metrics.ModeDistribution(rs); err != nil {
		return Insights{}, err
	}
	if in.WeatherImpact, err = metrics.WeatherImpact(rs); err != nil {
		return Insights{}, err
	}
	if in.TemperatureVariance, err = metrics.TemperatureVariance(rs); err != nil {
		return Insights{}, err
	}
	if in.TemperatureExtremes, err = metrics.TemperatureExtremes(rs); err != nil {
		return Insights{}, err
	}
	if in.CurrentTemperature, err = metrics.CurrentTemperature(rs); err != nil {
		return Insights{}, err
	}
	if in.Comfort, err = metrics.ComfortMetrics(rs, s.rate); err != nil {
		return Insights{}, err
	}
	return in, nil
}
