// Package dashboard resolves a requested time window or filter set into a slice
// of readings and runs the metrics and chart projections over it. It also
// classifies system health and compares two periods.
package dashboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/andy-wilson/thermostat_dashboard/charts"
	"github.com/andy-wilson/thermostat_dashboard/metrics"
	"github.com/andy-wilson/thermostat_dashboard/reading"
)

// Errors surfaced to callers. They alias the packages that raise them so that
// errors.Is works whichever name the caller uses.
var (
	ErrNoData       = metrics.ErrNoData
	ErrInvalidRange = reading.ErrInvalidRange
	ErrUnknownChart = charts.ErrUnknownChart
)

// Period is a closed time interval.
type Period = reading.Period

// ParsePeriod parses an RFC 3339 or YYYY-MM-DD start/end pair and rejects
// ranges whose start is not before their end.
func ParsePeriod(start, end string) (Period, error) {
	return reading.ParsePeriod(start, end)
}

// ReadingSource supplies readings sorted ascending by timestamp.
type ReadingSource interface {
	All(ctx context.Context) ([]reading.Reading, error)
	Window(ctx context.Context, hours int) ([]reading.Reading, error)
	Range(ctx context.Context, start, end time.Time) ([]reading.Reading, error)
}

// ParseTimeRange maps a time range token to a window in hours. Zero means the
// whole history.
func ParseTimeRange(s string) int {
	switch s {
	case "24h":
		return 24
	case "7d":
		return 7 * 24
	case "30d":
		return 30 * 24
	}
	return 0
}

// Service computes dashboard views. It holds no state besides its
// collaborators and is safe for concurrent use.
type Service struct {
	src    ReadingSource
	rate   metrics.Rate
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

// NewService returns a Service reading from src, pricing energy at rate and
// grouping by weekday and hour in loc.
func NewService(src ReadingSource, rate metrics.Rate, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{src: src, rate: rate, loc: loc, logger: logger, now: time.Now}
}

// Rate returns the energy price the service computes costs with.
func (s *Service) Rate() metrics.Rate { return s.rate }

func (s *Service) localize(rs []reading.Reading, err error) ([]reading.Reading, error) {
	if err != nil {
		return nil, errors.Wrap(err, "loading readings")
	}
	return reading.InLocation(rs, s.loc), nil
}

func (s *Service) all(ctx context.Context) ([]reading.Reading, error) {
	return s.localize(s.src.All(ctx))
}

// window loads the last hours hours, or everything when hours is zero.
func (s *Service) window(ctx context.Context, hours int) ([]reading.Reading, error) {
	if hours <= 0 {
		return s.all(ctx)
	}
	return s.localize(s.src.Window(ctx, hours))
}

func (s *Service) between(ctx context.Context, p Period) ([]reading.Reading, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return s.localize(s.src.Range(ctx, p.Start, p.End))
}

func requireData(rs []reading.Reading, what string) error {
	if len(rs) == 0 {
		return errors.Wrap(ErrNoData, what)
	}
	return nil
}

// Metadata describes how a dashboard view was produced.
type Metadata struct {
	TimeRange   string    `json:"timeRange"`
	DataPoints  int       `json:"dataPoints"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Dashboard is the full dashboard: summary statistics and every chart.
type Dashboard struct {
	Summary  metrics.Summary `json:"summary"`
	Charts   charts.All      `json:"charts"`
	Metadata Metadata        `json:"metadata"`
}

// Dashboard builds the full dashboard over the window named by timeRange
// ("24h", "7d", "30d", anything else for all readings).
func (s *Service) Dashboard(ctx context.Context, timeRange string) (Dashboard, error) {
	rs, err := s.window(ctx, ParseTimeRange(timeRange))
	if err != nil {
		return Dashboard{}, err
	}
	if err := requireData(rs, "dashboard"); err != nil {
		return Dashboard{}, err
	}
	all, err := charts.Build(rs, s.rate)
	if err != nil {
		return Dashboard{}, err
	}
	summary, err := metrics.SummaryStats(rs, s.rate)
	if err != nil {
		return Dashboard{}, err
	}
	if timeRange == "" {
		timeRange = "all"
	}
	s.logger.Debug("dashboard built", "timeRange", timeRange, "dataPoints", len(rs))

	return Dashboard{
		Summary: summary,
		Charts:  all,
		Metadata: Metadata{
			TimeRange:   timeRange,
			DataPoints:  len(rs),
			LastUpdated: s.now().UTC(),
		},
	}, nil
}

// CurrentStatus is the latest reading as shown in the header.
type CurrentStatus struct {
	Temperature float64   `json:"temperature"`
	TargetTemp  float64   `json:"targetTemp"`
	Mode        string    `json:"mode"`
	Occupancy   bool      `json:"occupancy"`
	Timestamp   time.Time `json:"timestamp"`
}

// BriefSummary is the subset of summary statistics shown with the KPIs.
type BriefSummary struct {
	TotalEnergy   float64 `json:"totalEnergy"`
	TotalCost     float64 `json:"totalCost"`
	AvgTemp       float64 `json:"avgTemp"`
	OccupancyRate float64 `json:"occupancyRate"`
}

// Summary is the current status, the KPI cards and a brief summary.
type Summary struct {
	CurrentStatus CurrentStatus   `json:"currentStatus"`
	KPIs          charts.KPICards `json:"kpis"`
	Summary       BriefSummary    `json:"summary"`
	LastUpdated   time.Time       `json:"lastUpdated"`
}

// Summary builds the summary view over the whole history.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	rs, err := s.all(ctx)
	if err != nil {
		return Summary{}, err
	}
	if err := requireData(rs, "summary"); err != nil {
		return Summary{}, err
	}
	kpi, err := metrics.KPIMetrics(rs, s.rate)
	if err != nil {
		return Summary{}, err
	}
	stats, err := metrics.SummaryStats(rs, s.rate)
	if err != nil {
		return Summary{}, err
	}
	latest := rs[len(rs)-1]

	return Summary{
		CurrentStatus: CurrentStatus{
			Temperature: latest.CurrentTemp,
			TargetTemp:  latest.TargetTemp,
			Mode:        latest.Mode,
			Occupancy:   latest.Occupancy,
			Timestamp:   latest.Timestamp,
		},
		KPIs: charts.KPI(kpi, latest),
		Summary: BriefSummary{
			TotalEnergy:   stats.TotalEnergy,
			TotalCost:     stats.TotalCost,
			AvgTemp:       stats.AvgTemp,
			OccupancyRate: stats.OccupancyRate,
		},
		LastUpdated: s.now().UTC(),
	}, nil
}

// Chart builds one chart over the window named by timeRange.
func (s *Service) Chart(ctx context.Context, chartType, timeRange string) (interface{}, error) {
	if !IsChartType(chartType) {
		return nil, errors.Wrapf(ErrUnknownChart, "%q", chartType)
	}
	rs, err := s.window(ctx, ParseTimeRange(timeRange))
	if err != nil {
		return nil, err
	}
	if err := requireData(rs, "chart "+chartType); err != nil {
		return nil, err
	}
	all, err := charts.Build(rs, s.rate)
	if err != nil {
		return nil, err
	}
	return all.Select(chartType)
}

// Charts builds every chart over the window named by timeRange.
func (s *Service) Charts(ctx context.Context, timeRange string) (charts.All, error) {
	rs, err := s.window(ctx, ParseTimeRange(timeRange))
	if err != nil {
		return charts.All{}, err
	}
	if err := requireData(rs, "charts"); err != nil {
		return charts.All{}, err
	}
	return charts.Build(rs, s.rate)
}

// IsChartType reports whether t names a chart.
func IsChartType(t string) bool {
	for _, c := range charts.Types {
		if c == t {
			return true
		}
	}
	return false
}

// Filters narrows the readings a filtered dashboard is built from. A date
// range replaces the whole history as the source before the criteria apply.
type Filters struct {
	reading.Criteria
	DateRange *Period `json:"dateRange,omitempty"`
}

// Validate rejects inverted bounds and empty date ranges.
func (f Filters) Validate() error {
	if err := f.Criteria.Validate(); err != nil {
		return err
	}
	if f.DateRange != nil {
		return f.DateRange.Validate()
	}
	return nil
}

func (s *Service) filtered(ctx context.Context, f Filters) (source, matched []reading.Reading, err error) {
	if err := f.Validate(); err != nil {
		return nil, nil, err
	}
	if f.DateRange != nil {
		source, err = s.between(ctx, *f.DateRange)
	} else {
		source, err = s.all(ctx)
	}
	if err != nil {
		return nil, nil, err
	}
	return source, reading.Filter(source, f.Criteria), nil
}

// FilteredMetadata reports how many readings the filters kept.
type FilteredMetadata struct {
	OriginalDataPoints int       `json:"originalDataPoints"`
	FilteredDataPoints int       `json:"filteredDataPoints"`
	LastUpdated        time.Time `json:"lastUpdated"`
}

// Filtered is a dashboard built from filtered readings.
type Filtered struct {
	Summary  metrics.Summary  `json:"summary"`
	Charts   charts.All       `json:"charts"`
	Filters  Filters          `json:"filters"`
	Metadata FilteredMetadata `json:"metadata"`
}

// Filtered builds the dashboard over the readings matching f.
func (s *Service) Filtered(ctx context.Context, f Filters) (Filtered, error) {
	source, rs, err := s.filtered(ctx, f)
	if err != nil {
		return Filtered{}, err
	}
	s.logger.Info("filters applied", "original", len(source), "filtered", len(rs))
	if err := requireData(rs, "filtered dashboard"); err != nil {
		return Filtered{}, err
	}
	all, err := charts.Build(rs, s.rate)
	if err != nil {
		return Filtered{}, err
	}
	summary, err := metrics.SummaryStats(rs, s.rate)
	if err != nil {
		return Filtered{}, err
	}
	return Filtered{
		Summary: summary,
		Charts:  all,
		Filters: f,
		Metadata: FilteredMetadata{
			OriginalDataPoints: len(source),
			FilteredDataPoints: len(rs),
			LastUpdated:        s.now().UTC(),
		},
	}, nil
}
