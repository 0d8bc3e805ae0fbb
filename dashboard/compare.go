package dashboard

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/andy-wilson/thermostat_dashboard/charts"
	"github.com/andy-wilson/thermostat_dashboard/metrics"
)

// NotApplicable replaces a percentage change whose baseline is zero.
const NotApplicable = "N/A"

// PeriodReport is one side of a comparison.
type PeriodReport struct {
	DateRange Period          `json:"dateRange"`
	Summary   metrics.Summary `json:"summary"`
	KPIs      charts.KPICards `json:"kpis"`
}

// Deltas are the changes from period 1 to period 2, formatted to one decimal.
// Energy and cost are percentages; temperature and efficiency are differences.
type Deltas struct {
	EnergyChange     string `json:"energyChange"`
	CostChange       string `json:"costChange"`
	TempChange       string `json:"tempChange"`
	EfficiencyChange string `json:"efficiencyChange"`
}

// Comparison sets two periods side by side.
type Comparison struct {
	Period1    PeriodReport `json:"period1"`
	Period2    PeriodReport `json:"period2"`
	Comparison Deltas       `json:"comparison"`
}

// Comparison summarizes p1 and p2 independently and reports the change
// between them.
func (s *Service) Comparison(ctx context.Context, p1, p2 Period) (Comparison, error) {
	r1, err := s.periodReport(ctx, p1)
	if err != nil {
		return Comparison{}, errors.Wrap(err, "period 1")
	}
	r2, err := s.periodReport(ctx, p2)
	if err != nil {
		return Comparison{}, errors.Wrap(err, "period 2")
	}
	return Comparison{
		Period1:    r1,
		Period2:    r2,
		Comparison: Compare(r1, r2),
	}, nil
}

func (s *Service) periodReport(ctx context.Context, p Period) (PeriodReport, error) {
	rs, err := s.between(ctx, p)
	if err != nil {
		return PeriodReport{}, err
	}
	if err := requireData(rs, "no readings in period"); err != nil {
		return PeriodReport{}, err
	}
	summary, err := metrics.SummaryStats(rs, s.rate)
	if err != nil {
		return PeriodReport{}, err
	}
	kpi, err := metrics.KPIMetrics(rs, s.rate)
	if err != nil {
		return PeriodReport{}, err
	}
	return PeriodReport{
		DateRange: p,
		Summary:   summary,
		KPIs:      charts.KPI(kpi, rs[len(rs)-1]),
	}, nil
}

// Compare computes the deltas between two period reports.
func Compare(r1, r2 PeriodReport) Deltas {
	return Deltas{
		EnergyChange:     percentChange(r1.Summary.TotalEnergy, r2.Summary.TotalEnergy),
		CostChange:       percentChange(r1.Summary.TotalCost, r2.Summary.TotalCost),
		TempChange:       fixed1(r2.Summary.AvgTemp - r1.Summary.AvgTemp),
		EfficiencyChange: fixed1(r2.KPIs.Efficiency.Value - r1.KPIs.Efficiency.Value),
	}
}

func percentChange(before, after float64) string {
	if before == 0 {
		return NotApplicable
	}
	return fixed1((after - before) / before * 100)
}

func fixed1(v float64) string {
	return fmt.Sprintf("%.1f", v)
}
