// Package charts reshapes metric outputs into the labelled series the dashboard
// front end draws. Nothing here computes a new number; it only relabels.
package charts

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/andy-wilson/thermostat_dashboard/metrics"
	"github.com/andy-wilson/thermostat_dashboard/reading"
)

// Chart type keys, as used in /api/charts/{type}.
const (
	TypeTemperature     = "temperature"
	TypeGauge           = "gauge"
	TypeEnergyBreakdown = "energy-breakdown"
	TypeWeeklyCosts     = "weekly-costs"
	TypeHeatmap         = "heatmap"
	TypeArea            = "area"
	TypeRadar           = "radar"
	TypeKPI             = "kpi"
)

// Types lists every chart type in display order.
var Types = []string{
	TypeTemperature, TypeGauge, TypeEnergyBreakdown, TypeWeeklyCosts,
	TypeHeatmap, TypeArea, TypeRadar, TypeKPI,
}

// ErrUnknownChart is returned for a chart type not in Types.
var ErrUnknownChart = errors.New("unknown chart type")

var weekdays = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// HourLabel formats an hour of day as "HH:00".
func HourLabel(h int) string {
	return fmt.Sprintf("%02d:00", h)
}

// Dataset is one named series of a multi-series chart.
type Dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

// Line is the temperature trend chart.
type Line struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Temperature draws current, target and outside temperature against hour.
func Temperature(t metrics.Trends) Line {
	labels := make([]string, len(t.Hours))
	for i, h := range t.Hours {
		labels[i] = HourLabel(h)
	}
	return Line{
		Labels: labels,
		Datasets: []Dataset{
			{Label: "Current Temperature", Data: t.CurrentTemps},
			{Label: "Target Temperature", Data: t.TargetTemps},
			{Label: "Outside Temperature", Data: t.OutsideTemps},
		},
	}
}

// Gauge is a single bounded value.
type Gauge struct {
	Value float64 `json:"value"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Title string  `json:"title"`
	Unit  string  `json:"unit"`
}

// EfficiencyGauge shows the efficiency score of the latest reading.
func EfficiencyGauge(score float64) Gauge {
	return Gauge{Value: score, Min: 0, Max: 100, Title: "System Efficiency", Unit: "%"}
}

// Donut is a label/value breakdown.
type Donut struct {
	Labels []string  `json:"labels"`
	Data   []float64 `json:"data"`
}

// EnergyBreakdown draws the per-mode energy shares.
func EnergyBreakdown(b metrics.Breakdown) Donut {
	return Donut{
		Labels: []string{"Heating", "Cooling", "Standby", "Fan"},
		Data:   []float64{b.Heating, b.Cooling, b.Standby, b.Fan},
	}
}

// Bar is a label/value series with a unit, used for the bar and area charts.
type Bar struct {
	Labels []string  `json:"labels"`
	Data   []float64 `json:"data"`
	Unit   string    `json:"unit"`
}

// DailyCosts draws cost per weekday. The dashboard titles this chart
// "weekly costs" since it spans one week of weekdays.
func DailyCosts(costs []metrics.DailyCost) Bar {
	b := Bar{Labels: make([]string, len(costs)), Data: make([]float64, len(costs)), Unit: "$"}
	for i, c := range costs {
		b.Labels[i] = c.Day
		b.Data[i] = c.Cost
	}
	return b
}

// WeeklyCosts draws cost per week for the area chart.
func WeeklyCosts(costs []metrics.WeeklyCost) Bar {
	b := Bar{Labels: make([]string, len(costs)), Data: make([]float64, len(costs)), Unit: "$"}
	for i, c := range costs {
		b.Labels[i] = c.Week
		b.Data[i] = c.Cost
	}
	return b
}

// Range is an inclusive numeric scale.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// HeatCell is one heatmap point; Value is the normalized intensity.
type HeatCell struct {
	Day         int     `json:"day"`
	Hour        int     `json:"hour"`
	Value       float64 `json:"value"`
	EnergyUsage float64 `json:"energyUsage"`
	Occupancy   bool    `json:"occupancy"`
}

// Heatmap places usage on an hour by weekday grid.
type Heatmap struct {
	Data        []HeatCell `json:"data"`
	XAxisLabels []string   `json:"xAxisLabels"`
	YAxisLabels []string   `json:"yAxisLabels"`
	ValueRange  Range      `json:"valueRange"`
}

// UsageHeatmap draws the heatmap points with fixed 24-hour and weekday axes.
func UsageHeatmap(points []metrics.HeatmapPoint) Heatmap {
	cells := make([]HeatCell, len(points))
	for i, p := range points {
		cells[i] = HeatCell{
			Day:         p.Day,
			Hour:        p.Hour,
			Value:       p.Intensity,
			EnergyUsage: p.EnergyUsage,
			Occupancy:   p.Occupancy,
		}
	}
	hours := make([]string, 24)
	for h := range hours {
		hours[h] = HourLabel(h)
	}
	return Heatmap{
		Data:        cells,
		XAxisLabels: hours,
		YAxisLabels: append([]string(nil), weekdays...),
		ValueRange:  Range{Min: 0, Max: 1},
	}
}

// Radar is the comfort chart.
type Radar struct {
	Labels []string  `json:"labels"`
	Data   []float64 `json:"data"`
	Scale  Range     `json:"scale"`
}

// Comfort draws the five comfort scores on a 0-100 scale.
func Comfort(c metrics.Comfort) Radar {
	return Radar{
		Labels: []string{
			"Temperature Consistency",
			"Humidity Control",
			"Energy Efficiency",
			"Cost Effectiveness",
			"Overall Comfort",
		},
		Data: []float64{
			c.TempConsistency,
			c.HumidityControl,
			c.EnergyEfficiency,
			c.CostEffectiveness,
			c.OverallComfort,
		},
		Scale: Range{Min: 0, Max: 100},
	}
}

// All holds every chart of the dashboard.
type All struct {
	TemperatureChart     Line     `json:"temperatureChart"`
	GaugeChart           Gauge    `json:"gaugeChart"`
	EnergyBreakdownChart Donut    `json:"energyBreakdownChart"`
	WeeklyCostsChart     Bar      `json:"weeklyCostsChart"`
	HeatmapChart         Heatmap  `json:"heatmapChart"`
	AreaChart            Bar      `json:"areaChart"`
	RadarChart           Radar    `json:"radarChart"`
	KPIData              KPICards `json:"kpiData"`
}

// Build computes the metrics behind every chart and projects them. A slice
// whose total energy is zero draws an all-zero breakdown.
func Build(rs []reading.Reading, rate metrics.Rate) (All, error) {
	if len(rs) == 0 {
		return All{}, errors.Wrap(metrics.ErrNoData, "charts")
	}
	breakdown, err := metrics.EnergyBreakdown(rs)
	if err != nil && !errors.Is(err, metrics.ErrZeroBaseline) {
		return All{}, err
	}
	daily, err := metrics.DailyCosts(rs, rate)
	if err != nil {
		return All{}, err
	}
	weekly, err := metrics.WeeklyCosts(rs, rate)
	if err != nil {
		return All{}, err
	}
	heat, err := metrics.UsageHeatmap(rs)
	if err != nil {
		return All{}, err
	}
	comfort, err := metrics.ComfortMetrics(rs, rate)
	if err != nil {
		return All{}, err
	}
	kpi, err := metrics.KPIMetrics(rs, rate)
	if err != nil {
		return All{}, err
	}
	latest := rs[len(rs)-1]

	return All{
		TemperatureChart:     Temperature(metrics.TemperatureTrends(rs)),
		GaugeChart:           EfficiencyGauge(metrics.EfficiencyScore(latest)),
		EnergyBreakdownChart: EnergyBreakdown(breakdown),
		WeeklyCostsChart:     DailyCosts(daily),
		HeatmapChart:         UsageHeatmap(heat),
		AreaChart:            WeeklyCosts(weekly),
		RadarChart:           Comfort(comfort),
		KPIData:              KPI(kpi, latest),
	}, nil
}

// Select returns the chart stored under chartType.
func (a All) Select(chartType string) (interface{}, error) {
	switch chartType {
	case TypeTemperature:
		return a.TemperatureChart, nil
	case TypeGauge:
		return a.GaugeChart, nil
	case TypeEnergyBreakdown:
		return a.EnergyBreakdownChart, nil
	case TypeWeeklyCosts:
		return a.WeeklyCostsChart, nil
	case TypeHeatmap:
		return a.HeatmapChart, nil
	case TypeArea:
		return a.AreaChart, nil
	case TypeRadar:
		return a.RadarChart, nil
	case TypeKPI:
		return a.KPIData, nil
	}
	return nil, errors.Wrapf(ErrUnknownChart, "%q", chartType)
}
