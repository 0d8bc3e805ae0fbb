package metrics

import (
	"math"

	"github.com/andy-wilson/thermostat_dashboard/reading"
)

// Efficiency levels used by the KPI card and the health classifier.
const (
	LevelGood = "good"
	LevelFair = "fair"
	LevelPoor = "poor"
)

// EfficiencyLevel buckets an efficiency score: above 70 is good, above 40 fair.
func EfficiencyLevel(score float64) string {
	switch {
	case score > 70:
		return LevelGood
	case score > 40:
		return LevelFair
	default:
		return LevelPoor
	}
}

// HumidityOptimal reports whether humidity is within the 40-60% comfort band.
func HumidityOptimal(h float64) bool {
	return h >= 40 && h <= 60
}

// Comfort holds the five radar-chart scores, each an integer in [0, 100].
type Comfort struct {
	TempConsistency   float64 `json:"tempConsistency"`
	HumidityControl   float64 `json:"humidityControl"`
	EnergyEfficiency  float64 `json:"energyEfficiency"`
	CostEffectiveness float64 `json:"costEffectiveness"`
	OverallComfort    float64 `json:"overallComfort"`
}

// ComfortMetrics scores the readings on temperature, humidity, energy and cost,
// and combines them with weights 0.3/0.2/0.3/0.2. Components are rounded
// individually; the overall score is computed from the unrounded components.
func ComfortMetrics(rs []reading.Reading, rate Rate) (Comfort, error) {
	tempConsistency, err := TemperatureConsistency(rs)
	if err != nil {
		return Comfort{}, err
	}

	humidityControl := mean(rs, func(r reading.Reading) float64 {
		if HumidityOptimal(r.Humidity) {
			return 100
		}
		return math.Max(0, 100-math.Abs(50-r.Humidity)*2)
	})

	peak := maxEnergy(rs)
	energyEfficiency := mean(rs, func(r reading.Reading) float64 {
		if peak <= 0 {
			return 100
		}
		return math.Max(0, 100-r.EnergyUsage/peak*100)
	})

	avgCost := EnergyUsage(rs) * float64(rate) / float64(len(rs))
	costEffectiveness := math.Max(0, 100-avgCost*10)

	overall := tempConsistency*0.3 + humidityControl*0.2 +
		energyEfficiency*0.3 + costEffectiveness*0.2

	return Comfort{
		TempConsistency:   Round(tempConsistency),
		HumidityControl:   Round(humidityControl),
		EnergyEfficiency:  Round(energyEfficiency),
		CostEffectiveness: Round(costEffectiveness),
		OverallComfort:    Round(overall),
	}, nil
}

// KPI is the current-status bundle shown on the dashboard cards.
type KPI struct {
	CurrentTemp  float64 `json:"currentTemp"`
	DailyCost    float64 `json:"dailyCost"`
	Efficiency   float64 `json:"efficiency"`
	Humidity     float64 `json:"humidity"`
	OutsideTemp  float64 `json:"outsideTemp"`
	Mode         string  `json:"mode"`
	Occupancy    bool    `json:"occupancy"`
	DailyAvgTemp float64 `json:"dailyAvgTemp"`
}

// KPIMetrics reads current status from the last reading and daily cost and
// average temperature from the 24 hours ending at it. The day is elapsed time,
// so sparse series contribute fewer than 24 readings.
func KPIMetrics(rs []reading.Reading, rate Rate) (KPI, error) {
	if err := nonEmpty(rs, "kpi metrics"); err != nil {
		return KPI{}, err
	}
	latest := rs[len(rs)-1]
	daily := reading.Window(rs, 24)

	avg, err := DailyAvgTemp(daily)
	if err != nil {
		return KPI{}, err
	}
	return KPI{
		CurrentTemp:  latest.CurrentTemp,
		DailyCost:    rate.Cost(EnergyUsage(daily)),
		Efficiency:   EfficiencyScore(latest),
		Humidity:     latest.Humidity,
		OutsideTemp:  latest.OutsideTemp,
		Mode:         latest.Mode,
		Occupancy:    latest.Occupancy,
		DailyAvgTemp: avg,
	}, nil
}

// OccupancyEfficiency scores how much less energy is used while the home is
// empty, as a percentage drop from the occupied average, clamped to [0, 100].
// A subset with no readings averages 0.
func OccupancyEfficiency(rs []reading.Reading) (float64, error) {
	if err := nonEmpty(rs, "occupancy efficiency"); err != nil {
		return 0, err
	}
	var occ, unocc []reading.Reading
	for _, r := range rs {
		if r.Occupancy {
			occ = append(occ, r)
		} else {
			unocc = append(unocc, r)
		}
	}
	avg := func(s []reading.Reading) float64 {
		if len(s) == 0 {
			return 0
		}
		return mean(s, energy)
	}
	occAvg, unoccAvg := avg(occ), avg(unocc)

	var ratio float64
	if occAvg > 0 {
		ratio = (occAvg - unoccAvg) / occAvg
	}
	return Round(math.Max(0, math.Min(100, ratio*100))), nil
}

// ModeShare is how often one mode was observed.
type ModeShare struct {
	Mode       string  `json:"mode"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// ModeDistribution counts readings per mode, in order of first appearance.
// Percentages are rounded independently and may not add to exactly 100.
func ModeDistribution(rs []reading.Reading) ([]ModeShare, error) {
	if err := nonEmpty(rs, "mode distribution"); err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	var order []string
	for _, r := range rs {
		if _, ok := counts[r.Mode]; !ok {
			order = append(order, r.Mode)
		}
		counts[r.Mode]++
	}

	total := float64(len(rs))
	out := make([]ModeShare, 0, len(order))
	for _, m := range order {
		out = append(out, ModeShare{
			Mode:       m,
			Count:      counts[m],
			Percentage: Round(float64(counts[m]) / total * 100),
		})
	}
	return out, nil
}

// WeatherImpact scores how well energy use tracks the weather. A reading is
// expected to draw more energy the further outside is from target (saturating
// at 20°F, against 5 kWh of usage); the score is 100 minus the mean mismatch.
func WeatherImpact(rs []reading.Reading) (float64, error) {
	if err := nonEmpty(rs, "weather impact"); err != nil {
		return 0, err
	}
	mismatch := mean(rs, func(r reading.Reading) float64 {
		expected := math.Min(1, math.Abs(r.OutsideTemp-r.TargetTemp)/20)
		actual := math.Min(1, r.EnergyUsage/5)
		return math.Abs(expected - actual)
	})
	return Round(math.Max(0, 100-mismatch*100)), nil
}

// Summary aggregates a slice of readings.
type Summary struct {
	TotalEnergy   float64        `json:"totalEnergy"`
	TotalCost     float64        `json:"totalCost"`
	AvgTemp       float64        `json:"avgTemp"`
	AvgHumidity   float64        `json:"avgHumidity"`
	OccupancyRate float64        `json:"occupancyRate"`
	DataPoints    int            `json:"dataPoints"`
	TimeRange     reading.Period `json:"timeRange"`
}

// SummaryStats totals energy and cost and averages temperature, humidity and
// occupancy over the readings. TimeRange spans the first and last reading.
func SummaryStats(rs []reading.Reading, rate Rate) (Summary, error) {
	avgTemp, err := DailyAvgTemp(rs)
	if err != nil {
		return Summary{}, err
	}
	total := EnergyUsage(rs)
	occupied := 0
	for _, r := range rs {
		if r.Occupancy {
			occupied++
		}
	}
	return Summary{
		TotalEnergy:   Round2(total),
		TotalCost:     rate.Cost(total),
		AvgTemp:       avgTemp,
		AvgHumidity:   Round(mean(rs, func(r reading.Reading) float64 { return r.Humidity })),
		OccupancyRate: Round(float64(occupied) / float64(len(rs)) * 100),
		DataPoints:    len(rs),
		TimeRange: reading.Period{
			Start: rs[0].Timestamp,
			End:   rs[len(rs)-1].Timestamp,
		},
	}, nil
}
