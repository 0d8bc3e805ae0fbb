package metrics

import (
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/andy-wilson/thermostat_dashboard/reading"
)

// EnergyUsage is the total energy of the readings in kWh. It is zero for an
// empty slice.
func EnergyUsage(rs []reading.Reading) float64 {
	return sum(rs, energy)
}

// Breakdown is the share of total energy spent in each mode, in percent.
type Breakdown struct {
	Heating float64 `json:"heating"`
	Cooling float64 `json:"cooling"`
	Standby float64 `json:"standby"`
	Fan     float64 `json:"fan"`
}

// EnergyBreakdown attributes total energy to heating, cooling and off
// ("standby"). Fan is whatever the other three leave of 100, clamped to
// [0, 100]. Each share is rounded on its own, so the four may not add to
// exactly 100.
func EnergyBreakdown(rs []reading.Reading) (Breakdown, error) {
	if err := nonEmpty(rs, "energy breakdown"); err != nil {
		return Breakdown{}, err
	}
	total := EnergyUsage(rs)
	if total == 0 {
		return Breakdown{}, errors.Wrap(ErrZeroBaseline, "energy breakdown: total energy is 0")
	}

	var heating, cooling, standby float64
	for _, r := range rs {
		switch r.Mode {
		case reading.ModeHeating:
			heating += r.EnergyUsage
		case reading.ModeCooling:
			cooling += r.EnergyUsage
		case reading.ModeOff:
			standby += r.EnergyUsage
		}
	}
	pct := func(v float64) float64 { return Round(v / total * 100) }
	fan := 100 - pct(heating+cooling+standby)

	return Breakdown{
		Heating: pct(heating),
		Cooling: pct(cooling),
		Standby: pct(standby),
		Fan:     math.Max(0, math.Min(100, fan)),
	}, nil
}

// DailyCost is the cost of all readings taken on one weekday.
type DailyCost struct {
	Day  string  `json:"day"`
	Cost float64 `json:"cost"`
}

// DailyCosts totals cost per weekday (Sun..Sat). The same weekday in different
// weeks is merged into one bucket. Days appear in the order first seen.
func DailyCosts(rs []reading.Reading, rate Rate) ([]DailyCost, error) {
	if err := nonEmpty(rs, "daily costs"); err != nil {
		return nil, err
	}
	totals := make(map[string]float64)
	var order []string
	for _, r := range rs {
		day := r.Timestamp.Weekday().String()[:3]
		if _, ok := totals[day]; !ok {
			order = append(order, day)
		}
		totals[day] += r.EnergyUsage
	}

	out := make([]DailyCost, 0, len(order))
	for _, day := range order {
		out = append(out, DailyCost{Day: day, Cost: rate.Cost(totals[day])})
	}
	return out, nil
}

// WeeklyCost is the cost of one Sunday-started week.
type WeeklyCost struct {
	Week      string   `json:"week"`
	Cost      float64  `json:"cost"`
	Projected *float64 `json:"projected"`
}

// WeeklyCosts totals cost per week, weeks starting on Sunday in the readings'
// location. Weeks are ascending and labelled "Week 1", "Week 2", ... with no
// gaps, since a week only exists if a reading falls in it.
func WeeklyCosts(rs []reading.Reading, rate Rate) ([]WeeklyCost, error) {
	if err := nonEmpty(rs, "weekly costs"); err != nil {
		return nil, err
	}
	totals := make(map[string]float64)
	var keys []string
	for _, r := range rs {
		t := r.Timestamp
		start := t.AddDate(0, 0, -int(t.Weekday())).Format("2006-01-02")
		if _, ok := totals[start]; !ok {
			keys = append(keys, start)
		}
		totals[start] += r.EnergyUsage
	}
	// ISO dates sort lexically.
	sort.Strings(keys)

	out := make([]WeeklyCost, 0, len(keys))
	for i, k := range keys {
		out = append(out, WeeklyCost{
			Week: fmt.Sprintf("Week %d", i+1),
			Cost: rate.Cost(totals[k]),
		})
	}
	return out, nil
}

// HeatmapPoint is one reading placed on the weekday by hour grid.
type HeatmapPoint struct {
	Day         int     `json:"day"`
	Hour        int     `json:"hour"`
	Intensity   float64 `json:"intensity"`
	EnergyUsage float64 `json:"energyUsage"`
	Occupancy   bool    `json:"occupancy"`
}

// UsageHeatmap scales each reading's energy against the largest in the slice,
// giving an intensity in [0, 1] to two decimals. When no reading used any
// energy every intensity is 0.
func UsageHeatmap(rs []reading.Reading) ([]HeatmapPoint, error) {
	if err := nonEmpty(rs, "usage heatmap"); err != nil {
		return nil, err
	}
	peak := maxEnergy(rs)
	out := make([]HeatmapPoint, 0, len(rs))
	for _, r := range rs {
		var intensity float64
		if peak > 0 {
			intensity = Round2(r.EnergyUsage / peak)
		}
		out = append(out, HeatmapPoint{
			Day:         int(r.Timestamp.Weekday()),
			Hour:        r.Timestamp.Hour(),
			Intensity:   intensity,
			EnergyUsage: r.EnergyUsage,
			Occupancy:   r.Occupancy,
		})
	}
	return out, nil
}
