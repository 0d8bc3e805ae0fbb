package metrics

import (
	"math"
	"time"

	"github.com/andy-wilson/thermostat_dashboard/reading"
)

// Trends holds the parallel series drawn by the temperature line chart.
type Trends struct {
	Hours        []int     `json:"hours"`
	CurrentTemps []float64 `json:"currentTemps"`
	TargetTemps  []float64 `json:"targetTemps"`
	OutsideTemps []float64 `json:"outsideTemps"`
}

// TemperatureTrends splits readings into hour-of-day and temperature series.
func TemperatureTrends(rs []reading.Reading) Trends {
	t := Trends{
		Hours:        make([]int, len(rs)),
		CurrentTemps: make([]float64, len(rs)),
		TargetTemps:  make([]float64, len(rs)),
		OutsideTemps: make([]float64, len(rs)),
	}
	for i, r := range rs {
		t.Hours[i] = r.Timestamp.Hour()
		t.CurrentTemps[i] = r.CurrentTemp
		t.TargetTemps[i] = r.TargetTemp
		t.OutsideTemps[i] = r.OutsideTemp
	}
	return t
}

// EfficiencyScore rates a single reading from 0 to 100 by how close it holds the
// target and how little energy it spends doing so. Holding a room more than
// 10°F away from the outside temperature costs a 20% penalty.
func EfficiencyScore(r reading.Reading) float64 {
	tempDiff := math.Abs(r.CurrentTemp - r.TargetTemp)
	outsideDiff := math.Abs(r.CurrentTemp - r.OutsideTemp)

	tempEfficiency := math.Max(0, 100-tempDiff*20)
	energyEfficiency := 100.0
	if r.EnergyUsage > 0 {
		energyEfficiency = math.Max(0, 100-r.EnergyUsage*10)
	}
	weatherFactor := 1.0
	if outsideDiff > 10 {
		weatherFactor = 0.8
	}
	return Round((tempEfficiency + energyEfficiency) / 2 * weatherFactor)
}

// TemperatureConsistency is the mean per-reading closeness to target, where
// each degree of deviation costs 25 points.
func TemperatureConsistency(rs []reading.Reading) (float64, error) {
	if err := nonEmpty(rs, "temperature consistency"); err != nil {
		return 0, err
	}
	score := mean(rs, func(r reading.Reading) float64 {
		return math.Max(0, 100-math.Abs(r.CurrentTemp-r.TargetTemp)*25)
	})
	return Round(score), nil
}

// DailyAvgTemp is the mean current temperature, to one decimal.
func DailyAvgTemp(rs []reading.Reading) (float64, error) {
	if err := nonEmpty(rs, "average temperature"); err != nil {
		return 0, err
	}
	return Round1(mean(rs, temp)), nil
}

// CurrentTemps is the latest reading's temperatures.
type CurrentTemps struct {
	Current float64 `json:"current"`
	Target  float64 `json:"target"`
	Outside float64 `json:"outside"`
}

// CurrentTemperature returns the temperatures of the last reading.
func CurrentTemperature(rs []reading.Reading) (CurrentTemps, error) {
	if err := nonEmpty(rs, "current temperature"); err != nil {
		return CurrentTemps{}, err
	}
	latest := rs[len(rs)-1]
	return CurrentTemps{
		Current: latest.CurrentTemp,
		Target:  latest.TargetTemp,
		Outside: latest.OutsideTemp,
	}, nil
}

// TemperatureVariance is the population variance of the current temperature,
// to two decimals.
func TemperatureVariance(rs []reading.Reading) (float64, error) {
	if err := nonEmpty(rs, "temperature variance"); err != nil {
		return 0, err
	}
	m := mean(rs, temp)
	v := mean(rs, func(r reading.Reading) float64 {
		d := r.CurrentTemp - m
		return d * d
	})
	return Round2(v), nil
}

// TempPoint is a temperature and when it was observed.
type TempPoint struct {
	Temp      float64   `json:"temp"`
	Timestamp time.Time `json:"timestamp"`
}

// Extremes holds the coldest and warmest readings.
type Extremes struct {
	Min TempPoint `json:"min"`
	Max TempPoint `json:"max"`
}

// TemperatureExtremes finds the lowest and highest current temperature. Ties
// resolve to the earliest reading.
func TemperatureExtremes(rs []reading.Reading) (Extremes, error) {
	if err := nonEmpty(rs, "temperature extremes"); err != nil {
		return Extremes{}, err
	}
	lo, hi := rs[0], rs[0]
	for _, r := range rs[1:] {
		if r.CurrentTemp < lo.CurrentTemp {
			lo = r
		}
		if r.CurrentTemp > hi.CurrentTemp {
			hi = r
		}
	}
	return Extremes{
		Min: TempPoint{Temp: lo.CurrentTemp, Timestamp: lo.Timestamp},
		Max: TempPoint{Temp: hi.CurrentTemp, Timestamp: hi.Timestamp},
	}, nil
}
