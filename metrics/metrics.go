// Package metrics holds the scoring formulas and aggregates derived from a
// sequence of thermostat readings. Every function is pure: it reads its input
// slice, never mutates it, and returns ErrNoData instead of dividing by zero.
package metrics

import (
	"math"

	"github.com/pkg/errors"

	"github.com/andy-wilson/thermostat_dashboard/reading"
)

var (
	// ErrNoData is returned by any aggregate asked to work on zero readings.
	ErrNoData = errors.New("no readings")
	// ErrZeroBaseline is returned when a ratio's denominator is zero.
	ErrZeroBaseline = errors.New("zero baseline")
)

// Rate is the electricity price in dollars per kWh.
type Rate float64

// DefaultRate is the household tariff used when none is configured.
const DefaultRate Rate = 0.12

// Cost converts energy to dollars, rounded to cents.
func (r Rate) Cost(kWh float64) float64 {
	return Round2(kWh * float64(r))
}

// Round rounds half up toward positive infinity, so -2.5 becomes -2.
func Round(x float64) float64 {
	return math.Floor(x + 0.5)
}

// Round1 rounds to one decimal place.
func Round1(x float64) float64 {
	return math.Floor(x*10+0.5) / 10
}

// Round2 rounds to two decimal places.
func Round2(x float64) float64 {
	return math.Floor(x*100+0.5) / 100
}

func nonEmpty(rs []reading.Reading, what string) error {
	if len(rs) == 0 {
		return errors.Wrap(ErrNoData, what)
	}
	return nil
}

func sum(rs []reading.Reading, field func(reading.Reading) float64) float64 {
	var total float64
	for _, r := range rs {
		total += field(r)
	}
	return total
}

func mean(rs []reading.Reading, field func(reading.Reading) float64) float64 {
	return sum(rs, field) / float64(len(rs))
}

func maxEnergy(rs []reading.Reading) float64 {
	m := math.Inf(-1)
	for _, r := range rs {
		m = math.Max(m, r.EnergyUsage)
	}
	return m
}

func energy(r reading.Reading) float64 { return r.EnergyUsage }
func temp(r reading.Reading) float64   { return r.CurrentTemp }
