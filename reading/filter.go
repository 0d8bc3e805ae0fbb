package reading

import (
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
)

// Criteria selects readings. Every set field must match (logical AND); nil or
// empty fields are ignored. Temperature and energy bounds are inclusive.
type Criteria struct {
	Mode      string   `json:"mode,omitempty"`
	Occupancy *bool    `json:"occupancy,omitempty"`
	MinTemp   *float64 `json:"minTemp,omitempty"`
	MaxTemp   *float64 `json:"maxTemp,omitempty"`
	MinEnergy *float64 `json:"minEnergy,omitempty"`
	MaxEnergy *float64 `json:"maxEnergy,omitempty"`
}

// Empty reports whether no criterion is set.
func (c Criteria) Empty() bool {
	return c.Mode == "" && c.Occupancy == nil &&
		c.MinTemp == nil && c.MaxTemp == nil &&
		c.MinEnergy == nil && c.MaxEnergy == nil
}

// Validate rejects inverted bounds.
func (c Criteria) Validate() error {
	if c.MinTemp != nil && c.MaxTemp != nil && *c.MinTemp > *c.MaxTemp {
		return errors.Wrapf(ErrInvalidRange, "minTemp %.1f exceeds maxTemp %.1f", *c.MinTemp, *c.MaxTemp)
	}
	if c.MinEnergy != nil && c.MaxEnergy != nil && *c.MinEnergy > *c.MaxEnergy {
		return errors.Wrapf(ErrInvalidRange, "minEnergy %.2f exceeds maxEnergy %.2f", *c.MinEnergy, *c.MaxEnergy)
	}
	return nil
}

// Match reports whether r satisfies every set criterion.
func (c Criteria) Match(r Reading) bool {
	if c.Mode != "" && r.Mode != c.Mode {
		return false
	}
	if c.Occupancy != nil && r.Occupancy != *c.Occupancy {
		return false
	}
	if c.MinTemp != nil && r.CurrentTemp < *c.MinTemp {
		return false
	}
	if c.MaxTemp != nil && r.CurrentTemp > *c.MaxTemp {
		return false
	}
	if c.MinEnergy != nil && r.EnergyUsage < *c.MinEnergy {
		return false
	}
	if c.MaxEnergy != nil && r.EnergyUsage > *c.MaxEnergy {
		return false
	}
	return true
}

// Filter returns the readings matching c, preserving order.
func Filter(rs []Reading, c Criteria) []Reading {
	out := make([]Reading, 0, len(rs))
	for _, r := range rs {
		if c.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// DayGroup holds the readings of one calendar date.
type DayGroup struct {
	Date     string    `json:"date"`
	Readings []Reading `json:"readings"`
}

// HourGroup holds the readings taken in one hour of the day.
type HourGroup struct {
	Hour     int       `json:"hour"`
	Readings []Reading `json:"readings"`
}

// GroupByDay buckets readings by calendar date (YYYY-MM-DD in the timestamp's
// location), ascending by date.
func GroupByDay(rs []Reading) []DayGroup {
	groups := make(map[string][]Reading)
	for _, r := range rs {
		key := r.Timestamp.Format("2006-01-02")
		groups[key] = append(groups[key], r)
	}
	keys := maps.Keys(groups)
	sort.Strings(keys)

	out := make([]DayGroup, 0, len(keys))
	for _, k := range keys {
		out = append(out, DayGroup{Date: k, Readings: groups[k]})
	}
	return out
}

// GroupByHour buckets readings by hour of day (0-23), ascending by hour. Hours
// without readings are omitted.
func GroupByHour(rs []Reading) []HourGroup {
	groups := make(map[int][]Reading)
	for _, r := range rs {
		h := r.Timestamp.Hour()
		groups[h] = append(groups[h], r)
	}
	keys := maps.Keys(groups)
	sort.Ints(keys)

	out := make([]HourGroup, 0, len(keys))
	for _, k := range keys {
		out = append(out, HourGroup{Hour: k, Readings: groups[k]})
	}
	return out
}
