package dashboard

import (
	"context"
	"math"
	"time"

	"github.com/andy-wilson/thermostat_dashboard/metrics"
	"github.com/andy-wilson/thermostat_dashboard/reading"
)

// Component and overall health states.
const (
	StatusGood    = "good"
	StatusWarning = "warning"

	OverallHealthy        = "healthy"
	OverallNeedsAttention = "needs_attention"
)

// Recommendation texts, in the order the rules fire.
const (
	RecommendAboveTarget = "Current temperature is significantly above target. Consider adjusting thermostat or checking for heat sources."
	RecommendBelowTarget = "Current temperature is significantly below target. System may need maintenance or insulation check."
	RecommendEnergy      = "Energy efficiency is low. Consider scheduling maintenance or adjusting temperature settings."
	RecommendHumidify    = "Humidity is too low. Consider using a humidifier."
	RecommendDehumidify  = "Humidity is too high. Consider using a dehumidifier or improving ventilation."
	RecommendNone        = "System is operating optimally. No immediate actions needed."
)

// tempTolerance is how far from target, in °F, the room may drift and still
// count as good.
const tempTolerance = 2.0

// TemperatureHealth compares the room with its target.
type TemperatureHealth struct {
	Status     string  `json:"status"`
	Current    float64 `json:"current"`
	Target     float64 `json:"target"`
	Difference float64 `json:"difference"`
}

// EnergyHealth carries the efficiency bucket and the day's cost.
type EnergyHealth struct {
	Status     string  `json:"status"`
	Efficiency float64 `json:"efficiency"`
	DailyCost  float64 `json:"dailyCost"`
}

// HumidityHealth flags humidity outside the comfort band.
type HumidityHealth struct {
	Status  string  `json:"status"`
	Current float64 `json:"current"`
	Optimal bool    `json:"optimal"`
}

// SystemState is what the thermostat last reported.
type SystemState struct {
	Mode        string    `json:"mode"`
	Occupancy   bool      `json:"occupancy"`
	LastReading time.Time `json:"lastReading"`
}

// Components groups the per-component health.
type Components struct {
	Temperature TemperatureHealth `json:"temperature"`
	Energy      EnergyHealth      `json:"energy"`
	Humidity    HumidityHealth    `json:"humidity"`
	System      SystemState       `json:"system"`
}

// HealthReport is the classified state of the system with recommendations.
type HealthReport struct {
	Overall         string     `json:"overall"`
	Components      Components `json:"components"`
	Recommendations []string   `json:"recommendations"`
}

// Health classifies the system from the last 24 hours of readings.
func (s *Service) Health(ctx context.Context) (HealthReport, error) {
	rs, err := s.window(ctx, 24)
	if err != nil {
		return HealthReport{}, err
	}
	if err := requireData(rs, "system health"); err != nil {
		return HealthReport{}, err
	}
	kpi, err := metrics.KPIMetrics(rs, s.rate)
	if err != nil {
		return HealthReport{}, err
	}
	return Classify(kpi, rs[len(rs)-1]), nil
}

// Classify derives the health report from the KPI bundle and the latest
// reading. A component is good when the room is within 2°F of target, the
// efficiency level is good, and humidity is within 40-60%. The system is
// healthy only when all three are good.
func Classify(kpi metrics.KPI, latest reading.Reading) HealthReport {
	diff := latest.CurrentTemp - latest.TargetTemp

	tempStatus := StatusGood
	if math.Abs(diff) >= tempTolerance {
		tempStatus = StatusWarning
	}
	energyStatus := metrics.EfficiencyLevel(kpi.Efficiency)
	optimal := metrics.HumidityOptimal(latest.Humidity)
	humidityStatus := StatusGood
	if !optimal {
		humidityStatus = StatusWarning
	}

	overall := OverallNeedsAttention
	if tempStatus == StatusGood && energyStatus == metrics.LevelGood && humidityStatus == StatusGood {
		overall = OverallHealthy
	}

	return HealthReport{
		Overall: overall,
		Components: Components{
			Temperature: TemperatureHealth{
				Status:     tempStatus,
				Current:    latest.CurrentTemp,
				Target:     latest.TargetTemp,
				Difference: math.Abs(diff),
			},
			Energy: EnergyHealth{
				Status:     energyStatus,
				Efficiency: kpi.Efficiency,
				DailyCost:  kpi.DailyCost,
			},
			Humidity: HumidityHealth{
				Status:  humidityStatus,
				Current: latest.Humidity,
				Optimal: optimal,
			},
			System: SystemState{
				Mode:        latest.Mode,
				Occupancy:   latest.Occupancy,
				LastReading: latest.Timestamp,
			},
		},
		Recommendations: recommend(tempStatus, energyStatus, humidityStatus, latest),
	}
}

// recommend applies the rules in fixed order. A temperature warning always
// means |diff| >= 2, so it always yields one of the two temperature hints.
func recommend(temp, energy, humidity string, latest reading.Reading) []string {
	var out []string
	if temp == StatusWarning {
		if latest.CurrentTemp > latest.TargetTemp {
			out = append(out, RecommendAboveTarget)
		} else {
			out = append(out, RecommendBelowTarget)
		}
	}
	if energy == metrics.LevelPoor {
		out = append(out, RecommendEnergy)
	}
	if humidity == StatusWarning {
		if latest.Humidity < 40 {
			out = append(out, RecommendHumidify)
		} else {
			out = append(out, RecommendDehumidify)
		}
	}
	if len(out) == 0 {
		out = append(out, RecommendNone)
	}
	return out
}
