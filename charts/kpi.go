package charts

import (
	"github.com/andy-wilson/thermostat_dashboard/metrics"
	"github.com/andy-wilson/thermostat_dashboard/reading"
)

// Comparison flags for the current temperature card.
const (
	AboveAverage = "above_average"
	BelowAverage = "below_average"
)

// TempCard is the current temperature card.
type TempCard struct {
	Title      string  `json:"title"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Target     float64 `json:"target"`
	Comparison string  `json:"comparison"`
}

// ValueCard is a plain KPI card.
type ValueCard struct {
	Title       string  `json:"title"`
	Value       float64 `json:"value"`
	Unit        string  `json:"unit"`
	Description string  `json:"description"`
}

// EfficiencyCard is the efficiency card with its level bucket.
type EfficiencyCard struct {
	ValueCard
	Level string `json:"level"`
}

// HumidityCard is the humidity card with its comfort flag.
type HumidityCard struct {
	ValueCard
	Optimal bool `json:"optimal"`
}

// ModeCard shows what the system is doing and whether anyone is home.
type ModeCard struct {
	Title       string `json:"title"`
	Value       string `json:"value"`
	Occupancy   bool   `json:"occupancy"`
	Description string `json:"description"`
}

// KPICards is the set of dashboard cards.
type KPICards struct {
	CurrentTemp TempCard       `json:"currentTemp"`
	DailyCost   ValueCard      `json:"dailyCost"`
	Efficiency  EfficiencyCard `json:"efficiency"`
	Humidity    HumidityCard   `json:"humidity"`
	OutsideTemp ValueCard      `json:"outsideTemp"`
	SystemMode  ModeCard       `json:"systemMode"`
}

// KPI decorates the KPI bundle with titles, units and flags. latest supplies
// the target temperature.
func KPI(k metrics.KPI, latest reading.Reading) KPICards {
	comparison := BelowAverage
	if k.CurrentTemp > k.DailyAvgTemp {
		comparison = AboveAverage
	}
	occupancy := "Unoccupied"
	if k.Occupancy {
		occupancy = "Occupied"
	}

	return KPICards{
		CurrentTemp: TempCard{
			Title:      "Current Temperature",
			Value:      k.CurrentTemp,
			Unit:       "°F",
			Target:     latest.TargetTemp,
			Comparison: comparison,
		},
		DailyCost: ValueCard{
			Title:       "Daily Cost",
			Value:       k.DailyCost,
			Unit:        "$",
			Description: "Energy usage cost",
		},
		Efficiency: EfficiencyCard{
			ValueCard: ValueCard{
				Title:       "Efficiency Score",
				Value:       k.Efficiency,
				Unit:        "%",
				Description: "System performance",
			},
			Level: metrics.EfficiencyLevel(k.Efficiency),
		},
		Humidity: HumidityCard{
			ValueCard: ValueCard{
				Title:       "Humidity",
				Value:       k.Humidity,
				Unit:        "%",
				Description: "Current humidity level",
			},
			Optimal: metrics.HumidityOptimal(k.Humidity),
		},
		OutsideTemp: ValueCard{
			Title:       "Outside Temperature",
			Value:       k.OutsideTemp,
			Unit:        "°F",
			Description: "Weather conditions",
		},
		SystemMode: ModeCard{
			Title:       "System Mode",
			Value:       k.Mode,
			Occupancy:   k.Occupancy,
			Description: occupancy,
		},
	}
}
