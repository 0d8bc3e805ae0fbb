package assistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/andy-wilson/thermostat_dashboard/dashboard"
	"github.com/andy-wilson/thermostat_dashboard/reading"
)

const promptTemplate = `You are an AI assistant for a smart thermostat system. Answer questions based only on the provided context data.

Context Data for {TIME_RANGE}:
{CONTEXT_DATA}

User Question: {USER_PROMPT}

Instructions:
- Answer based only on the provided context data
- Return your response in clean, semantic HTML format
- Use the following HTML structure and CSS classes:
  * <h3 class="ai-section-title"> for main section headers
  * <div class="ai-metric"> for important metrics and numbers
  * <ul class="ai-list"> and <li> for lists
  * <strong> for emphasis on key points
  * <span class="ai-value"> for numerical values
  * <div class="ai-recommendation"> for recommendations or suggestions
  * <p class="ai-summary"> for summary paragraphs
- Be specific and include relevant numbers from the data
- If the data doesn't contain information to answer the question, say so clearly
- Keep responses concise but informative
- Use temperature in Fahrenheit and energy in kWh
- Do not include any markdown formatting
- Ensure all HTML tags are properly closed

Answer:`

// NoDataResponse is the answer given when there are no readings to talk about.
const NoDataResponse = `<div class="ai-no-data">
  <h3 class="ai-section-title">No Data Available</h3>
  <p class="ai-summary">I don't have enough data to answer your question. Please check if the system is collecting data properly.</p>
</div>`

// BuildPrompt fills the instruction template with the question and context.
func BuildPrompt(question, context, timeRange string) string {
	return strings.NewReplacer(
		"{TIME_RANGE}", timeRange,
		"{CONTEXT_DATA}", context,
		"{USER_PROMPT}", question,
	).Replace(promptTemplate)
}

// Snapshot is everything the context block is rendered from.
type Snapshot struct {
	TimeRange string
	Latest    reading.Reading
	Dashboard dashboard.Dashboard
	Health    dashboard.HealthReport
}

// BuildContext renders the snapshot as the plain-text block the model reads.
func BuildContext(s Snapshot) string {
	occupancy := "Vacant"
	if s.Latest.Occupancy {
		occupancy = "Occupied"
	}
	sum := s.Dashboard.Summary
	h := s.Health.Components
	c := s.Dashboard.Charts

	var b strings.Builder
	fmt.Fprintf(&b, "\nCURRENT STATUS:\n")
	fmt.Fprintf(&b, "- Current Temperature: %v°F\n", s.Latest.CurrentTemp)
	fmt.Fprintf(&b, "- Target Temperature: %v°F\n", s.Latest.TargetTemp)
	fmt.Fprintf(&b, "- System Mode: %s\n", s.Latest.Mode)
	fmt.Fprintf(&b, "- Occupancy: %s\n", occupancy)
	fmt.Fprintf(&b, "- Humidity: %v%%\n", s.Latest.Humidity)
	fmt.Fprintf(&b, "- Last Updated: %s\n", s.Latest.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"))

	fmt.Fprintf(&b, "\nSUMMARY STATISTICS (%s):\n", s.TimeRange)
	fmt.Fprintf(&b, "- Average Temperature: %v°F\n", sum.AvgTemp)
	fmt.Fprintf(&b, "- Total Energy Usage: %v kWh\n", sum.TotalEnergy)
	fmt.Fprintf(&b, "- Total Cost: $%v\n", sum.TotalCost)
	fmt.Fprintf(&b, "- Occupancy Rate: %v%%\n", sum.OccupancyRate)
	fmt.Fprintf(&b, "- Data Points: %d\n", s.Dashboard.Metadata.DataPoints)

	fmt.Fprintf(&b, "\nSYSTEM HEALTH:\n")
	fmt.Fprintf(&b, "- Overall Status: %s\n", s.Health.Overall)
	fmt.Fprintf(&b, "- Temperature Health: %s\n", h.Temperature.Status)
	fmt.Fprintf(&b, "- Energy Efficiency: %s\n", h.Energy.Status)
	fmt.Fprintf(&b, "- Humidity Status: %s\n", h.Humidity.Status)
	fmt.Fprintf(&b, "- Current Efficiency: %v%%\n", h.Energy.Efficiency)
	fmt.Fprintf(&b, "- Daily Cost: $%v\n", h.Energy.DailyCost)

	fmt.Fprintf(&b, "\nENERGY DATA:\n")
	fmt.Fprintf(&b, "- Weekly Costs: %s\n", compact(c.WeeklyCostsChart))
	fmt.Fprintf(&b, "- Energy Breakdown: %s\n", compact(c.EnergyBreakdownChart))

	fmt.Fprintf(&b, "\nTEMPERATURE PATTERNS:\n")
	fmt.Fprintf(&b, "- Temperature Chart Data: %s\n", compact(c.TemperatureChart))

	fmt.Fprintf(&b, "\nUSAGE PATTERNS:\n")
	fmt.Fprintf(&b, "- Heatmap Data: %s\n", compact(c.HeatmapChart))

	fmt.Fprintf(&b, "\nRECOMMENDATIONS:\n")
	fmt.Fprintf(&b, "%s\n", strings.Join(s.Health.Recommendations, "\n- "))
	return b.String()
}

func compact(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(raw)
}
