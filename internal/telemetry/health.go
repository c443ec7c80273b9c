package telemetry

// Health is a coarse summary of the tank population.
type Health string

// Health values.
const (
	HealthGood           Health = "good"
	HealthNeedsAttention Health = "needs_attention"
)

// healthyRatio is the share of a threshold a species must reach to count as healthy.
const healthyRatio = 0.8

// Summarize reports HealthGood when every target is at or above 80% of its
// threshold.
func Summarize(s MonitoringState, targets []SpeciesTarget) Health {
	for _, t := range targets {
		if float64(s.SpeciesCounts[t.Name]) < float64(t.Threshold)*healthyRatio {
			return HealthNeedsAttention
		}
	}
	return HealthGood
}
