package analysis

import "fmt"

// HealthMonitoringThreshold: consensus health below this triggers monitoring.
const HealthMonitoringThreshold = 70

const severitySevere = "severe"

// Synthesize turns a consensus into recommendations. Every rule is evaluated
// independently; emission order is health, then pests, then diseases, each in
// consensus list order.
func Synthesize(c ConsensusResult) []Recommendation {
	out := []Recommendation{}

	if c.Health != nil && c.Health.OverallHealth < HealthMonitoringThreshold {
		out = append(out, Recommendation{
			Category:    CategoryMonitoring,
			Priority:    PriorityHigh,
			Title:       "Plant health requires attention",
			Description: fmt.Sprintf("Overall health score is %d/100, below the %d threshold.", c.Health.OverallHealth, HealthMonitoringThreshold),
			Action:      "Increase monitoring frequency and check watering, light and nutrient levels.",
			Timeline:    "within 24 hours",
			Confidence:  0.9,
		})
	}

	for _, p := range c.Pests {
		out = append(out, Recommendation{
			Category:    CategoryPestControl,
			Priority:    priorityFor(p.Severity),
			Title:       fmt.Sprintf("Pest detected: %s", p.Type),
			Description: describe(p.Type, p.Severity, p.AffectedArea),
			Action:      orDefault(p.Treatment, fmt.Sprintf("Apply targeted control for %s and isolate affected plants.", p.Type)),
			Timeline:    "within 48 hours",
			Confidence:  p.Confidence,
		})
	}

	for _, d := range c.Diseases {
		out = append(out, Recommendation{
			Category:    CategoryDiseaseTreatment,
			Priority:    priorityFor(d.Severity),
			Title:       fmt.Sprintf("Disease detected: %s", d.Type),
			Description: describe(d.Type, d.Severity, ""),
			Action:      orDefault(d.Treatment, fmt.Sprintf("Remove affected tissue and start treatment for %s.", d.Type)),
			Timeline:    "immediately",
			Confidence:  d.Confidence,
		})
	}
	return out
}

func priorityFor(severity string) Priority {
	if severity == severitySevere {
		return PriorityCritical
	}
	return PriorityHigh
}

func describe(kind, severity, area string) string {
	s := fmt.Sprintf("%s detected", kind)
	if severity != "" {
		s += fmt.Sprintf(" with %s severity", severity)
	}
	if area != "" {
		s += fmt.Sprintf(" on %s", area)
	}
	return s + "."
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
