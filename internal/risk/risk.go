package risk

import "math"

// Severity is the attendance-risk bucket for a percentage.
type Severity string

const (
	Excellent Severity = "excellent"
	Good      Severity = "good"
	Poor      Severity = "poor"
	Critical  Severity = "critical"
)

// Thresholds are the lower bounds (inclusive) of the Excellent, Good and Poor buckets.
var Thresholds = struct {
	Excellent float64
	Good      float64
	Poor      float64
}{Excellent: 90, Good: 75, Poor: 60}

// All lists severities from best to worst.
var All = []Severity{Excellent, Good, Poor, Critical}

// Classify maps an attendance percentage to its severity bucket.
// Inputs are not clamped; NaN lands in Critical.
func Classify(percentage float64) Severity {
	switch {
	case percentage >= Thresholds.Excellent:
		return Excellent
	case percentage >= Thresholds.Good:
		return Good
	case percentage >= Thresholds.Poor:
		return Poor
	default:
		return Critical
	}
}

// Clamp bounds a percentage to [0,100] for display. NaN becomes 0.
func Clamp(percentage float64) float64 {
	if math.IsNaN(percentage) || percentage < 0 {
		return 0
	}
	if percentage > 100 {
		return 100
	}
	return percentage
}

// Rank orders severities, 0 being the best.
func (s Severity) Rank() int {
	for i, v := range All {
		if v == s {
			return i
		}
	}
	return len(All)
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() < len(All)
}

// AtRisk is true for the buckets that trigger alerts.
func (s Severity) AtRisk() bool {
	return s == Poor || s == Critical
}

// Color is the hex colour the dashboard shows for s.
func (s Severity) Color() string {
	switch s {
	case Excellent:
		return "#10b981"
	case Good:
		return "#3b82f6"
	case Poor:
		return "#f59e0b"
	default:
		return "#ef4444"
	}
}

// Label is the display name of s.
func (s Severity) Label() string {
	switch s {
	case Excellent:
		return "Excellent"
	case Good:
		return "Good"
	case Poor:
		return "Poor"
	default:
		return "Critical"
	}
}

// Distribution counts students per bucket.
type Distribution struct {
	Excellent int `json:"excellent"`
	Good      int `json:"good"`
	Poor      int `json:"poor"`
	Critical  int `json:"critical"`
	Total     int `json:"total"`
}

// Summarize buckets each percentage after clamping it.
func Summarize(percentages []float64) Distribution {
	var d Distribution
	for _, p := range percentages {
		switch Classify(Clamp(p)) {
		case Excellent:
			d.Excellent++
		case Good:
			d.Good++
		case Poor:
			d.Poor++
		default:
			d.Critical++
		}
		d.Total++
	}
	return d
}

// Rate returns the attendance percentage for attended out of total sessions.
// No sessions means nothing was missed, so the rate is 100.
func Rate(attended, total int) float64 {
	if total <= 0 {
		return 100
	}
	return float64(attended) / float64(total) * 100
}
