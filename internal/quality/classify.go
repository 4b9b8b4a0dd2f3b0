package quality

import (
	"encoding/json"
	"fmt"
	"math"
)

// Legibility is the gate decision.
type Legibility int

const (
	Illegible Legibility = iota
	Legible
)

func (l Legibility) String() string {
	if l == Legible {
		return "legible"
	}
	return "illegible"
}

func (l Legibility) MarshalJSON() ([]byte, error) { return json.Marshal(l.String()) }

func (l *Legibility) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "legible":
		*l = Legible
	case "illegible":
		*l = Illegible
	default:
		return fmt.Errorf("unknown legibility %q", s)
	}
	return nil
}

// PassScore is the score a page must exceed to be Legible.
const PassScore = 1.0

// Score is Σ weight·metric/threshold. Every term grows with its metric, noise
// included: high-frequency residual counts as detail, not as degradation.
func Score(m Metrics, p Profile) float64 {
	return term(p.Weights.Sharpness, m.Sharpness, p.Thresholds.Sharpness) +
		term(p.Weights.EdgeDensity, m.EdgeDensity, p.Thresholds.EdgeDensity) +
		term(p.Weights.NoiseLevel, m.NoiseLevel, p.Thresholds.NoiseLevel)
}

// term keeps the sum finite whatever the inputs.
func term(weight, metric, threshold float64) float64 {
	if threshold <= 0 || math.IsNaN(metric) {
		return 0
	}
	v := weight * metric / threshold
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64 / 4
	case math.IsInf(v, -1):
		return -math.MaxFloat64 / 4
	}
	return v
}

// Classify scores m under p and applies the strict PassScore cut.
func Classify(m Metrics, p Profile) (Legibility, float64) {
	s := Score(m, p)
	if s > PassScore {
		return Legible, s
	}
	return Illegible, s
}
