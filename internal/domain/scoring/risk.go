package scoring

import (
	"math"

	"github.com/threatlens/threatlens/internal/entity"
)

// MaliciousThreshold is the composite score above which an indicator is
// reported as malicious, on the 0-100 scale.
const MaliciousThreshold = 50.0

// assertedFallbackScore is the normalized score given to a provider that has
// no "out of N vendors" notion but still asserts maliciousness. Such a source
// must not be silently scored 0.
const assertedFallbackScore = 75.0

// Weights maps a provider name to its share of the composite score. Provider
// names absent from the table contribute zero weight and are excluded from
// both sides of the weighted average, so experimental sources can ride along
// without corrupting the score.
type Weights map[string]float64

// DefaultWeights returns the production weight table. The five known sources
// sum to 1.0.
func DefaultWeights() Weights {
	return Weights{
		entity.SourceVirusTotal: 0.30,
		entity.SourceOTX:        0.20,
		entity.SourceThreatFox:  0.15,
		entity.SourceURLhaus:    0.15,
		entity.SourceAbuseIPDB:  0.20,
	}
}

// Calculator combines per-source results into a single 0-100 risk score.
// The weight table is fixed at construction; Calculator itself is stateless
// and safe for concurrent use.
type Calculator struct {
	weights Weights
}

// NewCalculator builds a Calculator with its own copy of the weight table.
func NewCalculator(w Weights) *Calculator {
	if w == nil {
		w = DefaultWeights()
	}
	owned := make(Weights, len(w))
	for source, weight := range w {
		owned[source] = weight
	}
	return &Calculator{weights: owned}
}

// Score computes the weighted average of the normalized per-source scores.
//
// Errored results are skipped entirely: they contribute to neither the
// numerator nor the denominator, so an unreachable source never counts as a
// clean vote. The average is taken over the weight that actually applied;
// when no weighted, non-errored result remains the score is 0.
//
// The result is rounded to two decimal places and always lies in [0, 100].
func (c *Calculator) Score(results []entity.SourceResult) float64 {
	var weightedSum, appliedWeight float64

	for _, r := range results {
		if r.IsError() {
			continue
		}

		weight, ok := c.weights[r.Source]
		if !ok || weight == 0 {
			continue
		}

		weightedSum += c.normalize(r) * weight
		appliedWeight += weight
	}

	if appliedWeight == 0 {
		return 0
	}

	return math.Round(weightedSum/appliedWeight*100) / 100
}

// normalize rescales one result to the common 0-100 range. Sources like OTX
// report raw occurrence counts against TotalVendors 1, which would overshoot
// the scale, so the value is capped at 100.
func (c *Calculator) normalize(r entity.SourceResult) float64 {
	// AbuseIPDB already reports a 0-100 confidence; use it as-is.
	if r.Source == entity.SourceAbuseIPDB {
		return clamp(float64(r.Detections))
	}

	if r.TotalVendors > 0 {
		return clamp(float64(r.Detections) / float64(r.TotalVendors) * 100)
	}

	if r.Malicious {
		return assertedFallbackScore
	}

	return 0
}

func clamp(score float64) float64 {
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

// Verdict reports whether a composite score crosses the malicious threshold.
func (c *Calculator) Verdict(score float64) bool {
	return score > MaliciousThreshold
}
