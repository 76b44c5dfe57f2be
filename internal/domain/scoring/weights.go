package scoring

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// weightSumTolerance allows for rounding noise when validating that a custom
// weight table still sums to 1.0.
const weightSumTolerance = 0.001

// LoadWeights reads a provider weight table from a YAML file of the form:
//
//	VirusTotal: 0.30
//	OTX: 0.20
//	ThreatFox: 0.15
//	URLhaus: 0.15
//	AbuseIPDB: 0.20
//
// The table must be non-empty, every weight must be non-negative, and the
// weights must sum to 1.0.
func LoadWeights(path string) (Weights, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read weights file: %w", err)
	}

	var w Weights
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("parse weights file: %w", err)
	}

	if err := validateWeights(w); err != nil {
		return nil, fmt.Errorf("weights file %s: %w", path, err)
	}

	return w, nil
}

func validateWeights(w Weights) error {
	if len(w) == 0 {
		return fmt.Errorf("no weights defined")
	}

	var sum float64
	for source, weight := range w {
		if weight < 0 {
			return fmt.Errorf("negative weight %.2f for %s", weight, source)
		}
		sum += weight
	}

	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("weights sum to %.3f, want 1.0", sum)
	}

	return nil
}
