package scoring

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatlens/threatlens/internal/entity"
)

func TestScoreErrorIsolation(t *testing.T) {
	calc := NewCalculator(DefaultWeights())

	// One clean VirusTotal result (0 of 90 engines) and one errored OTX
	// result. The errored source must drop out of both numerator and
	// denominator, leaving exactly the clean source's normalized score.
	results := []entity.SourceResult{
		{Source: entity.SourceVirusTotal, Detections: 0, TotalVendors: 90},
		entity.ErrorResult(entity.SourceOTX, errors.New("connection refused")),
	}

	assert.Equal(t, 0.0, calc.Score(results))

	// Same layout with a non-zero clean score: the composite must equal
	// the clean source's normalized value, not a blend with a phantom 0.
	results[0].Detections = 45
	assert.Equal(t, 50.0, calc.Score(results))
}

func TestScoreAllErrored(t *testing.T) {
	calc := NewCalculator(DefaultWeights())

	results := []entity.SourceResult{
		entity.ErrorResult(entity.SourceVirusTotal, errors.New("timeout")),
		entity.ErrorResult(entity.SourceOTX, errors.New("rate limit exceeded")),
		entity.ErrorResult(entity.SourceThreatFox, errors.New("status 502")),
		entity.ErrorResult(entity.SourceURLhaus, errors.New("status 502")),
		entity.ErrorResult(entity.SourceAbuseIPDB, errors.New("proxy unreachable")),
	}

	score := calc.Score(results)
	assert.Equal(t, 0.0, score)
	assert.False(t, calc.Verdict(score))
}

func TestScoreAssertedFallback(t *testing.T) {
	calc := NewCalculator(Weights{entity.SourceThreatFox: 1.0})

	// A source with no vendor notion that still asserts maliciousness is
	// scored exactly 75, not 0 and not 100.
	results := []entity.SourceResult{
		{Source: entity.SourceThreatFox, Malicious: true, TotalVendors: 0},
	}
	assert.Equal(t, 75.0, calc.Score(results))

	// Not malicious and no vendors: scores 0.
	results[0].Malicious = false
	assert.Equal(t, 0.0, calc.Score(results))
}

func TestScoreAbuseIPDBDirect(t *testing.T) {
	calc := NewCalculator(DefaultWeights())

	// AbuseIPDB's confidence is used as-is, not rescaled through its
	// totalVendors value.
	results := []entity.SourceResult{
		{Source: entity.SourceAbuseIPDB, Malicious: true, Detections: 80, TotalVendors: 100},
	}
	assert.Equal(t, 80.0, calc.Score(results))
}

func TestScoreUnweightedSourceExcluded(t *testing.T) {
	calc := NewCalculator(DefaultWeights())

	// An experimental source absent from the weight table must not pull
	// the composite in either direction.
	results := []entity.SourceResult{
		{Source: entity.SourceVirusTotal, Detections: 45, TotalVendors: 90},
		{Source: "GreyNoise", Detections: 100, TotalVendors: 100},
	}
	assert.Equal(t, 50.0, calc.Score(results))
}

func TestScoreCompositeExample(t *testing.T) {
	calc := NewCalculator(DefaultWeights())

	// VirusTotal 18/94 engines -> 19.15 normalized at weight .30,
	// AbuseIPDB raw confidence 80 at weight .20, everything else errored:
	// ((19.15*.30)+(80*.20)) / .50 = 43.49.
	results := []entity.SourceResult{
		{Source: entity.SourceVirusTotal, Malicious: true, Detections: 18, TotalVendors: 94},
		entity.ErrorResult(entity.SourceOTX, errors.New("unreachable")),
		entity.ErrorResult(entity.SourceThreatFox, errors.New("unreachable")),
		entity.ErrorResult(entity.SourceURLhaus, errors.New("unreachable")),
		{Source: entity.SourceAbuseIPDB, Malicious: true, Detections: 80, TotalVendors: 100},
	}

	score := calc.Score(results)
	assert.InDelta(t, 43.49, score, 0.005)
	assert.False(t, calc.Verdict(score))
}

func TestScoreBounds(t *testing.T) {
	calc := NewCalculator(DefaultWeights())

	combos := [][]entity.SourceResult{
		{
			{Source: entity.SourceVirusTotal, Detections: 94, TotalVendors: 94},
			{Source: entity.SourceOTX, Detections: 1, TotalVendors: 1},
			{Source: entity.SourceThreatFox, Detections: 1, TotalVendors: 1},
			{Source: entity.SourceURLhaus, Detections: 1, TotalVendors: 1},
			{Source: entity.SourceAbuseIPDB, Detections: 100, TotalVendors: 100},
		},
		{
			{Source: entity.SourceVirusTotal, Detections: 0, TotalVendors: 94},
			{Source: entity.SourceOTX, Detections: 0, TotalVendors: 1},
			{Source: entity.SourceAbuseIPDB, Detections: 0, TotalVendors: 100},
		},
		{
			{Source: entity.SourceVirusTotal, Detections: 3, TotalVendors: 70},
			{Source: entity.SourceURLhaus, Malicious: true, Detections: 1, TotalVendors: 1},
		},
		nil,
	}

	for _, results := range combos {
		score := calc.Score(results)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 100.0)
	}
}

func TestScoreFullConsensus(t *testing.T) {
	calc := NewCalculator(DefaultWeights())

	results := []entity.SourceResult{
		{Source: entity.SourceVirusTotal, Malicious: true, Detections: 94, TotalVendors: 94},
		{Source: entity.SourceOTX, Malicious: true, Detections: 12, TotalVendors: 1},
		{Source: entity.SourceThreatFox, Malicious: true, Detections: 1, TotalVendors: 1},
		{Source: entity.SourceURLhaus, Malicious: true, Detections: 1, TotalVendors: 1},
		{Source: entity.SourceAbuseIPDB, Malicious: true, Detections: 100, TotalVendors: 100},
	}

	// OTX reports 12 pulses over a single "vendor"; its normalized score
	// is capped at 100, so unanimous sources produce exactly 100.
	score := calc.Score(results)
	assert.Equal(t, 100.0, score)
	assert.True(t, calc.Verdict(score))
}

func TestLoadWeights(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"VirusTotal: 0.40\nOTX: 0.30\nAbuseIPDB: 0.30\n"), 0o644))

	w, err := LoadWeights(path)
	require.NoError(t, err)
	assert.Equal(t, 0.40, w[entity.SourceVirusTotal])

	calc := NewCalculator(w)
	results := []entity.SourceResult{
		{Source: entity.SourceVirusTotal, Detections: 10, TotalVendors: 100},
	}
	assert.Equal(t, 10.0, calc.Score(results))
}

func TestLoadWeightsRejectsBadTables(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"bad sum":  "VirusTotal: 0.5\nOTX: 0.2\n",
		"negative": "VirusTotal: 1.5\nOTX: -0.5\n",
		"empty":    "",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "w.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := LoadWeights(path)
			assert.Error(t, err)
		})
	}
}

func TestCalculatorCopiesWeights(t *testing.T) {
	w := Weights{entity.SourceVirusTotal: 1.0}
	calc := NewCalculator(w)

	// Mutating the caller's table after construction must not leak into
	// the calculator.
	w[entity.SourceVirusTotal] = 0.0

	results := []entity.SourceResult{
		{Source: entity.SourceVirusTotal, Detections: 50, TotalVendors: 100},
	}
	assert.Equal(t, 50.0, calc.Score(results))
}
