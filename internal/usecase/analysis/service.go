package analysis

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/threatlens/threatlens/internal/adapter/external/threatintel"
	"github.com/threatlens/threatlens/internal/domain/classify"
	"github.com/threatlens/threatlens/internal/domain/scoring"
	"github.com/threatlens/threatlens/internal/entity"
)

// ErrEmptyIOC is returned when an analysis is requested for a blank value.
var ErrEmptyIOC = errors.New("ioc value is required")

// Service orchestrates a full indicator analysis: classify the value, fan the
// lookup out to every provider that handles the type, and fold the settled
// results into a weighted risk score.
type Service struct {
	providers []threatintel.Provider
	calc      *scoring.Calculator
	cache     *threatintel.SummaryCache
	logger    *slog.Logger
}

// Config holds analysis service configuration. Providers are consulted in the
// order given; that order is preserved in the result list regardless of which
// lookup finishes first.
type Config struct {
	Providers []threatintel.Provider
	Weights   scoring.Weights
	Cache     *threatintel.SummaryCache
	Logger    *slog.Logger
}

// NewService creates a new analysis service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		providers: cfg.Providers,
		calc:      scoring.NewCalculator(cfg.Weights),
		cache:     cfg.Cache,
		logger:    logger,
	}
}

// Classify returns the syntactic type of an indicator without querying any
// provider.
func (s *Service) Classify(value string) entity.IocType {
	return classify.Detect(strings.TrimSpace(value))
}

// Analyze runs the full pipeline for one indicator. Provider failures never
// fail the analysis; they surface as errored entries in the result list and
// drop out of the score. The only hard error is a blank input.
func (s *Service) Analyze(ctx context.Context, ioc string) (*entity.AnalysisSummary, error) {
	ioc = strings.TrimSpace(ioc)
	if ioc == "" {
		return nil, ErrEmptyIOC
	}

	if s.cache != nil {
		if summary, ok := s.cache.Get(ioc); ok {
			s.logger.Debug("analysis cache hit", "ioc", ioc)
			return summary, nil
		}
	}

	iocType := classify.Detect(ioc)
	s.logger.Info("starting analysis", "ioc", ioc, "type", iocType)

	selected := make([]threatintel.Provider, 0, len(s.providers))
	for _, p := range s.providers {
		if p.Supports(iocType) {
			selected = append(selected, p)
		}
	}

	results := s.lookupAll(ctx, ioc, iocType, selected)

	score := s.calc.Score(results)
	summary := &entity.AnalysisSummary{
		IocType:   iocType,
		RiskScore: score,
		Malicious: s.calc.Verdict(score),
		Results:   results,
	}

	s.logger.Info("analysis complete",
		"ioc", ioc,
		"type", iocType,
		"riskScore", score,
		"malicious", summary.Malicious,
		"sources", len(results))

	if s.cache != nil {
		s.cache.Set(ioc, summary)
	}

	return summary, nil
}

// lookupAll queries every selected provider concurrently. Each goroutine
// writes into its own slot, so the result order matches the provider order
// and no locking is needed.
func (s *Service) lookupAll(ctx context.Context, ioc string, t entity.IocType, providers []threatintel.Provider) []entity.SourceResult {
	results := make([]entity.SourceResult, len(providers))

	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p threatintel.Provider) {
			defer wg.Done()
			results[i] = p.Lookup(ctx, ioc, t)
			if results[i].IsError() {
				s.logger.Warn("provider lookup failed",
					"provider", p.Name(), "ioc", ioc, "error", results[i].Error)
			}
		}(i, p)
	}
	wg.Wait()

	return results
}

// providerDescriptions maps provider names to their status blurbs.
var providerDescriptions = map[string]string{
	entity.SourceVirusTotal: "Multi-AV consensus & reputation",
	entity.SourceOTX:        "Community pulses & threat context",
	entity.SourceThreatFox:  "Abuse.ch malware IOC database",
	entity.SourceURLhaus:    "Abuse.ch malicious URL tracker",
	entity.SourceAbuseIPDB:  "IP abuse reports & confidence scoring",
}

// Providers returns the status of every registered provider.
func (s *Service) Providers() []threatintel.Status {
	statuses := make([]threatintel.Status, 0, len(s.providers))
	for _, p := range s.providers {
		types := make([]string, 0, 4)
		for _, t := range []entity.IocType{entity.IocTypeIP, entity.IocTypeDomain, entity.IocTypeHash, entity.IocTypeURL} {
			if p.Supports(t) {
				types = append(types, string(t))
			}
		}
		statuses = append(statuses, threatintel.Status{
			Name:        p.Name(),
			Configured:  p.IsConfigured(),
			Description: providerDescriptions[p.Name()],
			Types:       types,
		})
	}
	return statuses
}

// ClearCache drops every cached summary.
func (s *Service) ClearCache() {
	if s.cache != nil {
		s.cache.Clear()
	}
}

// CacheStats returns analysis cache statistics.
func (s *Service) CacheStats() threatintel.CacheStats {
	if s.cache == nil {
		return threatintel.CacheStats{}
	}
	return s.cache.Stats()
}
