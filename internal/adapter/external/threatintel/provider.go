package threatintel

import (
	"context"

	"github.com/threatlens/threatlens/internal/entity"
)

// Provider is one external reputation source. Lookup never fails at the call
// boundary: network errors, non-2xx statuses, malformed payloads and missing
// credentials are all folded into the returned SourceResult's Error field, so
// one broken source can never abort an analysis.
type Provider interface {
	Name() string
	IsConfigured() bool
	Supports(t entity.IocType) bool
	Lookup(ctx context.Context, ioc string, t entity.IocType) entity.SourceResult
}

// Status describes a provider for the status endpoint.
type Status struct {
	Name        string   `json:"name"`
	Configured  bool     `json:"configured"`
	Description string   `json:"description"`
	Types       []string `json:"types"`
}

// supportedTypes is a small helper set shared by the providers.
type typeSet map[entity.IocType]struct{}

func newTypeSet(types ...entity.IocType) typeSet {
	s := make(typeSet, len(types))
	for _, t := range types {
		s[t] = struct{}{}
	}
	return s
}

func (s typeSet) contains(t entity.IocType) bool {
	_, ok := s[t]
	return ok
}
