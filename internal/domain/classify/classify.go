package classify

import (
	"regexp"

	"github.com/threatlens/threatlens/internal/entity"
)

// Ordered pattern tests, first match wins. The ordering is load-bearing:
// an IP literal must be tested before the domain pattern, and the hash
// pattern before the URL pattern, so a hex string that also satisfies a
// later test keeps its earlier classification.
var (
	// Octets are deliberately not bounds-checked; 999.999.999.999 still
	// classifies as an IP and routes to the IP-capable providers.
	ipv4Pattern = regexp.MustCompile(`^(?:[0-9]{1,3}\.){3}[0-9]{1,3}$`)

	domainPattern = regexp.MustCompile(`^[a-zA-Z0-9][-a-zA-Z0-9]*(?:\.[a-zA-Z0-9][-a-zA-Z0-9]*)+$`)

	// MD5, SHA1 and SHA256 lengths exactly; no interior structure beyond
	// the hex charset is validated.
	hashPattern = regexp.MustCompile(`^(?:[a-fA-F0-9]{32}|[a-fA-F0-9]{40}|[a-fA-F0-9]{64})$`)

	urlPattern = regexp.MustCompile(`^https?://[a-zA-Z0-9]`)
)

// Detect maps a raw indicator string to its IOC type. It is pure and total:
// anything that matches no pattern resolves to IocTypeUnknown, never an error.
func Detect(value string) entity.IocType {
	switch {
	case ipv4Pattern.MatchString(value):
		return entity.IocTypeIP
	case domainPattern.MatchString(value):
		return entity.IocTypeDomain
	case hashPattern.MatchString(value):
		return entity.IocTypeHash
	case urlPattern.MatchString(value):
		return entity.IocTypeURL
	default:
		return entity.IocTypeUnknown
	}
}
