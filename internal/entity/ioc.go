package entity

// IocType classifies an indicator of compromise by its syntactic shape.
type IocType string

const (
	IocTypeIP      IocType = "ip"
	IocTypeDomain  IocType = "domain"
	IocTypeHash    IocType = "hash"
	IocTypeURL     IocType = "url"
	IocTypeUnknown IocType = "unknown"
)

// Provider names as they appear in results and in the weight table.
const (
	SourceVirusTotal = "VirusTotal"
	SourceOTX        = "OTX"
	SourceThreatFox  = "ThreatFox"
	SourceURLhaus    = "URLhaus"
	SourceAbuseIPDB  = "AbuseIPDB"
)

// SourceResult is one provider's verdict for a single indicator.
// Exactly one of a populated Data payload or an Error string holds;
// a result is never both an error and a usable verdict.
type SourceResult struct {
	Source    string `json:"source"`
	Malicious bool   `json:"malicious"`

	// Detections/TotalVendors carry the "N out of M" framing where the
	// provider's model supports it. Providers without a vendor notion
	// report TotalVendors 1 (presence in a list) or 100 (AbuseIPDB's
	// percentage confidence).
	Detections   int `json:"detections,omitempty"`
	TotalVendors int `json:"totalVendors,omitempty"`

	// Data holds the provider-specific payload, typed by the adapter that
	// produced it and opaque to everything downstream.
	Data any `json:"data"`

	// Error is set when the lookup failed or returned unusable data. An
	// errored result never counts as a clean vote.
	Error string `json:"error,omitempty"`

	// Presentation hints.
	ScanDate            string `json:"scanDate,omitempty"`
	Permalink           string `json:"permalink,omitempty"`
	QueryStatus         string `json:"queryStatus,omitempty"`
	FormattedDetections string `json:"formattedDetections,omitempty"`
}

// IsError reports whether the lookup failed.
func (r SourceResult) IsError() bool {
	return r.Error != ""
}

// ErrorResult builds a failed SourceResult for the given provider. It keeps
// the invariant that errored results carry no verdict and no payload.
func ErrorResult(source string, err error) SourceResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return SourceResult{
		Source:    source,
		Malicious: false,
		Data:      nil,
		Error:     msg,
	}
}

// AnalysisSummary is the final output of one analysis request. It is built
// once per request and never mutated afterwards.
type AnalysisSummary struct {
	IocType   IocType        `json:"iocType"`
	RiskScore float64        `json:"riskScore"`
	Malicious bool           `json:"malicious"`
	Results   []SourceResult `json:"results"`
}
