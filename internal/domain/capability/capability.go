// Package capability defines the capability taxonomy shared by the agent
// registry, the matcher, and the workflow engine.
package capability

// Type identifies a skill an agent can provide.
type Type string

const (
	FraudDetection      Type = "fraud_detection"
	TransactionAnalysis Type = "transaction_analysis"
	DeviceVerification  Type = "device_verification"
	LocationTracking    Type = "location_tracking"
	KYCVerification     Type = "kyc_verification"
	SIMSwapDetection    Type = "sim_swap_detection"
	ScamDetection       Type = "scam_detection"
	NetworkAnalysis     Type = "network_analysis"
	DataEnrichment      Type = "data_enrichment"
	RiskScoring         Type = "risk_scoring"
)

// All returns every known capability type in a fixed order.
func All() []Type {
	return []Type{
		FraudDetection,
		TransactionAnalysis,
		DeviceVerification,
		LocationTracking,
		KYCVerification,
		SIMSwapDetection,
		ScamDetection,
		NetworkAnalysis,
		DataEnrichment,
		RiskScoring,
	}
}

// Valid reports whether t is a known capability type.
func (t Type) Valid() bool {
	switch t {
	case FraudDetection, TransactionAnalysis, DeviceVerification,
		LocationTracking, KYCVerification, SIMSwapDetection,
		ScamDetection, NetworkAnalysis, DataEnrichment, RiskScoring:
		return true
	}
	return false
}

// Capability describes one thing an agent can do. Immutable once the
// owning agent is registered.
type Capability struct {
	Type             Type     `json:"capability_type" yaml:"capability_type"`
	ConfidenceLevel  float64  `json:"confidence_level" yaml:"confidence_level"`   // 0.0 to 1.0
	ResponseTimeSLA  int      `json:"response_time_sla" yaml:"response_time_sla"` // milliseconds
	DataRequirements []string `json:"data_requirements" yaml:"data_requirements"`
	OutputFormat     string   `json:"output_format" yaml:"output_format"`
	CostPerRequest   float64  `json:"cost_per_request" yaml:"cost_per_request"` // USD
	RateLimit        int      `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"` // requests per minute; 0 = unlimited
}

// Filter holds the numeric and data constraints a capability must satisfy
// to be considered during lookup. Zero values disable the corresponding check.
type Filter struct {
	MinConfidence   float64  `json:"min_confidence,omitempty"`
	MaxResponseTime int      `json:"max_response_time,omitempty"` // milliseconds
	MaxCost         float64  `json:"max_cost,omitempty"`          // USD
	RequiredData    []string `json:"required_data,omitempty"`
}

// Matches reports whether the capability satisfies every present constraint.
// Any failing constraint excludes the capability.
func (f Filter) Matches(c Capability) bool {
	if c.ConfidenceLevel < f.MinConfidence {
		return false
	}
	if f.MaxResponseTime > 0 && c.ResponseTimeSLA > f.MaxResponseTime {
		return false
	}
	if f.MaxCost > 0 && c.CostPerRequest > f.MaxCost {
		return false
	}
	for _, req := range f.RequiredData {
		found := false
		for _, have := range c.DataRequirements {
			if have == req {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
