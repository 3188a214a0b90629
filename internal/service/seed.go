package service

import (
	"github.com/fraudgrid/fraudgrid/internal/domain/agent"
	"github.com/fraudgrid/fraudgrid/internal/domain/capability"
)

// SeedDevAgents registers a fixed set of development agents so the matcher
// and orchestrator have something to schedule against locally. Returns the
// issued heartbeat tokens keyed by agent ID.
func (r *Registry) SeedDevAgents() (map[string]string, error) {
	seeds := []*agent.Resource{
		{
			ID:          "fraud-detector-001",
			Name:        "Advanced Fraud Detection Agent",
			Description: "AI-powered fraud detection with ML models",
			Endpoint:    "http://localhost:8001/fraud-detector",
			Capabilities: []capability.Capability{
				{
					Type:             capability.FraudDetection,
					ConfidenceLevel:  0.95,
					ResponseTimeSLA:  2000,
					DataRequirements: []string{"customer_id", "transaction_data"},
					OutputFormat:     "json",
					CostPerRequest:   0.05,
				},
				{
					Type:             capability.RiskScoring,
					ConfidenceLevel:  0.90,
					ResponseTimeSLA:  1500,
					DataRequirements: []string{"customer_profile", "transaction_history"},
					OutputFormat:     "json",
					CostPerRequest:   0.03,
				},
			},
		},
		{
			ID:          "device-tracker-001",
			Name:        "Device Location Tracker",
			Description: "CAMARA-compatible device location tracking",
			Endpoint:    "http://localhost:8002/device-tracker",
			Capabilities: []capability.Capability{
				{
					Type:             capability.LocationTracking,
					ConfidenceLevel:  0.85,
					ResponseTimeSLA:  3000,
					DataRequirements: []string{"device_id", "phone_number"},
					OutputFormat:     "json",
					CostPerRequest:   0.02,
				},
				{
					Type:             capability.DeviceVerification,
					ConfidenceLevel:  0.80,
					ResponseTimeSLA:  2500,
					DataRequirements: []string{"device_id"},
					OutputFormat:     "json",
					CostPerRequest:   0.01,
				},
			},
		},
		{
			ID:          "kyc-validator-001",
			Name:        "KYC Validation Service",
			Description: "Identity verification and KYC compliance",
			Endpoint:    "http://localhost:8003/kyc-validator",
			Capabilities: []capability.Capability{
				{
					Type:             capability.KYCVerification,
					ConfidenceLevel:  0.92,
					ResponseTimeSLA:  5000,
					DataRequirements: []string{"customer_id", "identity_documents"},
					OutputFormat:     "json",
					CostPerRequest:   0.10,
				},
			},
		},
		{
			ID:          "sim-swap-detector-001",
			Name:        "SIM Swap Detection Agent",
			Description: "Detects suspicious SIM card changes",
			Endpoint:    "http://localhost:8004/sim-swap-detector",
			Capabilities: []capability.Capability{
				{
					Type:             capability.SIMSwapDetection,
					ConfidenceLevel:  0.88,
					ResponseTimeSLA:  2000,
					DataRequirements: []string{"phone_number", "customer_id"},
					OutputFormat:     "json",
					CostPerRequest:   0.03,
				},
			},
		},
		{
			ID:          "scam-analyzer-001",
			Name:        "Scam Signal Analyzer",
			Description: "Analyzes communication patterns for scam indicators",
			Endpoint:    "http://localhost:8005/scam-analyzer",
			Capabilities: []capability.Capability{
				{
					Type:             capability.ScamDetection,
					ConfidenceLevel:  0.87,
					ResponseTimeSLA:  3500,
					DataRequirements: []string{"call_data", "message_data"},
					OutputFormat:     "json",
					CostPerRequest:   0.04,
				},
			},
		},
	}

	tokens := make(map[string]string, len(seeds))
	for _, res := range seeds {
		res.Status = agent.StatusAvailable
		res.Performance = map[string]float64{
			"success_rate":       0.95,
			"avg_response_time":  2000,
			"requests_processed": 100,
		}
		res.Metadata = map[string]string{"seed": "true", "version": "1.0"}

		token, err := r.RegisterAgent(res)
		if err != nil {
			return nil, err
		}
		tokens[res.ID] = token
	}

	r.logger.Info("seeded development agents", "count", len(seeds))
	return tokens, nil
}
