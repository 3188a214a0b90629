package template

import "github.com/fraudgrid/fraudgrid/internal/domain/capability"

// BuiltinTemplates returns the set of built-in workflow templates.
func BuiltinTemplates() []Template {
	return []Template{
		fraudDetection(),
		customerVerification(),
		transactionMonitoring(),
		simSwapDetection(),
		serviceAssurance(),
	}
}

// fraudDetection fans all checks out in parallel; fraud analysis and risk
// scoring are required, the rest are corroborating signals.
func fraudDetection() Template {
	return Template{
		Name:        "fraud_detection",
		Description: "Comprehensive fraud detection workflow",
		IntentTypes: []string{"fraud_detection"},
		Builtin:     true,
		Flow:        Flow{Type: FlowParallel, TimeoutMS: 10000},
		Steps: []StepSpec{
			{
				ID:              "fraud_analysis",
				Name:            "Fraud Risk Analysis",
				Capability:      capability.FraudDetection,
				Required:        true,
				MinConfidence:   0.8,
				MaxResponseTime: 3000,
				Priority:        3,
			},
			{
				ID:              "device_verification",
				Name:            "Device Verification",
				Capability:      capability.DeviceVerification,
				MinConfidence:   0.6,
				MaxResponseTime: 4000,
				Priority:        2,
			},
			{
				ID:              "location_check",
				Name:            "Location Verification",
				Capability:      capability.LocationTracking,
				MinConfidence:   0.7,
				MaxResponseTime: 3500,
				Priority:        2,
			},
			{
				ID:              "sim_swap_check",
				Name:            "SIM Swap Detection",
				Capability:      capability.SIMSwapDetection,
				MinConfidence:   0.75,
				MaxResponseTime: 2500,
				Priority:        2,
			},
			{
				ID:              "risk_scoring",
				Name:            "Risk Score Calculation",
				Capability:      capability.RiskScoring,
				Required:        true,
				MinConfidence:   0.7,
				MaxResponseTime: 2000,
				Priority:        3,
			},
		},
		Decisions: []DecisionSpec{
			{ID: "risk_evaluation", Type: "risk_threshold", Threshold: 0.7},
		},
		Success: SuccessCriteria{
			MinAgentsCompleted:   2,
			RequiredCapabilities: []capability.Type{capability.FraudDetection},
		},
	}
}

// customerVerification runs sequentially: each check builds on the previous
// one, so KYC gates the device check which gates the location check.
func customerVerification() Template {
	return Template{
		Name:        "customer_verification",
		Description: "Customer identity verification workflow",
		IntentTypes: []string{"customer_verification"},
		Builtin:     true,
		Flow:        Flow{Type: FlowSequential, TimeoutMS: 15000},
		Steps: []StepSpec{
			{
				ID:              "kyc_verification",
				Name:            "KYC Document Verification",
				Capability:      capability.KYCVerification,
				Required:        true,
				MinConfidence:   0.85,
				MaxResponseTime: 8000,
				Priority:        3,
			},
			{
				ID:              "device_verification",
				Name:            "Device Verification",
				Capability:      capability.DeviceVerification,
				Required:        true,
				MinConfidence:   0.7,
				MaxResponseTime: 4000,
				Priority:        2,
				DependsOn:       []string{"kyc_verification"},
			},
			{
				ID:              "location_verification",
				Name:            "Location Verification",
				Capability:      capability.LocationTracking,
				MinConfidence:   0.6,
				MaxResponseTime: 3000,
				Priority:        1,
				DependsOn:       []string{"device_verification"},
			},
		},
		Decisions: []DecisionSpec{
			{ID: "verification_quality", Type: "confidence_threshold", Threshold: 0.8},
		},
		Success: SuccessCriteria{
			MinAgentsCompleted:   1,
			RequiredCapabilities: []capability.Type{capability.KYCVerification},
		},
	}
}

// transactionMonitoring routes at runtime: high-urgency transactions take
// the parallel path, the rest run sequentially.
func transactionMonitoring() Template {
	return Template{
		Name:        "transaction_monitoring",
		Description: "Real-time transaction monitoring workflow",
		IntentTypes: []string{"transaction_monitoring"},
		Builtin:     true,
		Flow:        Flow{Type: FlowConditional, TimeoutMS: 8000},
		Steps: []StepSpec{
			{
				ID:              "transaction_analysis",
				Name:            "Transaction Pattern Analysis",
				Capability:      capability.TransactionAnalysis,
				Required:        true,
				MinConfidence:   0.7,
				MaxResponseTime: 3000,
				Priority:        3,
			},
			{
				ID:              "fraud_check",
				Name:            "Fraud Detection Check",
				Capability:      capability.FraudDetection,
				Required:        true,
				MinConfidence:   0.75,
				MaxResponseTime: 2500,
				Priority:        3,
			},
			{
				ID:              "device_check",
				Name:            "Device Authentication",
				Capability:      capability.DeviceVerification,
				MinConfidence:   0.6,
				MaxResponseTime: 2000,
				Priority:        2,
			},
		},
		Decisions: []DecisionSpec{
			{ID: "transaction_decision", Type: "risk_threshold", Threshold: 0.6},
		},
		Success: SuccessCriteria{
			MinAgentsCompleted:   2,
			RequiredCapabilities: []capability.Type{capability.TransactionAnalysis, capability.FraudDetection},
		},
	}
}

// simSwapDetection is a fast parallel fan-out over SIM, location, and fraud
// correlation signals.
func simSwapDetection() Template {
	return Template{
		Name:        "sim_swap_detection",
		Description: "SIM swap fraud detection workflow",
		IntentTypes: []string{"sim_swap_detection"},
		Builtin:     true,
		Flow:        Flow{Type: FlowParallel, TimeoutMS: 6000},
		Steps: []StepSpec{
			{
				ID:              "sim_swap_analysis",
				Name:            "SIM Swap Detection",
				Capability:      capability.SIMSwapDetection,
				Required:        true,
				MinConfidence:   0.8,
				MaxResponseTime: 2500,
				Priority:        3,
			},
			{
				ID:              "device_location",
				Name:            "Device Location Check",
				Capability:      capability.LocationTracking,
				Required:        true,
				MinConfidence:   0.7,
				MaxResponseTime: 3000,
				Priority:        2,
			},
			{
				ID:              "fraud_correlation",
				Name:            "Fraud Correlation Analysis",
				Capability:      capability.FraudDetection,
				MinConfidence:   0.6,
				MaxResponseTime: 2000,
				Priority:        1,
			},
		},
		Success: SuccessCriteria{
			MinAgentsCompleted:   2,
			RequiredCapabilities: []capability.Type{capability.SIMSwapDetection},
		},
	}
}

// serviceAssurance runs the network analysis first, then fans diagnostics
// and location correlation off it.
func serviceAssurance() Template {
	return Template{
		Name:        "service_assurance",
		Description: "Network service quality assurance workflow",
		IntentTypes: []string{"service_assurance"},
		Builtin:     true,
		Flow:        Flow{Type: FlowSequential, TimeoutMS: 12000},
		Steps: []StepSpec{
			{
				ID:              "network_analysis",
				Name:            "Network Performance Analysis",
				Capability:      capability.NetworkAnalysis,
				Required:        true,
				MinConfidence:   0.7,
				MaxResponseTime: 5000,
				Priority:        3,
			},
			{
				ID:              "device_diagnostics",
				Name:            "Device Diagnostics",
				Capability:      capability.DeviceVerification,
				MinConfidence:   0.6,
				MaxResponseTime: 3000,
				Priority:        2,
				DependsOn:       []string{"network_analysis"},
			},
			{
				ID:              "location_correlation",
				Name:            "Location-based Analysis",
				Capability:      capability.LocationTracking,
				MinConfidence:   0.5,
				MaxResponseTime: 2000,
				Priority:        1,
				DependsOn:       []string{"network_analysis"},
			},
		},
		Success: SuccessCriteria{
			MinAgentsCompleted:   1,
			RequiredCapabilities: []capability.Type{capability.NetworkAnalysis},
		},
	}
}
