package inproc

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/fraudgrid/fraudgrid/internal/domain/capability"
	"github.com/fraudgrid/fraudgrid/internal/port/agentexec"
)

// DefaultHandlers returns a handler map covering every capability with
// deterministic heuristic implementations. Outputs depend only on the
// payload, so repeated runs of the same intent produce the same analysis.
func DefaultHandlers() *agentexec.HandlerMap {
	m := agentexec.NewHandlerMap()
	m.Register(capability.FraudDetection, fraudDetection)
	m.Register(capability.TransactionAnalysis, transactionAnalysis)
	m.Register(capability.DeviceVerification, deviceVerification)
	m.Register(capability.LocationTracking, locationTracking)
	m.Register(capability.KYCVerification, kycVerification)
	m.Register(capability.SIMSwapDetection, simSwapDetection)
	m.Register(capability.ScamDetection, scamDetection)
	m.Register(capability.NetworkAnalysis, networkAnalysis)
	m.Register(capability.DataEnrichment, dataEnrichment)
	m.Register(capability.RiskScoring, riskScoring)
	return m
}

func fraudDetection(_ context.Context, payload map[string]any) (map[string]any, error) {
	risk := 0.1
	var indicators []string

	if amount := numField(payload, "amount"); amount > 10000 {
		risk += 0.4
		indicators = append(indicators, "high_transaction_amount")
	} else if amount > 1000 {
		risk += 0.15
		indicators = append(indicators, "elevated_transaction_amount")
	}
	if numField(payload, "velocity") > 5 {
		risk += 0.25
		indicators = append(indicators, "rapid_transaction_velocity")
	}
	if boolField(payload, "new_beneficiary") {
		risk += 0.2
		indicators = append(indicators, "new_beneficiary")
	}
	risk += jitter(payload, "customer_id", 0.1)

	return map[string]any{
		"risk_score":       clamp(risk),
		"confidence":       0.92,
		"fraud_indicators": indicators,
		"analysis":         "transaction pattern analysis complete",
	}, nil
}

func transactionAnalysis(_ context.Context, payload map[string]any) (map[string]any, error) {
	anomaly := 0.05
	if numField(payload, "amount") > 5000 {
		anomaly += 0.3
	}
	if strField(payload, "merchant_category") == "gambling" {
		anomaly += 0.2
	}
	anomaly += jitter(payload, "transaction_id", 0.1)

	return map[string]any{
		"risk_score":    clamp(anomaly),
		"confidence":    0.88,
		"anomaly_score": clamp(anomaly),
		"pattern":       "baseline_consistent",
	}, nil
}

func deviceVerification(_ context.Context, payload map[string]any) (map[string]any, error) {
	trusted := !boolField(payload, "new_device")
	confidence := 0.90
	if !trusted {
		confidence = 0.75
	}
	return map[string]any{
		"confidence":     confidence,
		"device_trusted": trusted,
		"device_id":      strField(payload, "device_id"),
	}, nil
}

func locationTracking(_ context.Context, payload map[string]any) (map[string]any, error) {
	roaming := boolField(payload, "roaming")
	risk := 0.05
	if roaming {
		risk = 0.35
	}
	return map[string]any{
		"confidence":        0.85,
		"risk_score":        risk,
		"location_verified": !roaming,
		"country":           defaultStr(strField(payload, "country"), "GB"),
	}, nil
}

func kycVerification(_ context.Context, payload map[string]any) (map[string]any, error) {
	confidence := 0.93
	if strField(payload, "document_type") == "" {
		confidence = 0.70
	}
	return map[string]any{
		"confidence":         confidence,
		"documents_verified": confidence > 0.9,
		"customer_id":        strField(payload, "customer_id"),
	}, nil
}

func simSwapDetection(_ context.Context, payload map[string]any) (map[string]any, error) {
	// a recent SIM change is the dominant signal
	risk := 0.1 + jitter(payload, "phone_number", 0.1)
	if boolField(payload, "recent_sim_change") {
		risk = 0.85
	}
	return map[string]any{
		"confidence":        0.89,
		"risk_score":        clamp(risk),
		"sim_swap_detected": risk > 0.7,
	}, nil
}

func scamDetection(_ context.Context, payload map[string]any) (map[string]any, error) {
	risk := 0.1
	var signals []string
	desc := strings.ToLower(strField(payload, "description"))
	for _, kw := range []string{"urgent", "gift card", "crypto", "prize"} {
		if strings.Contains(desc, kw) {
			risk += 0.25
			signals = append(signals, "keyword:"+strings.ReplaceAll(kw, " ", "_"))
		}
	}
	return map[string]any{
		"confidence":   0.86,
		"risk_score":   clamp(risk),
		"scam_signals": signals,
	}, nil
}

func networkAnalysis(_ context.Context, payload map[string]any) (map[string]any, error) {
	quality := 0.95 - jitter(payload, "cell_id", 0.2)
	return map[string]any{
		"confidence":      0.84,
		"network_quality": clamp(quality),
		"degraded":        quality < 0.8,
	}, nil
}

func dataEnrichment(_ context.Context, payload map[string]any) (map[string]any, error) {
	enriched := make(map[string]any, len(payload))
	for k, v := range payload {
		enriched[k] = v
	}
	enriched["enriched"] = true
	return map[string]any{
		"confidence": 0.80,
		"data":       enriched,
	}, nil
}

func riskScoring(_ context.Context, payload map[string]any) (map[string]any, error) {
	score := 0.2 + jitter(payload, "customer_id", 0.3)
	if numField(payload, "amount") > 10000 {
		score += 0.3
	}
	return map[string]any{
		"confidence": 0.90,
		"risk_score": clamp(score),
		"risk_band":  band(clamp(score)),
	}, nil
}

// jitter derives a stable pseudo-random offset in [0, max) from a payload
// field, so identical inputs always score identically.
func jitter(payload map[string]any, key string, max float64) float64 {
	s := strField(payload, key)
	if s == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return float64(h.Sum32()%1000) / 1000 * max
}

func band(score float64) string {
	switch {
	case score > 0.7:
		return "high"
	case score > 0.4:
		return "medium"
	default:
		return "low"
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func numField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func boolField(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func strField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
