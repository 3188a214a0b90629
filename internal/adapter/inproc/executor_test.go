package inproc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/fraudgrid/fraudgrid/internal/domain/capability"
	"github.com/fraudgrid/fraudgrid/internal/port/agentexec"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecutor_DispatchesToHandler(t *testing.T) {
	handlers := agentexec.NewHandlerMap()
	handlers.Register(capability.FraudDetection, func(_ context.Context, payload map[string]any) (map[string]any, error) {
		return map[string]any{"echo": payload["customer_id"]}, nil
	})
	exec := New(handlers, testLogger())

	out, err := exec.ExecuteCapability(context.Background(), capability.FraudDetection, map[string]any{"customer_id": "cus-1"})
	if err != nil {
		t.Fatalf("ExecuteCapability: %v", err)
	}
	if out["echo"] != "cus-1" {
		t.Fatalf("echo = %v, want cus-1", out["echo"])
	}
}

func TestExecutor_UnsupportedCapability(t *testing.T) {
	exec := New(agentexec.NewHandlerMap(), testLogger())

	_, err := exec.ExecuteCapability(context.Background(), capability.RiskScoring, nil)
	if !errors.Is(err, agentexec.ErrUnsupportedCapability) {
		t.Fatalf("err = %v, want ErrUnsupportedCapability", err)
	}
}

func TestExecutor_ResolvesSelfForAnyAgent(t *testing.T) {
	exec := New(agentexec.NewHandlerMap(), testLogger())

	got, err := exec.ExecutorFor(nil)
	if err != nil {
		t.Fatalf("ExecutorFor: %v", err)
	}
	if got != agentexec.Executor(exec) {
		t.Fatal("ExecutorFor should return the shared executor")
	}
}

func TestDefaultHandlers_CoverAllCapabilities(t *testing.T) {
	handlers := DefaultHandlers()

	want := []capability.Type{
		capability.DataEnrichment,
		capability.DeviceVerification,
		capability.FraudDetection,
		capability.KYCVerification,
		capability.LocationTracking,
		capability.NetworkAnalysis,
		capability.RiskScoring,
		capability.ScamDetection,
		capability.SIMSwapDetection,
		capability.TransactionAnalysis,
	}
	if got := handlers.Available(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Available() = %v, want %v", got, want)
	}
}

func TestFraudDetection_HighAmountRaisesRisk(t *testing.T) {
	low, err := fraudDetection(context.Background(), map[string]any{"amount": 50.0})
	if err != nil {
		t.Fatalf("fraudDetection: %v", err)
	}
	high, err := fraudDetection(context.Background(), map[string]any{"amount": 25000.0, "velocity": 8.0})
	if err != nil {
		t.Fatalf("fraudDetection: %v", err)
	}

	if low["risk_score"].(float64) >= high["risk_score"].(float64) {
		t.Fatalf("risk low=%v high=%v, want low < high", low["risk_score"], high["risk_score"])
	}
	indicators := high["fraud_indicators"].([]string)
	if len(indicators) != 2 {
		t.Fatalf("indicators = %v, want high_transaction_amount and rapid_transaction_velocity", indicators)
	}
}

func TestFraudDetection_Deterministic(t *testing.T) {
	payload := map[string]any{"amount": 1500.0, "customer_id": "cus-42"}

	first, _ := fraudDetection(context.Background(), payload)
	second, _ := fraudDetection(context.Background(), payload)
	if first["risk_score"] != second["risk_score"] {
		t.Fatalf("risk varies across runs: %v vs %v", first["risk_score"], second["risk_score"])
	}
}

func TestSIMSwapDetection_RecentChangeFlags(t *testing.T) {
	out, err := simSwapDetection(context.Background(), map[string]any{"recent_sim_change": true})
	if err != nil {
		t.Fatalf("simSwapDetection: %v", err)
	}
	if out["sim_swap_detected"] != true {
		t.Fatalf("sim_swap_detected = %v, want true", out["sim_swap_detected"])
	}
	if out["risk_score"].(float64) != 0.85 {
		t.Fatalf("risk_score = %v, want 0.85", out["risk_score"])
	}
}

func TestScamDetection_KeywordSignals(t *testing.T) {
	out, err := scamDetection(context.Background(), map[string]any{
		"description": "URGENT: claim your prize with a gift card",
	})
	if err != nil {
		t.Fatalf("scamDetection: %v", err)
	}
	signals := out["scam_signals"].([]string)
	if len(signals) != 3 {
		t.Fatalf("signals = %v, want 3 keyword hits", signals)
	}
	if out["risk_score"].(float64) != 0.85 {
		t.Fatalf("risk_score = %v, want 0.85", out["risk_score"])
	}
}

func TestRiskScoring_Band(t *testing.T) {
	out, err := riskScoring(context.Background(), map[string]any{"amount": 50000.0, "customer_id": "cus-7"})
	if err != nil {
		t.Fatalf("riskScoring: %v", err)
	}
	score := out["risk_score"].(float64)
	if band(score) != out["risk_band"] {
		t.Fatalf("band mismatch: score=%v band=%v", score, out["risk_band"])
	}
}
