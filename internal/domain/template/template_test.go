package template

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fraudgrid/fraudgrid/internal/domain"
	"github.com/fraudgrid/fraudgrid/internal/domain/capability"
)

// --- Validate ---

func TestValidate_Valid(t *testing.T) {
	tmpl := Template{
		Name: "test",
		Flow: Flow{Type: FlowParallel, TimeoutMS: 5000},
		Steps: []StepSpec{
			{ID: "s1", Name: "Step 1", Capability: capability.FraudDetection},
		},
	}
	if err := tmpl.Validate(); err != nil {
		t.Fatalf("expected valid, got: %v", err)
	}
}

func TestValidate_MissingName(t *testing.T) {
	tmpl := Template{
		Flow:  Flow{Type: FlowParallel},
		Steps: []StepSpec{{ID: "s1", Capability: capability.FraudDetection}},
	}
	if err := tmpl.Validate(); err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestValidate_InvalidFlowType(t *testing.T) {
	tmpl := Template{
		Name:  "test",
		Flow:  Flow{Type: "roundrobin"},
		Steps: []StepSpec{{ID: "s1", Capability: capability.FraudDetection}},
	}
	if !errors.Is(tmpl.Validate(), ErrInvalidFlowType) {
		t.Fatal("expected ErrInvalidFlowType")
	}
}

func TestValidate_NoSteps(t *testing.T) {
	tmpl := Template{Name: "test", Flow: Flow{Type: FlowSequential}}
	if !errors.Is(tmpl.Validate(), ErrNoSteps) {
		t.Fatal("expected ErrNoSteps")
	}
}

func TestValidate_StepMissingID(t *testing.T) {
	tmpl := Template{
		Name:  "test",
		Flow:  Flow{Type: FlowParallel},
		Steps: []StepSpec{{Capability: capability.FraudDetection}},
	}
	if !errors.Is(tmpl.Validate(), ErrStepMissingID) {
		t.Fatal("expected ErrStepMissingID")
	}
}

func TestValidate_DuplicateStepID(t *testing.T) {
	tmpl := Template{
		Name: "test",
		Flow: Flow{Type: FlowParallel},
		Steps: []StepSpec{
			{ID: "s1", Capability: capability.FraudDetection},
			{ID: "s1", Capability: capability.RiskScoring},
		},
	}
	if !errors.Is(tmpl.Validate(), ErrDuplicateStepID) {
		t.Fatal("expected ErrDuplicateStepID")
	}
}

func TestValidate_StepUnknownCapability(t *testing.T) {
	tmpl := Template{
		Name:  "test",
		Flow:  Flow{Type: FlowParallel},
		Steps: []StepSpec{{ID: "s1", Capability: "palm_reading"}},
	}
	if !errors.Is(tmpl.Validate(), ErrInvalidCapability) {
		t.Fatal("expected ErrInvalidCapability")
	}
}

func TestValidate_DAGCycle(t *testing.T) {
	tmpl := Template{
		Name: "test",
		Flow: Flow{Type: FlowSequential},
		Steps: []StepSpec{
			{ID: "a", Capability: capability.FraudDetection, DependsOn: []string{"b"}},
			{ID: "b", Capability: capability.RiskScoring, DependsOn: []string{"a"}},
		},
	}
	if !errors.Is(tmpl.Validate(), ErrDAGCycle) {
		t.Fatal("expected ErrDAGCycle")
	}
}

func TestValidate_DAGSelfRef(t *testing.T) {
	tmpl := Template{
		Name: "test",
		Flow: Flow{Type: FlowSequential},
		Steps: []StepSpec{
			{ID: "a", Capability: capability.FraudDetection, DependsOn: []string{"a"}},
		},
	}
	if !errors.Is(tmpl.Validate(), ErrDAGCycle) {
		t.Fatal("expected ErrDAGCycle for self-referencing step")
	}
}

func TestValidate_DAGInvalidRef(t *testing.T) {
	tmpl := Template{
		Name: "test",
		Flow: Flow{Type: FlowSequential},
		Steps: []StepSpec{
			{ID: "a", Capability: capability.FraudDetection, DependsOn: []string{"missing"}},
		},
	}
	if !errors.Is(tmpl.Validate(), ErrDAGInvalidRef) {
		t.Fatal("expected ErrDAGInvalidRef")
	}
}

// --- Requirements / EstimatedDuration ---

func TestRequirements_Deduplicated(t *testing.T) {
	tmpl := Template{
		Name: "test",
		Flow: Flow{Type: FlowParallel},
		Steps: []StepSpec{
			{ID: "a", Capability: capability.FraudDetection},
			{ID: "b", Capability: capability.LocationTracking},
			{ID: "c", Capability: capability.FraudDetection},
		},
	}

	reqs := tmpl.Requirements()
	want := []capability.Type{capability.FraudDetection, capability.LocationTracking}
	if len(reqs) != len(want) {
		t.Fatalf("requirements = %v, want %v", reqs, want)
	}
	for i := range want {
		if reqs[i] != want[i] {
			t.Errorf("requirements[%d] = %q, want %q", i, reqs[i], want[i])
		}
	}
}

func TestEstimatedDuration_Parallel(t *testing.T) {
	tmpl := Template{
		Name: "test",
		Flow: Flow{Type: FlowParallel},
		Steps: []StepSpec{
			{ID: "a", Capability: capability.FraudDetection, MaxResponseTime: 3000},
			{ID: "b", Capability: capability.RiskScoring, MaxResponseTime: 2000},
		},
	}
	if got := tmpl.EstimatedDuration(); got != 4000 {
		t.Errorf("duration = %d, want 4000", got)
	}
}

func TestEstimatedDuration_Sequential(t *testing.T) {
	tmpl := Template{
		Name: "test",
		Flow: Flow{Type: FlowSequential},
		Steps: []StepSpec{
			{ID: "a", Capability: capability.FraudDetection, MaxResponseTime: 3000},
			{ID: "b", Capability: capability.RiskScoring, MaxResponseTime: 2000},
		},
	}
	if got := tmpl.EstimatedDuration(); got != 6000 {
		t.Errorf("duration = %d, want 6000", got)
	}
}

func TestEstimatedDuration_Conditional(t *testing.T) {
	tmpl := Template{
		Name: "test",
		Flow: Flow{Type: FlowConditional},
		Steps: []StepSpec{
			{ID: "a", Capability: capability.FraudDetection, MaxResponseTime: 3000},
			{ID: "b", Capability: capability.RiskScoring, MaxResponseTime: 2000},
		},
	}
	// (3000+5000)/2 + 2*250
	if got := tmpl.EstimatedDuration(); got != 4500 {
		t.Errorf("duration = %d, want 4500", got)
	}
}

func TestEstimatedDuration_DefaultResponseTime(t *testing.T) {
	tmpl := Template{
		Name: "test",
		Flow: Flow{Type: FlowParallel},
		Steps: []StepSpec{
			{ID: "a", Capability: capability.FraudDetection},
		},
	}
	if got := tmpl.EstimatedDuration(); got != 4000 {
		t.Errorf("duration = %d, want 4000 (default step budget plus overhead)", got)
	}
}

// --- Presets ---

func TestBuiltinTemplates_AllValid(t *testing.T) {
	templates := BuiltinTemplates()
	if len(templates) != 5 {
		t.Fatalf("expected 5 builtin templates, got %d", len(templates))
	}

	for _, tmpl := range templates {
		if err := tmpl.Validate(); err != nil {
			t.Errorf("builtin template %q failed validation: %v", tmpl.Name, err)
		}
		if !tmpl.Builtin {
			t.Errorf("builtin template %q: Builtin = false", tmpl.Name)
		}
		if len(tmpl.IntentTypes) == 0 {
			t.Errorf("builtin template %q: no intent types", tmpl.Name)
		}
	}
}

func TestBuiltinTemplates_FraudDetectionShape(t *testing.T) {
	m := NewManager()
	tmpl, err := m.Get("fraud_detection")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tmpl.Flow.Type != FlowParallel {
		t.Errorf("flow type = %q, want parallel", tmpl.Flow.Type)
	}
	if len(tmpl.Steps) != 5 {
		t.Fatalf("steps = %d, want 5", len(tmpl.Steps))
	}

	fa := tmpl.Step("fraud_analysis")
	if fa == nil {
		t.Fatal("missing fraud_analysis step")
	}
	if !fa.Required || fa.MinConfidence != 0.8 || fa.Priority != 3 {
		t.Errorf("fraud_analysis = %+v, want required, min_confidence 0.8, priority 3", fa)
	}

	rs := tmpl.Step("risk_scoring")
	if rs == nil || !rs.Required {
		t.Error("risk_scoring step must exist and be required")
	}
}

func TestBuiltinTemplates_CustomerVerificationChain(t *testing.T) {
	m := NewManager()
	tmpl, err := m.Get("customer_verification")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tmpl.Flow.Type != FlowSequential {
		t.Errorf("flow type = %q, want sequential", tmpl.Flow.Type)
	}

	dv := tmpl.Step("device_verification")
	if dv == nil || len(dv.DependsOn) != 1 || dv.DependsOn[0] != "kyc_verification" {
		t.Errorf("device_verification dependencies = %v, want [kyc_verification]", dv.DependsOn)
	}
	lv := tmpl.Step("location_verification")
	if lv == nil || len(lv.DependsOn) != 1 || lv.DependsOn[0] != "device_verification" {
		t.Errorf("location_verification dependencies = %v, want [device_verification]", lv.DependsOn)
	}
}

// --- Manager ---

func TestManager_ForIntent(t *testing.T) {
	m := NewManager()

	tmpl, err := m.ForIntent("transaction_monitoring")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tmpl.Name != "transaction_monitoring" {
		t.Errorf("template = %q, want transaction_monitoring", tmpl.Name)
	}
}

func TestManager_ForIntent_Unknown(t *testing.T) {
	m := NewManager()

	_, err := m.ForIntent("weather_forecast")
	if !errors.Is(err, domain.ErrNoTemplate) {
		t.Fatalf("error = %v, want ErrNoTemplate", err)
	}
}

func TestManager_Get_Unknown(t *testing.T) {
	m := NewManager()
	if _, err := m.Get("nope"); !errors.Is(err, domain.ErrNoTemplate) {
		t.Fatalf("error = %v, want ErrNoTemplate", err)
	}
}

func TestManager_Add_Invalid(t *testing.T) {
	m := NewManager()
	err := m.Add(Template{Name: "broken", Flow: Flow{Type: FlowParallel}})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestManager_Add_ReplacesExisting(t *testing.T) {
	m := NewManager()
	custom := Template{
		Name: "fraud_detection",
		Flow: Flow{Type: FlowSequential},
		Steps: []StepSpec{
			{ID: "only", Capability: capability.FraudDetection},
		},
	}
	if err := m.Add(custom); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := m.Get("fraud_detection")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Flow.Type != FlowSequential || len(got.Steps) != 1 {
		t.Errorf("replacement not applied: %+v", got)
	}
	if got := len(m.List()); got != 5 {
		t.Errorf("template count after replace = %d, want 5", got)
	}
}

func TestManager_List(t *testing.T) {
	m := NewManager()
	list := m.List()
	if len(list) != 5 {
		t.Fatalf("list = %d entries, want 5", len(list))
	}
	if list[0].Name != "fraud_detection" {
		t.Errorf("first template = %q, want fraud_detection", list[0].Name)
	}
	for _, s := range list {
		if s.StepsCount == 0 {
			t.Errorf("template %q: zero steps in summary", s.Name)
		}
	}
}

func TestManager_ExportImportRoundTrip(t *testing.T) {
	m := NewManager()
	data, err := m.ExportYAML("sim_swap_detection")
	if err != nil {
		t.Fatalf("export error: %v", err)
	}

	m2 := NewManager()
	tmpl, err := m2.ImportYAML(data)
	if err != nil {
		t.Fatalf("import error: %v", err)
	}
	if tmpl.Name != "sim_swap_detection" {
		t.Errorf("imported name = %q, want sim_swap_detection", tmpl.Name)
	}
	if len(tmpl.Steps) != 3 {
		t.Errorf("imported steps = %d, want 3", len(tmpl.Steps))
	}
}

func TestManager_ImportYAML_Invalid(t *testing.T) {
	m := NewManager()
	if _, err := m.ImportYAML([]byte("steps: {not: [valid")); err == nil {
		t.Fatal("expected parse error")
	}
}

// --- Loader ---

func TestLoadFromFile_Valid(t *testing.T) {
	content := `
name: custom_check
description: A custom check
intent_types: [custom_check]
flow:
  type: parallel
  timeout_ms: 4000
steps:
  - step_id: s1
    name: Fraud
    capability_type: fraud_detection
    required: true
    min_confidence: 0.7
    max_response_time: 2000
    priority: 2
  - step_id: s2
    name: Risk
    capability_type: risk_scoring
    dependencies: [s1]
`
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	tmpl, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tmpl.Name != "custom_check" {
		t.Errorf("name = %q, want custom_check", tmpl.Name)
	}
	if len(tmpl.Steps) != 2 {
		t.Errorf("steps = %d, want 2", len(tmpl.Steps))
	}
	if tmpl.Steps[0].Capability != capability.FraudDetection {
		t.Errorf("step capability = %q, want fraud_detection", tmpl.Steps[0].Capability)
	}
}

func TestLoadFromFile_Invalid(t *testing.T) {
	content := `
flow:
  type: parallel
steps:
  - step_id: s1
    capability_type: fraud_detection
`
	dir := t.TempDir()
	path := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected validation error for missing name")
	}
}

func TestLoadFromFile_NotFound(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/path.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFromDirectory_Valid(t *testing.T) {
	dir := t.TempDir()

	content := `
name: dir_check
flow:
  type: sequential
steps:
  - step_id: s1
    capability_type: network_analysis
`
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	// non-yaml file should be ignored
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignore"), 0o600); err != nil {
		t.Fatal(err)
	}

	templates, err := LoadFromDirectory(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(templates) != 1 {
		t.Errorf("loaded %d templates, want 1", len(templates))
	}
}

func TestLoadFromDirectory_MissingDir(t *testing.T) {
	templates, err := LoadFromDirectory("/nonexistent/dir")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if templates != nil {
		t.Errorf("expected nil for missing dir, got %v", templates)
	}
}
