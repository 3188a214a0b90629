package nats

import "testing"

func TestSubjectFor(t *testing.T) {
	cases := []struct {
		event string
		want  string
	}{
		{"workflow_created", "workflows.created"},
		{"workflow_completed", "workflows.completed"},
		{"step_failed", "steps.failed"},
		{"agent_registered", "agents.registered"},
		{"heartbeat", "workflows.heartbeat"},
		{"custom_event", "workflows.custom_event"},
	}
	for _, tc := range cases {
		if got := subjectFor(tc.event); got != tc.want {
			t.Errorf("subjectFor(%q) = %q, want %q", tc.event, got, tc.want)
		}
	}
}
