// Package agent defines the AgentResource domain entity managed by the
// resource registry.
package agent

import (
	"time"

	"github.com/fraudgrid/fraudgrid/internal/domain/capability"
)

// Status represents the current availability of an agent.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusBusy        Status = "busy"
	StatusOffline     Status = "offline"
	StatusError       Status = "error"
	StatusMaintenance Status = "maintenance"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusBusy, StatusOffline, StatusError, StatusMaintenance:
		return true
	}
	return false
}

// Schedulable reports whether an agent in this status may receive work.
func (s Status) Schedulable() bool {
	return s == StatusAvailable || s == StatusBusy
}

// Resource represents an agent registered with the resource registry.
// Owned exclusively by the registry; mutated only through registry methods.
type Resource struct {
	ID            string                  `json:"agent_id"`
	Name          string                  `json:"name"`
	Description   string                  `json:"description"`
	Capabilities  []capability.Capability `json:"capabilities"`
	Status        Status                  `json:"status"`
	Endpoint      string                  `json:"endpoint_url"`
	LastHeartbeat time.Time               `json:"last_heartbeat"`
	Performance   map[string]float64      `json:"performance_metrics"`
	Metadata      map[string]string       `json:"metadata,omitempty"`
	TokenHash     []byte                  `json:"-"` // bcrypt hash of the heartbeat token
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// Capability returns the agent's capability of the given type.
func (r *Resource) Capability(t capability.Type) (capability.Capability, bool) {
	for _, c := range r.Capabilities {
		if c.Type == t {
			return c, true
		}
	}
	return capability.Capability{}, false
}

// Metric returns a performance metric value, or def when absent.
func (r *Resource) Metric(key string, def float64) float64 {
	if v, ok := r.Performance[key]; ok {
		return v
	}
	return def
}

// Snapshot is the serializable form of a Resource: enums as strings,
// timestamps as ISO-8601.
type Snapshot struct {
	ID            string                  `json:"agent_id"`
	Name          string                  `json:"name"`
	Description   string                  `json:"description"`
	Capabilities  []capability.Capability `json:"capabilities"`
	Status        string                  `json:"status"`
	Endpoint      string                  `json:"endpoint_url"`
	LastHeartbeat string                  `json:"last_heartbeat"`
	Performance   map[string]float64      `json:"performance_metrics"`
	Metadata      map[string]string       `json:"metadata,omitempty"`
	CreatedAt     string                  `json:"created_at"`
	UpdatedAt     string                  `json:"updated_at"`
}

// Snapshot converts the resource into its serializable form.
func (r *Resource) Snapshot() Snapshot {
	caps := make([]capability.Capability, len(r.Capabilities))
	copy(caps, r.Capabilities)

	perf := make(map[string]float64, len(r.Performance))
	for k, v := range r.Performance {
		perf[k] = v
	}

	return Snapshot{
		ID:            r.ID,
		Name:          r.Name,
		Description:   r.Description,
		Capabilities:  caps,
		Status:        string(r.Status),
		Endpoint:      r.Endpoint,
		LastHeartbeat: r.LastHeartbeat.UTC().Format(time.RFC3339),
		Performance:   perf,
		Metadata:      r.Metadata,
		CreatedAt:     r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
