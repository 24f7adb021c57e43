package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReflectionTrigger string

const (
	TriggerTemporal     ReflectionTrigger = "temporal"
	TriggerVolume       ReflectionTrigger = "volume"
	TriggerSignificance ReflectionTrigger = "significance"
	TriggerExternal     ReflectionTrigger = "external"
	TriggerSocial       ReflectionTrigger = "social"
	TriggerDrift        ReflectionTrigger = "drift"
)

func ValidReflectionTrigger(t string) bool {
	switch ReflectionTrigger(t) {
	case TriggerTemporal, TriggerVolume, TriggerSignificance, TriggerExternal, TriggerSocial, TriggerDrift:
		return true
	}
	return false
}

type Insight struct {
	Theme       string  `json:"theme"`
	Observation string  `json:"observation"`
	Implication string  `json:"implication"`
	Importance  float64 `json:"importance"`
}

// IdentityDelta is one recorded change to an identity document. Before and
// After hold excerpts, not full text.
type IdentityDelta struct {
	FieldChanged string     `json:"field_changed"`
	Before       string     `json:"before"`
	After        string     `json:"after"`
	Reason       string     `json:"reason"`
	Timestamp    time.Time  `json:"timestamp"`
	ReflectionID *uuid.UUID `json:"reflection_id,omitempty"`
}

// Reflection is immutable once persisted.
type Reflection struct {
	ID                 uuid.UUID          `json:"id"`
	AgentID            uuid.UUID          `json:"agent_id"`
	Trigger            ReflectionTrigger  `json:"trigger"`
	TriggerDescription string             `json:"trigger_description,omitempty"`
	Summary            string             `json:"summary"`
	Insights           []Insight          `json:"insights"`
	EmotionalState     map[string]float64 `json:"emotional_state,omitempty"`
	IdentityDelta      []IdentityDelta    `json:"identity_delta,omitempty"`
	DriftDetected      bool               `json:"drift_detected"`
	SourceMemoryIDs    []uuid.UUID        `json:"source_memory_ids"`
	CreatedAt          time.Time          `json:"created_at"`
}

// TriggerDecision is the answer to "should this agent reflect now?".
type TriggerDecision struct {
	ShouldReflect bool              `json:"should_reflect"`
	Trigger       ReflectionTrigger `json:"trigger,omitempty"`
	Reason        string            `json:"reason,omitempty"`
}

type ReflectionListOpts struct {
	Limit     int
	DriftOnly bool
}

// ReflectionCommit is everything a reflection writes to the relational store.
// IdentityEmbedding is set only when the identity document was replaced.
type ReflectionCommit struct {
	Reflection        *Reflection
	Memory            *Memory
	IdentityEmbedding []float32
}

const (
	DefaultReflectionHistoryLimit = 20
	MaxReflectionHistoryLimit     = 100
)
