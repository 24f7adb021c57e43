package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventReflectionCompleted EventType = "reflection.completed"
	EventIdentityDrifted     EventType = "identity.drifted"
	EventMemoriesArchived    EventType = "memories.archived"
	EventAgentCreated        EventType = "agent.created"
)

type Event struct {
	Type       EventType `json:"type"`
	AgentID    uuid.UUID `json:"agent_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}
