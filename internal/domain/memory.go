package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type MemoryKind string

const (
	MemoryKindInteraction MemoryKind = "interaction"
	MemoryKindReflection  MemoryKind = "reflection"
	MemoryKindExternal    MemoryKind = "external"
	MemoryKindDream       MemoryKind = "dream"
	MemoryKindGoal        MemoryKind = "goal"
)

func ValidMemoryKind(k string) bool {
	switch MemoryKind(k) {
	case MemoryKindInteraction, MemoryKindReflection, MemoryKindExternal, MemoryKindDream, MemoryKindGoal:
		return true
	}
	return false
}

const DefaultImportance = 0.5

type Memory struct {
	ID               uuid.UUID          `json:"id"`
	AgentID          uuid.UUID          `json:"agent_id"`
	Content          string             `json:"content"`
	Kind             MemoryKind         `json:"kind"`
	Tier             MemoryTier         `json:"tier"`
	Importance       float64            `json:"importance"`
	EmotionalValence map[string]float64 `json:"emotional_valence,omitempty"`
	Embedding        []float32          `json:"-"`
	SourceKind       string             `json:"source_kind,omitempty"`
	SourceID         *uuid.UUID         `json:"source_id,omitempty"`
	ExpiresAt        *time.Time         `json:"expires_at,omitempty"`
	AccessedAt       time.Time          `json:"accessed_at"`
	AccessCount      int                `json:"access_count"`
	CreatedAt        time.Time          `json:"created_at"`
}

func ValidateImportance(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: importance must be between 0 and 1", ErrValidation)
	}
	return nil
}

func (m *Memory) Validate() error {
	if m.AgentID == uuid.Nil {
		return fmt.Errorf("%w: agent_id is required", ErrValidation)
	}
	if m.Content == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	if !ValidMemoryKind(string(m.Kind)) {
		return fmt.Errorf("%w: invalid kind %q", ErrValidation, m.Kind)
	}
	if !ValidTier(string(m.Tier)) {
		return fmt.Errorf("%w: invalid tier %q", ErrValidation, m.Tier)
	}
	return ValidateImportance(m.Importance)
}

// MemoryOrder names the orderings the engine asks the store for.
type MemoryOrder string

const (
	OrderCreatedDesc    MemoryOrder = "created_desc"
	OrderImportanceAsc  MemoryOrder = "importance_asc"
	OrderAccessCountAsc MemoryOrder = "access_count_asc"
)

// MemoryFilter is the conjunction of all non-nil constraints.
// "AtLeast" bounds are inclusive, "Below" bounds exclusive.
type MemoryFilter struct {
	AgentID            uuid.UUID
	Tier               *MemoryTier
	ExcludeTier        *MemoryTier
	Kind               *MemoryKind
	ExcludeKind        *MemoryKind
	CreatedSince       *time.Time
	CreatedBefore      *time.Time
	ImportanceAtLeast  *float64
	ImportanceBelow    *float64
	AccessCountAtLeast *int
	AccessCountBelow   *int
}

type MemoryQuery struct {
	Filter MemoryFilter
	Order  MemoryOrder
	Limit  int // 0 means unbounded
	Offset int
}

type MemorySearchResult struct {
	Memory
	Similarity float32 `json:"similarity"`
}

type MemoryStats struct {
	AgentID uuid.UUID          `json:"agent_id"`
	Total   int                `json:"total"`
	ByTier  map[MemoryTier]int `json:"by_tier"`
}

// Ptr returns a pointer to v. Used for building filters.
func Ptr[T any](v T) *T { return &v }
