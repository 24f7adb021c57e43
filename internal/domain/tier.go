package domain

import (
	"time"

	"github.com/google/uuid"
)

type MemoryTier string

const (
	TierWorking MemoryTier = "working"
	TierRAG     MemoryTier = "rag"
	TierArchive MemoryTier = "archive"
)

func AllTiers() []MemoryTier {
	return []MemoryTier{TierWorking, TierRAG, TierArchive}
}

func ValidTier(t string) bool {
	switch MemoryTier(t) {
	case TierWorking, TierRAG, TierArchive:
		return true
	}
	return false
}

// Archival criteria. A memory leaves RAG only when it is old, unimportant
// and rarely read; there is no automatic path back.
const (
	DefaultArchiveAfterDays = 30
	ArchiveImportanceBelow  = 0.5
	ArchiveAccessCountBelow = 2
)

// ArchiveCandidate reports whether m satisfies every archival criterion at now.
func ArchiveCandidate(m Memory, olderThan time.Duration, now time.Time) bool {
	return m.Tier == TierRAG &&
		m.CreatedAt.Before(now.Add(-olderThan)) &&
		m.Importance < ArchiveImportanceBelow &&
		m.AccessCount < ArchiveAccessCountBelow
}

// ArchiveFilter is the store-side form of ArchiveCandidate.
func ArchiveFilter(agentID uuid.UUID, olderThan time.Duration, now time.Time) MemoryFilter {
	return MemoryFilter{
		AgentID:          agentID,
		Tier:             Ptr(TierRAG),
		CreatedBefore:    Ptr(now.Add(-olderThan)),
		ImportanceBelow:  Ptr(ArchiveImportanceBelow),
		AccessCountBelow: Ptr(ArchiveAccessCountBelow),
	}
}

// TierTransition records a batch of memories moving between tiers.
type TierTransition struct {
	AgentID    uuid.UUID  `json:"agent_id"`
	FromTier   MemoryTier `json:"from_tier"`
	ToTier     MemoryTier `json:"to_tier"`
	Count      int        `json:"count"`
	OccurredAt time.Time  `json:"occurred_at"`
}
