package domain

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	DefaultWorkingMemoryTokens = 8000
	MinWorkingMemoryTokens     = 1000
	MaxWorkingMemoryTokens     = 16000
)

// WorkingMemory is the token-bounded set of memories assembled for one
// request. It is rebuilt on every call and never persisted.
type WorkingMemory struct {
	AgentID    uuid.UUID `json:"agent_id"`
	Memories   []Memory  `json:"memories"`
	TokenCount int       `json:"token_count"`
	MaxTokens  int       `json:"max_tokens"`
}

func NewWorkingMemory(agentID uuid.UUID, maxTokens int) *WorkingMemory {
	return &WorkingMemory{
		AgentID:   agentID,
		Memories:  []Memory{},
		MaxTokens: maxTokens,
	}
}

// EstimateTokens approximates the token cost of a memory as a quarter of its
// character length, rounded down.
func EstimateTokens(m Memory) int {
	return utf8.RuneCountInString(m.Content) / 4
}

// Fits reports whether m can be added without exceeding the budget.
func (w *WorkingMemory) Fits(m Memory) bool {
	return w.TokenCount+EstimateTokens(m) <= w.MaxTokens
}

// Add appends m if it fits and reports whether it did.
func (w *WorkingMemory) Add(m Memory) bool {
	if !w.Fits(m) {
		return false
	}
	w.Memories = append(w.Memories, m)
	w.TokenCount += EstimateTokens(m)
	return true
}

// Usage is the fraction of the budget already spent.
func (w *WorkingMemory) Usage() float64 {
	if w.MaxTokens <= 0 {
		return 1
	}
	return float64(w.TokenCount) / float64(w.MaxTokens)
}

// ValidateTokenBudget enforces the accepted range for caller-supplied budgets.
func ValidateTokenBudget(n int) error {
	if n < MinWorkingMemoryTokens || n > MaxWorkingMemoryTokens {
		return fmt.Errorf("%w: max_tokens must be between %d and %d", ErrValidation, MinWorkingMemoryTokens, MaxWorkingMemoryTokens)
	}
	return nil
}
