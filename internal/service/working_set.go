package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Working set phases. Later phases only run while the budget is below the
// given fraction.
const (
	RecencyWindow          = 24 * time.Hour
	RecencyLimit           = 20
	ImportancePhaseUsage   = 0.7
	ImportanceAtLeast      = 0.8
	ImportanceLimit        = 10
	FrequencyPhaseUsage    = 0.5
	FrequencyAccessAtLeast = 3
	FrequencyLimit         = 10
)

// WorkingSetBuilder assembles the token-bounded memory set handed to an
// agent for one request.
type WorkingSetBuilder struct {
	memoryStore domain.MemoryStore
	logger      *zap.Logger
}

func NewWorkingSetBuilder(ms domain.MemoryStore, logger *zap.Logger) *WorkingSetBuilder {
	return &WorkingSetBuilder{memoryStore: ms, logger: logger}
}

type workingSetPhase struct {
	name     string
	maxUsage float64 // run only while usage is below this; 0 means always
	query    domain.MemoryQuery
}

// BuildWorkingMemory fills a budget of maxTokens from three phases: recent
// memories, then important ones, then frequently read ones. Within a phase
// the first candidate that does not fit ends that phase.
func (b *WorkingSetBuilder) BuildWorkingMemory(ctx context.Context, agentID uuid.UUID, maxTokens int) (*domain.WorkingMemory, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: max_tokens must be positive", domain.ErrValidation)
	}

	now := timeNow().UTC()
	wm := domain.NewWorkingMemory(agentID, maxTokens)
	included := make(map[uuid.UUID]struct{})

	phases := []workingSetPhase{
		{
			name: "recency",
			query: domain.MemoryQuery{
				Filter: domain.MemoryFilter{AgentID: agentID, CreatedSince: domain.Ptr(now.Add(-RecencyWindow))},
				Order:  domain.OrderCreatedDesc,
				Limit:  RecencyLimit,
			},
		},
		{
			name:     "importance",
			maxUsage: ImportancePhaseUsage,
			query: domain.MemoryQuery{
				Filter: domain.MemoryFilter{AgentID: agentID, ImportanceAtLeast: domain.Ptr(ImportanceAtLeast)},
				Order:  domain.OrderImportanceAsc,
				Limit:  ImportanceLimit,
			},
		},
		{
			name:     "frequency",
			maxUsage: FrequencyPhaseUsage,
			query: domain.MemoryQuery{
				Filter: domain.MemoryFilter{AgentID: agentID, AccessCountAtLeast: domain.Ptr(FrequencyAccessAtLeast)},
				Order:  domain.OrderAccessCountAsc,
				Limit:  FrequencyLimit,
			},
		},
	}

	for _, p := range phases {
		if p.maxUsage > 0 && float64(wm.TokenCount) >= p.maxUsage*float64(maxTokens) {
			continue
		}
		candidates, err := b.memoryStore.List(ctx, p.query)
		if err != nil {
			return nil, storeErr("list "+p.name+" memories", err)
		}
		for _, m := range candidates {
			if _, dup := included[m.ID]; dup {
				continue
			}
			if !wm.Add(m) {
				break
			}
			included[m.ID] = struct{}{}
		}
	}

	b.logger.Debug("working set built",
		zap.String("agent_id", agentID.String()),
		zap.Int("memories", len(wm.Memories)),
		zap.Int("tokens", wm.TokenCount),
		zap.Int("max_tokens", maxTokens))
	return wm, nil
}
