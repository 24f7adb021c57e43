package service

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"go.uber.org/zap"
)

const (
	VolumeWindow           = 100
	VolumePerDepth         = 5
	SignificanceImportance = 0.8
	SignificanceCount      = 2
)

// TriggerEvaluator decides whether an agent is due for reflection. It only
// reads.
type TriggerEvaluator struct {
	memoryStore domain.MemoryStore
	logger      *zap.Logger
}

func NewTriggerEvaluator(ms domain.MemoryStore, logger *zap.Logger) *TriggerEvaluator {
	return &TriggerEvaluator{memoryStore: ms, logger: logger}
}

// EvaluateReflectionTrigger checks, in order, elapsed time since last
// activity, the volume of unreflected memories and the number of
// significant unreflected memories. The first condition met wins.
func (e *TriggerEvaluator) EvaluateReflectionTrigger(ctx context.Context, agent *domain.Agent) (domain.TriggerDecision, error) {
	elapsed := timeNow().Sub(agent.LastActive).Seconds()
	if elapsed > float64(agent.AutoReflectInterval) {
		return domain.TriggerDecision{
			ShouldReflect: true,
			Trigger:       domain.TriggerTemporal,
			Reason:        fmt.Sprintf("%.0fs since last activity", elapsed),
		}, nil
	}

	recent, err := e.memoryStore.List(ctx, domain.MemoryQuery{
		Filter: domain.MemoryFilter{AgentID: agent.ID},
		Order:  domain.OrderCreatedDesc,
		Limit:  VolumeWindow,
	})
	if err != nil {
		return domain.TriggerDecision{}, storeErr("list recent memories", err)
	}

	var unreflected, significant int
	for _, m := range recent {
		if m.Kind == domain.MemoryKindReflection {
			continue
		}
		unreflected++
		if m.Importance > SignificanceImportance {
			significant++
		}
	}

	if unreflected >= VolumePerDepth*agent.ReflectionDepth {
		return domain.TriggerDecision{
			ShouldReflect: true,
			Trigger:       domain.TriggerVolume,
			Reason:        fmt.Sprintf("%d new memories accumulated", unreflected),
		}, nil
	}

	if significant >= SignificanceCount {
		return domain.TriggerDecision{
			ShouldReflect: true,
			Trigger:       domain.TriggerSignificance,
			Reason:        fmt.Sprintf("%d significant events", significant),
		}, nil
	}

	return domain.TriggerDecision{}, nil
}
