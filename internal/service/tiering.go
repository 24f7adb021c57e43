package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/Harshitk-cp/soulgarden/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// TierService moves memories between storage tiers. Only rag to archive is
// automatic; nothing is ever promoted back.
type TierService struct {
	memoryStore domain.MemoryStore
	events      domain.EventPublisher
	indexer     domain.MemoryIndexer
	metrics     *telemetry.Metrics
	logger      *zap.Logger
}

func NewTierService(ms domain.MemoryStore, logger *zap.Logger) *TierService {
	return &TierService{memoryStore: ms, logger: logger}
}

func (s *TierService) SetEventPublisher(p domain.EventPublisher) {
	s.events = p
}

// SetIndexer registers a search backend whose copy of archived memories must
// be dropped.
func (s *TierService) SetIndexer(ix domain.MemoryIndexer) {
	s.indexer = ix
}

func (s *TierService) SetMetrics(m *telemetry.Metrics) {
	s.metrics = m
}

// MigrateStaleMemories archives rag memories older than olderThanDays that
// are both unimportant and rarely read. Returns the number moved; a second
// run over the same data returns 0.
func (s *TierService) MigrateStaleMemories(ctx context.Context, agentID uuid.UUID, olderThanDays int) (moved int, err error) {
	if olderThanDays < 1 {
		return 0, fmt.Errorf("%w: older_than_days must be at least 1", domain.ErrValidation)
	}

	ctx, span := telemetry.StartMigrationSpan(ctx, agentID, olderThanDays)
	defer func() { telemetry.EndSpan(span, err) }()

	now := timeNow().UTC()
	olderThan := time.Duration(olderThanDays) * 24 * time.Hour

	stale, err := s.memoryStore.List(ctx, domain.MemoryQuery{
		Filter: domain.ArchiveFilter(agentID, olderThan, now),
		Order:  domain.OrderCreatedDesc,
	})
	if err != nil {
		return 0, storeErr("list stale memories", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, len(stale))
	for i, m := range stale {
		ids[i] = m.ID
	}
	n, err := s.memoryStore.UpdateTier(ctx, agentID, ids, domain.TierRAG, domain.TierArchive)
	if err != nil {
		return 0, storeErr("archive memories", err)
	}
	moved = int(n)
	if moved == 0 {
		return 0, nil
	}

	if s.indexer != nil {
		for _, id := range ids {
			if err := s.indexer.Remove(ctx, agentID, id); err != nil {
				s.logger.Warn("failed to drop archived memory from index",
					zap.String("memory_id", id.String()), zap.Error(err))
			}
		}
	}

	s.logger.Info("archived stale memories",
		zap.String("agent_id", agentID.String()),
		zap.Int("count", moved),
		zap.Int("older_than_days", olderThanDays))

	if s.metrics != nil {
		s.metrics.MemoriesArchived.Add(ctx, int64(moved),
			metric.WithAttributes(attribute.String("agent.id", agentID.String())))
	}
	if s.events != nil {
		e := domain.Event{
			Type:       domain.EventMemoriesArchived,
			AgentID:    agentID,
			OccurredAt: now,
			Payload: domain.TierTransition{
				AgentID:    agentID,
				FromTier:   domain.TierRAG,
				ToTier:     domain.TierArchive,
				Count:      moved,
				OccurredAt: now,
			},
		}
		if err := s.events.Publish(ctx, e); err != nil {
			s.logger.Warn("event publish failed", zap.String("type", string(e.Type)), zap.Error(err))
		}
	}
	return moved, nil
}
