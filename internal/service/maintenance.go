package service

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"go.uber.org/zap"
)

const defaultMaintenanceInterval = 1 * time.Hour

type MaintenanceResult struct {
	ExpiredDeleted   int64 `json:"expired_deleted"`
	AgentsScanned    int   `json:"agents_scanned"`
	MemoriesArchived int   `json:"memories_archived"`
}

// MaintenanceService periodically deletes expired memories and archives
// stale ones for every agent.
type MaintenanceService struct {
	agentStore  domain.AgentStore
	memoryStore domain.MemoryStore
	tiers       *TierService
	logger      *zap.Logger

	archiveAfterDays int
	interval         time.Duration
	stopCh           chan struct{}
	wg               sync.WaitGroup
}

func NewMaintenanceService(as domain.AgentStore, ms domain.MemoryStore, tiers *TierService, logger *zap.Logger) *MaintenanceService {
	return &MaintenanceService{
		agentStore:       as,
		memoryStore:      ms,
		tiers:            tiers,
		logger:           logger,
		archiveAfterDays: domain.DefaultArchiveAfterDays,
		interval:         defaultMaintenanceInterval,
		stopCh:           make(chan struct{}),
	}
}

func (s *MaintenanceService) SetInterval(d time.Duration) {
	s.interval = d
}

func (s *MaintenanceService) SetArchiveAfterDays(days int) {
	s.archiveAfterDays = days
}

// Start runs maintenance on a periodic schedule in a background goroutine.
func (s *MaintenanceService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("maintenance worker started",
			zap.Duration("interval", s.interval),
			zap.Int("archive_after_days", s.archiveAfterDays))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				s.RunMaintenance(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("maintenance worker stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the worker.
func (s *MaintenanceService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *MaintenanceService) RunMaintenance(ctx context.Context) *MaintenanceResult {
	result := &MaintenanceResult{}

	deleted, err := s.memoryStore.DeleteExpired(ctx)
	if err != nil {
		s.logger.Error("failed to delete expired memories", zap.Error(err))
	} else if deleted > 0 {
		result.ExpiredDeleted = deleted
		s.logger.Info("deleted expired memories", zap.Int64("count", deleted))
	}

	agents, err := s.agentStore.List(ctx, domain.AgentFilter{})
	if err != nil {
		s.logger.Error("failed to list agents for tier migration", zap.Error(err))
		return result
	}

	for _, a := range agents {
		if a.Status == domain.AgentStatusArchived {
			continue
		}
		result.AgentsScanned++
		moved, err := s.tiers.MigrateStaleMemories(ctx, a.ID, s.archiveAfterDays)
		if err != nil {
			s.logger.Warn("tier migration failed for agent",
				zap.String("agent_id", a.ID.String()),
				zap.Error(err))
			continue
		}
		result.MemoriesArchived += moved
	}

	return result
}
