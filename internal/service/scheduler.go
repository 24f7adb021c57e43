package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSchedulerInterval    = 5 * time.Minute
	defaultSchedulerConcurrency = 4
	reflectionRunTimeout        = 3 * time.Minute
)

type SchedulerResult struct {
	Evaluated int `json:"evaluated"`
	Reflected int `json:"reflected"`
	Busy      int `json:"busy"`
	Failed    int `json:"failed"`
}

// ReflectionScheduler polls active agents and runs a reflection for every
// agent whose trigger fires.
type ReflectionScheduler struct {
	agentStore  domain.AgentStore
	evaluator   *TriggerEvaluator
	reflections *ReflectionService
	logger      *zap.Logger

	concurrency int
	interval    time.Duration
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

func NewReflectionScheduler(as domain.AgentStore, ev *TriggerEvaluator, rs *ReflectionService, logger *zap.Logger) *ReflectionScheduler {
	return &ReflectionScheduler{
		agentStore:  as,
		evaluator:   ev,
		reflections: rs,
		logger:      logger,
		concurrency: defaultSchedulerConcurrency,
		interval:    defaultSchedulerInterval,
		stopCh:      make(chan struct{}),
	}
}

func (s *ReflectionScheduler) SetInterval(d time.Duration) {
	s.interval = d
}

func (s *ReflectionScheduler) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

func (s *ReflectionScheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("reflection scheduler started",
			zap.Duration("interval", s.interval),
			zap.Int("concurrency", s.concurrency))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), s.interval)
				s.RunOnce(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("reflection scheduler stopped")
				return
			}
		}
	}()
}

func (s *ReflectionScheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// RunOnce evaluates every active agent once. Agents already reflecting are
// skipped rather than queued.
func (s *ReflectionScheduler) RunOnce(ctx context.Context) *SchedulerResult {
	var evaluated, reflected, busy, failed atomic.Int64

	agents, err := s.agentStore.List(ctx, domain.AgentFilter{Status: domain.Ptr(domain.AgentStatusActive)})
	if err != nil {
		s.logger.Error("failed to list active agents", zap.Error(err))
		return &SchedulerResult{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range agents {
		agent := agents[i]
		g.Go(func() error {
			if s.reflections.Locks().Held(agent.ID) {
				busy.Add(1)
				return nil
			}
			evaluated.Add(1)
			decision, err := s.evaluator.EvaluateReflectionTrigger(gctx, &agent)
			if err != nil {
				failed.Add(1)
				s.logger.Warn("trigger evaluation failed", zap.String("agent_id", agent.ID.String()), zap.Error(err))
				return nil
			}
			if !decision.ShouldReflect {
				return nil
			}
			if err := s.reflect(gctx, &agent, decision); err != nil {
				failed.Add(1)
				s.logger.Warn("scheduled reflection failed",
					zap.String("agent_id", agent.ID.String()),
					zap.String("trigger", string(decision.Trigger)),
					zap.Error(err))
				return nil
			}
			reflected.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	result := &SchedulerResult{
		Evaluated: int(evaluated.Load()),
		Reflected: int(reflected.Load()),
		Busy:      int(busy.Load()),
		Failed:    int(failed.Load()),
	}
	if result.Reflected > 0 || result.Failed > 0 {
		s.logger.Info("reflection sweep complete",
			zap.Int("evaluated", result.Evaluated),
			zap.Int("reflected", result.Reflected),
			zap.Int("failed", result.Failed))
	}
	return result
}

func (s *ReflectionScheduler) reflect(ctx context.Context, agent *domain.Agent, d domain.TriggerDecision) error {
	ctx, cancel := context.WithTimeout(ctx, reflectionRunTimeout)
	defer cancel()

	if err := s.agentStore.UpdateStatus(ctx, agent.ID, domain.AgentStatusReflecting); err != nil {
		return storeErr("mark agent reflecting", err)
	}
	defer func() {
		// a status set while the run was in flight wins over the restore
		restoreCtx := context.WithoutCancel(ctx)
		restored, err := s.agentStore.UpdateStatusIf(restoreCtx, agent.ID, domain.AgentStatusReflecting, agent.Status)
		if err != nil {
			s.logger.Error("failed to restore agent status",
				zap.String("agent_id", agent.ID.String()), zap.Error(err))
		} else if !restored {
			s.logger.Info("agent status changed during reflection; keeping it",
				zap.String("agent_id", agent.ID.String()))
		}
	}()

	if _, err := s.reflections.RunReflection(ctx, agent, d.Trigger, d.Reason); err != nil {
		return err
	}

	// without this the temporal trigger would fire again on the next tick
	if err := s.agentStore.TouchLastActive(ctx, agent.ID, timeNow().UTC()); err != nil {
		s.logger.Warn("failed to touch agent after reflection", zap.String("agent_id", agent.ID.String()), zap.Error(err))
	}
	return nil
}
