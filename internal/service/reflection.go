package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/Harshitk-cp/soulgarden/internal/identity"
	"github.com/Harshitk-cp/soulgarden/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	ReflectionSourceLimit      = 20
	ReflectionMemoryImportance = 0.6
	DriftMemoryImportance      = 0.8
	ReflectionSourceKind       = "reflection"
	defaultDriftReason         = "Evolution through reflection"
	revertReason               = "Reflection could not be saved; identity restored"
)

// ReflectionService runs reflection cycles and records the identity changes
// they produce.
type ReflectionService struct {
	agentStore      domain.AgentStore
	memoryStore     domain.MemoryStore
	reflectionStore domain.ReflectionStore
	docs            domain.DocumentStore
	embedder        domain.Embedder
	generator       domain.TextGenerator
	locks           *AgentLocks
	indexer         domain.MemoryIndexer
	events          domain.EventPublisher
	metrics         *telemetry.Metrics
	logger          *zap.Logger
}

func NewReflectionService(
	as domain.AgentStore,
	ms domain.MemoryStore,
	rs domain.ReflectionStore,
	ds domain.DocumentStore,
	emb domain.Embedder,
	gen domain.TextGenerator,
	locks *AgentLocks,
	logger *zap.Logger,
) *ReflectionService {
	if locks == nil {
		locks = NewAgentLocks()
	}
	return &ReflectionService{
		agentStore:      as,
		memoryStore:     ms,
		reflectionStore: rs,
		docs:            ds,
		embedder:        emb,
		generator:       gen,
		locks:           locks,
		logger:          logger,
	}
}

func (s *ReflectionService) SetIndexer(ix domain.MemoryIndexer) {
	s.indexer = ix
}

func (s *ReflectionService) SetEventPublisher(p domain.EventPublisher) {
	s.events = p
}

func (s *ReflectionService) SetMetrics(m *telemetry.Metrics) {
	s.metrics = m
}

// Locks exposes the lease table so other callers can coordinate with
// running reflections.
func (s *ReflectionService) Locks() *AgentLocks {
	return s.locks
}

// RunReflection generates a reflection for agent and persists it together
// with its summary memory and, on drift, the new identity. Either all of it
// is stored or none of it. Only one reflection per agent runs at a time;
// later callers wait for the lease.
func (s *ReflectionService) RunReflection(ctx context.Context, agent *domain.Agent, trigger domain.ReflectionTrigger, triggerContext string) (refl *domain.Reflection, err error) {
	if !domain.ValidReflectionTrigger(string(trigger)) {
		return nil, ErrInvalidTrigger
	}
	if err := domain.ValidateReflectionDepth(agent.ReflectionDepth); err != nil {
		return nil, err
	}

	release, err := s.locks.Acquire(ctx, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("acquire reflection lease: %w", err)
	}
	defer release()

	started := timeNow()
	ctx, span := telemetry.StartReflectionSpan(ctx, agent.ID, string(trigger))
	defer func() {
		telemetry.EndSpan(span, err)
		s.record(ctx, trigger, refl, err, timeNow().Sub(started))
	}()

	var (
		docs   *domain.IdentityDocuments
		recent []domain.Memory
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := s.docs.ReadIdentityDocuments(gctx, agent.ID)
		if err != nil {
			return storeErr("read identity documents", err)
		}
		docs = d
		return nil
	})
	g.Go(func() error {
		mems, err := s.memoryStore.List(gctx, domain.MemoryQuery{
			Filter: domain.MemoryFilter{AgentID: agent.ID, ExcludeKind: domain.Ptr(domain.MemoryKindReflection)},
			Order:  domain.OrderCreatedDesc,
			Limit:  ReflectionSourceLimit,
		})
		if err != nil {
			return storeErr("list reflection sources", err)
		}
		recent = mems
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	raw, err := s.generator.Generate(ctx, domain.GenerateRequest{
		System:      reflectionSystemPrompt,
		Prompt:      buildReflectionPrompt(agent, docs, recent, trigger, triggerContext),
		Temperature: reflectionTemperature,
		JSON:        true,
	})
	if err != nil {
		return nil, generationErr("generate reflection", err)
	}

	out, insights, err := parseReflection(raw)
	if err != nil {
		s.logger.Warn("reflection output rejected", zap.String("agent_id", agent.ID.String()), zap.Error(err))
		return nil, generationErr("parse reflection", err)
	}

	now := timeNow().UTC()
	refl = &domain.Reflection{
		ID:                 uuid.New(),
		AgentID:            agent.ID,
		Trigger:            trigger,
		TriggerDescription: triggerContext,
		Summary:            out.Summary,
		Insights:           insights,
		EmotionalState:     out.EmotionalState,
		DriftDetected:      out.DriftDetected,
		SourceMemoryIDs:    make([]uuid.UUID, 0, len(recent)),
		CreatedAt:          now,
	}
	if refl.TriggerDescription == "" {
		refl.TriggerDescription = fmt.Sprintf("Automatic %s reflection", trigger)
	}
	for _, m := range recent {
		refl.SourceMemoryIDs = append(refl.SourceMemoryIDs, m.ID)
	}

	commit := domain.ReflectionCommit{Reflection: refl}
	var beforeCommit func(ctx context.Context) error
	documentsCommitted := false

	if refl.DriftDetected {
		reason := out.DriftReason
		if reason == "" {
			reason = defaultDriftReason
		}
		reflID := refl.ID
		delta := domain.NewIdentityDelta(docs.Identity, out.NewIdentity, reason, now)
		delta.ReflectionID = &reflID
		refl.IdentityDelta = []domain.IdentityDelta{delta}

		emb, err := s.embedder.Embed(ctx, out.NewIdentity)
		if err != nil {
			return nil, generationErr("embed new identity", err)
		}
		commit.IdentityEmbedding = emb

		entry := domain.DriftLogEntry{
			ID:            identity.NewEntryID(now),
			Event:         domain.DriftEventDrift,
			IdentityDelta: delta,
		}
		beforeCommit = func(ctx context.Context) error {
			if err := s.docs.CommitIdentityDrift(ctx, agent.ID, out.NewIdentity, entry); err != nil {
				return fmt.Errorf("commit identity drift: %w", err)
			}
			documentsCommitted = true
			return nil
		}
	}

	importance := ReflectionMemoryImportance
	if refl.DriftDetected {
		importance = DriftMemoryImportance
	}
	commit.Memory = &domain.Memory{
		ID:               uuid.New(),
		AgentID:          agent.ID,
		Content:          "Reflection: " + out.Summary,
		Kind:             domain.MemoryKindReflection,
		Tier:             domain.TierRAG,
		Importance:       importance,
		EmotionalValence: out.EmotionalState,
		SourceKind:       ReflectionSourceKind,
		SourceID:         &refl.ID,
	}
	if emb, err := s.embedder.Embed(ctx, commit.Memory.Content); err != nil {
		s.logger.Warn("reflection memory embedding failed", zap.String("agent_id", agent.ID.String()), zap.Error(err))
	} else {
		commit.Memory.Embedding = emb
	}

	if err := s.reflectionStore.Persist(ctx, commit, beforeCommit); err != nil {
		if documentsCommitted {
			s.revertIdentity(ctx, agent.ID, docs.Identity, out.NewIdentity, refl.ID)
		}
		return nil, storeErr("persist reflection", err)
	}

	s.afterCommit(ctx, refl, commit.Memory)
	return refl, nil
}

// revertIdentity restores the previous identity document when the database
// rejected a reflection after the documents were already replaced.
func (s *ReflectionService) revertIdentity(ctx context.Context, agentID uuid.UUID, previous, current string, reflectionID uuid.UUID) {
	ctx = context.WithoutCancel(ctx)
	now := timeNow().UTC()
	delta := domain.NewIdentityDelta(current, previous, revertReason, now)
	delta.ReflectionID = &reflectionID
	entry := domain.DriftLogEntry{
		ID:            identity.NewEntryID(now),
		Event:         domain.DriftEventRevert,
		IdentityDelta: delta,
	}
	if err := s.docs.CommitIdentityDrift(ctx, agentID, previous, entry); err != nil {
		s.logger.Error("failed to restore identity after aborted reflection",
			zap.String("agent_id", agentID.String()),
			zap.String("reflection_id", reflectionID.String()),
			zap.Error(err))
		return
	}
	s.logger.Warn("identity restored after aborted reflection",
		zap.String("agent_id", agentID.String()),
		zap.String("reflection_id", reflectionID.String()))
}

func (s *ReflectionService) afterCommit(ctx context.Context, refl *domain.Reflection, mem *domain.Memory) {
	if s.indexer != nil {
		if err := s.indexer.Index(ctx, *mem); err != nil {
			s.logger.Warn("reflection memory indexing failed", zap.String("memory_id", mem.ID.String()), zap.Error(err))
		}
	}

	s.logger.Info("reflection completed",
		zap.String("agent_id", refl.AgentID.String()),
		zap.String("reflection_id", refl.ID.String()),
		zap.String("trigger", string(refl.Trigger)),
		zap.Int("insights", len(refl.Insights)),
		zap.Bool("drift", refl.DriftDetected))

	if s.events == nil {
		return
	}
	events := []domain.Event{{
		Type:       domain.EventReflectionCompleted,
		AgentID:    refl.AgentID,
		OccurredAt: refl.CreatedAt,
		Payload:    refl,
	}}
	if refl.DriftDetected {
		events = append(events, domain.Event{
			Type:       domain.EventIdentityDrifted,
			AgentID:    refl.AgentID,
			OccurredAt: refl.CreatedAt,
			Payload:    refl.IdentityDelta[0],
		})
	}
	for _, e := range events {
		if err := s.events.Publish(ctx, e); err != nil {
			s.logger.Warn("event publish failed", zap.String("type", string(e.Type)), zap.Error(err))
		}
	}
}

func (s *ReflectionService) record(ctx context.Context, trigger domain.ReflectionTrigger, refl *domain.Reflection, err error, took time.Duration) {
	if s.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("trigger", string(trigger)))
	if err != nil {
		s.metrics.ReflectionErrors.Add(ctx, 1, attrs)
		return
	}
	s.metrics.Reflections.Add(ctx, 1, attrs)
	s.metrics.ReflectionTime.Record(ctx, took.Seconds(), attrs)
	if refl != nil && refl.DriftDetected {
		s.metrics.Drifts.Add(ctx, 1, attrs)
	}
}

// ReflectionHistory lists the agent's reflections, newest first.
func (s *ReflectionService) ReflectionHistory(ctx context.Context, agentID uuid.UUID, limit int, driftOnly bool) ([]domain.Reflection, error) {
	if limit == 0 {
		limit = domain.DefaultReflectionHistoryLimit
	}
	if limit < 1 || limit > domain.MaxReflectionHistoryLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, domain.MaxReflectionHistoryLimit)
	}
	if err := s.requireAgent(ctx, agentID); err != nil {
		return nil, err
	}
	out, err := s.reflectionStore.ListByAgent(ctx, agentID, domain.ReflectionListOpts{Limit: limit, DriftOnly: driftOnly})
	if err != nil {
		return nil, storeErr("list reflections", err)
	}
	return out, nil
}

// LatestReflection returns the newest reflection or ErrReflectionNotFound.
func (s *ReflectionService) LatestReflection(ctx context.Context, agentID uuid.UUID) (*domain.Reflection, error) {
	out, err := s.ReflectionHistory(ctx, agentID, 1, false)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrReflectionNotFound
	}
	return &out[0], nil
}

func (s *ReflectionService) GetReflection(ctx context.Context, id uuid.UUID) (*domain.Reflection, error) {
	r, err := s.reflectionStore.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrReflectionNotFound
		}
		return nil, storeErr("get reflection", err)
	}
	return r, nil
}

// DriftHistory returns the agent's drift log, oldest first.
func (s *ReflectionService) DriftHistory(ctx context.Context, agentID uuid.UUID) ([]domain.DriftLogEntry, error) {
	if err := s.requireAgent(ctx, agentID); err != nil {
		return nil, err
	}
	docs, err := s.docs.ReadIdentityDocuments(ctx, agentID)
	if err != nil {
		return nil, storeErr("read drift log", err)
	}
	return docs.DriftLog, nil
}

func (s *ReflectionService) requireAgent(ctx context.Context, agentID uuid.UUID) error {
	if _, err := s.agentStore.GetByID(ctx, agentID); err != nil {
		if isNotFound(err) {
			return ErrAgentNotFound
		}
		return storeErr("get agent", err)
	}
	return nil
}
