package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/Harshitk-cp/soulgarden/internal/identity"
	"github.com/Harshitk-cp/soulgarden/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultSimilarAgentThreshold = 0.7

type AgentService struct {
	store    domain.AgentStore
	docs     domain.DocumentStore
	embedder domain.Embedder
	events   domain.EventPublisher
	logger   *zap.Logger
}

func NewAgentService(as domain.AgentStore, ds domain.DocumentStore, emb domain.Embedder, logger *zap.Logger) *AgentService {
	return &AgentService{
		store:    as,
		docs:     ds,
		embedder: emb,
		logger:   logger,
	}
}

func (s *AgentService) SetEventPublisher(p domain.EventPublisher) {
	s.events = p
}

type CreateAgentInput struct {
	Name                string             `json:"name" yaml:"name"`
	Handle              string             `json:"handle" yaml:"handle"`
	Status              domain.AgentStatus `json:"status,omitempty" yaml:"status"`
	ReflectionDepth     int                `json:"reflection_depth,omitempty" yaml:"reflection_depth"`
	AutoReflectInterval int                `json:"auto_reflect_interval,omitempty" yaml:"auto_reflect_interval"`
	Documents           identity.Overrides `json:"documents,omitempty" yaml:"documents"`
}

// Create registers the agent, writes its initial identity documents and
// stores an embedding of the identity text. If the documents cannot be written
// the agent row is removed again. A failed embedding is logged; the agent is
// still created.
func (s *AgentService) Create(ctx context.Context, in CreateAgentInput) (*domain.Agent, error) {
	now := timeNow().UTC()
	a := &domain.Agent{
		Name:                in.Name,
		Handle:              in.Handle,
		Status:              in.Status,
		ReflectionDepth:     in.ReflectionDepth,
		AutoReflectInterval: in.AutoReflectInterval,
		LastActive:          now,
	}
	a.ApplyDefaults()
	if err := a.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, a); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrAgentConflict
		}
		return nil, storeErr("create agent", err)
	}

	docs := identity.DefaultDocuments(a.Name, now, in.Documents)
	if err := s.docs.InitializeDocuments(ctx, a.ID, docs); err != nil {
		// drop the row so a retry with the same handle is not a conflict
		if delErr := s.store.Delete(context.WithoutCancel(ctx), a.ID); delErr != nil {
			s.logger.Error("failed to remove agent after document init failure",
				zap.String("agent_id", a.ID.String()), zap.Error(delErr))
		}
		return nil, storeErr("initialize identity documents", err)
	}

	if s.embedder != nil {
		emb, err := s.embedder.Embed(ctx, docs.Identity)
		if err != nil {
			s.logger.Warn("identity embedding failed", zap.String("agent_id", a.ID.String()), zap.Error(err))
		} else if err := s.store.UpdateIdentityEmbedding(ctx, a.ID, emb); err != nil {
			s.logger.Warn("failed to store identity embedding", zap.String("agent_id", a.ID.String()), zap.Error(err))
		} else {
			a.IdentityEmbedding = emb
		}
	}

	s.publish(ctx, domain.Event{Type: domain.EventAgentCreated, AgentID: a.ID, OccurredAt: now, Payload: a})
	s.logger.Info("agent created", zap.String("agent_id", a.ID.String()), zap.String("handle", a.Handle))
	return a, nil
}

func (s *AgentService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrAgentNotFound
		}
		return nil, storeErr("get agent", err)
	}
	return a, nil
}

func (s *AgentService) GetByHandle(ctx context.Context, handle string) (*domain.Agent, error) {
	a, err := s.store.GetByHandle(ctx, handle)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrAgentNotFound
		}
		return nil, storeErr("get agent by handle", err)
	}
	return a, nil
}

// Resolve looks an agent up by id, falling back to handle.
func (s *AgentService) Resolve(ctx context.Context, ref string) (*domain.Agent, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return s.GetByID(ctx, id)
	}
	return s.GetByHandle(ctx, ref)
}

func (s *AgentService) List(ctx context.Context, f domain.AgentFilter) ([]domain.Agent, error) {
	if f.Status != nil && !domain.ValidAgentStatus(string(*f.Status)) {
		return nil, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, *f.Status)
	}
	agents, err := s.store.List(ctx, f)
	if err != nil {
		return nil, storeErr("list agents", err)
	}
	return agents, nil
}

func (s *AgentService) Update(ctx context.Context, id uuid.UUID, u domain.AgentUpdate) (*domain.Agent, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Name != nil {
		a.Name = *u.Name
	}
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.ReflectionDepth != nil {
		a.ReflectionDepth = *u.ReflectionDepth
	}
	if u.AutoReflectInterval != nil {
		a.AutoReflectInterval = *u.AutoReflectInterval
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, a); err != nil {
		if isNotFound(err) {
			return nil, ErrAgentNotFound
		}
		return nil, storeErr("update agent", err)
	}
	return a, nil
}

// Touch records activity now.
func (s *AgentService) Touch(ctx context.Context, id uuid.UUID) error {
	if err := s.store.TouchLastActive(ctx, id, timeNow().UTC()); err != nil {
		if isNotFound(err) {
			return ErrAgentNotFound
		}
		return storeErr("touch agent", err)
	}
	return nil
}

// Wake makes the agent active and returns the status it had before.
func (s *AgentService) Wake(ctx context.Context, id uuid.UUID) (domain.AgentStatus, error) {
	return s.transition(ctx, id, domain.AgentStatusActive)
}

// Sleep makes the agent dormant and returns the status it had before.
func (s *AgentService) Sleep(ctx context.Context, id uuid.UUID) (domain.AgentStatus, error) {
	return s.transition(ctx, id, domain.AgentStatusDormant)
}

func (s *AgentService) transition(ctx context.Context, id uuid.UUID, to domain.AgentStatus) (domain.AgentStatus, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if a.Status == to {
		return a.Status, nil
	}
	if err := s.store.UpdateStatus(ctx, id, to); err != nil {
		return "", storeErr("update agent status", err)
	}
	return a.Status, nil
}

func (s *AgentService) Identity(ctx context.Context, id uuid.UUID) (*domain.IdentityDocuments, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	docs, err := s.docs.ReadIdentityDocuments(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, storeErr("read identity documents", err)
	}
	return docs, nil
}

// FindSimilar ranks other agents by how close their identity is to this one.
func (s *AgentService) FindSimilar(ctx context.Context, id uuid.UUID, threshold float32, limit int) ([]domain.AgentSimilarity, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if threshold < 0 || threshold > 1 {
		return nil, ErrInvalidThreshold
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if len(a.IdentityEmbedding) == 0 {
		return []domain.AgentSimilarity{}, nil
	}
	out, err := s.store.FindSimilar(ctx, id, a.IdentityEmbedding, threshold, limit)
	if err != nil {
		return nil, storeErr("find similar agents", err)
	}
	return out, nil
}

func (s *AgentService) publish(ctx context.Context, e domain.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("event publish failed", zap.String("type", string(e.Type)), zap.Error(err))
	}
}
