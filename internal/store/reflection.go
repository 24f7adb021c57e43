package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const reflectionColumns = `id, agent_id, trigger_type, trigger_description, summary, insights, emotional_state, identity_delta, drift_detected, source_memory_ids, created_at`

type ReflectionStore struct {
	db *pgxpool.Pool
}

func NewReflectionStore(db *pgxpool.Pool) *ReflectionStore {
	return &ReflectionStore{db: db}
}

func scanReflection(row pgx.Row) (*domain.Reflection, error) {
	r := &domain.Reflection{}
	var desc *string
	err := row.Scan(&r.ID, &r.AgentID, &r.Trigger, &desc, &r.Summary, &r.Insights, &r.EmotionalState,
		&r.IdentityDelta, &r.DriftDetected, &r.SourceMemoryIDs, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if desc != nil {
		r.TriggerDescription = *desc
	}
	return r, nil
}

func (s *ReflectionStore) Persist(ctx context.Context, c domain.ReflectionCommit, beforeCommit func(ctx context.Context) error) error {
	r := c.Reflection
	if r == nil {
		return errors.New("persist reflection: nil reflection")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reflection tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insights := r.Insights
	if insights == nil {
		insights = []domain.Insight{}
	}
	sources := r.SourceMemoryIDs
	if sources == nil {
		sources = []uuid.UUID{}
	}
	var identityDelta any
	if len(r.IdentityDelta) > 0 {
		identityDelta = r.IdentityDelta
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO reflections (id, agent_id, trigger_type, trigger_description, summary, insights, emotional_state, identity_delta, drift_detected, source_memory_ids)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at`,
		r.ID, r.AgentID, r.Trigger, r.TriggerDescription, r.Summary, insights, r.EmotionalState, identityDelta, r.DriftDetected, sources,
	).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reflection: %w", err)
	}

	if c.Memory != nil {
		if err := insertMemory(ctx, tx, c.Memory); err != nil {
			return fmt.Errorf("insert reflection memory: %w", err)
		}
	}

	if len(c.IdentityEmbedding) > 0 {
		if err := updateIdentityEmbedding(ctx, tx, r.AgentID, c.IdentityEmbedding); err != nil {
			return fmt.Errorf("update identity embedding: %w", err)
		}
	}

	if beforeCommit != nil {
		if err := beforeCommit(ctx); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reflection: %w", err)
	}
	return nil
}

func (s *ReflectionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Reflection, error) {
	r, err := scanReflection(s.db.QueryRow(ctx,
		`SELECT `+reflectionColumns+` FROM reflections WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *ReflectionStore) ListByAgent(ctx context.Context, agentID uuid.UUID, opts domain.ReflectionListOpts) ([]domain.Reflection, error) {
	query := `SELECT ` + reflectionColumns + ` FROM reflections WHERE agent_id = $1`
	if opts.DriftOnly {
		query += ` AND drift_detected`
	}
	query += ` ORDER BY created_at DESC LIMIT $2`

	limit := opts.Limit
	if limit <= 0 {
		limit = domain.DefaultReflectionHistoryLimit
	}

	rows, err := s.db.Query(ctx, query, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list reflections: %w", err)
	}
	defer rows.Close()

	var reflections []domain.Reflection
	for rows.Next() {
		r, err := scanReflection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reflection: %w", err)
		}
		reflections = append(reflections, *r)
	}
	return reflections, rows.Err()
}
