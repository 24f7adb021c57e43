package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

const agentColumns = `id, name, handle, status, reflection_depth, auto_reflect_interval, last_active, identity_embedding, created_at, updated_at`

type AgentStore struct {
	db *pgxpool.Pool
}

func NewAgentStore(db *pgxpool.Pool) *AgentStore {
	return &AgentStore{db: db}
}

func scanAgent(row pgx.Row, extra ...any) (*domain.Agent, error) {
	a := &domain.Agent{}
	var emb *pgvector.Vector
	dest := []any{&a.ID, &a.Name, &a.Handle, &a.Status, &a.ReflectionDepth, &a.AutoReflectInterval, &a.LastActive, &emb, &a.CreatedAt, &a.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if emb != nil {
		a.IdentityEmbedding = emb.Slice()
	}
	return a, nil
}

func vectorOrNil(v []float32) *pgvector.Vector {
	if len(v) == 0 {
		return nil
	}
	vec := pgvector.NewVector(v)
	return &vec
}

func (s *AgentStore) Create(ctx context.Context, a *domain.Agent) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO agents (name, handle, status, reflection_depth, auto_reflect_interval, last_active, identity_embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		a.Name, a.Handle, a.Status, a.ReflectionDepth, a.AutoReflectInterval, a.LastActive, vectorOrNil(a.IdentityEmbedding),
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *AgentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	a, err := scanAgent(s.db.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *AgentStore) GetByHandle(ctx context.Context, handle string) (*domain.Agent, error) {
	a, err := scanAgent(s.db.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE handle = $1`, handle))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *AgentStore) List(ctx context.Context, f domain.AgentFilter) ([]domain.Agent, error) {
	var conditions []string
	var args []any

	if f.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(*f.Status))
	}

	query := `SELECT ` + agentColumns + ` FROM agents`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, f.Offset)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

func (s *AgentStore) Update(ctx context.Context, a *domain.Agent) error {
	err := s.db.QueryRow(ctx,
		`UPDATE agents
		 SET name = $2, status = $3, reflection_depth = $4, auto_reflect_interval = $5, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		a.ID, a.Name, a.Status, a.ReflectionDepth, a.AutoReflectInterval,
	).Scan(&a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *AgentStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AgentStatus) error {
	return s.exec(ctx, `UPDATE agents SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
}

func (s *AgentStore) UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to domain.AgentStatus) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE agents SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *AgentStore) TouchLastActive(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.exec(ctx, `UPDATE agents SET last_active = $2, updated_at = NOW() WHERE id = $1`, id, at)
}

func (s *AgentStore) UpdateIdentityEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	return updateIdentityEmbedding(ctx, s.db, id, embedding)
}

func updateIdentityEmbedding(ctx context.Context, q querier, id uuid.UUID, embedding []float32) error {
	tag, err := q.Exec(ctx,
		`UPDATE agents SET identity_embedding = $2, updated_at = NOW() WHERE id = $1`,
		id, vectorOrNil(embedding),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *AgentStore) FindSimilar(ctx context.Context, id uuid.UUID, embedding []float32, threshold float32, limit int) ([]domain.AgentSimilarity, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+agentColumns+`, 1 - (identity_embedding <=> $2) AS similarity
		 FROM agents
		 WHERE id <> $1
		   AND identity_embedding IS NOT NULL
		   AND 1 - (identity_embedding <=> $2) >= $3
		 ORDER BY identity_embedding <=> $2
		 LIMIT $4`,
		id, pgvector.NewVector(embedding), threshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find similar agents: %w", err)
	}
	defer rows.Close()

	var results []domain.AgentSimilarity
	for rows.Next() {
		var sim float32
		a, err := scanAgent(rows, &sim)
		if err != nil {
			return nil, fmt.Errorf("scan similar agent: %w", err)
		}
		results = append(results, domain.AgentSimilarity{Agent: *a, Similarity: sim})
	}
	return results, rows.Err()
}

func (s *AgentStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
}

func (s *AgentStore) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
