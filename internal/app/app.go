// Package app builds the service graph from configuration. Every component
// is constructed once here and handed to its callers.
package app

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/soulgarden/internal/config"
	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/Harshitk-cp/soulgarden/internal/embedding"
	"github.com/Harshitk-cp/soulgarden/internal/events"
	"github.com/Harshitk-cp/soulgarden/internal/identity"
	"github.com/Harshitk-cp/soulgarden/internal/llm"
	"github.com/Harshitk-cp/soulgarden/internal/service"
	"github.com/Harshitk-cp/soulgarden/internal/store"
	"github.com/Harshitk-cp/soulgarden/internal/telemetry"
	"github.com/Harshitk-cp/soulgarden/internal/vectorindex"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	BackendPgvector = "pgvector"
	BackendChromem  = "chromem"

	DocumentsFS     = "fs"
	DocumentsSQLite = "sqlite"

	identityCacheAgents = 1000
)

type App struct {
	DB *pgxpool.Pool

	Agents      *service.AgentService
	Memories    *service.MemoryService
	WorkingSet  *service.WorkingSetBuilder
	Tiers       *service.TierService
	Triggers    *service.TriggerEvaluator
	Reflections *service.ReflectionService
	Scheduler   *service.ReflectionScheduler
	Maintenance *service.MaintenanceService

	// Events is nil unless NATS_URL is set.
	Events *events.NATSPublisher

	closers []func()
}

// New wires the application on top of an open database pool.
func New(ctx context.Context, db *pgxpool.Pool, logger *zap.Logger) (*App, error) {
	a := &App{DB: db}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	agentStore := store.NewAgentStore(db)
	memoryStore := store.NewMemoryStore(db)
	reflectionStore := store.NewReflectionStore(db)

	emb, err := embedding.NewClient(config.EmbeddingProvider(), config.EmbeddingAPIKey(), config.EmbeddingModel(), config.EmbeddingDimensions())
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}
	logger.Info("embedding client initialized", zap.String("provider", config.EmbeddingProvider()))

	gen, err := llm.NewClient(config.LLMProvider(), config.LLMAPIKey(), config.LLMModel())
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}
	logger.Info("LLM client initialized", zap.String("provider", config.LLMProvider()))

	docs, err := a.documentStore()
	if err != nil {
		return nil, err
	}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	var publisher domain.EventPublisher = events.NoopPublisher{}
	if url := config.NATSURL(); url != "" {
		p, err := events.Connect(ctx, url, logger)
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		a.Events = p
		a.closers = append(a.closers, p.Close)
		publisher = p
		logger.Info("publishing events to NATS", zap.String("url", url))
	}

	var searcher domain.SimilaritySearcher = memoryStore
	var indexer domain.MemoryIndexer
	switch backend := config.VectorBackend(); backend {
	case BackendPgvector:
	case BackendChromem:
		ix := vectorindex.New(memoryStore, logger)
		searcher, indexer = ix, ix
	default:
		return nil, fmt.Errorf("unknown vector backend: %s (valid options: pgvector, chromem)", backend)
	}

	a.Agents = service.NewAgentService(agentStore, docs, emb, logger)
	a.Agents.SetEventPublisher(publisher)

	a.Memories = service.NewMemoryService(memoryStore, agentStore, emb, searcher, logger)
	a.Memories.SetMetrics(metrics)

	a.WorkingSet = service.NewWorkingSetBuilder(memoryStore, logger)

	a.Tiers = service.NewTierService(memoryStore, logger)
	a.Tiers.SetEventPublisher(publisher)
	a.Tiers.SetMetrics(metrics)

	a.Triggers = service.NewTriggerEvaluator(memoryStore, logger)

	a.Reflections = service.NewReflectionService(agentStore, memoryStore, reflectionStore, docs, emb, gen, nil, logger)
	a.Reflections.SetEventPublisher(publisher)
	a.Reflections.SetMetrics(metrics)

	if indexer != nil {
		a.Memories.SetIndexer(indexer)
		a.Reflections.SetIndexer(indexer)
		a.Tiers.SetIndexer(indexer)
	}

	a.Scheduler = service.NewReflectionScheduler(agentStore, a.Triggers, a.Reflections, logger)
	a.Scheduler.SetInterval(config.ReflectionPollInterval())
	a.Scheduler.SetConcurrency(config.ReflectionConcurrency())

	a.Maintenance = service.NewMaintenanceService(agentStore, memoryStore, a.Tiers, logger)
	a.Maintenance.SetInterval(config.MaintenanceInterval())
	a.Maintenance.SetArchiveAfterDays(config.ArchiveAfterDays())

	ok = true
	return a, nil
}

func (a *App) documentStore() (domain.DocumentStore, error) {
	var base domain.DocumentStore
	switch kind := config.DocumentStore(); kind {
	case DocumentsFS:
		fs, err := identity.NewFileStore(config.AgentsDir())
		if err != nil {
			return nil, fmt.Errorf("identity file store: %w", err)
		}
		base = fs
	case DocumentsSQLite:
		db, err := identity.OpenSQLiteStore(config.SQLitePath())
		if err != nil {
			return nil, fmt.Errorf("identity sqlite store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		base = db
	default:
		return nil, fmt.Errorf("unknown document store: %s (valid options: fs, sqlite)", kind)
	}

	ttl := config.IdentityCacheTTL()
	if ttl <= 0 {
		return base, nil
	}
	cached, err := identity.NewCachedStore(base, identityCacheAgents, ttl)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, cached.Close)
	return cached, nil
}

// Close releases everything New opened except the database pool.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
