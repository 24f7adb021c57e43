package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/Harshitk-cp/soulgarden/internal/api/handlers"
	mw "github.com/Harshitk-cp/soulgarden/internal/api/middleware"
	"github.com/Harshitk-cp/soulgarden/internal/app"
	"github.com/Harshitk-cp/soulgarden/internal/buildconfig"
	"github.com/Harshitk-cp/soulgarden/internal/config"
	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/Harshitk-cp/soulgarden/internal/embedding"
	"github.com/Harshitk-cp/soulgarden/internal/events"
	"github.com/Harshitk-cp/soulgarden/internal/identity"
	"github.com/Harshitk-cp/soulgarden/internal/llm"
	"github.com/Harshitk-cp/soulgarden/internal/store"
	"github.com/Harshitk-cp/soulgarden/internal/vectorindex"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const limiterIdle = 10 * time.Minute

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the router and the request accounting behind /metrics.
type Server struct {
	Router    *chi.Mux
	stats     *mw.RequestStats
	limiter   *mw.RateLimiter
	startTime time.Time
	logger    *zap.Logger
}

func NewServer(a *app.App, logger *zap.Logger) *Server {
	agentHandler := handlers.NewAgentHandler(a.Agents, logger)
	memoryHandler := handlers.NewMemoryHandler(a.Memories, a.Agents, a.WorkingSet, a.Tiers, handlers.SearchDefaults{
		Limit:     config.MaxRAGResults(),
		Threshold: domain.Ptr(config.SimilarityThreshold()),
	}, logger)
	reflectionHandler := handlers.NewReflectionHandler(a.Reflections, a.Triggers, a.Agents, logger)

	r := chi.NewRouter()
	s := &Server{
		Router:    r,
		stats:     &mw.RequestStats{},
		limiter:   mw.NewRateLimiter(config.RateLimitRPS(), config.RateLimitBurst()),
		startTime: time.Now(),
		logger:    logger,
	}

	// order matters: ids before logging, recovery inside logging
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.stats.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(s.limiter))

	r.Get("/health", healthHandler(a.DB))
	r.Get("/metrics", s.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(config.APIKey()))

		r.Route("/agents", func(r chi.Router) {
			r.Post("/", agentHandler.Create)
			r.Get("/", agentHandler.List)
			r.Get("/handle/{handle}", agentHandler.GetByHandle)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", agentHandler.GetByID)
				r.Patch("/", agentHandler.Update)
				r.Post("/wake", agentHandler.Wake)
				r.Post("/sleep", agentHandler.Sleep)
				r.Get("/identity", agentHandler.Identity)
				r.Get("/similar", agentHandler.Similar)
				r.Get("/drift", reflectionHandler.Drift)

				r.Route("/memories", func(r chi.Router) {
					r.Get("/", memoryHandler.List)
					r.Get("/search", memoryHandler.Search)
					r.Get("/working", memoryHandler.WorkingSet)
					r.Get("/stats", memoryHandler.Stats)
					r.Post("/archive", memoryHandler.Archive)
				})

				r.Route("/reflections", func(r chi.Router) {
					r.Get("/", reflectionHandler.List)
					r.Post("/", reflectionHandler.Reflect)
					r.Get("/latest", reflectionHandler.Latest)
					r.Get("/should-reflect", reflectionHandler.ShouldReflect)
				})
			})
		})

		r.Route("/memories", func(r chi.Router) {
			r.Post("/", memoryHandler.Create)
			r.Get("/{id}", memoryHandler.GetByID)
			r.Delete("/{id}", memoryHandler.Delete)
		})

		r.Get("/reflections/{id}", reflectionHandler.GetByID)
	})

	return s
}

// SweepLimiter drops idle rate limit entries until ctx is done.
func (s *Server) SweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Cleanup(limiterIdle); n > 0 {
				s.logger.Debug("rate limiter sweep", zap.Int("removed", n))
			}
		}
	}
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (s *Server) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(s.startTime)
		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"requests":       s.stats.Snapshot(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"build":      buildconfig.Get(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.AgentStore         = (*store.AgentStore)(nil)
	_ domain.MemoryStore        = (*store.MemoryStore)(nil)
	_ domain.ReflectionStore    = (*store.ReflectionStore)(nil)
	_ domain.SimilaritySearcher = (*store.MemoryStore)(nil)
	_ domain.SimilaritySearcher = (*vectorindex.Index)(nil)
	_ domain.MemoryIndexer      = (*vectorindex.Index)(nil)
	_ domain.DocumentStore      = (*identity.FileStore)(nil)
	_ domain.DocumentStore      = (*identity.SQLiteStore)(nil)
	_ domain.DocumentStore      = (*identity.CachedStore)(nil)
	_ domain.EventPublisher     = (*events.NATSPublisher)(nil)
	_ domain.EventPublisher     = events.NoopPublisher{}
	_ domain.Embedder           = (*embedding.OpenAIClient)(nil)
	_ domain.Embedder           = (*embedding.MockClient)(nil)
	_ domain.TextGenerator      = (*llm.OpenAIClient)(nil)
	_ domain.TextGenerator      = (*llm.AnthropicClient)(nil)
	_ domain.TextGenerator      = (*llm.GeminiClient)(nil)
	_ domain.TextGenerator      = (*llm.MockClient)(nil)
)
