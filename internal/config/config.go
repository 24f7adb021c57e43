package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file named by SOULGARDEN_ENV (or .env by default),
// then the matching .secret sidecar if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("SOULGARDEN_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	return intOr("SERVER_PORT", 8080)
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// AutoMigrate reports whether the server applies migrations on start.
func AutoMigrate() bool {
	v, err := strconv.ParseBool(os.Getenv("AUTO_MIGRATE"))
	if err != nil {
		return true
	}
	return v
}

// APIKey is the static key required on /v1 routes. Empty disables auth.
func APIKey() string {
	return os.Getenv("API_KEY")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

func CerebrasAPIKey() string {
	return os.Getenv("CEREBRAS_API_KEY")
}

// LLMProvider returns the configured LLM provider.
// Defaults to "openai" if not set.
// Valid values: openai, anthropic, gemini, cerebras, mock
func LLMProvider() string {
	return stringOr("LLM_PROVIDER", "openai")
}

// LLMModel overrides the provider's default model when set.
func LLMModel() string {
	return os.Getenv("LLM_MODEL")
}

// LLMAPIKey returns the API key for the configured LLM provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "gemini":
		return GeminiAPIKey()
	case "cerebras":
		return CerebrasAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// EmbeddingProvider returns the configured embedding provider.
// Valid values: openai, mock
func EmbeddingProvider() string {
	return stringOr("EMBEDDING_PROVIDER", "openai")
}

func EmbeddingModel() string {
	return stringOr("EMBEDDING_MODEL", "text-embedding-3-small")
}

func EmbeddingDimensions() int {
	return intOr("EMBEDDING_DIMENSIONS", 1536)
}

// EmbeddingAPIKey returns the API key for the configured embedding provider.
func EmbeddingAPIKey() string {
	if EmbeddingProvider() == "mock" {
		return ""
	}
	return OpenAIAPIKey()
}

// VectorBackend selects where similarity search runs: pgvector or chromem.
func VectorBackend() string {
	return stringOr("VECTOR_BACKEND", "pgvector")
}

// DocumentStore selects the identity document backend: fs or sqlite.
func DocumentStore() string {
	return stringOr("DOCUMENT_STORE", "fs")
}

func AgentsDir() string {
	return stringOr("AGENTS_DIR", "agents")
}

func SQLitePath() string {
	return stringOr("SQLITE_PATH", "soulgarden.db")
}

func IdentityCacheTTL() time.Duration {
	return durationOr("IDENTITY_CACHE_TTL", 5*time.Minute)
}

// NATSURL is the event bus address. Empty disables event publishing.
func NATSURL() string {
	return os.Getenv("NATS_URL")
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	return intOr("RATE_LIMIT_BURST", 20)
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	return stringOr("LOG_LEVEL", "info")
}

func ReflectionPollInterval() time.Duration {
	return durationOr("REFLECTION_POLL_INTERVAL", 5*time.Minute)
}

func ReflectionConcurrency() int {
	return intOr("REFLECTION_CONCURRENCY", 4)
}

func MaintenanceInterval() time.Duration {
	return durationOr("MAINTENANCE_INTERVAL", time.Hour)
}

func ArchiveAfterDays() int {
	return intOr("ARCHIVE_AFTER_DAYS", 30)
}

// MaxRAGResults is the default search limit when a caller gives none.
func MaxRAGResults() int {
	return intOr("MAX_RAG_RESULTS", 10)
}

func SimilarityThreshold() float64 {
	v, err := strconv.ParseFloat(os.Getenv("SIMILARITY_THRESHOLD"), 64)
	if err != nil || v < 0 || v > 1 {
		return 0.7
	}
	return v
}

func stringOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// intOr parses a positive integer, falling back to def.
func intOr(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func durationOr(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
