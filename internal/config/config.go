package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const answerOverhead = 15 * time.Second

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	// Ingestion
	DataDir       string
	DataType      string
	LoaderWorkers int
	ChunkSize     int
	ChunkOverlap  int

	// Vector index
	DataPath        string
	DataName        string
	VectorBackend   string // "flat" (default), "chromem"
	ChromemCompress bool
	EmbedBatchSize  int

	// Retrieval
	RetrieverK  int
	SearchType  string // "similarity" (default), "mmr"
	MMRLambda   float64
	SourceLimit int

	// Sessions
	HistoryWindow  int
	SessionIdleTTL time.Duration

	// LLM
	LLMProvider       string // "openrouter" (default), "gemini"
	OpenRouterAPIKeys []string
	OpenRouterBaseURL string
	OpenRouterReferer string
	OpenRouterTitle   string
	SupportedModels   []string
	LLMTimeout        time.Duration
	MaxTokens         int
	Temperature       float64
	TopP              float64

	// Embeddings configuration
	EmbeddingsProvider    string // "google" (default), "openai"
	GoogleEmbeddingsModel string
	GeminiAPIKey          string
	GeminiTier            string
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIEmbeddingsModel string

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// MongoDB transcripts (optional)
	MongoURI string
	DBName   string

	AdminJWTSecret  string
	RateLimitReqs   int
	RateLimitWindow int

	OTLPEndpoint         string
	IngestInterval       time.Duration
	IndexRefreshInterval time.Duration
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	dataDir, err := filepath.Abs(getEnv("DATA_DIR", "data_source/pdfs"))
	if err != nil {
		return nil, fmt.Errorf("resolve DATA_DIR: %w", err)
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		DataDir:       dataDir,
		DataType:      getEnv("DATA_TYPE", "pdf"),
		LoaderWorkers: getEnvInt("LOADER_WORKERS", 8),
		ChunkSize:     getEnvInt("CHUNK_SIZE", 700),
		ChunkOverlap:  getEnvInt("CHUNK_OVERLAP", 200),

		DataPath:        getEnv("DATA_PATH", "vectorstores"),
		DataName:        getEnv("DATA_NAME", "db_index"),
		VectorBackend:   getEnv("VECTOR_BACKEND", "flat"),
		ChromemCompress: getEnvBool("CHROMEM_COMPRESS", false),
		EmbedBatchSize:  getEnvInt("EMBED_BATCH_SIZE", 64),

		RetrieverK:  getEnvInt("RETRIEVER_K", 10),
		SearchType:  getEnv("SEARCH_TYPE", "similarity"),
		MMRLambda:   getEnvFloat64("MMR_LAMBDA", 0.5),
		SourceLimit: getEnvInt("SOURCE_LIMIT", 1),

		HistoryWindow:  getEnvInt("HISTORY_WINDOW", 20),
		SessionIdleTTL: getEnvDuration("SESSION_IDLE_TTL", 2*time.Hour),

		LLMProvider:       getEnv("LLM_PROVIDER", "openrouter"),
		OpenRouterAPIKeys: splitList(getEnv("OPENROUTER_API_KEY", "")),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterReferer: getEnv("OPENROUTER_REFERER", "http://localhost:8080"),
		OpenRouterTitle:   getEnv("OPENROUTER_TITLE", "RAG Chatbot"),
		SupportedModels:   splitList(getEnv("SUPPORTED_MODELS", "")),
		LLMTimeout:        getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		MaxTokens:         getEnvInt("MAX_TOKENS", 1024),
		Temperature:       getEnvFloat64("TEMPERATURE", 0.7),
		TopP:              getEnvFloat64("TOP_P", 1.0),

		EmbeddingsProvider:    getEnv("EMBEDDINGS_PROVIDER", "google"),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiTier:            getEnv("GEMINI_TIER", "free"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIEmbeddingsModel: getEnv("OPENAI_EMBEDDINGS_MODEL", "text-embedding-3-small"),

		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MongoURI: getEnv("MONGO_URI", ""),
		DBName:   getEnv("DB_NAME", "rag_chatbot"),

		AdminJWTSecret:  getEnv("ADMIN_JWT_SECRET", ""),
		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		OTLPEndpoint:         getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		IngestInterval:       getEnvDuration("INGEST_INTERVAL", 10*time.Minute),
		IndexRefreshInterval: getEnvDuration("INDEX_REFRESH_INTERVAL", time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings the services cannot start without.
func (c *Config) Validate() error {
	if len(c.SupportedModels) == 0 {
		return fmt.Errorf("SUPPORTED_MODELS is required - set it in .env file")
	}

	switch c.LLMProvider {
	case "openrouter":
		if len(c.OpenRouterAPIKeys) == 0 {
			return fmt.Errorf("OPENROUTER_API_KEY is required - set it in .env file")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for LLM_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER: %s", c.LLMProvider)
	}

	switch c.EmbeddingsProvider {
	case "google", "":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for google embeddings")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for openai embeddings")
		}
	default:
		return fmt.Errorf("unknown EMBEDDINGS_PROVIDER: %s", c.EmbeddingsProvider)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap)
	}
	if c.RetrieverK < 1 {
		return fmt.Errorf("RETRIEVER_K must be at least 1, got %d", c.RetrieverK)
	}

	return nil
}

// AnswerTimeout bounds one chat answer. OpenRouter may spend a full
// LLM_TIMEOUT on every key before giving up, so the budget grows with the key
// list; answerOverhead covers embedding the question and retrieval.
func (c *Config) AnswerTimeout() time.Duration {
	attempts := 1
	if c.LLMProvider == "openrouter" {
		attempts = max(1, len(c.OpenRouterAPIKeys))
	}
	return time.Duration(attempts)*c.LLMTimeout + answerOverhead
}

// SupportsModel reports whether model is listed in SUPPORTED_MODELS.
func (c *Config) SupportsModel(model string) bool {
	for _, m := range c.SupportedModels {
		if m == model {
			return true
		}
	}
	return false
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
