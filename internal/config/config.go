package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI string
	DBName   string

	Port        string
	GinMode     string
	CORSOrigins []string

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Gemini / embeddings
	GeminiAPIKey          string
	GeminiModel           string
	GeminiTier            string // free, tier1
	GoogleEmbeddingsModel string
	VectorDimensions      int

	// MongoDB Search/Vector Search
	AtlasTextSearchEnabled bool
	VectorSearchEnabled    bool
	SearchIndexName        string
	VectorIndexName        string

	// Crawling
	CrawlMaxConcurrent int
	CrawlTimeout       time.Duration
	CrawlMaxPages      int
	MaxContentBytes    int64
	RenderJS           bool
	RenderTimeout      time.Duration

	// Chunking
	DefaultChunkSize int
	MinChunkSize     int

	// Embedding batcher
	EmbeddingBatchSize     int
	EmbeddingMaxRetries    int
	EmbeddingRetryBaseWait time.Duration
	// skip_batch drops a batch that exhausts retries and keeps going;
	// fail_job fails the whole ingestion instead.
	EmbeddingFailurePolicy string

	// Contextual enrichment
	ContextualWorkers    int
	ContextualCharBudget int
	ContextualBatchDelay time.Duration

	// Code example extraction
	CodeExampleMinChars int

	// Query
	SearchOverfetchFactor int
	SearchDefaultK        int
	SearchMaxK            int

	// Uploads
	MaxFileSize    int64
	FileStorageDir string

	// API rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Source refresh scheduler
	RefreshEnabled  bool
	RefreshAfter    time.Duration
	RefreshInterval time.Duration

	// Job progress retention after a terminal event
	JobRetention time.Duration

	// Telemetry
	TracingEnabled bool
	OTLPEndpoint   string
}

// Embedding failure policies
const (
	FailurePolicySkipBatch = "skip_batch"
	FailurePolicyFailJob   = "fail_job"
)

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/knowledge_base"),
		DBName:   getEnv("DB_NAME", "knowledge_base"),

		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiTier:            getEnv("GEMINI_TIER", "free"),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		VectorDimensions:      getEnvInt("VECTOR_DIM", 768),

		AtlasTextSearchEnabled: getEnvBool("MONGODB_SEARCH_ENABLED", false),
		VectorSearchEnabled:    getEnvBool("MONGODB_VECTOR_ENABLED", false),
		SearchIndexName:        getEnv("MONGODB_SEARCH_INDEX", "chunks_text"),
		VectorIndexName:        getEnv("MONGODB_VECTOR_INDEX", "chunks_vector"),

		CrawlMaxConcurrent: getEnvInt("CRAWL_MAX_CONCURRENT", 10),
		CrawlTimeout:       getEnvDuration("CRAWL_TIMEOUT", 60*time.Second),
		CrawlMaxPages:      getEnvInt("CRAWL_MAX_PAGES", 500),
		MaxContentBytes:    getEnvInt64("MAX_CONTENT_BYTES", 10*1024*1024),
		RenderJS:           getEnvBool("CRAWL_RENDER_JS", false),
		RenderTimeout:      getEnvDuration("CRAWL_RENDER_TIMEOUT", 45*time.Second),

		DefaultChunkSize: getEnvInt("DEFAULT_CHUNK_SIZE", 5000),
		MinChunkSize:     getEnvInt("MIN_CHUNK_SIZE", 200),

		EmbeddingBatchSize:     getEnvInt("EMBEDDING_BATCH_SIZE", 15),
		EmbeddingMaxRetries:    getEnvInt("EMBEDDING_MAX_RETRIES", 3),
		EmbeddingRetryBaseWait: getEnvDuration("EMBEDDING_RETRY_BASE_WAIT", 2*time.Second),
		EmbeddingFailurePolicy: getEnv("EMBEDDING_FAILURE_POLICY", FailurePolicySkipBatch),

		ContextualWorkers:    getEnvInt("CONTEXTUAL_WORKERS", 3),
		ContextualCharBudget: getEnvInt("CONTEXTUAL_CHAR_BUDGET", 4000),
		ContextualBatchDelay: getEnvDuration("CONTEXTUAL_BATCH_DELAY", 1500*time.Millisecond),

		CodeExampleMinChars: getEnvInt("CODE_EXAMPLE_MIN_CHARS", 250),

		SearchOverfetchFactor: getEnvInt("SEARCH_OVERFETCH_FACTOR", 3),
		SearchDefaultK:        getEnvInt("SEARCH_DEFAULT_K", 5),
		SearchMaxK:            getEnvInt("SEARCH_MAX_K", 50),

		MaxFileSize:    getEnvInt64("MAX_FILE_SIZE", 104857600), // 100MB
		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./storage"),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		RefreshEnabled:  getEnvBool("REFRESH_ENABLED", false),
		RefreshAfter:    getEnvDuration("REFRESH_AFTER", 7*24*time.Hour),
		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 6*time.Hour),

		JobRetention: getEnvDuration("JOB_RETENTION", time.Hour),

		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	switch cfg.EmbeddingFailurePolicy {
	case FailurePolicySkipBatch, FailurePolicyFailJob:
	default:
		return nil, fmt.Errorf("invalid EMBEDDING_FAILURE_POLICY %q", cfg.EmbeddingFailurePolicy)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
