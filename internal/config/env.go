package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/markdave123-py/askdoc/internal/core"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"

	StorePgvector = "pgvector"
	StoreChroma   = "chroma"
	StoreMemory   = "memory"

	ExtractorDocconv = "docconv"
	ExtractorUnipdf  = "unipdf"

	ChunkerWindow    = "window"
	ChunkerRecursive = "recursive"
)

type Config struct {
	Env      string
	LogLevel string
	LogFile  string

	LLMProvider   string
	EmbedProvider string
	AIAPIKey      string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	EmbedModel    string
	GenModel      string
	Temperature   float64
	HashEmbedDim  int

	VectorStore      string
	DatabaseURL      string
	SslCertPath      string
	ChromaURL        string
	ChromaCollection string
	ChromaToken      string

	BucketName   string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string

	Extractor        string
	UnidocLicenseKey string
	Chunker          string
	ChunkSize        int
	ChunkOverlap     int
	BatchSize        int
	EmbedConcurrency int

	TopK            int
	MinScore        float64
	EmbedTimeout    time.Duration
	RetrieveTimeout time.Duration
	GenerateTimeout time.Duration

	SessionSecret  string
	SessionTTL     time.Duration
	MaxUploadBytes int64
	Port           string
	AllowedOrigins []string
}

// LoadConfig loads .env (if present) and the environment into a Config.
// It never fails; call Validate before building any client.
func LoadConfig() *Config {
	_ = godotenv.Load()

	llmProvider := strings.ToLower(getEnv("LLM_PROVIDER", ProviderGemini))
	embedProvider := strings.ToLower(getEnv("EMBED_PROVIDER", llmProvider))

	cfg := &Config{
		Env:      getEnv("ENV", "production"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		LLMProvider:   llmProvider,
		EmbedProvider: embedProvider,
		AIAPIKey:      getEnv("GEMINI_API_KEY", getEnv("GOOGLE_API_KEY", "")),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		EmbedModel:    getEnv("EMBED_MODEL", defaultEmbedModel(embedProvider)),
		GenModel:      getEnv("GEN_MODEL", defaultGenModel(llmProvider)),
		Temperature:   getEnvFloat("TEMPERATURE", 0.6),
		HashEmbedDim:  getEnvInt("HASH_EMBED_DIM", 512),

		VectorStore:      strings.ToLower(getEnv("VECTOR_STORE", StorePgvector)),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		SslCertPath:      getEnv("SSL_CERT_PATH", ""),
		ChromaURL:        getEnv("CHROMA_URL", ""),
		ChromaCollection: getEnv("CHROMA_COLLECTION", ""),
		ChromaToken:      getEnv("CHROMA_TOKEN", ""),

		BucketName:   getEnv("ARCHIVE_BUCKET", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),

		Extractor:        strings.ToLower(getEnv("EXTRACTOR", ExtractorDocconv)),
		UnidocLicenseKey: getEnv("UNIDOC_LICENSE_KEY", ""),
		Chunker:          strings.ToLower(getEnv("CHUNKER", ChunkerWindow)),
		ChunkSize:        getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:     getEnvInt("CHUNK_OVERLAP", 200),
		BatchSize:        getEnvInt("BATCH_SIZE", 16),
		EmbedConcurrency: getEnvInt("EMBED_CONCURRENCY", 4),

		TopK:            getEnvInt("TOP_K", 4),
		MinScore:        getEnvFloat("RETRIEVAL_MIN_SCORE", 0),
		EmbedTimeout:    getEnvDuration("EMBED_TIMEOUT", 30*time.Second),
		RetrieveTimeout: getEnvDuration("RETRIEVE_TIMEOUT", 30*time.Second),
		GenerateTimeout: getEnvDuration("GENERATE_TIMEOUT", 60*time.Second),

		SessionSecret:  getEnv("SESSION_SECRET", ""),
		SessionTTL:     getEnvDuration("SESSION_TTL", 2*time.Hour),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_MB", 32)) << 20,
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
	}

	return cfg
}

// Validate checks everything the answering pipeline needs and reports all
// problems together. No client is built before this passes.
func (c *Config) Validate() error {
	return c.validate(false)
}

// ValidateServer is Validate plus the settings only the HTTP server needs.
func (c *Config) ValidateServer() error {
	return c.validate(true)
}

func (c *Config) validate(server bool) error {
	var missing, invalid []string
	require := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	switch c.LLMProvider {
	case ProviderGemini, ProviderOpenAI:
	default:
		invalid = append(invalid, fmt.Sprintf("LLM_PROVIDER %q is not one of gemini, openai", c.LLMProvider))
	}
	switch c.EmbedProvider {
	case ProviderGemini, ProviderOpenAI, ProviderHash:
	default:
		invalid = append(invalid, fmt.Sprintf("EMBED_PROVIDER %q is not one of gemini, openai, hash", c.EmbedProvider))
	}
	if c.LLMProvider == ProviderGemini || c.EmbedProvider == ProviderGemini {
		require("GEMINI_API_KEY", c.AIAPIKey)
	}
	if c.LLMProvider == ProviderOpenAI || c.EmbedProvider == ProviderOpenAI {
		require("OPENAI_API_KEY", c.OpenAIAPIKey)
	}
	if c.EmbedProvider == ProviderHash && c.HashEmbedDim <= 0 {
		invalid = append(invalid, "HASH_EMBED_DIM must be positive")
	}

	switch c.VectorStore {
	case StorePgvector:
		require("DATABASE_URL", c.DatabaseURL)
	case StoreChroma:
		require("CHROMA_URL", c.ChromaURL)
		require("CHROMA_COLLECTION", c.ChromaCollection)
	case StoreMemory:
	default:
		invalid = append(invalid, fmt.Sprintf("VECTOR_STORE %q is not one of pgvector, chroma, memory", c.VectorStore))
	}

	if c.BucketName != "" {
		require("AWS_ACCESS_KEY", c.AwsAccessKey)
		require("AWS_SECRET_KEY", c.AwsSecretKey)
		require("AWS_REGION", c.AwsRegion)
	}

	switch c.Extractor {
	case ExtractorDocconv:
	case ExtractorUnipdf:
		require("UNIDOC_LICENSE_KEY", c.UnidocLicenseKey)
	default:
		invalid = append(invalid, fmt.Sprintf("EXTRACTOR %q is not one of docconv, unipdf", c.Extractor))
	}

	switch c.Chunker {
	case ChunkerWindow, ChunkerRecursive:
	default:
		invalid = append(invalid, fmt.Sprintf("CHUNKER %q is not one of window, recursive", c.Chunker))
	}
	if c.ChunkSize <= 0 {
		invalid = append(invalid, "CHUNK_SIZE must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		invalid = append(invalid, "CHUNK_OVERLAP must be at least 0 and smaller than CHUNK_SIZE")
	}
	if c.BatchSize <= 0 {
		invalid = append(invalid, "BATCH_SIZE must be positive")
	}
	if c.EmbedConcurrency <= 0 {
		invalid = append(invalid, "EMBED_CONCURRENCY must be positive")
	}
	if c.TopK <= 0 {
		invalid = append(invalid, "TOP_K must be positive")
	}

	if server {
		require("SESSION_SECRET", c.SessionSecret)
	}

	if len(missing) > 0 || len(invalid) > 0 {
		return &core.ConfigurationError{Missing: missing, Invalid: invalid}
	}
	return nil
}

func defaultEmbedModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "text-embedding-3-small"
	case ProviderHash:
		return "hash"
	}
	return "text-embedding-004"
}

func defaultGenModel(provider string) string {
	if provider == ProviderOpenAI {
		return "gpt-4o-mini"
	}
	return "gemini-1.5-flash"
}

// Helper to read environment variables with a default fallback.
// An empty value counts as unset.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a number, using default %v", key, v, def)
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
