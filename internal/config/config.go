package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/hunterwarburton/taxassist/internal/core"
)

// Store drivers.
const (
	StorePGVector = "pgvector"
	StoreMilvus   = "milvus"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// Embedding providers.
const (
	EmbedOllama = "ollama"
	EmbedOpenAI = "openai"
)

// ChunksFound modes.
const (
	ChunksFoundConfigured = "configured"
	ChunksFoundLiteral    = "literal"
)

// APIConfig configures the HTTP listener.
type APIConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// PostgresConfig holds pgvector connection details.
type PostgresConfig struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

// DSN builds a libpq-style URL for pgxpool.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:     "/" + p.Name,
		RawQuery: "pool_max_conns=" + strconv.Itoa(p.MaxConns),
	}
	return u.String()
}

// MilvusConfig holds Milvus connection details.
type MilvusConfig struct {
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	Collection string `yaml:"collection"`
}

// Address is host:port.
func (m MilvusConfig) Address() string { return m.Host + ":" + m.Port }

// SQLiteConfig points at the embedded store file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// EmbeddingConfig selects the embedder.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	CachePath string `yaml:"cache_path"`
}

// GenerationConfig selects and tunes the answer backend.
type GenerationConfig struct {
	UseGroq     bool    `yaml:"use_groq"`
	GroqAPIKey  string  `yaml:"groq_api_key"`
	GroqBaseURL string  `yaml:"groq_base_url"`
	OllamaHost  string  `yaml:"ollama_host"`
	ChatModel   string  `yaml:"chat_model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	PromptFile  string  `yaml:"prompt_file"`

	// CloudEnvironment is detected at load time, never read from YAML.
	CloudEnvironment bool `yaml:"-"`
}

// UseHosted reports whether the hosted backend must be used.
func (g GenerationConfig) UseHosted() bool {
	return g.UseGroq || g.CloudEnvironment
}

// RetrievalConfig tunes the vector search.
type RetrievalConfig struct {
	Store       string `yaml:"store"`
	TopK        int    `yaml:"top_k"`
	ChunksFound string `yaml:"chunks_found"`
}

// AnswerConfig tunes length enforcement.
type AnswerConfig struct {
	MaxLength         int `yaml:"max_length"`
	MinSentenceLength int `yaml:"min_sentence_length"`
}

// TelegramConfig enables the Telegram channel when Token is set.
type TelegramConfig struct {
	Token string `yaml:"token"`
}

// HistoryConfig enables the question log when Path is set.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// Config is resolved once at process start and passed to constructors.
type Config struct {
	API        APIConfig        `yaml:"api"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Milvus     MilvusConfig     `yaml:"milvus"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Answer     AnswerConfig     `yaml:"answer"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	History    HistoryConfig    `yaml:"history"`
	Debug      bool             `yaml:"debug"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			RequestTimeout: 60 * time.Second,
			AllowedOrigins: []string{"http://localhost:8080", "http://127.0.0.1:8080"},
		},
		Postgres: PostgresConfig{
			Name:     "taxassist",
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			MaxConns: 10,
		},
		Milvus: MilvusConfig{
			Host:       "localhost",
			Port:       "19530",
			Collection: "tax_chunks",
		},
		SQLite: SQLiteConfig{Path: "taxassist.db"},
		Embedding: EmbeddingConfig{
			Provider:  EmbedOllama,
			Model:     "nomic-embed-text",
			Dimension: 768,
		},
		Generation: GenerationConfig{
			GroqBaseURL: "https://api.groq.com/openai/v1",
			OllamaHost:  "http://localhost:11434",
			ChatModel:   "llama3.2",
			Temperature: 0.3,
			MaxTokens:   200,
		},
		Retrieval: RetrievalConfig{
			Store:       StorePGVector,
			TopK:        3,
			ChunksFound: ChunksFoundConfigured,
		},
		Answer: AnswerConfig{
			MaxLength:         core.DefaultAnswerLength,
			MinSentenceLength: 50,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order. A missing YAML file is not an error.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.Getenv)
}

// LoadWithEnv is Load with an injectable environment lookup.
func LoadWithEnv(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}
	cfg.Generation.CloudEnvironment = IsCloudEnvironment(getenv)
	return cfg, nil
}

// cloudMarkers are variables set by common hosting platforms.
var cloudMarkers = []string{
	"RENDER",
	"RAILWAY_ENVIRONMENT",
	"DYNO",
	"K_SERVICE",
	"AWS_LAMBDA_FUNCTION_NAME",
	"FLY_APP_NAME",
	"VERCEL",
}

// IsCloudEnvironment reports whether the process runs on a hosted platform.
func IsCloudEnvironment(getenv func(string) string) bool {
	if v, err := strconv.ParseBool(getenv("CLOUD_ENV")); err == nil {
		return v
	}
	return lo.SomeBy(cloudMarkers, func(k string) bool { return getenv(k) != "" })
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, &core.ConfigurationError{Field: key, Reason: "not an integer", Err: err})
				return
			}
			*dst = n
		}
	}
	flt := func(key string, dst *float64) {
		if v := getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, &core.ConfigurationError{Field: key, Reason: "not a number", Err: err})
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, &core.ConfigurationError{Field: key, Reason: "not a boolean", Err: err})
				return
			}
			*dst = b
		}
	}

	str("API_HOST", &cfg.API.Host)
	num("API_PORT", &cfg.API.Port)
	if v := getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, &core.ConfigurationError{Field: "REQUEST_TIMEOUT", Reason: "not a duration", Err: err})
		} else {
			cfg.API.RequestTimeout = d
		}
	}
	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.API.AllowedOrigins = splitCSV(v)
	}

	str("POSTGRES_DB_NAME", &cfg.Postgres.Name)
	str("POSTGRES_DB_HOST", &cfg.Postgres.Host)
	num("POSTGRES_DB_PORT", &cfg.Postgres.Port)
	str("POSTGRES_DB_USER", &cfg.Postgres.User)
	str("POSTGRES_DB_PASSWORD", &cfg.Postgres.Password)
	num("POSTGRES_MAX_CONNS", &cfg.Postgres.MaxConns)

	str("MILVUS_HOST", &cfg.Milvus.Host)
	str("MILVUS_PORT", &cfg.Milvus.Port)
	str("MILVUS_COLLECTION", &cfg.Milvus.Collection)

	str("SQLITE_PATH", &cfg.SQLite.Path)

	str("EMBEDDING_PROVIDER", &cfg.Embedding.Provider)
	str("EMBEDDING_MODEL", &cfg.Embedding.Model)
	num("EMBEDDING_DIM", &cfg.Embedding.Dimension)
	str("EMBEDDING_BASE_URL", &cfg.Embedding.BaseURL)
	str("OPENAI_API_KEY", &cfg.Embedding.APIKey)
	str("EMBED_CACHE_PATH", &cfg.Embedding.CachePath)

	boolean("USE_GROQ", &cfg.Generation.UseGroq)
	str("GROQ_API_KEY", &cfg.Generation.GroqAPIKey)
	str("GROQ_BASE_URL", &cfg.Generation.GroqBaseURL)
	str("OLLAMA_HOST", &cfg.Generation.OllamaHost)
	str("CHAT_MODEL", &cfg.Generation.ChatModel)
	flt("TEMPERATURE", &cfg.Generation.Temperature)
	num("MAX_TOKENS", &cfg.Generation.MaxTokens)
	str("PROMPT_FILE", &cfg.Generation.PromptFile)

	str("VECTOR_STORE", &cfg.Retrieval.Store)
	num("MAX_CHUNKS", &cfg.Retrieval.TopK)
	str("CHUNKS_FOUND_MODE", &cfg.Retrieval.ChunksFound)

	num("ANSWER_MAX_LENGTH", &cfg.Answer.MaxLength)
	num("MIN_SENTENCE_LENGTH", &cfg.Answer.MinSentenceLength)

	str("TG_BOT_TOKEN", &cfg.Telegram.Token)
	str("HISTORY_PATH", &cfg.History.Path)
	boolean("DEBUG", &cfg.Debug)

	return errors.Join(errs...)
}

func splitCSV(s string) []string {
	parts := lo.Map(strings.Split(s, ","), func(p string, _ int) string { return strings.TrimSpace(p) })
	return lo.Compact(parts)
}

// Validate checks everything the pipeline needs before serving a query.
func (c *Config) Validate() error {
	bad := func(field, reason string) error {
		return &core.ConfigurationError{Field: field, Reason: reason}
	}

	if c.Embedding.Model == "" {
		return bad("embedding.model", "embedding model identifier is required")
	}
	if c.Embedding.Dimension <= 0 {
		return bad("embedding.dimension", "must be positive")
	}
	if !lo.Contains([]string{EmbedOllama, EmbedOpenAI}, c.Embedding.Provider) {
		return bad("embedding.provider", fmt.Sprintf("unknown provider %q", c.Embedding.Provider))
	}
	if c.Generation.ChatModel == "" {
		return bad("generation.chat_model", "chat model identifier is required")
	}
	if c.Generation.MaxTokens <= 0 {
		return bad("generation.max_tokens", "must be positive")
	}
	if c.Generation.UseHosted() && c.Generation.GroqBaseURL == "" {
		return bad("generation.groq_base_url", "required for the hosted backend")
	}
	if !c.Generation.UseHosted() && c.Generation.OllamaHost == "" {
		return bad("generation.ollama_host", "required for the local backend")
	}
	if !lo.Contains([]string{StorePGVector, StoreMilvus, StoreSQLite, StoreMemory}, c.Retrieval.Store) {
		return bad("retrieval.store", fmt.Sprintf("unknown store %q", c.Retrieval.Store))
	}
	if c.Retrieval.TopK <= 0 {
		return bad("retrieval.top_k", "must be positive")
	}
	if !lo.Contains([]string{ChunksFoundConfigured, ChunksFoundLiteral}, c.Retrieval.ChunksFound) {
		return bad("retrieval.chunks_found", fmt.Sprintf("unknown mode %q", c.Retrieval.ChunksFound))
	}
	if c.Answer.MaxLength < 4 {
		return bad("answer.max_length", "must be at least 4")
	}
	if c.Answer.MinSentenceLength <= 0 || c.Answer.MinSentenceLength >= c.Answer.MaxLength {
		return bad("answer.min_sentence_length", "must be between 1 and answer.max_length")
	}
	if c.API.RequestTimeout <= 0 {
		return bad("api.request_timeout", "must be positive")
	}
	return nil
}
