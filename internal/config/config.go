package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port                int     `yaml:"port"`
	MaxUploadBytes      int64   `yaml:"max_upload_bytes"`
	RateLimitRPS        float64 `yaml:"rate_limit_rps"`
	RateLimitBurst      int     `yaml:"rate_limit_burst"`
	ShutdownTimeoutSecs int     `yaml:"shutdown_timeout_secs"`
}

// ExtractorConfig points at the PDF extraction service.
type ExtractorConfig struct {
	URL         string `yaml:"url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OpenAIConfig holds the credentials shared by the OpenAI embedder and chat model.
type OpenAIConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	APIKey    string `yaml:"-"`
}

// CacheConfig enables the Redis embedding cache when RedisURL is set.
type CacheConfig struct {
	RedisURL  string `yaml:"redis_url"`
	TTLSecs   int    `yaml:"ttl_secs"`
	KeyPrefix string `yaml:"key_prefix"`
}

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	Type        string      `yaml:"type"`
	Model       string      `yaml:"model"`
	Dimension   int         `yaml:"dimension"`
	TimeoutSecs int         `yaml:"timeout_secs"`
	Cache       CacheConfig `yaml:"cache"`
}

// ChunkerConfig configures semantic chunking.
type ChunkerConfig struct {
	MaxChunkSize int `yaml:"max_chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type       string        `yaml:"type"`
	Collection string        `yaml:"collection"`
	Qdrant     *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

// LLMConfig configures the answer generator.
type LLMConfig struct {
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// RetrievalConfig configures query-time search.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// AppConfig is the root application configuration structure. It is built once
// at startup and treated as read-only afterwards.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Extractor   ExtractorConfig   `yaml:"extractor"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	LLM         LLMConfig         `yaml:"llm"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Log         LogConfig         `yaml:"log"`
}

const (
	defaultPort           = 3000
	defaultMaxUploadBytes = 100 * 1024 * 1024
	defaultExtractorURL   = "http://localhost:7001"
	defaultCollection     = "papers"
	defaultChatModel      = "gpt-4o-mini"
	defaultOpenAIEmbed    = "text-embedding-3-large"
	defaultPythonEmbed    = "intfloat/e5-base-v2"
)

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads .env style files into the process environment. Missing
// files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied on top of the file.
func Load(path string) (*AppConfig, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup LookupFunc) (*AppConfig, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	if key, ok := lookup(cfg.OpenAI.APIKeyEnv); ok {
		cfg.OpenAI.APIKey = key
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/pdfrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/pdfrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, defaultConfig()); err != nil {
		// read-only home; run on defaults and environment
		userPath = ""
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects configurations the server cannot start with.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "python", "openai":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedder.Type)
	}
	switch c.VectorStore.Type {
	case "memory", "qdrant":
	default:
		return fmt.Errorf("unknown vector store %q", c.VectorStore.Type)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Chunker.MaxChunkSize <= 0 {
		return fmt.Errorf("max chunk size must be positive, got %d", c.Chunker.MaxChunkSize)
	}
	if c.Chunker.ChunkOverlap < 0 {
		return fmt.Errorf("chunk overlap must not be negative, got %d", c.Chunker.ChunkOverlap)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("top k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.Server.MaxUploadBytes)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *AppConfig) Addr() string { return ":" + strconv.Itoa(c.Server.Port) }

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pdfrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Server:      ServerConfig{Port: defaultPort, MaxUploadBytes: defaultMaxUploadBytes, RateLimitRPS: 5, RateLimitBurst: 10, ShutdownTimeoutSecs: 15},
		Extractor:   ExtractorConfig{URL: defaultExtractorURL, TimeoutSecs: 300},
		OpenAI:      OpenAIConfig{APIKeyEnv: "OPENAI_API_KEY"},
		Embedder:    EmbedderConfig{Type: "python", TimeoutSecs: 120, Cache: CacheConfig{TTLSecs: 7 * 24 * 3600, KeyPrefix: "pdfrag:emb:"}},
		Chunker:     ChunkerConfig{MaxChunkSize: 1000, ChunkOverlap: 200},
		VectorStore: VectorStoreConfig{Type: "memory", Collection: defaultCollection},
		LLM:         LLMConfig{Model: defaultChatModel, Temperature: 0.2, TimeoutSecs: 120},
		Retrieval:   RetrievalConfig{TopK: 6},
		Summarizer:  SummarizerConfig{Type: "frequency", MaxSentences: 3},
		Log:         LogConfig{Level: "info"},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	cfg.Embedder.Type = strings.ToLower(strings.TrimSpace(cfg.Embedder.Type))
	cfg.VectorStore.Type = strings.ToLower(strings.TrimSpace(cfg.VectorStore.Type))
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "python"
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = defaultCollection
	}
	if cfg.Extractor.URL == "" {
		cfg.Extractor.URL = defaultExtractorURL
	}
	cfg.Extractor.URL = strings.TrimRight(cfg.Extractor.URL, "/")
	if cfg.OpenAI.APIKeyEnv == "" {
		cfg.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultChatModel
	}
	switch cfg.Embedder.Type {
	case "openai":
		if cfg.Embedder.Model == "" {
			cfg.Embedder.Model = defaultOpenAIEmbed
		}
		if cfg.Embedder.Dimension == 0 {
			cfg.Embedder.Dimension = 3072
		}
	case "python":
		if cfg.Embedder.Model == "" {
			cfg.Embedder.Model = defaultPythonEmbed
		}
		if cfg.Embedder.Dimension == 0 {
			cfg.Embedder.Dimension = 768
		}
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.Host == "" {
			cfg.VectorStore.Qdrant.Host = "localhost"
		}
		if cfg.VectorStore.Qdrant.Port == 0 {
			cfg.VectorStore.Qdrant.Port = 6334
		}
	}
	if cfg.Summarizer.MaxSentences <= 0 {
		cfg.Summarizer.MaxSentences = 3
	}
	if cfg.Server.ShutdownTimeoutSecs <= 0 {
		cfg.Server.ShutdownTimeoutSecs = 15
	}
}

func applyEnv(cfg *AppConfig, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}

	integer("PORT", &cfg.Server.Port)
	str("EXTRACTOR_URL", &cfg.Extractor.URL)
	str("EMBEDDING_PROVIDER", &cfg.Embedder.Type)
	str("EMBEDDING_MODEL", &cfg.Embedder.Model)
	integer("EMBEDDING_DIM", &cfg.Embedder.Dimension)
	str("OPENAI_BASE_URL", &cfg.OpenAI.BaseURL)
	str("CHAT_MODEL", &cfg.LLM.Model)
	str("COLLECTION_NAME", &cfg.VectorStore.Collection)
	integer("MAX_CHUNK_SIZE", &cfg.Chunker.MaxChunkSize)
	integer("CHUNK_OVERLAP", &cfg.Chunker.ChunkOverlap)
	integer("TOP_K", &cfg.Retrieval.TopK)
	str("VECTOR_STORE", &cfg.VectorStore.Type)
	str("REDIS_URL", &cfg.Embedder.Cache.RedisURL)
	str("LOG_LEVEL", &cfg.Log.Level)

	if v, ok := lookup("MAX_UPLOAD_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES: %w", err))
		} else {
			cfg.Server.MaxUploadBytes = n
		}
	}
	if v, ok := lookup("RATE_LIMIT_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS: %w", err))
		} else {
			cfg.Server.RateLimitRPS = f
		}
	}

	if cfg.VectorStore.Qdrant == nil {
		for _, key := range []string{"QDRANT_HOST", "QDRANT_PORT", "QDRANT_API_KEY"} {
			if _, ok := lookup(key); ok {
				cfg.VectorStore.Qdrant = &QdrantConfig{}
				break
			}
		}
	}
	if cfg.VectorStore.Qdrant != nil {
		str("QDRANT_HOST", &cfg.VectorStore.Qdrant.Host)
		integer("QDRANT_PORT", &cfg.VectorStore.Qdrant.Port)
		str("QDRANT_API_KEY", &cfg.VectorStore.Qdrant.APIKey)
	}
	return errors.Join(errs...)
}
