package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
)

const (
	EnvAIAPIKey      = "MEDRAG_AI_API_KEY"
	EnvDatabaseDSN   = "MEDRAG_DATABASE_DSN"
	DefaultFAQSource = "FAQ_END_USER.md"
)

type Config struct {
	Port             int               `json:"port"`
	LogConfig        logger.LogConfig  `json:"log_config"`
	Database         DatabaseConfig    `json:"database"`
	AI               AIConfig          `json:"ai"`
	EmbedCache       EmbedCacheConfig  `json:"embed_cache"`
	VectorIndex      VectorIndexConfig `json:"vector_index"`
	Safety           SafetyConfig      `json:"safety"`
	Retrieval        RetrievalConfig   `json:"retrieval"`
	Intent           IntentConfig      `json:"intent"`
	PatternsFile     string            `json:"patterns_file"`
	CORSOrigins      []string          `json:"cors_origins"`
	RateLimitSeconds int               `json:"rate_limit_seconds"`
	StatsCron        string            `json:"stats_cron"`
}

type DatabaseConfig struct {
	Driver   string `json:"driver"`
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

func (c DatabaseConfig) Enabled() bool {
	return c.DSN != "" || c.Host != ""
}

type AIConfig struct {
	Providers []AIProviderConfig `json:"providers"`
	Timeout   int                `json:"timeout"`
}

type AIProviderConfig struct {
	Name     string                 `json:"name"`
	Provider string                 `json:"provider"`
	Model    string                 `json:"model"`
	Data     map[string]interface{} `json:"data"`
}

type EmbedCacheConfig struct {
	LruSize     int    `json:"lru_size"`
	Store       string `json:"store"`
	Dir         string `json:"dir"`
	MaxAgeDays  int    `json:"max_age_days"`
	CleanupCron string `json:"cleanup_cron"`
}

type VectorIndexConfig struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

type SafetyConfig struct {
	MaxInputChars  int `json:"max_input_chars"`
	MaxOutputChars int `json:"max_output_chars"`
}

type RetrievalConfig struct {
	TopK                int    `json:"top_k"`
	CandidateMultiplier int    `json:"candidate_multiplier"`
	MinCandidates       int    `json:"min_candidates"`
	CharLimit           int    `json:"char_limit"`
	MaxDocs             int    `json:"max_docs"`
	FAQSource           string `json:"faq_source"`
	Timeout             int    `json:"timeout"`
}

type IntentConfig struct {
	SemanticThreshold float64 `json:"semantic_threshold"`
	MaxGreetingChars  int     `json:"max_greeting_chars"`
}

// Load reads a json config, or toml when the file ends in .toml.
func Load(path string) (*Config, error) {
	var cfg Config
	var err error
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = decodeTOML(path, &cfg)
	} else {
		err = decodeJSON(path, &cfg)
	}
	if err != nil {
		return nil, err
	}
	// .env is optional, real environment variables win over it
	_ = godotenv.Load()
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeJSON(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// decodeTOML maps toml onto the json field names through a round trip, so
// both formats share one set of keys.
func decodeTOML(path string, cfg *Config) error {
	raw := map[string]interface{}{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if key := strings.TrimSpace(os.Getenv(EnvAIAPIKey)); key != "" {
		for i := range cfg.AI.Providers {
			if cfg.AI.Providers[i].Data == nil {
				cfg.AI.Providers[i].Data = map[string]interface{}{}
			}
			if v, _ := cfg.AI.Providers[i].Data["api_key"].(string); v == "" {
				cfg.AI.Providers[i].Data["api_key"] = key
			}
		}
	}
	if dsn := strings.TrimSpace(os.Getenv(EnvDatabaseDSN)); dsn != "" {
		cfg.Database.DSN = dsn
	}
}

func applyDefaults(cfg *Config) {
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 15
	}
	if cfg.EmbedCache.LruSize == 0 {
		cfg.EmbedCache.LruSize = 64
	}
	if cfg.EmbedCache.Store == "" {
		cfg.EmbedCache.Store = "file"
	}
	if cfg.EmbedCache.Store == "file" && cfg.EmbedCache.Dir == "" {
		cfg.EmbedCache.Dir = "embedding_cache"
	}
	if cfg.EmbedCache.CleanupCron == "" {
		cfg.EmbedCache.CleanupCron = "0 3 * * *"
	}
	if cfg.VectorIndex.Type == "" {
		cfg.VectorIndex.Type = "pgvector"
	}
	if cfg.Safety.MaxInputChars == 0 {
		cfg.Safety.MaxInputChars = 1000
	}
	if cfg.Safety.MaxOutputChars == 0 {
		cfg.Safety.MaxOutputChars = 2000
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.CandidateMultiplier == 0 {
		cfg.Retrieval.CandidateMultiplier = 10
	}
	if cfg.Retrieval.MinCandidates == 0 {
		cfg.Retrieval.MinCandidates = 500
	}
	if cfg.Retrieval.CharLimit == 0 {
		cfg.Retrieval.CharLimit = 2000
	}
	if cfg.Retrieval.MaxDocs == 0 {
		cfg.Retrieval.MaxDocs = 4
	}
	if cfg.Retrieval.FAQSource == "" {
		cfg.Retrieval.FAQSource = DefaultFAQSource
	}
	if cfg.Retrieval.Timeout == 0 {
		cfg.Retrieval.Timeout = 10
	}
	if cfg.Intent.SemanticThreshold == 0 {
		cfg.Intent.SemanticThreshold = 0.45
	}
	if cfg.Intent.MaxGreetingChars == 0 {
		cfg.Intent.MaxGreetingChars = 40
	}
	if cfg.StatsCron == "" {
		cfg.StatsCron = "*/30 * * * *"
	}
}

func validate(cfg *Config) error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if len(cfg.AI.Providers) == 0 {
		return fmt.Errorf("ai.providers is required")
	}
	for i, p := range cfg.AI.Providers {
		if p.Provider == "" || p.Model == "" {
			return fmt.Errorf("ai.providers[%d] provider/model are required", i)
		}
	}
	switch cfg.EmbedCache.Store {
	case "file", "none":
	case "postgres":
		if !cfg.Database.Enabled() {
			return fmt.Errorf("embed_cache.store=postgres requires database config")
		}
	default:
		return fmt.Errorf("embed_cache.store must be file, postgres or none")
	}
	switch cfg.VectorIndex.Type {
	case "pgvector":
		if !cfg.Database.Enabled() {
			return fmt.Errorf("vector_index.type=pgvector requires database config")
		}
	case "milvus", "sqlite":
	default:
		return fmt.Errorf("vector_index.type must be pgvector, milvus or sqlite")
	}
	switch cfg.Database.Driver {
	case "postgres", "pgx":
	default:
		return fmt.Errorf("database.driver must be postgres or pgx")
	}
	if cfg.Intent.SemanticThreshold < 0 || cfg.Intent.SemanticThreshold > 1 {
		return fmt.Errorf("intent.semantic_threshold must be within [0, 1]")
	}
	return nil
}
