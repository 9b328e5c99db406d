package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectConfigName is the per-directory configuration file looked up by Load.
const ProjectConfigName = "hypersearch.yaml"

// Config represents the complete HyperSearch configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	DataDir     string            `yaml:"data_dir" json:"data_dir"`
	Server      ServerConfig      `yaml:"server" json:"server"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	Agents      AgentsConfig      `yaml:"agents" json:"agents"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" json:"retrieval"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	Fusion      FusionConfig      `yaml:"fusion" json:"fusion"`
	Cache       CacheConfig       `yaml:"cache" json:"cache"`
	Sessions    SessionsConfig    `yaml:"sessions" json:"sessions"`
	Suggestions SuggestionsConfig `yaml:"suggestions" json:"suggestions"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" json:"telemetry"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	PrincipalHeader string        `yaml:"principal_header" json:"principal_header"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Requests per minute per principal. Zero disables the limit.
	SearchRateLimit  int `yaml:"search_rate_limit" json:"search_rate_limit"`
	SuggestRateLimit int `yaml:"suggest_rate_limit" json:"suggest_rate_limit"`
}

// SearchConfig configures the orchestration budget.
type SearchConfig struct {
	// MaxResults caps the fused result list.
	MaxResults int `yaml:"max_results" json:"max_results"`

	// MaxQueryLength is measured in runes.
	MaxQueryLength int `yaml:"max_query_length" json:"max_query_length"`

	// OverallTimeout bounds the join of all sources for one query.
	OverallTimeout time.Duration `yaml:"overall_timeout" json:"overall_timeout"`

	// DefaultType applies when a request omits the search type.
	DefaultType string `yaml:"default_type" json:"default_type"`

	// Deadlines maps search type to the per-agent task deadline.
	Deadlines map[string]time.Duration `yaml:"deadlines" json:"deadlines"`
}

// AgentsConfig configures the agent pool and its capabilities.
type AgentsConfig struct {
	PoolSize  int `yaml:"pool_size" json:"pool_size"`
	MaxQueued int `yaml:"max_queued" json:"max_queued"`

	// Modalities lists the modalities that get a registered capability.
	Modalities []string `yaml:"modalities" json:"modalities"`

	// CandidatesPerAgent caps how many candidates one task may contribute.
	CandidatesPerAgent int `yaml:"candidates_per_agent" json:"candidates_per_agent"`

	LLM LLMConfig `yaml:"llm" json:"llm"`
}

// LLMConfig configures the optional language-model capability used for
// comprehensive and detailed searches. Any OpenAI-compatible endpoint works.
type LLMConfig struct {
	Enabled       bool    `yaml:"enabled" json:"enabled"`
	BaseURL       string  `yaml:"base_url" json:"base_url"`
	Model         string  `yaml:"model" json:"model"`
	APIKey        string  `yaml:"api_key" json:"-"`
	MaxCandidates int     `yaml:"max_candidates" json:"max_candidates"`
	Temperature   float64 `yaml:"temperature" json:"temperature"`
}

// RetrievalConfig configures the vector retrieval client.
type RetrievalConfig struct {
	// Backend selects the vector index: "hnsw" (local file), "qdrant" (REST), or "none".
	Backend             string        `yaml:"backend" json:"backend"`
	Endpoint            string        `yaml:"endpoint" json:"endpoint"`
	Collection          string        `yaml:"collection" json:"collection"`
	TopK                int           `yaml:"top_k" json:"top_k"`
	Timeout             time.Duration `yaml:"timeout" json:"timeout"`
	SimilarityThreshold float64       `yaml:"similarity_threshold" json:"similarity_threshold"`
	BreakerFailures     int           `yaml:"breaker_failures" json:"breaker_failures"`
	BreakerReset        time.Duration `yaml:"breaker_reset" json:"breaker_reset"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "static" (hash-based, offline) or "ollama".
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// FusionConfig configures the result fuser.
type FusionConfig struct {
	ScoreWeight      float64            `yaml:"score_weight" json:"score_weight"`
	ModalityWeight   float64            `yaml:"modality_weight" json:"modality_weight"`
	ModalityPriority map[string]float64 `yaml:"modality_priority" json:"modality_priority"`
	MinScore         float64            `yaml:"min_score" json:"min_score"`
	CreativeMinScore float64            `yaml:"creative_min_score" json:"creative_min_score"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
	Capacity int           `yaml:"capacity" json:"capacity"`
	Shards   int           `yaml:"shards" json:"shards"`
}

// SessionsConfig configures the per-principal search history.
type SessionsConfig struct {
	Capacity int `yaml:"capacity" json:"capacity"`
	Shards   int `yaml:"shards" json:"shards"`

	// Backend is "memory", "sqlite", or "badger".
	Backend string `yaml:"backend" json:"backend"`
}

// SuggestionsConfig configures the suggestion engine.
type SuggestionsConfig struct {
	MinLength      int      `yaml:"min_length" json:"min_length"`
	MaxSuggestions int      `yaml:"max_suggestions" json:"max_suggestions"`
	Popular        []string `yaml:"popular" json:"popular"`

	// PopularFile is an optional YAML list of popular queries, reloaded on change.
	PopularFile    string   `yaml:"popular_file" json:"popular_file"`
	FuzzyThreshold float64  `yaml:"fuzzy_threshold" json:"fuzzy_threshold"`
	Templates      []string `yaml:"templates" json:"templates"`
}

// TelemetryConfig configures query telemetry.
type TelemetryConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// Search types and modalities accepted by Validate. Kept here to avoid a
// dependency on the query package.
var (
	validSearchTypes = []string{"comprehensive", "quick", "detailed", "creative"}
	validModalities  = []string{"text", "image", "audio", "video", "code"}
)

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	poolSize := runtime.NumCPU()
	if poolSize < 4 {
		poolSize = 4
	}

	return &Config{
		Version: 1,
		DataDir: defaultDataDir(),
		Server: ServerConfig{
			Addr:             ":8080",
			PrincipalHeader:  "X-Principal",
			ReadTimeout:      10 * time.Second,
			WriteTimeout:     15 * time.Second,
			IdleTimeout:      120 * time.Second,
			ShutdownTimeout:  10 * time.Second,
			SearchRateLimit:  30,
			SuggestRateLimit: 100,
		},
		Search: SearchConfig{
			MaxResults:     50,
			MaxQueryLength: 1000,
			OverallTimeout: 5 * time.Second,
			DefaultType:    "comprehensive",
			Deadlines: map[string]time.Duration{
				"quick":         1 * time.Second,
				"comprehensive": 3 * time.Second,
				"detailed":      4 * time.Second,
				"creative":      3 * time.Second,
			},
		},
		Agents: AgentsConfig{
			PoolSize:           poolSize,
			MaxQueued:          256,
			Modalities:         append([]string(nil), validModalities...),
			CandidatesPerAgent: 20,
			LLM: LLMConfig{
				Enabled:       false,
				BaseURL:       "https://openrouter.ai/api/v1",
				Model:         "openai/gpt-4o-mini",
				MaxCandidates: 3,
				Temperature:   0.3,
			},
		},
		Retrieval: RetrievalConfig{
			Backend:             "hnsw",
			Endpoint:            "http://localhost:6333",
			Collection:          "hypersearch",
			TopK:                20,
			Timeout:             2 * time.Second,
			SimilarityThreshold: 0.5,
			BreakerFailures:     5,
			BreakerReset:        30 * time.Second,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "nomic-embed-text",
			OllamaHost: "http://localhost:11434",
			Dimensions: 256,
			BatchSize:  32,
			CacheSize:  1000,
		},
		Fusion: FusionConfig{
			ScoreWeight:    0.8,
			ModalityWeight: 0.2,
			ModalityPriority: map[string]float64{
				"text":  1.0,
				"code":  1.0,
				"image": 0.7,
				"audio": 0.5,
				"video": 0.5,
			},
			MinScore:         0.2,
			CreativeMinScore: 0,
		},
		Cache: CacheConfig{
			Enabled:  true,
			TTL:      time.Hour,
			Capacity: 1024,
			Shards:   16,
		},
		Sessions: SessionsConfig{
			Capacity: 10,
			Shards:   32,
			Backend:  "memory",
		},
		Suggestions: SuggestionsConfig{
			MinLength:      3,
			MaxSuggestions: 5,
			Popular: []string{
				"machine learning",
				"artificial intelligence",
				"quantum computing",
				"climate change",
				"renewable energy",
			},
			FuzzyThreshold: 0.85,
			Templates: []string{
				"{q} analysis",
				"{q} overview",
				"{q} examples",
				"what is {q}",
				"how to {q}",
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:       true,
			FlushInterval: time.Minute,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// defaultDataDir returns ~/.hypersearch, or a temp-dir fallback.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".hypersearch")
	}
	return filepath.Join(home, ".hypersearch")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory layout:
//   - $XDG_CONFIG_HOME/hypersearch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/hypersearch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hypersearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "hypersearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "hypersearch", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var cfg Config
	if err := readYAML(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return &cfg, nil
}

// Load builds the effective configuration, in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/hypersearch/config.yaml)
//  3. Project config: path if non-empty (must exist), else ./hypersearch.yaml (optional)
//  4. Environment variables (HYPERSEARCH_*)
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadProjectFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadProjectFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ProjectConfigName
		if !fileExists(path) {
			path = strings.TrimSuffix(ProjectConfigName, ".yaml") + ".yml"
		}
	}

	if !fileExists(path) {
		if explicit {
			return fmt.Errorf("config file not found: %s", path)
		}
		return nil
	}

	var parsed Config
	if err := readYAML(path, &parsed); err != nil {
		return err
	}
	c.mergeWith(&parsed)
	return nil
}

// readYAML decodes path into out.
func readYAML(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
// Booleans can only be switched on by a file; use env vars to switch them off.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	setString(&c.DataDir, other.DataDir)

	// Server
	setString(&c.Server.Addr, other.Server.Addr)
	setString(&c.Server.PrincipalHeader, other.Server.PrincipalHeader)
	setDuration(&c.Server.ReadTimeout, other.Server.ReadTimeout)
	setDuration(&c.Server.WriteTimeout, other.Server.WriteTimeout)
	setDuration(&c.Server.IdleTimeout, other.Server.IdleTimeout)
	setDuration(&c.Server.ShutdownTimeout, other.Server.ShutdownTimeout)
	setInt(&c.Server.SearchRateLimit, other.Server.SearchRateLimit)
	setInt(&c.Server.SuggestRateLimit, other.Server.SuggestRateLimit)

	// Search
	setInt(&c.Search.MaxResults, other.Search.MaxResults)
	setInt(&c.Search.MaxQueryLength, other.Search.MaxQueryLength)
	setDuration(&c.Search.OverallTimeout, other.Search.OverallTimeout)
	setString(&c.Search.DefaultType, other.Search.DefaultType)
	for k, v := range other.Search.Deadlines {
		if v > 0 {
			c.Search.Deadlines[strings.ToLower(k)] = v
		}
	}

	// Agents
	setInt(&c.Agents.PoolSize, other.Agents.PoolSize)
	setInt(&c.Agents.MaxQueued, other.Agents.MaxQueued)
	if len(other.Agents.Modalities) > 0 {
		c.Agents.Modalities = other.Agents.Modalities
	}
	setInt(&c.Agents.CandidatesPerAgent, other.Agents.CandidatesPerAgent)
	if other.Agents.LLM.Enabled {
		c.Agents.LLM.Enabled = true
	}
	setString(&c.Agents.LLM.BaseURL, other.Agents.LLM.BaseURL)
	setString(&c.Agents.LLM.Model, other.Agents.LLM.Model)
	setString(&c.Agents.LLM.APIKey, other.Agents.LLM.APIKey)
	setInt(&c.Agents.LLM.MaxCandidates, other.Agents.LLM.MaxCandidates)
	setFloat(&c.Agents.LLM.Temperature, other.Agents.LLM.Temperature)

	// Retrieval
	setString(&c.Retrieval.Backend, other.Retrieval.Backend)
	setString(&c.Retrieval.Endpoint, other.Retrieval.Endpoint)
	setString(&c.Retrieval.Collection, other.Retrieval.Collection)
	setInt(&c.Retrieval.TopK, other.Retrieval.TopK)
	setDuration(&c.Retrieval.Timeout, other.Retrieval.Timeout)
	setFloat(&c.Retrieval.SimilarityThreshold, other.Retrieval.SimilarityThreshold)
	setInt(&c.Retrieval.BreakerFailures, other.Retrieval.BreakerFailures)
	setDuration(&c.Retrieval.BreakerReset, other.Retrieval.BreakerReset)

	// Embeddings
	setString(&c.Embeddings.Provider, other.Embeddings.Provider)
	setString(&c.Embeddings.Model, other.Embeddings.Model)
	setString(&c.Embeddings.OllamaHost, other.Embeddings.OllamaHost)
	setInt(&c.Embeddings.Dimensions, other.Embeddings.Dimensions)
	setInt(&c.Embeddings.BatchSize, other.Embeddings.BatchSize)
	setInt(&c.Embeddings.CacheSize, other.Embeddings.CacheSize)

	// Fusion
	setFloat(&c.Fusion.ScoreWeight, other.Fusion.ScoreWeight)
	setFloat(&c.Fusion.ModalityWeight, other.Fusion.ModalityWeight)
	for k, v := range other.Fusion.ModalityPriority {
		c.Fusion.ModalityPriority[strings.ToLower(k)] = v
	}
	setFloat(&c.Fusion.MinScore, other.Fusion.MinScore)
	setFloat(&c.Fusion.CreativeMinScore, other.Fusion.CreativeMinScore)

	// Cache
	if other.Cache.Enabled {
		c.Cache.Enabled = true
	}
	setDuration(&c.Cache.TTL, other.Cache.TTL)
	setInt(&c.Cache.Capacity, other.Cache.Capacity)
	setInt(&c.Cache.Shards, other.Cache.Shards)

	// Sessions
	setInt(&c.Sessions.Capacity, other.Sessions.Capacity)
	setInt(&c.Sessions.Shards, other.Sessions.Shards)
	setString(&c.Sessions.Backend, other.Sessions.Backend)

	// Suggestions
	setInt(&c.Suggestions.MinLength, other.Suggestions.MinLength)
	setInt(&c.Suggestions.MaxSuggestions, other.Suggestions.MaxSuggestions)
	if len(other.Suggestions.Popular) > 0 {
		c.Suggestions.Popular = other.Suggestions.Popular
	}
	setString(&c.Suggestions.PopularFile, other.Suggestions.PopularFile)
	setFloat(&c.Suggestions.FuzzyThreshold, other.Suggestions.FuzzyThreshold)
	if len(other.Suggestions.Templates) > 0 {
		c.Suggestions.Templates = other.Suggestions.Templates
	}

	// Telemetry
	if other.Telemetry.Enabled {
		c.Telemetry.Enabled = true
	}
	setDuration(&c.Telemetry.FlushInterval, other.Telemetry.FlushInterval)

	// Logging
	setString(&c.Logging.Level, other.Logging.Level)
	setString(&c.Logging.File, other.Logging.File)
	setInt(&c.Logging.MaxSizeMB, other.Logging.MaxSizeMB)
	setInt(&c.Logging.MaxFiles, other.Logging.MaxFiles)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies HYPERSEARCH_* environment variable overrides.
// Malformed numeric values are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HYPERSEARCH_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("HYPERSEARCH_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("HYPERSEARCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("HYPERSEARCH_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Agents.PoolSize = n
		}
	}
	if v := os.Getenv("HYPERSEARCH_OVERALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Search.OverallTimeout = d
		}
	}

	// Retrieval
	if v := os.Getenv("HYPERSEARCH_RETRIEVAL_BACKEND"); v != "" {
		c.Retrieval.Backend = v
	}
	if v := os.Getenv("HYPERSEARCH_QDRANT_URL"); v != "" {
		c.Retrieval.Endpoint = v
	}
	if v := os.Getenv("HYPERSEARCH_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := parseFloat64(v); err == nil && f >= 0 && f <= 1 {
			c.Retrieval.SimilarityThreshold = f
		}
	}

	// Embeddings
	if v := os.Getenv("HYPERSEARCH_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("HYPERSEARCH_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("HYPERSEARCH_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}

	// LLM: the generic OpenRouter variable is honoured, the prefixed one wins.
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.Agents.LLM.APIKey = v
	}
	if v := os.Getenv("HYPERSEARCH_LLM_API_KEY"); v != "" {
		c.Agents.LLM.APIKey = v
	}
	if v := os.Getenv("HYPERSEARCH_LLM_ENABLED"); v != "" {
		c.Agents.LLM.Enabled = parseBool(v)
	}

	// Cache, sessions, telemetry
	if v := os.Getenv("HYPERSEARCH_CACHE_ENABLED"); v != "" {
		c.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("HYPERSEARCH_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Cache.TTL = d
		}
	}
	if v := os.Getenv("HYPERSEARCH_SESSIONS_BACKEND"); v != "" {
		c.Sessions.Backend = v
	}
	if v := os.Getenv("HYPERSEARCH_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}

	// Search budget
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Search.MaxQueryLength <= 0 {
		return fmt.Errorf("search.max_query_length must be positive, got %d", c.Search.MaxQueryLength)
	}
	if c.Search.OverallTimeout <= 0 {
		return fmt.Errorf("search.overall_timeout must be positive, got %s", c.Search.OverallTimeout)
	}
	if !contains(validSearchTypes, strings.ToLower(c.Search.DefaultType)) {
		return fmt.Errorf("search.default_type must be one of %v, got %s", validSearchTypes, c.Search.DefaultType)
	}
	for _, st := range validSearchTypes {
		d, ok := c.Search.Deadlines[st]
		if !ok || d <= 0 {
			return fmt.Errorf("search.deadlines.%s must be positive", st)
		}
	}
	for st := range c.Search.Deadlines {
		if !contains(validSearchTypes, st) {
			return fmt.Errorf("search.deadlines has unknown search type %q", st)
		}
	}

	// Agents
	if c.Agents.PoolSize <= 0 {
		return fmt.Errorf("agents.pool_size must be positive, got %d", c.Agents.PoolSize)
	}
	if c.Agents.MaxQueued < 0 {
		return fmt.Errorf("agents.max_queued must be non-negative, got %d", c.Agents.MaxQueued)
	}
	for _, m := range c.Agents.Modalities {
		if !contains(validModalities, strings.ToLower(m)) {
			return fmt.Errorf("agents.modalities has unknown modality %q", m)
		}
	}
	if c.Agents.LLM.Enabled && c.Agents.LLM.BaseURL == "" {
		return fmt.Errorf("agents.llm.base_url is required when the LLM capability is enabled")
	}

	// Retrieval
	switch strings.ToLower(c.Retrieval.Backend) {
	case "hnsw", "qdrant", "none":
	default:
		return fmt.Errorf("retrieval.backend must be 'hnsw', 'qdrant', or 'none', got %s", c.Retrieval.Backend)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.Timeout <= 0 {
		return fmt.Errorf("retrieval.timeout must be positive, got %s", c.Retrieval.Timeout)
	}
	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("retrieval.similarity_threshold must be between 0 and 1, got %f", c.Retrieval.SimilarityThreshold)
	}

	// Embeddings
	switch strings.ToLower(c.Embeddings.Provider) {
	case "static", "ollama":
	default:
		return fmt.Errorf("embeddings.provider must be 'static' or 'ollama', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}

	// Fusion weights
	if c.Fusion.ScoreWeight < 0 || c.Fusion.ModalityWeight < 0 {
		return fmt.Errorf("fusion weights must be non-negative")
	}
	if sum := c.Fusion.ScoreWeight + c.Fusion.ModalityWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("fusion.score_weight + fusion.modality_weight must equal 1.0, got %.2f", sum)
	}
	for m, p := range c.Fusion.ModalityPriority {
		if !contains(validModalities, m) {
			return fmt.Errorf("fusion.modality_priority has unknown modality %q", m)
		}
		if p < 0 || p > 1 {
			return fmt.Errorf("fusion.modality_priority.%s must be between 0 and 1, got %f", m, p)
		}
	}
	if c.Fusion.MinScore < 0 || c.Fusion.MinScore > 1 {
		return fmt.Errorf("fusion.min_score must be between 0 and 1, got %f", c.Fusion.MinScore)
	}

	// Cache, sessions, suggestions
	if c.Cache.TTL <= 0 || c.Cache.Capacity <= 0 || c.Cache.Shards <= 0 {
		return fmt.Errorf("cache.ttl, cache.capacity and cache.shards must be positive")
	}
	if c.Sessions.Capacity <= 0 || c.Sessions.Shards <= 0 {
		return fmt.Errorf("sessions.capacity and sessions.shards must be positive")
	}
	switch strings.ToLower(c.Sessions.Backend) {
	case "memory", "sqlite", "badger":
	default:
		return fmt.Errorf("sessions.backend must be 'memory', 'sqlite', or 'badger', got %s", c.Sessions.Backend)
	}
	if c.Suggestions.MinLength <= 0 || c.Suggestions.MaxSuggestions <= 0 {
		return fmt.Errorf("suggestions.min_length and suggestions.max_suggestions must be positive")
	}
	if c.Suggestions.FuzzyThreshold < 0 || c.Suggestions.FuzzyThreshold > 1 {
		return fmt.Errorf("suggestions.fuzzy_threshold must be between 0 and 1, got %f", c.Suggestions.FuzzyThreshold)
	}

	// Log level
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// DeadlineFor returns the per-agent deadline for a search type, falling back to
// the comprehensive deadline for unknown types.
func (c *Config) DeadlineFor(searchType string) time.Duration {
	if d, ok := c.Search.Deadlines[strings.ToLower(searchType)]; ok {
		return d
	}
	return c.Search.Deadlines["comprehensive"]
}

// Path joins name onto the data directory.
func (c *Config) Path(name string) string {
	return filepath.Join(c.DataDir, name)
}

// WriteYAML writes the configuration to a YAML file, creating parent directories.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
