package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config at an empty temp dir and runs from a clean cwd.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// =============================================================================
// AC01: Default Configuration
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: the orchestration budget matches the documented defaults
	require.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, 50, cfg.Search.MaxResults)
	assert.Equal(t, 5*time.Second, cfg.Search.OverallTimeout)
	assert.Equal(t, "comprehensive", cfg.Search.DefaultType)
	assert.Equal(t, time.Second, cfg.Search.Deadlines["quick"])
	assert.Equal(t, 3*time.Second, cfg.Search.Deadlines["comprehensive"])
	assert.Equal(t, 4*time.Second, cfg.Search.Deadlines["detailed"])
	assert.Equal(t, 3*time.Second, cfg.Search.Deadlines["creative"])

	// And: capacities
	assert.Equal(t, 10, cfg.Sessions.Capacity)
	assert.Equal(t, 3, cfg.Suggestions.MinLength)
	assert.Equal(t, 5, cfg.Suggestions.MaxSuggestions)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)

	// And: retrieval and fusion
	assert.Equal(t, "hnsw", cfg.Retrieval.Backend)
	assert.Equal(t, "hypersearch", cfg.Retrieval.Collection)
	assert.Equal(t, 2*time.Second, cfg.Retrieval.Timeout)
	assert.InDelta(t, 1.0, cfg.Fusion.ScoreWeight+cfg.Fusion.ModalityWeight, 0.001)
	assert.Equal(t, 0.7, cfg.Fusion.ModalityPriority["image"])

	// And: rate limits from the public API
	assert.Equal(t, 30, cfg.Server.SearchRateLimit)
	assert.Equal(t, 100, cfg.Server.SuggestRateLimit)

	// And: defaults validate
	assert.NoError(t, cfg.Validate())
}

func TestNewConfig_LLMDisabledByDefault(t *testing.T) {
	cfg := NewConfig()

	assert.False(t, cfg.Agents.LLM.Enabled)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Agents.LLM.BaseURL)
	assert.Empty(t, cfg.Agents.LLM.APIKey)
}

func TestDeadlineFor(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, time.Second, cfg.DeadlineFor("QUICK"))
	assert.Equal(t, 3*time.Second, cfg.DeadlineFor("unknown"))
}

// =============================================================================
// AC02: Layered Loading
// =============================================================================

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, NewConfig().Search, cfg.Search)
}

func TestLoad_ProjectFile_OverridesDefaults(t *testing.T) {
	// Given: a hypersearch.yaml in the working directory
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ProjectConfigName), `
search:
  max_results: 25
  deadlines:
    quick: 500ms
retrieval:
  backend: qdrant
fusion:
  modality_priority:
    video: 0.9
`)

	// When: loading
	cfg, err := Load("")
	require.NoError(t, err)

	// Then: set values win and unset values keep defaults
	assert.Equal(t, 25, cfg.Search.MaxResults)
	assert.Equal(t, 500*time.Millisecond, cfg.Search.Deadlines["quick"])
	assert.Equal(t, 4*time.Second, cfg.Search.Deadlines["detailed"])
	assert.Equal(t, "qdrant", cfg.Retrieval.Backend)
	assert.Equal(t, 0.9, cfg.Fusion.ModalityPriority["video"])
	assert.Equal(t, 1.0, cfg.Fusion.ModalityPriority["text"])
}

func TestLoad_YmlExtension_IsRecognized(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "hypersearch.yml"), "sessions:\n  capacity: 4\n")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Sessions.Capacity)
}

func TestLoad_ExplicitPath_MustExist(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ProjectConfigName), "search: [not: valid")

	_, err := Load("")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_UserConfigThenProjectConfig(t *testing.T) {
	// Given: a user config and a project config that overlap
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	writeFile(t, filepath.Join(xdg, "hypersearch", "config.yaml"), `
cache:
  capacity: 64
sessions:
  capacity: 7
`)
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, filepath.Join(dir, ProjectConfigName), "sessions:\n  capacity: 3\n")

	// When: loading
	cfg, err := Load("")
	require.NoError(t, err)

	// Then: project beats user, user beats defaults
	assert.Equal(t, 3, cfg.Sessions.Capacity)
	assert.Equal(t, 64, cfg.Cache.Capacity)
}

func TestLoad_EnvVarOverridesFiles(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ProjectConfigName), "server:\n  addr: \":9000\"\n")
	t.Setenv("HYPERSEARCH_ADDR", ":7000")
	t.Setenv("HYPERSEARCH_RETRIEVAL_BACKEND", "none")
	t.Setenv("HYPERSEARCH_OVERALL_TIMEOUT", "2s")
	t.Setenv("HYPERSEARCH_CACHE_ENABLED", "false")
	t.Setenv("OPENROUTER_API_KEY", "generic")
	t.Setenv("HYPERSEARCH_LLM_API_KEY", "specific")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "none", cfg.Retrieval.Backend)
	assert.Equal(t, 2*time.Second, cfg.Search.OverallTimeout)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "specific", cfg.Agents.LLM.APIKey)
}

func TestLoad_MalformedEnvNumbersIgnored(t *testing.T) {
	isolate(t)
	t.Setenv("HYPERSEARCH_POOL_SIZE", "lots")
	t.Setenv("HYPERSEARCH_SIMILARITY_THRESHOLD", "2.5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, NewConfig().Agents.PoolSize, cfg.Agents.PoolSize)
	assert.Equal(t, 0.5, cfg.Retrieval.SimilarityThreshold)
}

func TestLoad_InvalidUserConfig_ReturnsError(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Chdir(t.TempDir())
	writeFile(t, filepath.Join(xdg, "hypersearch", "config.yaml"), "search: [unclosed")

	_, err := Load("")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "user config")
}

// =============================================================================
// AC03: Validation
// =============================================================================

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"zero max results", func(c *Config) { c.Search.MaxResults = 0 }, "max_results"},
		{"unknown default type", func(c *Config) { c.Search.DefaultType = "fast" }, "default_type"},
		{"missing deadline", func(c *Config) { delete(c.Search.Deadlines, "creative") }, "deadlines.creative"},
		{"unknown deadline", func(c *Config) { c.Search.Deadlines["turbo"] = time.Second }, "unknown search type"},
		{"unknown modality", func(c *Config) { c.Agents.Modalities = []string{"smell"} }, "agents.modalities"},
		{"bad backend", func(c *Config) { c.Retrieval.Backend = "faiss" }, "retrieval.backend"},
		{"bad provider", func(c *Config) { c.Embeddings.Provider = "mlx" }, "embeddings.provider"},
		{"weights", func(c *Config) { c.Fusion.ScoreWeight = 0.5 }, "must equal 1.0"},
		{"priority range", func(c *Config) { c.Fusion.ModalityPriority["audio"] = 2 }, "modality_priority.audio"},
		{"sessions backend", func(c *Config) { c.Sessions.Backend = "redis" }, "sessions.backend"},
		{"session capacity", func(c *Config) { c.Sessions.Capacity = 0 }, "sessions.capacity"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"llm without url", func(c *Config) {
			c.Agents.LLM.Enabled = true
			c.Agents.LLM.BaseURL = ""
		}, "base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

// =============================================================================
// AC04: Paths, Writing and Backups
// =============================================================================

func TestGetUserConfigPath_RespectsXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	assert.Equal(t, filepath.Join("/tmp/xdg", "hypersearch", "config.yaml"), GetUserConfigPath())
}

func TestUserConfigExists(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	assert.False(t, UserConfigExists())

	writeFile(t, filepath.Join(xdg, "hypersearch", "config.yaml"), "version: 1\n")
	assert.True(t, UserConfigExists())
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	// Given: a modified config written to disk
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "out.yaml")
	cfg := NewConfig()
	cfg.Search.Deadlines["quick"] = 750 * time.Millisecond
	cfg.Suggestions.Popular = []string{"graph databases"}
	require.NoError(t, cfg.WriteYAML(path))

	// When: loading it back explicitly
	loaded, err := Load(path)
	require.NoError(t, err)

	// Then: durations and lists survive
	assert.Equal(t, 750*time.Millisecond, loaded.Search.Deadlines["quick"])
	assert.Equal(t, []string{"graph databases"}, loaded.Suggestions.Popular)
}

func TestBackupFile_KeepsNewest(t *testing.T) {
	// Given: an existing config file
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "version: 1\n")

	// When: backing it up more than MaxBackups times
	var last string
	for i := 0; i < MaxBackups+2; i++ {
		p, err := BackupFile(path)
		require.NoError(t, err)
		last = p
		time.Sleep(2 * time.Millisecond)
	}

	// Then: only MaxBackups remain, newest first
	backups, err := ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, MaxBackups)
	assert.Equal(t, last, backups[0])
}

func TestBackupFile_MissingFileIsNoop(t *testing.T) {
	p, err := BackupFile(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	assert.Empty(t, p)
}
