package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Chat provider names.
const (
	ProviderNone      = ""
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds the fuego API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chat      ChatConfig      `yaml:"chat"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Auth      AuthConfig      `yaml:"auth"`
	Supabase  SupabaseConfig  `yaml:"supabase"`
	Matching  MatchingConfig  `yaml:"matching"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds caller identity settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Audience  string `yaml:"audience"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"` // must exceed chat.upstream_timeout_sec for streams
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	DSN              string `yaml:"dsn"`
	MaxOpenConns     int    `yaml:"max_open_conns"`
	MaxIdleConns     int    `yaml:"max_idle_conns"`
	ConnMaxLifetime  int    `yaml:"conn_max_lifetime_sec"`
	ReadinessTimeout int    `yaml:"readiness_timeout_sec"`
}

// CacheConfig holds the optional Redis embedding cache. Empty addrs disables it.
type CacheConfig struct {
	Addrs    []string `yaml:"addrs"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	TTLSec   int      `yaml:"ttl_sec"`
}

// Enabled reports whether a cache is configured.
func (c CacheConfig) Enabled() bool { return len(c.Addrs) > 0 }

// EmbeddingConfig holds embedding provider settings. Empty api_key disables profile saving.
type EmbeddingConfig struct {
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions"`
	Instruction string `yaml:"instruction"`
}

// ChatConfig selects the streaming chat provider and bounds the relay.
type ChatConfig struct {
	Provider           string          `yaml:"provider"` // "", openai, anthropic
	UpstreamTimeoutSec int             `yaml:"upstream_timeout_sec"`
	MaxLineBytes       int             `yaml:"max_line_bytes"`
	FlushTrailingLine  *bool           `yaml:"flush_trailing_line"`
	RequestsPerSecond  float64         `yaml:"requests_per_second"` // 0 = unlimited
	Burst              int             `yaml:"burst"`
	OpenAI             OpenAIConfig    `yaml:"openai"`
	Anthropic          AnthropicConfig `yaml:"anthropic"`
}

// OpenAIConfig holds OpenAI-compatible chat settings (OpenAI or an AI gateway).
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// AnthropicConfig holds Claude messages API settings.
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	Version   string `yaml:"version"`
	MaxTokens int    `yaml:"max_tokens"`
}

// UpstreamConfig holds retry and circuit breaker settings for outbound HTTP.
type UpstreamConfig struct {
	MaxRetries        int `yaml:"max_retries"`
	InitialBackoffMs  int `yaml:"initial_backoff_ms"`
	MaxBackoffMs      int `yaml:"max_backoff_ms"`
	BreakerFailures   int `yaml:"breaker_failures"`
	BreakerTimeoutSec int `yaml:"breaker_timeout_sec"`
}

// SupabaseConfig holds PostgREST settings for the RLS-enforced match route.
type SupabaseConfig struct {
	URL            string `yaml:"url"`
	AnonKey        string `yaml:"anon_key"`
	CursorFunction string `yaml:"cursor_function"`
}

// Enabled reports whether PostgREST access is configured.
func (c SupabaseConfig) Enabled() bool { return c.URL != "" && c.AnonKey != "" }

// MatchingConfig holds pagination and consent settings.
type MatchingConfig struct {
	DefaultLimit   int    `yaml:"default_limit"`
	MaxLimit       int    `yaml:"max_limit"`
	CursorFunction string `yaml:"cursor_function"`
	SecureFunction string `yaml:"secure_function"`
	OffsetFunction string `yaml:"offset_function"`
	ProbeNextPage  bool   `yaml:"probe_next_page"`
	RequireConsent *bool  `yaml:"require_consent"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands ${VAR} references, unmarshals, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = 300
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 7 * 24 * 3600
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	c.applyChatDefaults()
	c.applyUpstreamDefaults()
	if c.Supabase.CursorFunction == "" {
		c.Supabase.CursorFunction = "find_matches_cursor"
	}
	c.applyMatchingDefaults()
}

func (c *Config) applyChatDefaults() {
	if c.Chat.UpstreamTimeoutSec <= 0 {
		c.Chat.UpstreamTimeoutSec = 60
	}
	if c.Chat.MaxLineBytes <= 0 {
		c.Chat.MaxLineBytes = 64 * 1024
	}
	if c.Chat.FlushTrailingLine == nil {
		flush := true
		c.Chat.FlushTrailingLine = &flush
	}
	if c.Chat.RequestsPerSecond > 0 && c.Chat.Burst <= 0 {
		c.Chat.Burst = 1
	}
	if c.Chat.OpenAI.BaseURL == "" {
		c.Chat.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.Chat.OpenAI.Model == "" {
		c.Chat.OpenAI.Model = "gpt-4"
	}
	if c.Chat.Anthropic.BaseURL == "" {
		c.Chat.Anthropic.BaseURL = "https://api.anthropic.com/v1"
	}
	if c.Chat.Anthropic.Model == "" {
		c.Chat.Anthropic.Model = "claude-3-5-sonnet-20241022"
	}
	if c.Chat.Anthropic.Version == "" {
		c.Chat.Anthropic.Version = "2023-06-01"
	}
	if c.Chat.Anthropic.MaxTokens <= 0 {
		c.Chat.Anthropic.MaxTokens = 1024
	}
}

func (c *Config) applyUpstreamDefaults() {
	if c.Upstream.MaxRetries < 0 {
		c.Upstream.MaxRetries = 0
	}
	if c.Upstream.InitialBackoffMs <= 0 {
		c.Upstream.InitialBackoffMs = 200
	}
	if c.Upstream.MaxBackoffMs <= 0 {
		c.Upstream.MaxBackoffMs = 2000
	}
	if c.Upstream.BreakerFailures <= 0 {
		c.Upstream.BreakerFailures = 5
	}
	if c.Upstream.BreakerTimeoutSec <= 0 {
		c.Upstream.BreakerTimeoutSec = 30
	}
}

func (c *Config) applyMatchingDefaults() {
	if c.Matching.DefaultLimit <= 0 {
		c.Matching.DefaultLimit = 10
	}
	if c.Matching.MaxLimit <= 0 {
		c.Matching.MaxLimit = 100
	}
	if c.Matching.CursorFunction == "" {
		c.Matching.CursorFunction = "find_matches_cursor"
	}
	if c.Matching.SecureFunction == "" {
		c.Matching.SecureFunction = "find_matches_pgvector"
	}
	if c.Matching.OffsetFunction == "" {
		c.Matching.OffsetFunction = "find_matches"
	}
	if c.Matching.RequireConsent == nil {
		require := true
		c.Matching.RequireConsent = &require
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.Chat.Provider {
	case ProviderNone:
	case ProviderOpenAI:
		if c.Chat.OpenAI.APIKey == "" {
			return fmt.Errorf("chat.openai.api_key is required when chat.provider is %q", ProviderOpenAI)
		}
	case ProviderAnthropic:
		if c.Chat.Anthropic.APIKey == "" {
			return fmt.Errorf("chat.anthropic.api_key is required when chat.provider is %q", ProviderAnthropic)
		}
	default:
		return fmt.Errorf("chat.provider must be \"openai\", \"anthropic\" or empty, got %q", c.Chat.Provider)
	}
	if c.Matching.DefaultLimit > c.Matching.MaxLimit {
		return fmt.Errorf("matching.default_limit (%d) exceeds matching.max_limit (%d)",
			c.Matching.DefaultLimit, c.Matching.MaxLimit)
	}
	for name, fn := range map[string]string{
		"matching.cursor_function": c.Matching.CursorFunction,
		"matching.secure_function": c.Matching.SecureFunction,
		"matching.offset_function": c.Matching.OffsetFunction,
		"supabase.cursor_function": c.Supabase.CursorFunction,
	} {
		if !sqlIdentifier.MatchString(fn) {
			return fmt.Errorf("%s must be a plain SQL identifier, got %q", name, fn)
		}
	}
	if c.HTTP.WriteTimeoutSec <= c.Chat.UpstreamTimeoutSec {
		return fmt.Errorf("http.write_timeout_sec (%d) must exceed chat.upstream_timeout_sec (%d)",
			c.HTTP.WriteTimeoutSec, c.Chat.UpstreamTimeoutSec)
	}
	return nil
}

var sqlIdentifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
