// Package config loads and validates strand's configuration from files,
// environment variables, and built-in defaults.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (STRAND_* overrides, DATABASE_URL)
//  2. Config file (~/.strand/config.yaml, or ./config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Model: provider selection, model name, generation limits
//   - Storage: PostgreSQL connection (see storage.go)
//   - Retrieval: embedder model and top-K for knowledge search
//   - Agents: declarative agent and team roster (see agents.go)
//   - MCP: external tool server declarations and filtering (see mcp.go)
//   - Server: HTTP serve mode, CORS, turn admission rate (see server.go)
//   - Telemetry: OTLP trace export (see server.go)
//
// Security: sensitive values (the database password, MCP env secrets) are
// masked in MarshalJSON/String; the config directory uses 0750 permissions.
//
// Validation failures wrap the sentinel errors below so callers can
// branch with errors.Is.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the model provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidMaxTurns indicates the tool-loop turn bound is out of range.
	ErrInvalidMaxTurns = errors.New("invalid max turns")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidRetrievalTopK indicates the retrieval top-K is out of range.
	ErrInvalidRetrievalTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidServerAddr indicates the serve mode listen address is invalid.
	ErrInvalidServerAddr = errors.New("invalid server address")

	// ErrInvalidRateLimit indicates the turn admission rate settings are invalid.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidBreaker indicates the capability breaker settings are invalid.
	ErrInvalidBreaker = errors.New("invalid breaker settings")

	// ErrInvalidMCPServer indicates an MCP server declaration is invalid.
	ErrInvalidMCPServer = errors.New("invalid MCP server")

	// ErrInvalidAgentSpec indicates an agent roster entry is invalid.
	ErrInvalidAgentSpec = errors.New("invalid agent definition")
)

const (
	// DefaultEmbedderModel is the Gemini embedding model used unless overridden.
	// text-embedding-004 outputs 768 dimensions, matching the pgvector schema
	// in db/migrations.
	DefaultEmbedderModel = "text-embedding-004"

	// DefaultOllamaEmbedderModel is the embedding model for the "ollama"
	// provider. nomic-embed-text also outputs 768 dimensions.
	DefaultOllamaEmbedderModel = "nomic-embed-text"

	// DefaultMaxHistoryMessages is the default number of messages to load.
	DefaultMaxHistoryMessages int32 = 100

	// MaxAllowedHistoryMessages is the absolute maximum to prevent OOM.
	MaxAllowedHistoryMessages int32 = 10000

	// MinHistoryMessages is the minimum allowed value for MaxHistoryMessages.
	MinHistoryMessages int32 = 10
)

// Model provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// Config holds every runtime setting.
//
// Sensitive fields are masked in MarshalJSON; a new password or token
// field is not done until MarshalJSON covers it.
type Config struct {
	// Model provider configuration
	Provider    string  `mapstructure:"provider" json:"provider"`     // "gemini" (default), "ollama", "openai"
	ModelName   string  `mapstructure:"model_name" json:"model_name"` // Model identifier (e.g., "gemini-2.5-flash", "llama3.3", "gpt-4o")
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`
	MaxTurns    int     `mapstructure:"max_turns" json:"max_turns"` // tool-loop rounds per generate call

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Conversation history configuration
	MaxHistoryMessages int32 `mapstructure:"max_history_messages" json:"max_history_messages"`

	// Postgres connection settings; the DSN builders live in storage.go
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Knowledge retrieval configuration
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	RetrievalTopK int    `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`

	// Serve mode configuration (see server.go)
	Server ServerConfig `mapstructure:"server" json:"server"`

	// External capability circuit breaker (see server.go)
	Breaker BreakerConfig `mapstructure:"breaker" json:"breaker"`

	// Web fetching and URL ingestion (see server.go)
	WebScraper WebScraperConfig `mapstructure:"web_scraper" json:"web_scraper"`

	// Trace export (see server.go)
	Telemetry TelemetryConfig `mapstructure:"telemetry" json:"telemetry"`

	// Agent roster (see agents.go)
	Agents       []AgentSpec `mapstructure:"agents" json:"agents"`
	DefaultAgent string      `mapstructure:"default_agent" json:"default_agent"`

	// MCP server declarations and filtering (see mcp.go)
	MCP        MCPConfig            `mapstructure:"mcp" json:"mcp"`
	MCPServers map[string]MCPServer `mapstructure:"mcp_servers" json:"mcp_servers"`
}

// Dir returns the strand configuration directory (~/.strand), creating it
// with 0750 permissions if it does not exist.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting user home directory: %w", err)
	}

	dir := filepath.Join(home, ".strand")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}

// Load reads configuration in priority order: environment variables win
// over the config file, which wins over defaults.
func Load() (*Config, error) {
	configDir, err := Dir()
	if err != nil {
		return nil, err
	}

	// Configure Viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	// Set default values
	setDefaults()

	// Bind environment variables
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file just means defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.applyDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Reject bad config here, before anything consumes it.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults seeds viper with the baseline values.
func setDefaults() {
	// Model defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 2048)
	viper.SetDefault("max_turns", 5)
	viper.SetDefault("max_history_messages", DefaultMaxHistoryMessages)

	// Ollama defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// PostgreSQL defaults for a local dev database
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "strand")
	viper.SetDefault("postgres_password", "strand_dev_password")
	viper.SetDefault("postgres_db_name", "strand")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Retrieval defaults
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("retrieval_top_k", 5)

	// Serve mode defaults
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.trust_proxy", false)
	viper.SetDefault("server.rate_per_minute", 60)
	viper.SetDefault("server.rate_burst", 8)

	// Capability breaker defaults
	viper.SetDefault("breaker.failure_threshold", 3)
	viper.SetDefault("breaker.cooldown_seconds", 300)

	// MCP defaults
	viper.SetDefault("mcp.timeout", 15)

	// WebScraper defaults
	viper.SetDefault("web_scraper.parallelism", 2)
	viper.SetDefault("web_scraper.delay_ms", 1000)
	viper.SetDefault("web_scraper.timeout_ms", 30000)

	// Telemetry defaults
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.endpoint", "localhost:4318")
	viper.SetDefault("telemetry.service_name", "strand")
	viper.SetDefault("telemetry.environment", "dev")
}

// bindEnvVariables binds environment variable overrides explicitly.
// Model API keys are NOT bound here:
//   - GEMINI_API_KEY / GOOGLE_API_KEY are read directly by the Genkit
//     googlegenai plugin; their presence is checked in cfg.Validate()
//   - OPENAI_API_KEY is read directly by the Genkit OpenAI plugin
//   - DATABASE_URL is parsed separately in applyDatabaseURL()
func bindEnvVariables() {
	// BindEnv only fails on an empty key, so a panic here is a typo in
	// this function, not a runtime condition.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	// Model provider overrides
	mustBind("provider", "STRAND_PROVIDER")
	mustBind("model_name", "STRAND_MODEL_NAME")
	mustBind("embedder_model", "STRAND_EMBEDDER_MODEL")
	mustBind("ollama_host", "STRAND_OLLAMA_HOST")

	// Roster override
	mustBind("default_agent", "STRAND_DEFAULT_AGENT")

	// Serve mode
	mustBind("server.addr", "STRAND_SERVER_ADDR")
	mustBind("server.cors_origins", "STRAND_CORS_ORIGINS") // space-separated list
	mustBind("server.trust_proxy", "STRAND_TRUST_PROXY")

	// Standard OpenTelemetry collector override
	mustBind("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) cannot collide with substrings of real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 characters or fewer are fully masked; longer secrets keep the
// first and last 2 characters for debug utility.
//
// The masking guards against secrets landing in logs, nothing more.
// A compromised log still means rotating the secret.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	prefix := make([]byte, 2)
	suffix := make([]byte, 2)
	copy(prefix, s[:2])
	copy(suffix, s[len(s)-2:])
	return string(prefix) + "<" + maskedValue + ">" + string(suffix)
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//   - MCPServers[*].Env values (via MCPServer.MarshalJSON)
//
// When adding new sensitive fields, update this method or the nested
// struct's MarshalJSON; TestConfigMarshalJSONMasksSecrets catches misses.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified name of the default model.
func (c *Config) FullModelName() string {
	return c.QualifyModel(c.ModelName)
}

// QualifyModel returns the provider-qualified form of a model name.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3", "openai/gpt-4o".
// Names already containing a "/" are returned as-is.
func (c *Config) QualifyModel(name string) string {
	if strings.Contains(name, "/") {
		return name
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + name
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + name
	default:
		return ProviderGoogleAI + "/" + name
	}
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
