package config

import (
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"os"
	"slices"
)

// Validate checks every configuration value and returns the sentinel
// error for the first violation it finds.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Provider and credential validation
	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required for provider %q\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey, c.Provider)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required for provider %q",
				ErrMissingAPIKey, c.Provider)
		}
	case ProviderOllama:
		if err := validateOllamaHost(c.OllamaHost); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q is not one of %v", ErrInvalidProvider, c.Provider,
			[]string{ProviderGemini, ProviderGoogleAI, ProviderOllama, ProviderOpenAI})
	}

	// 2. Model configuration validation
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// The Gemini API accepts temperatures in [0.0, 2.0].
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	// Upper bound is the Gemini 2.5 context window.
	if c.MaxTokens < 1 || c.MaxTokens > 2097152 {
		return fmt.Errorf("%w: must be between 1 and 2,097,152, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.MaxTurns < 1 || c.MaxTurns > 32 {
		return fmt.Errorf("%w: must be between 1 and 32, got %d", ErrInvalidMaxTurns, c.MaxTurns)
	}

	// 3. Retrieval configuration validation
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	if c.RetrievalTopK < 1 || c.RetrievalTopK > 20 {
		return fmt.Errorf("%w: must be between 1 and 20, got %d", ErrInvalidRetrievalTopK, c.RetrievalTopK)
	}

	// 4. PostgreSQL configuration validation
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set in config.yaml",
			ErrInvalidPostgresPassword)
	}

	// Warn on the default dev password, but don't block local development.
	if c.PostgresPassword == "strand_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}

	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// 5. PostgreSQL SSL mode validation
	// The deprecated allow/prefer modes are rejected outright.
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if c.PostgresSSLMode == "" {
		return fmt.Errorf("%w: postgres_ssl_mode is empty (should have default from setDefaults)",
			ErrInvalidPostgresSSLMode)
	}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v\n"+
			"Note: 'allow' and 'prefer' modes are deprecated (vulnerable to MITM attacks)",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	// 6. Serve mode validation
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr cannot be empty", ErrInvalidServerAddr)
	}

	if c.Server.RatePerMinute < 0 {
		return fmt.Errorf("%w: rate_per_minute cannot be negative, got %d", ErrInvalidRateLimit, c.Server.RatePerMinute)
	}
	if c.Server.RateBurst < 0 {
		return fmt.Errorf("%w: rate_burst cannot be negative, got %d", ErrInvalidRateLimit, c.Server.RateBurst)
	}

	// 7. Capability breaker validation
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("%w: failure_threshold must be at least 1, got %d",
			ErrInvalidBreaker, c.Breaker.FailureThreshold)
	}
	if c.Breaker.CooldownSeconds < 1 {
		return fmt.Errorf("%w: cooldown_seconds must be at least 1, got %d",
			ErrInvalidBreaker, c.Breaker.CooldownSeconds)
	}

	// 8. MCP server declarations (sorted for deterministic error reporting)
	for _, name := range slices.Sorted(maps.Keys(c.MCPServers)) {
		if err := c.MCPServers[name].validate(name); err != nil {
			return err
		}
	}

	// 9. Agent roster validation
	if err := c.validateAgents(); err != nil {
		return err
	}

	return nil
}

// validateOllamaHost checks that the Ollama endpoint is a usable http(s) URL.
func validateOllamaHost(host string) error {
	if host == "" {
		return fmt.Errorf("%w: ollama_host cannot be empty", ErrInvalidOllamaHost)
	}
	u, err := url.Parse(host)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q must be an http(s) URL", ErrInvalidOllamaHost, host)
	}
	return nil
}

// NormalizeMaxHistoryMessages clamps the history window to sane bounds.
// Non-positive values fall back to the default.
func NormalizeMaxHistoryMessages(limit int32) int32 {
	if limit <= 0 {
		return DefaultMaxHistoryMessages
	}
	if limit < MinHistoryMessages {
		return MinHistoryMessages
	}
	if limit > MaxAllowedHistoryMessages {
		return MaxAllowedHistoryMessages
	}
	return limit
}
