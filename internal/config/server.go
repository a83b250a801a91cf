package config

// ServerConfig holds HTTP serve mode settings.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `mapstructure:"addr" json:"addr"`
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	// TrustProxy trusts X-Real-IP/X-Forwarded-For headers
	// (set true behind a reverse proxy).
	TrustProxy bool `mapstructure:"trust_proxy" json:"trust_proxy"`
	// RatePerMinute caps turn admissions per minute; 0 disables limiting.
	RatePerMinute int `mapstructure:"rate_per_minute" json:"rate_per_minute"`
	// RateBurst is the admission burst size (default 8).
	RateBurst int `mapstructure:"rate_burst" json:"rate_burst"`
}

// BreakerConfig tunes the circuit breaker that guards external capability
// connections across turns.
type BreakerConfig struct {
	// FailureThreshold opens the circuit after this many consecutive
	// connection failures (default 3).
	FailureThreshold int `mapstructure:"failure_threshold" json:"failure_threshold"`
	// CooldownSeconds is how long an open circuit rejects connection
	// attempts before allowing a probe (default 300).
	CooldownSeconds int `mapstructure:"cooldown_seconds" json:"cooldown_seconds"`
}

// WebScraperConfig holds settings for web page fetching and URL ingestion.
type WebScraperConfig struct {
	// Parallelism is max concurrent requests per domain (default: 2)
	Parallelism int `mapstructure:"parallelism" json:"parallelism"`
	// DelayMs is delay between requests in milliseconds (default: 1000)
	DelayMs int `mapstructure:"delay_ms" json:"delay_ms"`
	// TimeoutMs is request timeout in milliseconds (default: 30000)
	TimeoutMs int `mapstructure:"timeout_ms" json:"timeout_ms"`
}

// TelemetryConfig holds OpenTelemetry trace export settings.
//
// Traces are sent to an OTLP HTTP collector; see internal/observability for
// the exporter setup.
type TelemetryConfig struct {
	// Enabled turns trace export on (default: false).
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// Endpoint is the OTLP HTTP collector host:port (default: localhost:4318).
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
	// ServiceName tags exported spans (default: strand).
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	// Environment is the deployment environment tag (default: dev).
	Environment string `mapstructure:"environment" json:"environment"`
}
