package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/strand-ai/strand/db"
	"github.com/strand-ai/strand/internal/agent"
	"github.com/strand-ai/strand/internal/capability"
	"github.com/strand-ai/strand/internal/config"
	"github.com/strand-ai/strand/internal/database"
	"github.com/strand-ai/strand/internal/knowledge"
	"github.com/strand-ai/strand/internal/log"
	"github.com/strand-ai/strand/internal/observability"
	"github.com/strand-ai/strand/internal/session"
	"github.com/strand-ai/strand/internal/tools"
	"github.com/strand-ai/strand/internal/turn"
)

// Setup builds the application. On error everything already acquired is
// released; on success the caller owns the App and must Close it.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			_ = a.Close()
		}
	}()

	// Tracing first: the provider must exist before genkit starts
	// creating spans.
	a.tracingShutdown = provideTracing(ctx, cfg, logger)

	pool, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, embedder, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	a.Knowledge = knowledge.New(database.New(pool), embedder, logger)
	a.Retriever = knowledge.NewRetriever(a.Knowledge, int32(cfg.RetrievalTopK), logger)
	a.Sessions = session.NewStore(database.New(pool), pool, logger)

	engine, err := provideEngine(g, cfg, a.Retriever, logger)
	if err != nil {
		return nil, err
	}
	a.Engine = engine

	logger.Info("application ready",
		"provider", cfg.Provider,
		"model", cfg.FullModelName(),
		"agents", len(cfg.Agents),
	)
	return a, nil
}

// provideTracing starts OTLP export when telemetry is enabled. The
// returned shutdown is never nil.
func provideTracing(ctx context.Context, cfg *config.Config, logger log.Logger) func(context.Context) error {
	if !cfg.Telemetry.Enabled {
		return func(context.Context) error { return nil }
	}
	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Telemetry.Environment,
	}, logger)
	if err != nil {
		logger.Warn("tracing setup failed, continuing untraced", "error", err)
		return func(context.Context) error { return nil }
	}
	return shutdown
}

// providePool migrates the schema and opens the tuned connection pool.
func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	pool, err := database.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return pool, nil
}

// provideGenkit initializes genkit with the configured model provider and
// returns the embedder the knowledge store uses. Gemini needs no explicit
// registration, ollama registers its chat model and embedder by hand, and
// openai registers everything during Init.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, ai.Embedder, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	var (
		g        *genkit.Genkit
		embedder ai.Embedder
	)
	switch provider {
	case config.ProviderOllama:
		plugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(plugin))
		if g == nil {
			return nil, nil, errors.New("initialize genkit with ollama provider")
		}
		plugin.DefineModel(g, ollama.ModelDefinition{Name: cfg.ModelName, Type: "chat"}, nil)
		plugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		embedder = ollama.Embedder(g, cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, nil, errors.New("initialize genkit with openai provider")
		}
		embedder = genkit.LookupEmbedder(g, api.NewName(config.ProviderOpenAI, cfg.EmbedderModel))

	case config.ProviderGemini, config.ProviderGoogleAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, errors.New("initialize genkit with gemini provider")
		}
		embedder = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)

	default:
		return nil, nil, fmt.Errorf("unknown provider %q", provider)
	}

	if embedder == nil {
		return nil, nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, provider)
	}

	logger.Info("genkit initialized", "provider", provider, "model", cfg.ModelName)
	return g, embedder, nil
}

// provideBuiltins registers the builtin toolset and returns the genkit
// tool references agents resolve by name.
func provideBuiltins(g *genkit.Genkit, cfg *config.Config, logger log.Logger) ([]ai.Tool, error) {
	var builtins []ai.Tool

	clock, err := tools.NewClock(logger)
	if err != nil {
		return nil, fmt.Errorf("create clock tool: %w", err)
	}
	clockTools, err := tools.RegisterClock(g, clock)
	if err != nil {
		return nil, fmt.Errorf("register clock tool: %w", err)
	}
	builtins = append(builtins, clockTools...)

	network, err := tools.NewNetworkTools(tools.NetworkConfig{
		FetchParallelism: cfg.WebScraper.Parallelism,
		FetchDelay:       time.Duration(cfg.WebScraper.DelayMs) * time.Millisecond,
		FetchTimeout:     time.Duration(cfg.WebScraper.TimeoutMs) * time.Millisecond,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create network tools: %w", err)
	}
	networkTools, err := tools.RegisterNetwork(g, network)
	if err != nil {
		return nil, fmt.Errorf("register network tools: %w", err)
	}
	builtins = append(builtins, networkTools...)

	logger.Debug("builtin tools registered", "count", len(builtins))
	return builtins, nil
}

// provideEngine wires the turn engine from its parts.
func provideEngine(g *genkit.Genkit, cfg *config.Config, retriever *knowledge.Retriever, logger log.Logger) (*turn.Engine, error) {
	builtins, err := provideBuiltins(g, cfg, logger)
	if err != nil {
		return nil, err
	}

	factory, err := agent.NewFactory(g, builtins, logger)
	if err != nil {
		return nil, fmt.Errorf("create agent factory: %w", err)
	}
	runner, err := agent.NewRunner(g, logger)
	if err != nil {
		return nil, fmt.Errorf("create runner: %w", err)
	}
	generator, err := agent.NewGenerator(g, logger)
	if err != nil {
		return nil, fmt.Errorf("create fallback generator: %w", err)
	}

	manager := capability.NewManager(capability.ManagerConfig{
		Breaker: capability.NewBreaker(capability.BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			Cooldown:         time.Duration(cfg.Breaker.CooldownSeconds) * time.Second,
		}),
		Logger: logger,
	})

	engine, err := turn.NewEngine(turn.Config{
		Retriever:    retriever,
		Factory:      factory,
		Backend:      runner,
		Fallback:     generator,
		Capabilities: manager,
		Limiter:      provideLimiter(cfg.Server),
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create turn engine: %w", err)
	}
	return engine, nil
}

// provideLimiter maps the per-minute admission rate onto a token bucket.
// Zero disables limiting entirely rather than blocking every turn.
func provideLimiter(cfg config.ServerConfig) *rate.Limiter {
	if cfg.RatePerMinute <= 0 {
		return nil
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 8
	}
	return rate.NewLimiter(rate.Limit(cfg.RatePerMinute)/60, burst)
}
