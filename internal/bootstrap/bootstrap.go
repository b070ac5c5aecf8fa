package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	natsaudit "github.com/mkarpenko/grounded-chat/internal/infrastructure/audit/nats"
	"github.com/mkarpenko/grounded-chat/internal/infrastructure/authz"
	"github.com/mkarpenko/grounded-chat/internal/infrastructure/llm/openai"
	"github.com/mkarpenko/grounded-chat/internal/infrastructure/prompts"
	"github.com/mkarpenko/grounded-chat/internal/infrastructure/repository/postgres"
	"github.com/mkarpenko/grounded-chat/internal/infrastructure/resilience"
	"github.com/mkarpenko/grounded-chat/internal/infrastructure/search/azsearch"
	"github.com/mkarpenko/grounded-chat/internal/infrastructure/tokens"

	"github.com/mkarpenko/grounded-chat/internal/config"
	"github.com/mkarpenko/grounded-chat/internal/core/ports"
	"github.com/mkarpenko/grounded-chat/internal/core/usecase"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Pipeline ports.ChatPipeline
	Sessions *postgres.SessionRepository
	Traces   *postgres.TraceRepository
	Audit    *natsaudit.Audit

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sessions := postgres.NewSessionRepository(db)
	if err := sessions.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	traces := postgres.NewTraceRepository(db)

	executor := resilience.NewExecutor(resilience.DefaultConfig(), logger)

	audit, err := natsaudit.NewWithOptions(cfg.NATSURL, cfg.NATSTraceSubject, natsaudit.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init trace audit: %w", err)
	}

	llmClient := openai.New(openai.Config{
		APIKey:          cfg.OpenAIAPIKey,
		BaseURL:         cfg.OpenAIBaseURL,
		EmbedModel:      cfg.EmbedModel,
		EmbedDimensions: cfg.EmbedDimensions,
		VectorFields:    cfg.SearchVectorField,
		VectorKNearest:  cfg.SearchVectorKNearest,
	}, executor)

	searchClient := azsearch.New(azsearch.Config{
		Endpoint:              cfg.SearchEndpoint,
		Index:                 cfg.SearchIndex,
		APIKey:                cfg.SearchAPIKey,
		APIVersion:            cfg.SearchAPIVersion,
		SemanticConfiguration: cfg.SearchSemanticConfig,
		ContentField:          cfg.SearchContentField,
		SourcePageField:       cfg.SearchSourceField,
	}, executor)

	accountant := tokens.NewAccountant()

	pipeline := usecase.NewChatPipelineUseCase(
		llmClient,
		llmClient,
		searchClient,
		prompts.NewRenderer(),
		accountant,
		accountant,
		authz.NewFilterBuilder(authz.Config{
			UseOidFilter:    cfg.UseOidSecurityFilter,
			UseGroupsFilter: cfg.UseGroupsSecurityFilter,
		}),
		usecase.Config{
			ChatModel:         cfg.ChatModel,
			Deployment:        cfg.ChatDeployment,
			StrictModelLimits: cfg.StrictModelLimits,
		},
	)

	return &App{
		Config: cfg,
		Logger: logger,

		Pipeline: pipeline,
		Sessions: sessions,
		Traces:   traces,
		Audit:    audit,

		closeFn: func() {
			audit.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
