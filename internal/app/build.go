package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ent0n29/mnemo/internal/config"
	"github.com/ent0n29/mnemo/internal/engine"
	"github.com/ent0n29/mnemo/internal/history"
	"github.com/ent0n29/mnemo/internal/httpapi"
	"github.com/ent0n29/mnemo/internal/memory"
	"github.com/ent0n29/mnemo/internal/observability"
	"github.com/ent0n29/mnemo/internal/provider"
	"github.com/ent0n29/mnemo/internal/ranker"
	"github.com/ent0n29/mnemo/internal/telegram"
)

type BuildResult struct {
	Config  config.Config
	API     *httpapi.Server
	Engine  *engine.Engine
	Metrics *observability.Metrics

	// Poller is nil unless a Telegram bot token is configured.
	Poller *telegram.Poller

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := memory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("message store init failed: %w", err)
	}

	embedder, completer, providerName, err := resolveProviders(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Printf("provider: %s", providerName)

	eng := engine.New(
		store,
		ranker.New(store, embedder),
		history.New(store),
		embedder,
		completer,
		metrics,
		cfg.RetrievalTopK,
	)

	api := httpapi.New(cfg, eng, metrics)

	var poller *telegram.Poller
	if strings.TrimSpace(cfg.TelegramToken) != "" {
		// The HTTP client must outlive a full long-poll cycle.
		client := telegram.NewClient(cfg.TelegramAPIBase, cfg.TelegramToken, cfg.TelegramPollTimeout+10*time.Second)
		poller = telegram.NewPoller(client, eng, cfg.TelegramPollTimeout)
	}

	cleanup := func() error {
		return store.Close()
	}

	return &BuildResult{
		Config:  cfg,
		API:     api,
		Engine:  eng,
		Metrics: metrics,
		Poller:  poller,
		Cleanup: cleanup,
	}, nil
}

// resolveProviders picks the embedding/completion backend per PROVIDER_MODE:
// openai requires a key, mock is always available, auto prefers openai
// when a key is set.
func resolveProviders(cfg config.Config) (provider.Embedder, provider.Completer, string, error) {
	openAI := func() (provider.Embedder, provider.Completer, string) {
		p := provider.NewOpenAIProvider(provider.OpenAIConfig{
			APIKey:         cfg.OpenAIAPIKey,
			ChatModel:      cfg.OpenAIChatModel,
			EmbeddingModel: cfg.OpenAIEmbeddingModel,
			EmbeddingDim:   cfg.EmbeddingDim,
		})
		return p, p, "openai"
	}
	mock := func() (provider.Embedder, provider.Completer, string) {
		return provider.NewMockEmbedder(cfg.EmbeddingDim), provider.NewMockCompleter(), "mock"
	}

	switch cfg.ProviderMode {
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, nil, "", fmt.Errorf("PROVIDER_MODE=openai but OPENAI_API_KEY is not set")
		}
		e, c, name := openAI()
		return e, c, name, nil
	case "mock":
		e, c, name := mock()
		return e, c, name, nil
	default: // auto
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			e, c, name := openAI()
			return e, c, name, nil
		}
		e, c, name := mock()
		return e, c, name + " (no OpenAI key set)", nil
	}
}
