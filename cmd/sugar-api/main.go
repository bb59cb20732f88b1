package main

import (
	"context"
	"log"
	"net/http"

	"github.com/spf13/cobra"

	chatadapter "github.com/sugarworks/sugar-agent/internal/adapters/chat"
	httpadapter "github.com/sugarworks/sugar-agent/internal/adapters/http"
	"github.com/sugarworks/sugar-agent/internal/adapters/llm"
	firestorestore "github.com/sugarworks/sugar-agent/internal/adapters/storage/firestore"
	memstore "github.com/sugarworks/sugar-agent/internal/adapters/storage/memory"
	"github.com/sugarworks/sugar-agent/internal/app/chat"
	"github.com/sugarworks/sugar-agent/internal/app/contextfetch"
	"github.com/sugarworks/sugar-agent/internal/app/dispatch"
	"github.com/sugarworks/sugar-agent/internal/app/levels"
	"github.com/sugarworks/sugar-agent/internal/app/progression"
	"github.com/sugarworks/sugar-agent/internal/app/usagelog"
	"github.com/sugarworks/sugar-agent/internal/cache"
	"github.com/sugarworks/sugar-agent/internal/config"
	"github.com/sugarworks/sugar-agent/internal/domain"
	"github.com/sugarworks/sugar-agent/internal/observability"
)

func main() {
	root := &cobra.Command{
		Use:   "sugar-api",
		Short: "Conversational companion backend",
	}
	root.AddCommand(serveCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading configuration: %v", err)
	}
	logger := observability.Logger()

	// Storage: Firestore or Memory
	var store domain.DocumentStore
	switch cfg.StorageBackend {
	case "firestore":
		logger.Info("using Firestore storage", "project", cfg.GCPProjectID)
		fsStore, err := firestorestore.NewStore(ctx, cfg.GCPProjectID, cfg.GCPCredentialsFile)
		if err != nil {
			log.Fatalf("error initializing Firestore store: %v", err)
		}
		defer fsStore.Close()
		store = fsStore
	default:
		logger.Info("using in-memory storage")
		store = memstore.NewStore()
	}

	// Inference: gateway, Vertex, or mock
	var inference domain.InferenceClient
	switch cfg.LLMBackend {
	case "gateway":
		logger.Info("using gateway inference backend", "base_url", cfg.LLMBaseURL)
		inference = llm.NewGatewayClient(cfg.LLMBaseURL, cfg.LLMAPIKey)
	case "vertex":
		logger.Info("using Vertex inference backend", "model", cfg.ModelName)
		inference, err = llm.NewVertexClient(ctx, cfg.GCPProjectID, cfg.GCPLocation, cfg.ModelName)
		if err != nil {
			log.Fatalf("error initializing Vertex client: %v", err)
		}
	default:
		logger.Info("using mock inference backend")
		inference = llm.NewMockClient()
	}

	// Chat transport: REST or memory
	var transport domain.ChatTransport
	switch cfg.ChatBackend {
	case "rest":
		logger.Info("using REST chat transport", "base_url", cfg.ChatBaseURL)
		transport = chatadapter.NewRESTTransport(cfg.ChatBaseURL, cfg.ChatAPIKey)
	default:
		logger.Info("using in-memory chat transport")
		transport = chatadapter.NewMemoryTransport()
	}

	sessionCache := cache.New(cache.Options{
		SessionSize:   cfg.SessionCacheSize,
		SessionTTL:    cfg.SessionCacheTTL,
		CharacterSize: cfg.CharacterCacheSize,
		CharacterTTL:  cfg.CharacterCacheTTL,
		DedupSize:     cfg.DedupCacheSize,
		DedupTTL:      cfg.DedupTTL,
		WindowLimit:   cfg.HistoryLimit,
	})

	reporter, err := cache.StartReporter(sessionCache, cfg.CacheReportEach.String(), logger)
	if err != nil {
		log.Fatalf("error starting cache reporter: %v", err)
	}
	defer reporter.Stop()

	fetcher := contextfetch.New(sessionCache, store, transport, cfg.BotPrefix, cfg.HistoryLimit)
	engine := progression.NewEngine(store)
	usage := usagelog.New(store)

	orchestrator := chat.NewOrchestrator(fetcher, engine, inference, transport, chat.Options{
		PollInterval:   cfg.PollInterval,
		PollCeiling:    cfg.PollCeiling,
		TypingInterval: cfg.TypingInterval,
		BotPrefix:      cfg.BotPrefix,
	})

	registry := dispatch.NewRegistry()
	registry.Register(chat.NewPlugin(orchestrator, fetcher, sessionCache, store, transport, usage, cfg.BotPrefix))
	registry.Register(levels.NewPlugin(fetcher, inference, transport, cfg.BotPrefix, cfg.PollInterval, cfg.PollCeiling))

	handler := httpadapter.NewServer(registry, sessionCache, cfg.APIKey)

	addr := ":" + cfg.Port
	logger.Info("sugar API listening", "addr", addr)
	return http.ListenAndServe(addr, handler)
}
