// Command cortexagent runs the orchestration engine daemon: it wires
// the capability registry, credential store, planner, resolver, and
// HTTP server from one YAML config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/patmakesapps/cortexagent/internal/accounts"
	"github.com/patmakesapps/cortexagent/internal/capability"
	"github.com/patmakesapps/cortexagent/internal/config"
	"github.com/patmakesapps/cortexagent/internal/confirm"
	"github.com/patmakesapps/cortexagent/internal/ltm"
	"github.com/patmakesapps/cortexagent/internal/metrics"
	"github.com/patmakesapps/cortexagent/internal/outcome"
	"github.com/patmakesapps/cortexagent/internal/pipeline"
	"github.com/patmakesapps/cortexagent/internal/planner"
	"github.com/patmakesapps/cortexagent/internal/provider"
	"github.com/patmakesapps/cortexagent/internal/resolver"
	"github.com/patmakesapps/cortexagent/internal/server"
	"github.com/patmakesapps/cortexagent/internal/state"
	"github.com/patmakesapps/cortexagent/internal/version"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("cortexagent exited", zap.Error(err))
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if !cfg.JSON {
		zcfg = zap.NewDevelopmentConfig()
	}
	if level, err := zapcore.ParseLevel(cfg.Level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting", zap.String("version", version.Get().String()))

	db, err := accounts.Open(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	cipher, err := accounts.NewTokenCipher(cfg.Security.TokenSecret)
	if err != nil {
		return err
	}
	store := accounts.NewStore(db, cipher)
	oauth := accounts.NewGoogleOAuth(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURI)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}
	cache := accounts.NewTokenCache(rdb)
	credentials := accounts.NewResolver(store, oauth, cache)

	refresher := accounts.NewRefresher(store, oauth, cache, logger)
	if oauth.Configured() {
		if err := refresher.Start(cfg.Google.RefreshSchedule); err != nil {
			return fmt.Errorf("token refresher: %w", err)
		}
		defer refresher.Stop()
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	var llm provider.Client
	if cfg.Planner.APIKey != "" {
		llm = provider.NewOpenAIClient(cfg.Planner.Model, cfg.Planner.BaseURL, cfg.Planner.APIKey)
	}

	var pl *planner.Planner
	if cfg.Planner.Enabled && llm != nil {
		pl = planner.New(llm, planner.Config{
			Provider:      cfg.Planner.Provider,
			Model:         cfg.Planner.Model,
			MaxSteps:      cfg.Planner.MaxSteps,
			MinRealSteps:  cfg.Planner.MinRealSteps,
			MinConfidence: cfg.Planner.MinConfidence,
		}, logger)
	}

	classifier := confirm.New()
	if cfg.Confirm.LLMEnabled && llm != nil {
		classifier = confirm.New(confirm.WithLLM(llm, cfg.Confirm.MinConfidence))
	}

	var memory *ltm.Client
	if cfg.Memory.BaseURL != "" {
		memory, err = ltm.New(cfg.Memory.BaseURL, cfg.Memory.APIKey)
		if err != nil {
			return fmt.Errorf("memory client: %w", err)
		}
	}

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	pending := state.NewPendingStore()
	threads := state.NewThreadStore()
	executor := pipeline.NewExecutor(registry, pending, threads, logger, m)
	res := resolver.New(pending, threads, pl, executor, registry, classifier, memory, logger, m, resolver.Config{
		ShortTermLimit: cfg.Memory.ShortTermLimit,
	})

	srv := server.New(server.Deps{
		Resolver:      res,
		Credentials:   credentials,
		Accounts:      store,
		OAuth:         oauth,
		TokenCache:    cache,
		PrepareScript: cfg.Prepare.Script,
		Gatherer:      promReg,
		Logger:        logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Listen))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeoutDuration())
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func buildRegistry(cfg *config.Config) (*capability.Registry, error) {
	registry := capability.NewRegistry()
	defs := []capability.Definition{
		{
			Adapter:     capability.NewGmailAdapter(),
			Label:       outcome.Label(outcome.ActionGmail),
			Description: "Read the inbox, draft replies or new messages, and send mail.",
			Operations:  []string{"read", "draft_new", "send"},
		},
		{
			Adapter:     capability.NewCalendarAdapter(),
			Label:       outcome.Label(outcome.ActionCalendar),
			Description: "List upcoming events and create new ones from natural language.",
			Operations:  []string{"read", "create"},
		},
		{
			Adapter:     capability.NewDriveAdapter(),
			Label:       outcome.Label(outcome.ActionDrive),
			Description: "Search files and list recent documents.",
			Operations:  []string{"search", "list_recent"},
		},
		{
			Adapter:     capability.NewWebSearchAdapter(cfg.Search.APIKey),
			Label:       outcome.Label(outcome.ActionWebSearch),
			Description: "Search the public web for current information.",
			Operations:  []string{"search"},
		},
	}
	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
