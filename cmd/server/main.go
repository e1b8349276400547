package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/atmx/edge-trader/internal/alpha"
	"github.com/atmx/edge-trader/internal/analytics"
	"github.com/atmx/edge-trader/internal/api"
	"github.com/atmx/edge-trader/internal/bot"
	"github.com/atmx/edge-trader/internal/config"
	"github.com/atmx/edge-trader/internal/execution"
	"github.com/atmx/edge-trader/internal/feed"
	"github.com/atmx/edge-trader/internal/kalshi"
	"github.com/atmx/edge-trader/internal/market"
	"github.com/atmx/edge-trader/internal/model"
	"github.com/atmx/edge-trader/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath, envPath string
	root := &cobra.Command{
		Use:          "edge-trader",
		Short:        "15-minute BTC binary contract trader",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional.
			if envPath != "" {
				_ = godotenv.Load(envPath)
			} else {
				_ = godotenv.Load()
			}
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("TRADER_CONFIG"), "YAML config file")
	root.PersistentFlags().StringVar(&envPath, "env", "", ".env file (default ./.env)")

	serve := serveCmd(&configPath)
	root.AddCommand(serve, analyticsCmd(&configPath))
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	return root
}

func serveCmd(configPath *string) *cobra.Command {
	var autostart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the trading bot and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *configPath, autostart)
		},
	}
	cmd.Flags().BoolVar(&autostart, "autostart", os.Getenv("TRADER_AUTOSTART") == "true", "start the trading loop on boot")
	return cmd
}

func analyticsCmd(configPath *string) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Print the analytics report as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			st, _, cleanup, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			tunables := config.NewStore(st, slog.Default())
			if err := tunables.Load(ctx); err != nil {
				return err
			}
			m := model.Mode(mode)
			if mode != "" && !m.Valid() {
				return fmt.Errorf("mode must be paper or live, got %q", mode)
			}
			report, err := analytics.NewEngine(st, tunables).Report(ctx, m)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "paper or live (default both)")
	return cmd
}

func serve(ctx context.Context, configPath string, autostart bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := slog.Default()

	// --- Persistence ---
	st, cached, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	tunables := config.NewStore(st, logger)
	if err := tunables.Load(ctx); err != nil {
		return err
	}

	// --- Price feeds ---
	feeds := make([]alpha.Feed, 0, len(cfg.Alpha.Venues))
	for _, v := range cfg.Alpha.Venues {
		feeds = append(feeds, feed.NewWSFeed(feed.Config{
			Name:      v.Name,
			URL:       v.URL,
			Subscribe: v.Subscribe,
			PriceKey:  v.PriceKey,
		}, logger))
	}
	alphaEngine := alpha.New(feeds, cfg.Alpha.Weights(), alpha.Options{
		LeadVenue:  cfg.Alpha.LeadVenue,
		StaleAfter: cfg.Alpha.StaleAfter,
		Logger:     logger,
	})
	alphaEngine.Start(ctx)

	// --- Venue ---
	var creds *kalshi.Credentials
	if cfg.Kalshi.KeyID != "" {
		creds, err = kalshi.LoadCredentials(cfg.Kalshi.KeyID, cfg.Kalshi.PrivateKeyPath)
		switch {
		case err != nil && cfg.Mode == model.ModeLive:
			return fmt.Errorf("load kalshi credentials: %w", err)
		case err != nil:
			logger.Warn("kalshi credentials unavailable, live mode disabled", "err", err)
			creds = nil
		}
	}
	client := kalshi.NewClient(cfg.Kalshi.BaseURL, creds,
		kalshi.WithTimeout(cfg.Kalshi.Timeout),
		kalshi.WithRetries(cfg.Kalshi.MaxRetries, 500*time.Millisecond),
		kalshi.WithLogger(logger),
	)
	finder := market.NewFinder(client, cfg.SeriesTicker, logger)

	// --- Accounts and executors ---
	now := time.Now().UTC()
	paperBalance := decimal.NewFromFloat(tunables.Snapshot().Float(config.PaperStartingBalance)).Round(2)
	paperLedger, err := bot.LoadLedger(ctx, st, model.ModePaper, paperBalance, now)
	if err != nil {
		return err
	}
	executors := map[model.Mode]*execution.Executor{
		model.ModePaper: execution.NewExecutor(execution.NewPaperBroker(), paperLedger, st, logger),
	}
	if creds != nil {
		liveBalance, err := client.Balance(ctx)
		if err != nil {
			logger.Warn("kalshi balance unavailable, live ledger starts empty unless restored", "err", err)
			liveBalance = decimal.Zero
		}
		liveLedger, err := bot.LoadLedger(ctx, st, model.ModeLive, liveBalance, now)
		if err != nil {
			return err
		}
		broker := execution.NewLiveBroker(client, execution.LiveConfig{
			MaxRetries:   cfg.Kalshi.MaxRetries,
			OrdersPerSec: cfg.Kalshi.OrdersPerSec,
		}, logger)
		executors[model.ModeLive] = execution.NewExecutor(broker, liveLedger, st, logger)
		logger.Info("live trading available", "balance", liveBalance.StringFixed(2))
	}

	// --- Bot ---
	an := analytics.NewEngine(st, tunables)
	b, err := bot.New(bot.Deps{
		Config:    tunables,
		Store:     st,
		Contracts: finder,
		Books:     client,
		Alpha:     alphaEngine,
		Executors: executors,
		Analytics: an,
		Logger:    logger,
	}, bot.Options{Mode: cfg.Mode})
	if err != nil {
		return err
	}
	if cached != nil {
		go publishStatus(ctx, b, cached, logger)
	}

	// --- HTTP ---
	hub := api.NewHub(logger)
	go hub.Run(ctx)
	svc := api.NewService(b, st, tunables, an, hub, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(svc),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("edge-trader listening", "port", cfg.Port, "mode", cfg.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if autostart {
		if err := b.Start(ctx); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	// Graceful shutdown.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 70*time.Second)
	defer cancel()
	logger.Info("shutting down edge-trader...")
	if err := b.Stop(shutdownCtx); err != nil {
		logger.Error("bot stop error", "err", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	logger.Info("edge-trader stopped")
	return nil
}

// openStore connects PostgreSQL, optionally wrapped in the Redis cache,
// or falls back to memory when DATABASE_URL is unset.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, *store.CachedStore, func(), error) {
	var cleanup []func()
	done := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		return store.NewMemoryStore(), nil, done, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, done, fmt.Errorf("database connection failed: %w", err)
	}
	cleanup = append(cleanup, pool.Close)
	pg := store.NewPostgresStore(pool)
	if err := pg.Migrate(ctx); err != nil {
		done()
		return nil, nil, func() {}, fmt.Errorf("migrate: %w", err)
	}
	slog.Info("connected to PostgreSQL")

	if cfg.RedisURL == "" {
		return pg, nil, done, nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		done()
		return nil, nil, func() {}, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	cleanup = append(cleanup, func() { rdb.Close() })
	cs := store.NewCachedStore(pg, rdb, cfg.CacheTTL)
	slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
	return cs, cs, done, nil
}

// publishStatus mirrors bot status to Redis. Only the newest pending
// status is kept so a slow Redis never stalls the cycle.
func publishStatus(ctx context.Context, b *bot.Bot, cs *store.CachedStore, logger *slog.Logger) {
	pending := make(chan bot.Status, 1)
	b.OnStatus(func(s bot.Status) {
		select {
		case <-pending:
		default:
		}
		select {
		case pending <- s:
		default:
		}
	})
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-pending:
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := cs.Publish(pctx, store.StatusChannel, s); err != nil {
				logger.Warn("status publish failed", "err", err)
			}
			cancel()
		}
	}
}
