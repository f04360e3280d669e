package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"caissepro/backend/internal/cache"
	"caissepro/backend/internal/config"
	"caissepro/backend/internal/httpapi"
	"caissepro/backend/internal/logger"
	"caissepro/backend/internal/promotion"
	"caissepro/backend/internal/sequence"
	"caissepro/backend/internal/service"
	"caissepro/backend/internal/store"
	"caissepro/backend/internal/store/memory"
	pgstore "caissepro/backend/internal/store/postgres"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "caissepro: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "caissepro",
		Short:         "Point-of-sale backend: catalog, sales, payments and invoices",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logCfg := logger.DefaultConfig()
			logCfg.Level = cfg.LogLevel
			logCfg.Format = cfg.LogFormat
			return logger.Setup(logCfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), config.Load())
		},
	}

	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), config.Load())
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	log := logger.WithComponent("server")

	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var (
		repo store.Repository
		mem  *memory.Store
	)
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(startCtx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable (%w) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		closers = append(closers, pg.Close)
		if cfg.RunMigrations {
			if err := pgstore.MigrateUp(pg.DB()); err != nil {
				_ = pg.Close()
				return fmt.Errorf("apply migrations: %w", err)
			}
			log.Info().Msg("migrations applied")
		}
		repo = pg
		log.Info().Msg("repository: postgres")
	} else {
		mem = memory.NewSeeded()
		repo = mem
		log.Warn().Msg("repository: in-memory, data is lost on restart")
	}

	promoCache := cache.PromotionCache(cache.NoopPromotionCache{})
	counter := sequence.Counter(sequence.CounterFunc(repo.NextSequence))
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisCache := cache.NewRedisPromotionCache(client)
		if err := redisCache.Ping(startCtx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, promotions are not cached")
			_ = redisCache.Close()
		} else {
			promoCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info().Msg("cache: redis")
			// Without postgres, redis keeps numbering past a restart so
			// receipts already printed are never reissued.
			if mem != nil {
				redisCounter := sequence.NewRedisCounter(client)
				if err := alignCounters(startCtx, redisCounter, mem); err != nil {
					log.Warn().Err(err).Msg("could not align redis counters, using in-memory counters")
				} else {
					counter = redisCounter
					log.Info().Msg("sequence counters: redis")
				}
			}
		}
	}

	engine := promotion.NewEngine(promoCache, cfg.PromotionCacheTTL, service.PromotionLookup(repo))
	svc := service.New(repo, engine, sequence.NewGenerator(counter))
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		ExposeMetrics: cfg.MetricsEnabled,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Address()).Str("version", version).Msg("caissepro backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	var runErr error
	select {
	case <-sig:
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
	return runErr
}

// alignCounters raises the redis counters past the codes the seeded store
// already holds.
func alignCounters(ctx context.Context, counter *sequence.RedisCounter, mem *memory.Store) error {
	for _, scope := range sequence.Scopes {
		if _, err := counter.Raise(ctx, scope, mem.Sequence(scope)); err != nil {
			return fmt.Errorf("raise %s: %w", scope, err)
		}
	}
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
