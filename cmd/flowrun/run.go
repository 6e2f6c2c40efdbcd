package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/flowrun/internal/config"
	httpiface "github.com/sawpanic/flowrun/internal/interfaces/http"
	"github.com/sawpanic/flowrun/internal/metrics"
	"github.com/sawpanic/flowrun/internal/persistence"
	"github.com/sawpanic/flowrun/internal/persistence/postgres"
	"github.com/sawpanic/flowrun/internal/pipeline"
	"github.com/sawpanic/flowrun/internal/stats"
	"github.com/sawpanic/flowrun/internal/stream"
)

// runPipeline wires the full process: bus, store, rolling baselines,
// pipeline and monitor server, torn down on SIGINT/SIGTERM.
func runPipeline(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if reset, _ := cmd.Flags().GetBool("reset-consumers"); reset {
		cfg.Bus.ResetConsumers = true
	}
	if deliver, _ := cmd.Flags().GetString("deliver"); deliver != "" {
		if !stream.DeliverPolicy(deliver).Valid() {
			return fmt.Errorf("invalid deliver policy %q", deliver)
		}
		cfg.Bus.DeliverPolicy = deliver
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := stream.NewRedisBus(cfg.RedisBusConfig())
	if err := bus.Start(ctx); err != nil {
		return fmt.Errorf("bus start: %w", err)
	}
	defer bus.Stop(context.Background())

	manager, err := postgres.NewManager(cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer manager.Close()

	var repos *persistence.Repository
	var storeHealth persistence.Health
	if manager.IsEnabled() {
		if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
			if err := manager.Migrate(ctx); err != nil {
				return err
			}
			log.Info().Msg("database schema applied")
		}
		repos = manager.Repository()
		storeHealth = manager
	} else {
		log.Warn().Msg("database disabled, using in-process store")
		mem := persistence.NewMemoryStore()
		repos = mem.Repository()
		storeHealth = mem
	}

	var rolling stats.RollingStore
	if cfg.Rolling.UseRedis {
		store := stats.NewRedisStore(cfg.Rolling.RedisAddr, "", cfg.Rolling.RedisDB, cfg.Rolling.Window, cfg.Rolling.TTL)
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("rolling store ping: %w", err)
		}
		rolling = store
	} else {
		rolling = stats.NewMemoryStore(cfg.Rolling.Window, cfg.Rolling.TTL)
	}
	defer rolling.Close()

	reg := metrics.NewRegistry()

	pipeCfg := pipeline.Config{
		WindowMs:            cfg.Pipeline.WindowMs,
		NBBOMaxAgeMs:        cfg.Pipeline.NBBOMaxAgeMs,
		EquityQuoteMaxAgeMs: cfg.Pipeline.EquityQuoteMaxAgeMs,
		CandleIntervalMs:    cfg.Pipeline.CandleIntervalMs,
		StructureWindowMs:   cfg.Pipeline.StructureWindowMs,
		StructureCapacity:   cfg.Pipeline.StructureCapacity,
		ConsumerGroup:       cfg.Pipeline.ConsumerGroup,
		Classify:            cfg.ClassifierConfig(),
		Dark:                cfg.DarkEngineConfig(),
		Retry:               stream.DefaultRetryConfig(),
	}
	pipe := pipeline.New(pipeCfg, bus, repos, rolling, reg)
	server := httpiface.NewServer(cfg.Monitor, repos, storeHealth, bus, reg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pipe.Run(gctx)
	})
	g.Go(func() error {
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	log.Info().Str("group", cfg.Pipeline.ConsumerGroup).Msg("pipeline running")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("pipeline stopped")
	return nil
}
