package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/flowrun/internal/config"
	httpiface "github.com/sawpanic/flowrun/internal/interfaces/http"
	"github.com/sawpanic/flowrun/internal/metrics"
	"github.com/sawpanic/flowrun/internal/persistence"
	"github.com/sawpanic/flowrun/internal/persistence/postgres"
)

// runMonitor serves the read surface only: no streams are consumed.
func runMonitor(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager, err := postgres.NewManager(cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer manager.Close()

	var repos *persistence.Repository
	var storeHealth persistence.Health
	if manager.IsEnabled() {
		repos = manager.Repository()
		storeHealth = manager
	} else {
		log.Warn().Msg("database disabled, monitor will serve empty reads")
		mem := persistence.NewMemoryStore()
		repos = mem.Repository()
		storeHealth = mem
	}

	server := httpiface.NewServer(cfg.Monitor, repos, storeHealth, nil, metrics.NewRegistry())

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
