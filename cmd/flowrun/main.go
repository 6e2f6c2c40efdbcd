package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "flowrun"
	version = "v1.0.0"
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Real-time options and equities flow analytics",
		Version: version,
		Long: `flowrun clusters option prints into flow packets, classifies them,
scores alerts and infers off-exchange equity activity, all off a durable
message bus.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config (defaults apply when empty)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the analytics pipeline",
		Long:  "Consume the input streams, emit packets, hits, alerts and dark inferences until interrupted.",
		RunE:  runPipeline,
	}
	runCmd.Flags().Bool("reset-consumers", false, "Destroy and recreate durable consumer groups before starting")
	runCmd.Flags().String("deliver", "", "Deliver policy for fresh consumer groups (new|all|last|last_per_subject)")
	runCmd.Flags().Bool("migrate", false, "Apply the database schema before starting")

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Serve the read-only monitor endpoints",
		Long:  "Serve /health, /metrics, /packets and /alerts from the columnar store without consuming streams.",
		RunE:  runMonitor,
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(monitorCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
