package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/dealwatch/internal/config"
	"github.com/TobiSchelling/dealwatch/internal/database"
	"github.com/TobiSchelling/dealwatch/internal/logging"
	"github.com/TobiSchelling/dealwatch/internal/pipeline"
	"github.com/TobiSchelling/dealwatch/internal/scheduler"
	"github.com/TobiSchelling/dealwatch/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	dryRun     bool
	cfg        *config.Config
	logger     *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "dealwatch",
	Short:   "Push notifications for new forum deals",
	Long:    "dealwatch checks a deals forum feed once, notifies about threads it has not seen before, and exits.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "DEBUG"
		}
		logger, err = logging.New(level, cfg.Logging.Format)
		if err != nil {
			return err
		}
		if path == "" {
			logger.Debug("no config file found, using built-in defaults")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		runCheck(cmd.Context())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be sent without notifying or saving")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
}

// runCheck performs one check. Failures are logged, never returned.
func runCheck(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	var db *database.DB
	if cfg.DeliveryLog.Enabled {
		var err error
		db, err = openDB()
		if err != nil {
			logger.Warn("delivery log unavailable, continuing without it", zap.Error(err))
			db = nil
		} else {
			defer db.Close()
		}
	}

	pipe := pipeline.New(cfg, db, logger)

	var result *pipeline.Result
	if dryRun {
		result = pipe.DryRun(ctx)
	} else {
		result = pipe.Run(ctx)
	}

	for _, step := range result.Steps {
		if step.Err != nil {
			logger.Debug("step failed", zap.String("step", step.Name), zap.Error(step.Err))
			continue
		}
		logger.Debug("step done", zap.String("step", step.Name), zap.String("summary", step.Summary))
	}
	logger.Info("check complete", result.Fields()...)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("dealwatch", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/dealwatch/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set a private ntfy topic and your keywords.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show history and delivery log status",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Feed: %s\n", cfg.Feed.URL)
		fmt.Printf("Topic: %s\n", cfg.NotifyURL())
		fmt.Printf("History file: %s\n\n", cfg.GetHistoryPath())

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Runs:")
		fmt.Printf("  Total: %d\n", stats.Runs)
		fmt.Printf("  Initialization runs: %d\n", stats.InitRuns)
		if stats.LastRunStarted != nil {
			fmt.Printf("  Last run: %s\n", *stats.LastRunStarted)
		}
		fmt.Println("\nNotifications:")
		fmt.Printf("  Sent: %d (%d urgent)\n", stats.Delivered, stats.UrgentSent)
		fmt.Printf("  Failed: %d\n", stats.Failed)
		fmt.Printf("  Ignored: %d\n", stats.Suppressed)
		return nil
	},
}

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local delivery log viewer",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, port, logger)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run a check on the configured cron schedule until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		sched, err := scheduler.New(cfg.Schedule.Cron, cfg.Schedule.Timezone, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := sched.Schedule(func() { runCheck(ctx) }); err != nil {
			return err
		}
		sched.Start()
		logger.Info("watching feed", zap.String("feed", cfg.Feed.URL), zap.Time("next", sched.Next()))

		<-ctx.Done()
		logger.Info("stopping")
		sched.Stop()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "dealwatch.db")
	return database.Open(dbPath, logger)
}
