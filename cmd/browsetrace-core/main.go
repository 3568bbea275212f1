package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vincentbai/browsetrace-core/internal/browser"
	"github.com/vincentbai/browsetrace-core/internal/config"
	"github.com/vincentbai/browsetrace-core/internal/database"
	"github.com/vincentbai/browsetrace-core/internal/engine"
	"github.com/vincentbai/browsetrace-core/internal/logging"
	"github.com/vincentbai/browsetrace-core/internal/models"
	"github.com/vincentbai/browsetrace-core/internal/server"
	"github.com/vincentbai/browsetrace-core/internal/store"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

var rootCmd = &cobra.Command{
	Use:          server.AppName,
	Short:        "BrowserTrace core - local browser interaction telemetry",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion and query server",
	RunE:  runServe,
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Print the most recent durable events as JSON",
	RunE:  runQuery,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE:  runConfig,
}

var (
	configFlag string
	limitFlag  int
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a YAML config file")
	queryCmd.Flags().IntVar(&limitFlag, "limit", config.DefaultQueryLimit, "Maximum number of events to print")
	rootCmd.AddCommand(serveCmd, queryCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	durable := store.New(db, logger.WithPrefix("store"))
	// pending writes land before the database closes
	defer durable.Wait()

	core := engine.New(engine.Options{
		BufferCapacity: cfg.BufferCapacity,
		QueryLimit:     cfg.QueryLimit,
		LookupTimeout:  cfg.LookupTimeout,
		ContentTimeout: cfg.ContentTimeout,
		GracePeriod:    cfg.GracePeriod,
	}, durable, newBrowserClient(cfg), logger.WithPrefix("engine"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", "database", cfg.DatabasePath, "adapter", cfg.AdapterURL)
	return server.NewServer(core, db, cfg.Address, logger.WithPrefix("server")).Run(ctx)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}
	if limitFlag <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", limitFlag)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	logger, closer, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	events, err := store.New(db, logger).LoadAll(cmd.Context())
	if err != nil {
		return err
	}
	return writeRecent(cmd.OutOrStdout(), events, limitFlag)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func openDatabase(cfg *config.Config) (*database.Database, error) {
	if cfg.DatabasePath != database.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	return database.NewDatabase(cfg.DatabasePath)
}

func newBrowserClient(cfg *config.Config) browser.Client {
	if cfg.AdapterURL == "" {
		return browser.Offline{}
	}
	return browser.NewHTTPClient(cfg.AdapterURL, cfg.LookupTimeout, rate.Limit(cfg.AdapterRate), cfg.AdapterBurst)
}

// writeRecent prints up to limit events, newest first.
func writeRecent(w io.Writer, events []models.InteractionEvent, limit int) error {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp > events[j].Timestamp
	})
	if len(events) > limit {
		events = events[:limit]
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(models.EventsResponse{Events: events})
}
