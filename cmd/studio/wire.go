package main

import (
	"context"
	"fmt"

	"github.com/easeaico/studio-memory/internal/config"
	"github.com/easeaico/studio-memory/internal/functions"
	"github.com/easeaico/studio-memory/internal/llm"
	"github.com/easeaico/studio-memory/internal/memory"
	"github.com/easeaico/studio-memory/internal/notion"
	"github.com/easeaico/studio-memory/internal/observe"
	"github.com/spf13/cobra"
)

// loadConfig reads and validates configuration, applying the --verbose flag.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogVerbose = true
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newObserver(cmd *cobra.Command, cfg config.Config) *observe.Observer {
	return observe.New(cmd.ErrOrStderr(), cfg.LogFormat, cfg.LogVerbose)
}

// openStore connects to the configured backend and ensures its schema.
func openStore(ctx context.Context, cfg config.Config) (memory.Store, error) {
	var (
		store memory.Store
		err   error
	)
	switch cfg.DBType {
	case "postgres":
		store, err = memory.NewPostgresStore(ctx, cfg.DatabaseURL)
	default:
		store, err = memory.NewSQLiteStore(ctx, cfg.DatabaseURL)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := store.InitSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// newEmbedder returns nil when no API key is configured, which disables
// semantic memory.
func newEmbedder(ctx context.Context, cfg config.Config) (memory.Embedder, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	client, err := llm.NewClient(ctx, cfg.APIKey, cfg.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// newMemoryService wires store, embedder and logger. The returned cleanup
// closes the store.
func newMemoryService(ctx context.Context, cfg config.Config, obs *observe.Observer) (*memory.Service, memory.Store, func(), error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	if embedder == nil {
		obs.Log().Warn().Msg("GOOGLE_API_KEY not set, semantic memory disabled")
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			obs.Log().Warn().Err(err).Msg("failed to close store")
		}
	}
	return memory.NewService(store, embedder, obs.Log()), store, cleanup, nil
}

func newExporter(cfg config.Config, obs *observe.Observer) (*notion.Exporter, error) {
	if err := cfg.ValidateExport(); err != nil {
		return nil, err
	}
	client := functions.NewClient(cfg.SupabaseURL, cfg.SupabaseAnonKey)
	return notion.NewExporter(client, obs.Log()), nil
}
