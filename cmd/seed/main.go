// seed loads a story mapping YAML file into Postgres for STORY_MAPPINGS_SOURCE=postgres.
// Saving is an upsert on the mapping id, so running it twice is harmless.
package main

import (
	"context"
		"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"playground-flow/internal/config"
	"playground-flow/internal/db"
	gamedomain "playground-flow/internal/game/domain"
	"playground-flow/internal/logging"
	"playground-flow/internal/object"
	"playground-flow/internal/storymapping/catalog"
	"playground-flow/internal/storymapping/domain"
	mappingrepo "playground-flow/internal/storymapping/repository"
	userdomain "playground-flow/internal/user/domain"
)

func main() {
	var file string
	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Store story mappings from a YAML file in Postgres",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(*cobra.Command, []string) error {
			return run(file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "story mapping YAML file (defaults to STORY_MAPPINGS_FILE)")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(file string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	if file == "" {
		file = cfg.MappingFile
	}

	mappings, err := readMappings(file)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer conn.Close()

	if err := save(ctx, mappingrepo.NewPostgresRepository(conn), mappings, logger); err != nil {
		return err
	}
	logger.Info("seed complete", zap.String("file", file), zap.Int("count", len(mappings)))
	return nil
}

// readMappings reads file and rejects it as a whole if any mapping is invalid.
func readMappings(file string) ([]*domain.StoryMapping, error) {
	mappings, err := catalog.ReadFile(file)
	if err != nil {
		return nil, err
	}
	registry := object.NewRegistry(userdomain.Kind, gamedomain.GameKind, gamedomain.EntryKind)
	if err := catalog.New(registry).Replace(mappings); err != nil {
		return nil, err
	}
	return mappings, nil
}

type mappingSaver interface {
	Save(ctx context.Context, m *domain.StoryMapping) error
}

func save(ctx context.Context, repo mappingSaver, mappings []*domain.StoryMapping, logger *zap.Logger) error {
	for _, m := range mappings {
		if err := repo.Save(ctx, m); err != nil {
			return fmt.Errorf("save mapping %d: %w", m.ID, err)
		}
		logger.Info("mapping saved", zap.Int64("id", m.ID), zap.String("title", m.Title))
	}
	return nil
}
