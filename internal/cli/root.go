package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelv2/claude-cortex-core/internal/config"
	"github.com/michaelv2/claude-cortex-core/internal/engine"
	"github.com/michaelv2/claude-cortex-core/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "cortex",
	Short: "Persistent memory engine for conversational assistants",
	Long:  "Cortex stores, scores, links, and consolidates memories in a local SQLite database so assistants keep context across sessions.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(rememberCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(relatedCmd)
}

// openEngine wires config, logger, store, and engine for a command.
// The returned closer stops the engine and releases the database.
func openEngine() (*engine.Engine, *zap.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := zap.NewProduction()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	dbPath, err := store.DefaultDBPath()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve db path: %w", err)
	}
	db, err := store.Open(dbPath, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}

	eng := engine.New(db, cfg, log)
	closer := func() {
		eng.Stop()
		db.Close()
		log.Sync()
	}
	return eng, log, closer, nil
}
