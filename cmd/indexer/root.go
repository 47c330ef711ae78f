package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/logger"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "Build and manage search index generations",
	Long: `indexer turns documents into journals, converts journals into a staged
index generation, and controls which generation a searcher serves.

Examples:
  indexer journal docs.jsonl -o data/index/journals/batch-1.wal
  indexer construct data/index/journals/*.wal
  indexer switch --addr localhost:9091
  indexer inspect hello --kind full`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (defaults apply when empty)")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
