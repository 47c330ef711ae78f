package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer/construct"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer/process"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/postgres"
)

var (
	converterJournals string
	converterStage    bool
)

var runConverterCmd = &cobra.Command{
	Use:   "run-converter",
	Short: "Run converter jobs queued in the converter outbox",
	Long: `Polls the converter_outbox table and runs the configured converter for
each queued message. With --stage, every successful run is followed by a
construction from all journals matching --journals, and a construct command
is published when Kafka is enabled.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}

		var onSuccess func(context.Context, process.Message) error
		if converterStage {
			ranks := construct.NewPostgresRanks(pg.DB)
			onSuccess = func(ctx context.Context, msg process.Message) error {
				journals, err := filepath.Glob(converterJournals)
				if err != nil {
					return err
				}
				if len(journals) == 0 {
					return fmt.Errorf("converter run %d produced no journals matching %s", msg.ID, converterJournals)
				}
				if cfg.Kafka.Enabled {
					return publishCommand(ctx, cmd, consumer.Command{Action: consumer.ActionConstruct, Journals: journals})
				}
				m, err := construct.Convert(ctx, construct.Options{DataDir: cfg.Index.DataDir, Ranks: ranks, Heartbeat: progress()}, journals)
				if err != nil {
					return err
				}
				slog.Info("converter run staged a generation", "id", msg.ID, "generation", m.ID, "documents", m.Documents)
				return nil
			}
		}

		slog.Info("polling converter outbox", "command", cfg.Converter.Command, "interval", cfg.Converter.OutboxPoll)
		return process.NewRunner(cfg.Converter, process.NewPostgresOutbox(pg.DB), onSuccess).Poll(ctx)
	},
}

func init() {
	runConverterCmd.Flags().StringVar(&converterJournals, "journals", "data/index/journals/*.wal", "glob of journals the converter writes")
	runConverterCmd.Flags().BoolVar(&converterStage, "stage", false, "stage a generation after each successful run")
	rootCmd.AddCommand(runConverterCmd)
}
