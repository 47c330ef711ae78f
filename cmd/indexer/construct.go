package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer/construct"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/postgres"
)

var (
	constructRanksFromDB bool
	constructRanks       []string
)

var constructCmd = &cobra.Command{
	Use:   "construct <journal>...",
	Short: "Convert journals into a staged generation",
	Long: `Converts the given journals into a new generation staged under
<dataDir>/next. A running searcher picks it up on the next switch.

Domain ranks come from the domain_ranks table with --ranks-from-db, or from
--rank domain=rank pairs.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		ranks, err := parseRanks(constructRanks)
		if err != nil {
			return err
		}
		opts := construct.Options{
			DataDir:   cfg.Index.DataDir,
			Ranks:     ranks,
			Heartbeat: progress(),
		}
		if constructRanksFromDB {
			pg, err := postgres.New(cfg.Postgres)
			if err != nil {
				return err
			}
			defer pg.Close()
			opts.Ranks = construct.NewPostgresRanks(pg.DB)
		}

		m, err := construct.Convert(ctx, opts, args)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "staged generation %s: %d documents, languages %s\n  %s\n",
			m.ID, m.Documents, strings.Join(m.Languages, ","),
			filepath.Join(cfg.Index.DataDir, indexer.NextDir))
		return nil
	},
}

func init() {
	constructCmd.Flags().BoolVar(&constructRanksFromDB, "ranks-from-db", false, "load domain ranks from postgres")
	constructCmd.Flags().StringSliceVar(&constructRanks, "rank", nil, "domain rank as domain=rank (repeatable)")
	rootCmd.AddCommand(constructCmd)
}

func parseRanks(pairs []string) (construct.StaticRanks, error) {
	ranks := construct.StaticRanks{}
	for _, p := range pairs {
		domain, rank, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("rank %q: want domain=rank", p)
		}
		d, err := strconv.ParseUint(domain, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("rank %q: %w", p, err)
		}
		r, err := strconv.Atoi(rank)
		if err != nil {
			return nil, fmt.Errorf("rank %q: %w", p, err)
		}
		ranks[uint32(d)] = r
	}
	return ranks, nil
}

// progress logs each stage once and then every tenth of its work.
func progress() construct.Heartbeat {
	var stage string
	var step int
	return func(s string, done, total int) {
		if s != stage {
			stage, step = s, 0
			slog.Info("construction stage", "stage", s, "total", total)
		}
		if total <= 0 {
			return
		}
		if next := done * 10 / total; next > step {
			step = next
			slog.Info("construction progress", "stage", s, "done", done, "total", total)
		}
	}
}
