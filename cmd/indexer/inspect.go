package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/reverse"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer/tokenizer"
)

var (
	inspectDir    string
	inspectLang   string
	inspectKind   string
	inspectVerify bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <term>",
	Short: "Print the posting list blocks of a term",
	Long: `Opens a generation (the current one by default) and prints the skip
list blocks holding the term's documents in the full or priority index.
--verify walks the whole list and checks its ordering and pointers.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := inspectDir
		if dir == "" {
			dir = filepath.Join(cfg.Index.DataDir, indexer.CurrentDir)
		}
		gen, err := indexer.OpenGeneration(dir, 0)
		if err != nil {
			return err
		}
		defer gen.Close()

		term, ok := tokenizer.Normalize(args[0])
		if !ok {
			return fmt.Errorf("%q is never indexed", args[0])
		}
		idx := gen.Full
		if reverse.Kind(inspectKind) == reverse.KindPriority {
			idx = gen.Priority
		} else if reverse.Kind(inspectKind) != reverse.KindFull {
			return fmt.Errorf("unknown index kind %q", inspectKind)
		}
		list := idx.Documents(inspectLang, ids.TermID(term))
		if list == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: not in the %s index of generation %s\n", term, inspectKind, gen.ID())
			return nil
		}

		blocks, err := list.Blocks()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: generation %s, %s index, %d documents\n",
			term, gen.ID(), inspectKind, idx.NumDocuments(inspectLang, ids.TermID(term)))
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for i, b := range blocks {
			fmt.Fprintf(tw, "%d\t%s\n", i, b)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if inspectVerify {
			if err := list.Verify(); err != nil {
				return err
			}
			fmt.Fprintln(out, "verified")
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectDir, "dir", "", "generation directory (defaults to the current generation)")
	inspectCmd.Flags().StringVar(&inspectLang, "lang", "en", "document language")
	inspectCmd.Flags().StringVar(&inspectKind, "kind", string(reverse.KindFull), "index kind: full or prio")
	inspectCmd.Flags().BoolVar(&inspectVerify, "verify", false, "check the whole list")
	rootCmd.AddCommand(inspectCmd)
}
