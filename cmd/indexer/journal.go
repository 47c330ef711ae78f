package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/journal"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer/tokenizer"
)

// sourceDocument is one line of journal command input.
type sourceDocument struct {
	Domain     uint32 `json:"domain"`
	Ordinal    uint32 `json:"ordinal"`
	Language   string `json:"language"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	Year       int    `json:"year"`
	Quality    int    `json:"quality"`
	SizeBucket int    `json:"size_bucket"`
}

func (s sourceDocument) toJournal() journal.Document {
	lang := s.Language
	if lang == "" {
		lang = "en"
	}
	title := tokenizer.Tokenize(s.Title)
	body := tokenizer.Tokenize(s.Body)
	doc := journal.Document{
		DomainID: s.Domain,
		Ordinal:  s.Ordinal,
		Language: lang,
		Meta:     ids.NewDocMeta(0, s.Year, s.SizeBucket, s.Quality, 0),
		Size:     uint32(len(title) + len(body)),
		Keywords: tokenizer.Keywords(s.Title, s.Body),
	}
	if s.Title != "" {
		doc.Spans = []journal.Span{{Code: journal.SpanTitle, Start: 0, End: uint32(len(s.Title))}}
	}
	return doc
}

var journalOut string

var journalCmd = &cobra.Command{
	Use:   "journal [input.jsonl]",
	Short: "Write a journal from JSON-lines documents",
	Long: `Reads one JSON document per line (domain, ordinal, language, title, body,
year, quality, size_bucket) from the file or stdin, tokenizes it and appends
it to a new journal.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := io.Reader(os.Stdin)
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		w, err := journal.Create(journalOut)
		if err != nil {
			return err
		}
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			if len(scanner.Bytes()) == 0 {
				continue
			}
			var src sourceDocument
			if err := json.Unmarshal(scanner.Bytes(), &src); err != nil {
				w.Close()
				return fmt.Errorf("line %d: %w", line, err)
			}
			if err := w.Append(src.toJournal()); err != nil {
				w.Close()
				return fmt.Errorf("line %d: %w", line, err)
			}
		}
		if err := scanner.Err(); err != nil {
			w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d documents to %s\n", w.Count(), journalOut)
		return nil
	},
}

func init() {
	journalCmd.Flags().StringVarP(&journalOut, "out", "o", "journal.wal", "journal file to create")
	rootCmd.AddCommand(journalCmd)
}
