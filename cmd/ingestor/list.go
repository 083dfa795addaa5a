package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"ingestor/internal/model"
	"ingestor/internal/storage"
)

const listTitleWidth = 80

func newListCmd() *cobra.Command {
	var (
		f     storage.ItemFilter
		since string
		count bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the most recent stored items",
		RunE: func(cmd *cobra.Command, args []string) error {
			if since != "" {
				t, err := time.Parse(time.DateOnly, since)
				if err != nil {
					return fmt.Errorf("parse --since: %w", err)
				}
				f.Since = t
			}
			return withApp(cmd, func(a *app) error {
				items, err := a.store.ListItems(cmd.Context(), f)
				if err != nil {
					return err
				}
				if count {
					fmt.Fprintf(cmd.OutOrStdout(), "%d items\n", len(items))
					return nil
				}
				renderItems(cmd, items)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "limit", 10, "maximum number of items")
	cmd.Flags().Int64Var(&f.SourceID, "source", 0, "only items of this source ID")
	cmd.Flags().StringVar((*string)(&f.Medium), "medium", "", "only items of this medium (paper, newsletter, blog, tweet)")
	cmd.Flags().StringVar(&f.Topic, "topic", "", "only items tagged with this topic")
	cmd.Flags().StringVar(&since, "since", "", "only items published on or after this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&count, "count", false, "print only the number of matching items")
	return cmd
}

func renderItems(cmd *cobra.Command, items []model.Item) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Published", "Medium", "Title", "Authors", "ID"})
	for _, it := range items {
		t.AppendRow(table.Row{
			it.PublishedAt.Format(time.DateOnly),
			it.Medium,
			shorten(it.Title, listTitleWidth),
			strings.Join(authors(it.RawMetadata), ", "),
			it.ID,
		})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d items", len(items))})
	t.Render()
}

// authors reads the author list stored in raw metadata by both parsers.
func authors(m model.Metadata) []string {
	if names, ok := m["authors"].([]string); ok {
		return names
	}
	raw, _ := m["authors"].([]any)
	out := make([]string, 0, len(raw))
	for _, a := range raw {
		if s, ok := a.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
