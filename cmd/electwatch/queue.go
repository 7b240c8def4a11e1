package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/electwatch/internal/database"
	"github.com/TobiSchelling/electwatch/internal/enrich"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and maintain the AI analysis queue",
}

var queueShowFailed int

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue counts per status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		ctx := cmd.Context()

		stats, err := newQueue(db).Stats(ctx)
		if err != nil {
			return err
		}
		t := newTable()
		t.AppendHeader(table.Row{"Pending", "Processing", "Completed", "Failed"})
		t.AppendRow(table.Row{stats.Pending, stats.Processing, stats.Completed, stats.Failed})
		t.Render()

		if queueShowFailed <= 0 || stats.Failed == 0 {
			return nil
		}
		items, err := db.ListQueueItems(ctx, database.QueueFailed, queueShowFailed)
		if err != nil {
			return err
		}
		fmt.Println()
		t = newTable()
		t.AppendHeader(table.Row{"ID", "Type", "Mention", "Attempts", "Last error"})
		for _, it := range items {
			lastErr := ""
			if it.LastError != nil {
				lastErr = truncate(*it.LastError, 80)
			}
			t.AppendRow(table.Row{it.ID, it.SourceType, it.SourceID, it.Attempts, lastErr})
		}
		t.Render()
		return nil
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Return failed items to pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := newQueue(db).RetryFailed(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Requeued %d failed item(s)\n", n)
		return nil
	},
}

var queueRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Return items stuck in processing to pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := newQueue(db).RecoverStale(cmd.Context(), cfg.Enrichment.StaleAfter)
		if err != nil {
			return err
		}
		fmt.Printf("Recovered %d stale item(s) older than %s\n", n, cfg.Enrichment.StaleAfter)
		return nil
	},
}

func newQueue(db *database.DB) *enrich.Queue {
	return enrich.NewQueue(db, cfg.Enrichment.MaxAttempts)
}

func init() {
	queueStatsCmd.Flags().IntVar(&queueShowFailed, "failed", 0, "Also list up to N failed items")

	queueCmd.AddCommand(queueStatsCmd)
	queueCmd.AddCommand(queueRetryCmd)
	queueCmd.AddCommand(queueRecoverCmd)
}
