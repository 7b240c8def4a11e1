package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/electwatch/internal/database"
	"github.com/TobiSchelling/electwatch/internal/joblog"
	"github.com/TobiSchelling/electwatch/internal/llm"
	"github.com/TobiSchelling/electwatch/internal/logger"
	"github.com/TobiSchelling/electwatch/internal/pipeline"
	"github.com/TobiSchelling/electwatch/internal/sources"
)

// newRunner wires the sync pipeline over db.
func newRunner(db *database.DB) *pipeline.Runner {
	jobs := joblog.New(db, log.With(logger.String("component", "joblog")), joblog.Options{
		StaleAfter: cfg.Jobs.StaleAfter,
	})
	dispatcher := sources.Build(cfg, sources.Deps{
		Logger: log,
		Terms:  pipeline.PresidentialTerms(db),
	})
	provider := llm.CreateProvider(cfg.Analysis, log)
	return pipeline.New(cfg, db, jobs, dispatcher, provider, log)
}

var syncCmd = &cobra.Command{
	Use:   "sync <source>",
	Short: "Run one source sync: " + strings.Join(sourceNames(), ", "),
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := sources.ParseSource(args[0])
		if err != nil {
			return err
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		summary, err := newRunner(db).Sync(cmd.Context(), source)
		if isBusy(err) {
			return fmt.Errorf("%s: %w (see 'electwatch jobs --source %s')", source, err, source)
		}
		printSummary(summary)
		return err
	},
}

var syncAllCmd = &cobra.Command{
	Use:   "sync-all",
	Short: "Run every enabled source concurrently",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		outcomes := newRunner(db).SyncAll(cmd.Context())
		t := newTable()
		t.AppendHeader(table.Row{"Source", "Status", "Processed", "Created", "Updated", "Skipped", "Errors"})
		var failed []string
		for _, o := range outcomes {
			if o.Summary == nil {
				t.AppendRow(table.Row{o.Source, "not started", "", "", "", "", o.Err})
				failed = append(failed, o.Source)
				continue
			}
			s := o.Summary
			t.AppendRow(table.Row{o.Source, s.Status, s.Processed, s.Created, s.Updated, s.Skipped, s.ErrorCount})
			if o.Err != nil {
				failed = append(failed, o.Source)
			}
		}
		t.Render()
		if len(failed) > 0 {
			return fmt.Errorf("%d source(s) failed: %s", len(failed), strings.Join(failed, ", "))
		}
		return nil
	},
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Analyze queued mentions and raise flags",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		summary, err := newRunner(db).Enrich(cmd.Context())
		printSummary(summary)
		return err
	},
}

var (
	jobsSource string
	jobsLimit  int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent sync jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		jobs, err := db.ListJobs(cmd.Context(), jobsSource, jobsLimit)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No jobs recorded.")
			return nil
		}
		renderJobs(jobs)
		return nil
	},
}

func init() {
	jobsCmd.Flags().StringVarP(&jobsSource, "source", "s", "", "Only jobs of this source")
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "Number of jobs to show")
}

func sourceNames() []string {
	names := make([]string, 0, len(sources.All))
	for _, s := range sources.All {
		names = append(names, string(s))
	}
	return names
}

func printSummary(s *joblog.Summary) {
	if s == nil {
		return
	}
	fmt.Printf("\nJob %s (%s): %s in %s\n", s.JobID, s.Source, s.Status, s.Duration().Round(time.Millisecond))
	fmt.Printf("  Processed: %d\n", s.Processed)
	fmt.Printf("  Created:   %d\n", s.Created)
	fmt.Printf("  Updated:   %d\n", s.Updated)
	fmt.Printf("  Skipped:   %d\n", s.Skipped)
	if blocked, _ := s.Metadata["blocked"].(bool); blocked {
		fmt.Println("  Source blocked the run (anti-bot page)")
	}
	if s.ErrorCount > 0 {
		fmt.Printf("  Errors:    %d\n", s.ErrorCount)
		for i, msg := range s.Errors {
			if i == 10 {
				fmt.Printf("    ... %d more\n", s.ErrorCount-i)
				break
			}
			fmt.Printf("    - %s\n", truncate(msg, 120))
		}
	}
}

// isBusy reports whether err means another job for the source is active.
func isBusy(err error) bool {
	return errors.Is(err, joblog.ErrSourceBusy)
}
