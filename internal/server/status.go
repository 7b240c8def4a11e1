package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/TobiSchelling/electwatch/internal/database"
)

// statusMarkdown summarizes store counts, the latest job per source and the
// analysis queue.
func (s *Server) statusMarkdown(ctx context.Context) (string, error) {
	stats, err := s.db.GetStats(ctx)
	if err != nil {
		return "", err
	}
	jobs, err := s.db.LatestJobs(ctx)
	if err != nil {
		return "", err
	}
	queue, err := s.db.GetQueueStats(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("# electwatch\n\n## Store\n\n")
	b.WriteString("| Parties | Candidates | News | Social | Flags | Finance lines |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %d |\n\n",
		stats.Parties, stats.Candidates, stats.NewsMentions, stats.SocialMentions, stats.Flags, stats.FinanceRecords)

	b.WriteString("## Latest jobs\n\n")
	if len(jobs) == 0 {
		b.WriteString("No jobs have run yet.\n\n")
	} else {
		b.WriteString("| Source | Status | Started | Duration | Processed | Created | Updated | Skipped | Error |\n")
		b.WriteString("|---|---|---|---|---|---|---|---|---|\n")
		for _, j := range jobs {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %d | %d | %d | %d | %s |\n",
				j.Source, j.Status, j.StartedAt.Format("2006-01-02 15:04"), jobDuration(j),
				j.Processed, j.Created, j.Updated, j.Skipped, escapeCell(deref(j.ErrorMessage)))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Analysis queue\n\n")
	b.WriteString("| Pending | Processing | Completed | Failed |\n|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d |\n", queue.Pending, queue.Processing, queue.Completed, queue.Failed)
	return b.String(), nil
}

func jobDuration(j database.SyncJob) string {
	if j.CompletedAt == nil {
		return "running"
	}
	return j.CompletedAt.Sub(j.StartedAt.Time).Round(time.Second).String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
