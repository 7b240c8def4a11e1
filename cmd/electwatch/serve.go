package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/electwatch/internal/logger"
	"github.com/TobiSchelling/electwatch/internal/scheduler"
	"github.com/TobiSchelling/electwatch/internal/server"
)

var (
	servePort       int
	serveNoSchedule bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only API and run scheduled jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := server.New(db, log.With(logger.String("component", "server")), server.Options{Version: version})
		if err != nil {
			return err
		}

		if !serveNoSchedule {
			runner := newRunner(db)
			sched := scheduler.New(runner, log.With(logger.String("component", "scheduler")))
			if err := sched.Load(cfg.Schedule, runner.Jobs()); err != nil {
				// Valid entries are still scheduled.
				log.Warn("Schedule has invalid entries", logger.Error(err))
			}
			for _, e := range sched.Entries() {
				log.Info("Scheduled job",
					logger.String("job", e.Name),
					logger.String("spec", e.Spec),
					logger.String("next", e.Next.Format(time.RFC3339)))
			}
			sched.Start()
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := sched.Stop(stopCtx); err != nil {
					log.Warn("Scheduler did not stop cleanly", logger.Error(err))
				}
			}()
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		return srv.Serve(ctx, fmt.Sprintf("127.0.0.1:%d", port))
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config)")
	serveCmd.Flags().BoolVar(&serveNoSchedule, "no-schedule", false, "Serve the API without running scheduled jobs")
}
