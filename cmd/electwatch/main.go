package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/electwatch/internal/config"
	"github.com/TobiSchelling/electwatch/internal/database"
	"github.com/TobiSchelling/electwatch/internal/logger"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	envFile    string
	cfg        *config.Config
	log        logger.Logger = logger.NewNop()
)

func main() {
	err := rootCmd.Execute()
	log.Sync()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "electwatch",
	Short:         "Candidate data ingestion and enrichment",
	Long:          "electwatch ingests electoral candidate data from official and media sources, reconciles it into one store and enriches coverage with AI analysis.",
	Version:       version,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		l, err := logger.New(logger.Config{Level: level, Development: verbose})
		if err != nil {
			return err
		}
		log = l
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file with API keys")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(syncAllCmd)
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(partiesCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("electwatch", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/electwatch/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure sources, API key variables and the analysis provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store counts and the latest job per source",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		ctx := cmd.Context()

		stats, err := db.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		t := newTable()
		t.AppendHeader(table.Row{"Parties", "Candidates", "News", "Social", "Flags", "Finance lines", "Queue pending"})
		t.AppendRow(table.Row{stats.Parties, stats.Candidates, stats.NewsMentions, stats.SocialMentions,
			stats.Flags, stats.FinanceRecords, stats.QueuePending})
		t.Render()

		jobs, err := db.LatestJobs(ctx)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("\nNo jobs have run yet. Start one with: electwatch sync registry")
			return nil
		}
		fmt.Println()
		renderJobs(jobs)
		return nil
	},
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := database.Open(filepath.Join(dataDir, "electwatch.db"))
	if err != nil {
		return nil, err
	}
	if applied := db.AppliedMigrations(); len(applied) > 0 {
		log.Info("Applied schema migrations", logger.Any("versions", applied), logger.String("path", db.Path()))
	}
	return db, nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	return t
}

func renderJobs(jobs []database.SyncJob) {
	t := newTable()
	t.AppendHeader(table.Row{"ID", "Source", "Status", "Started", "Processed", "Created", "Updated", "Skipped", "Error"})
	for _, j := range jobs {
		errMsg := ""
		if j.ErrorMessage != nil {
			errMsg = truncate(*j.ErrorMessage, 60)
		}
		t.AppendRow(table.Row{shortID(j.ID), j.Source, j.Status, j.StartedAt.Local().Format("2006-01-02 15:04"),
			j.Processed, j.Created, j.Updated, j.Skipped, errMsg})
	}
	t.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
