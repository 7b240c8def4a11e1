package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/electwatch/internal/reconcile"
	"github.com/TobiSchelling/electwatch/internal/sources"
)

var reconcileFile string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile registry records from a JSON file into the store",
	Long: `Reconcile reads a JSON array of registry records (the shape the registry
source produces) and merges them into the candidate store. Parties must exist
first; load them with 'electwatch parties import'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(reconcileFile)
		if err != nil {
			return fmt.Errorf("reading records: %w", err)
		}
		var records []*sources.RegistryRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("parsing records: %w", err)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := reconcile.New(db, log).Reconcile(cmd.Context(), records)
		if err != nil {
			return err
		}
		fmt.Printf("Records: %d\n", len(records))
		fmt.Printf("  Created: %d\n", res.Created)
		fmt.Printf("  Updated: %d\n", res.Updated)
		fmt.Printf("  Skipped: %d\n", res.Skipped)
		for _, e := range res.Errors {
			fmt.Printf("  - %v\n", e)
		}
		if len(res.Errors) > 0 {
			return fmt.Errorf("%d record(s) could not be reconciled", len(res.Errors))
		}
		return nil
	},
}

// partySeed is one entry of a parties file.
type partySeed struct {
	Name      string `yaml:"name"`
	ShortName string `yaml:"short_name"`
	Color     string `yaml:"color"`
}

var partiesFile string

var partiesCmd = &cobra.Command{
	Use:   "parties",
	Short: "Manage political parties",
}

var partiesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Create or update parties from a YAML list",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(partiesFile)
		if err != nil {
			return fmt.Errorf("reading parties: %w", err)
		}
		var seeds []partySeed
		if err := yaml.Unmarshal(data, &seeds); err != nil {
			return fmt.Errorf("parsing parties: %w", err)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		imported := 0
		for _, p := range seeds {
			if p.Name == "" {
				fmt.Println("  skipping entry without name")
				continue
			}
			if _, err := db.UpsertParty(cmd.Context(), p.Name, optional(p.ShortName), optional(p.Color)); err != nil {
				return fmt.Errorf("party %q: %w", p.Name, err)
			}
			imported++
		}
		fmt.Printf("Imported %d part(ies)\n", imported)
		return nil
	},
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func init() {
	reconcileCmd.Flags().StringVarP(&reconcileFile, "file", "f", "", "JSON file of registry records")
	_ = reconcileCmd.MarkFlagRequired("file")

	partiesImportCmd.Flags().StringVarP(&partiesFile, "file", "f", "", "YAML file with name, short_name and color per party")
	_ = partiesImportCmd.MarkFlagRequired("file")
	partiesCmd.AddCommand(partiesImportCmd)
}
