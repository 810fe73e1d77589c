package main

import (
	"fmt"
	"os"
	"path/filepath"

	"codegarden/internal/audit"
	"codegarden/internal/config"
	"codegarden/internal/store"

	"github.com/spf13/cobra"
)

// initCmd plants a fresh garden in the workspace
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Plant a new garden in the workspace",
	Long: `Creates the .garden/ directory with a default config.yaml, an empty
pattern store, and a seeds/ directory for manifests.

Run this once per workspace. An existing garden is left untouched.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	ws := resolveWorkspace()

	cfgPath := config.ConfigPath(ws)
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Println("Garden already planted. Use 'garden stats' to view it.")
		fmt.Println("To start over, delete the .garden/ directory first.")
		return nil
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(cfgPath); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	seedDir := gardenPath(ws, cfg.Watch.SeedDir)
	logsDir := filepath.Join(ws, config.GardenDirName, "logs")
	for _, dir := range []string{seedDir, logsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	// Open the store and audit log once so the schema exists before the
	// first grow.
	dbPath := gardenPath(ws, cfg.Store.DatabasePath)
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("creating pattern store: %w", err)
	}
	_ = st.Close()
	auditLog, err := audit.Open(dbPath)
	if err != nil {
		return fmt.Errorf("creating audit log: %w", err)
	}
	_ = auditLog.Close()

	fmt.Println("Garden planted.")
	fmt.Printf("  ✓ Config: %s\n", cfgPath)
	fmt.Printf("  ✓ Store:  %s\n", dbPath)
	fmt.Printf("  ✓ Seeds:  %s\n", seedDir)
	fmt.Println()
	fmt.Println("Drop seed manifests into the seeds directory, then run 'garden grow'.")
	return nil
}
