package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codegarden/internal/config"
	"codegarden/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose   bool
	workspace string
	timeout   time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "garden",
	Short: "codegarden - a self-healing library of proven code patterns",
	Long: `codegarden grows a library of code patterns from dropped seeds.

Nothing enters the library raw: every draft is scored by the coherence
oracle, and only drafts above the acceptance threshold take root. What
falls short is composted, not discarded: the recycler captures it and
heals it through bounded reflection until it roots or exhausts its
attempts. Registered patterns then breed cross-language variants in
depth-bounded growth waves.

Start with 'garden init', drop seed manifests into .garden/seeds/, and
run 'garden grow' once or leave 'garden watch' running.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Category file loggers live under .garden/logs. With no config
		// or debug mode off this is a silent no-op.
		if err := logging.Initialize(resolveWorkspace()); err != nil {
			return fmt.Errorf("failed to initialize garden logging: %w", err)
		}

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveWorkspace returns the --workspace flag or the current directory.
func resolveWorkspace() string {
	if workspace != "" {
		return workspace
	}
	cwd, _ := os.Getwd()
	return cwd
}

// gardenPath resolves a config-relative path against the workspace.
// Absolute paths pass through untouched.
func gardenPath(ws, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(ws, path)
}

// loadGardenConfig reads and validates the workspace configuration. A
// missing config file yields defaults, so read-only commands work even
// before 'garden init'.
func loadGardenConfig(ws string) (*config.Config, error) {
	cfg, err := config.Load(config.ConfigPath(ws))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid garden config: %w", err)
	}
	return cfg, nil
}
