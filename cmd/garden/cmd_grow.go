package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codegarden/internal/growth"
	"codegarden/internal/pattern"
	"codegarden/internal/seed"

	"github.com/spf13/cobra"
)

var (
	growSeeds string
	growDepth int
)

// growCmd runs one growth cycle over seed manifests
var growCmd = &cobra.Command{
	Use:   "grow",
	Short: "Run growth waves over seed manifests",
	Long: `Loads seed manifests, submits every draft through the coherence gate,
and breeds variants from whatever takes root. Each wave ends with a
healing pass over the captured failures of that wave.

Seeds come from --seeds (a manifest file or a directory of them), or
from the configured seed directory.`,
	RunE: runGrow,
}

func init() {
	growCmd.Flags().StringVar(&growSeeds, "seeds", "", "Seed manifest file or directory (default: configured seed dir)")
	growCmd.Flags().IntVar(&growDepth, "depth", 0, "Override growth depth for this run")
	rootCmd.AddCommand(growCmd)
}

func runGrow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	ws := resolveWorkspace()
	cfg, err := loadGardenConfig(ws)
	if err != nil {
		return err
	}

	seedPath := growSeeds
	if seedPath == "" {
		seedPath = cfg.Watch.SeedDir
	}
	seedPath = gardenPath(ws, seedPath)

	seeds, err := loadSeeds(seedPath)
	if err != nil {
		return err
	}
	if len(seeds) == 0 {
		fmt.Printf("No seed manifests under %s. Nothing to grow.\n", seedPath)
		return nil
	}

	g, err := openGarden(ws, cfg)
	if err != nil {
		return err
	}
	defer g.Close()

	restoreBacklog(ctx, g)

	opts := growthOptions(cfg)
	if growDepth > 0 {
		opts.Depth = growDepth
	}

	fmt.Printf("Growing from %d seed(s)...\n", len(seeds))
	report, err := g.growth.ProcessSeeds(ctx, seeds, opts)
	if err != nil {
		return fmt.Errorf("growth run failed: %w", err)
	}

	printRunReport(report)
	backfillEmbeddings(ctx, g)
	return nil
}

// loadSeeds accepts either a single manifest or a directory of them.
func loadSeeds(path string) ([]pattern.Draft, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("seed path: %w", err)
	}
	if info.IsDir() {
		return seed.LoadDir(path)
	}
	return seed.LoadFile(path)
}

func printRunReport(report *growth.RunReport) {
	fmt.Println()
	fmt.Println("Growth Report")
	fmt.Println("=============")
	for _, w := range report.Waves {
		fmt.Printf("Wave %d: %d source(s), %d submitted, %d registered, %d captured",
			w.Wave, w.Sources, w.Submitted, w.Registered, w.Captured)
		if w.Deduped > 0 {
			fmt.Printf(", %d deduped", w.Deduped)
		}
		if w.Heal.Selected > 0 {
			fmt.Printf(" (healed %d of %d)", w.Heal.Healed, w.Heal.Selected)
		}
		fmt.Println()
	}
	fmt.Println()
	fmt.Printf("✓ Registered this run: %d\n", report.Registered)
	if report.Captured > 0 {
		fmt.Printf("✗ Still captured: %d (run 'garden heal' to retry)\n", report.Captured)
	}
	fmt.Printf("Global coherence: Ξ=%.3f across %d pattern(s)\n",
		report.Final.XiGlobal, report.Final.PatternCount)
}
