package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codegarden/internal/pattern"
	"codegarden/internal/seed"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// watchCmd runs the garden as a long-lived process
var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a seed directory and grow on every drop",
	Long: `Watches a directory for seed manifests and runs a growth cycle for
each settled batch. Rapid saves of the same file collapse into one run
through the debounce window.

Manifests already on disk are picked up at startup unless
watch.scan_existing is off. Stops on Ctrl+C with a session summary.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	// Watching is open-ended, so no timeout: the context lives until a
	// shutdown signal arrives.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ws := resolveWorkspace()
	cfg, err := loadGardenConfig(ws)
	if err != nil {
		return err
	}

	dir := cfg.Watch.SeedDir
	if len(args) > 0 {
		dir = args[0]
	}
	dir = gardenPath(ws, dir)

	g, err := openGarden(ws, cfg)
	if err != nil {
		return err
	}
	defer g.Close()

	restoreBacklog(ctx, g)

	opts := growthOptions(cfg)
	sink := func(ctx context.Context, seeds []pattern.Draft) error {
		report, err := g.growth.ProcessSeeds(ctx, seeds, opts)
		if err != nil {
			return err
		}
		fmt.Printf("[%s] %d seed(s) in: %d registered, %d captured, Ξ=%.3f\n",
			time.Now().Format("15:04:05"), len(seeds),
			report.Registered, report.Captured, report.Final.XiGlobal)
		backfillEmbeddings(ctx, g)
		return nil
	}

	w, err := seed.NewWatcher(dir, sink)
	if err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	w.SetDebounce(cfg.GetWatchDebounce())

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	if cfg.Watch.ShouldScanExisting() {
		if err := w.ScanExisting(ctx); err != nil {
			logger.Warn("Initial seed scan failed", zap.Error(err))
		}
	}

	fmt.Printf("Watching %s (debounce %s). Press Ctrl+C to stop.\n", dir, cfg.GetWatchDebounce())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println()
	fmt.Println("Stopping watcher...")
	w.Stop()

	stats := w.GetStats()
	fmt.Printf("Session: %d file event(s), %d seed(s) loaded, %d run(s), %d error(s)\n",
		stats.FilesSeen, stats.SeedsLoaded, stats.RunsTriggered, stats.Errors)
	return nil
}
