package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var healLanguage string

// healCmd runs one healing cycle over the capture backlog
var healCmd = &cobra.Command{
	Use:   "heal",
	Short: "Recycle captured failures through the reflection loop",
	Long: `Restores the capture backlog from the audit log and runs one healing
cycle over it. Each pending capture is reflected on and resubmitted
until it registers, or exhausts its attempts and is composted for good.`,
	RunE: runHeal,
}

func init() {
	healCmd.Flags().StringVar(&healLanguage, "language", "", "Heal only captures for this language")
	rootCmd.AddCommand(healCmd)
}

func runHeal(cmd *cobra.Command, args []string) error {
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

	g, err := openGarden(ws, cfg)
	if err != nil {
		return err
	}
	defer g.Close()

	restoreBacklog(ctx, g)
	pending := g.recycler.BacklogSize()
	if pending == 0 {
		fmt.Println("Backlog is empty. Nothing to heal.")
		return nil
	}

	fmt.Printf("Healing %d pending capture(s)...\n", pending)
	report, err := g.recycler.RecycleFailed(ctx, healLanguage)
	if err != nil {
		return fmt.Errorf("heal cycle failed: %w", err)
	}

	fmt.Println()
	fmt.Printf("✓ Healed:    %d\n", report.Healed)
	if report.Exhausted > 0 {
		fmt.Printf("✗ Exhausted: %d\n", report.Exhausted)
	}
	if report.Skipped > 0 {
		fmt.Printf("  Skipped:   %d\n", report.Skipped)
	}
	fmt.Printf("  Remaining: %d\n", report.Remaining)

	backfillEmbeddings(ctx, g)
	return nil
}
