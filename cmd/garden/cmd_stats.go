package main

import (
	"context"
	"fmt"
	"math"
	"sort"

	"codegarden/internal/audit"
	"codegarden/internal/coherence"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statsRescore bool

// statsCmd reports library size and global coherence
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show library size and global coherence",
	Long: `Prints the pattern count per language, the test-proven share, the
global coherence state, and the size of the capture backlog.

With --rescore, every stored pattern is first replayed through the
oracle and scores that moved are persisted, dimensions included.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsRescore, "rescore", false, "Replay every stored pattern through the oracle first")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

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

	if statsRescore {
		if err := rescoreLibrary(ctx, g); err != nil {
			return err
		}
	}

	patterns, err := g.store.All(ctx)
	if err != nil {
		return fmt.Errorf("reading library: %w", err)
	}

	fmt.Println("Garden Statistics")
	fmt.Println("=================")
	fmt.Printf("Patterns: %d\n", len(patterns))

	if len(patterns) > 0 {
		byLang := make(map[string]int)
		proven := 0
		for _, p := range patterns {
			byLang[p.Language]++
			if p.TestProof != "" {
				proven++
			}
		}
		langs := make([]string, 0, len(byLang))
		for l := range byLang {
			langs = append(langs, l)
		}
		sort.Strings(langs)
		for _, l := range langs {
			fmt.Printf("  %-14s %d\n", l, byLang[l])
		}
		fmt.Printf("Test-proven: %d\n", proven)
	}

	coherences, err := g.store.Coherences(ctx)
	if err != nil {
		return fmt.Errorf("reading coherences: %w", err)
	}
	state := g.tracker.Update(coherences)

	fmt.Println()
	fmt.Println("Global Coherence")
	fmt.Printf("  Ξ_global:    %.3f\n", state.XiGlobal)
	fmt.Printf("  Recognition: %.3f\n", state.AvgRecognition)
	fmt.Printf("  Cascade:     %.3f\n", state.CascadeBoost)

	restoreBacklog(ctx, g)
	fmt.Println()
	fmt.Printf("Pending captures: %d\n", g.recycler.BacklogSize())

	// Lifetime recycler activity lives in the capture log, not in any
	// single process.
	entries, err := g.auditLog.Replay(ctx, audit.DefaultReplayLimit)
	if err != nil {
		logger.Warn("Capture log replay failed", zap.Error(err))
	} else if len(entries) > 0 {
		events := make(map[string]int)
		for _, e := range entries {
			events[e.Event]++
		}
		fmt.Printf("Capture log (last %d entries): %d captured, %d healed, %d exhausted\n",
			len(entries), events[audit.EventCaptured], events[audit.EventRecycled], events[audit.EventExhausted])
	}

	if cfg.Embedding.Provider == "" {
		fmt.Println("Similarity search: disabled (set embedding.provider to enable)")
	}
	return nil
}

// rescoreLibrary replays every stored pattern through the oracle and
// persists scores that moved. Dimensions are refreshed together with
// the composite so the stored breakdown never goes stale.
func rescoreLibrary(ctx context.Context, g *garden) error {
	patterns, err := g.store.All(ctx)
	if err != nil {
		return fmt.Errorf("reading library: %w", err)
	}

	moved := 0
	for _, p := range patterns {
		d := p.Snapshot()
		score, err := g.oracle.Score(ctx, d.Code, d.Language, coherence.Metadata{
			Description: d.Description,
			Tags:        d.Tags,
			TestPassed:  d.TestPassed,
			Reliability: d.Reliability,
		})
		if err != nil {
			logger.Warn("Rescore failed, keeping stored score",
				zap.String("pattern", p.Name), zap.Error(err))
			continue
		}
		if math.Abs(score.Composite-p.Coherence) < 1e-9 {
			continue
		}
		if err := g.store.UpdateScore(ctx, p.ID, score.Composite, score.Dimensions); err != nil {
			return fmt.Errorf("storing rescored coherence for %q: %w", p.Name, err)
		}
		moved++
	}

	fmt.Printf("Rescored %d pattern(s), %d moved\n", len(patterns), moved)
	return nil
}
