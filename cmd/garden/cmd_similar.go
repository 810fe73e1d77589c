package main

import (
	"context"
	"fmt"
	"os"

	"codegarden/internal/config"

	"github.com/spf13/cobra"
)

var similarTop int

// similarCmd ranks the library against a code sample
var similarCmd = &cobra.Command{
	Use:   "similar [file]",
	Short: "Find stored patterns closest to a code sample",
	Long: `Embeds the given file and ranks the library by cosine similarity.

Needs an embedding provider: set embedding.provider in config.yaml, or
export GEMINI_API_KEY to use the GenAI embedder.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimilar,
}

func init() {
	similarCmd.Flags().IntVarP(&similarTop, "top", "k", 5, "Number of matches to show")
	rootCmd.AddCommand(similarCmd)
}

func runSimilar(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ws := resolveWorkspace()
	cfg, err := loadGardenConfig(ws)
	if err != nil {
		return err
	}
	if cfg.Embedding.Provider == "" {
		return fmt.Errorf("similarity search is disabled: set embedding.provider in %s or export GEMINI_API_KEY", config.ConfigPath(ws))
	}

	query, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading query file: %w", err)
	}

	g, err := openGarden(ws, cfg)
	if err != nil {
		return err
	}
	defer g.Close()
	if g.searcher == nil {
		return fmt.Errorf("embedding engine unavailable, check the embedding section of %s", config.ConfigPath(ws))
	}

	matches, err := g.searcher.Similar(ctx, string(query), similarTop)
	if err != nil {
		return fmt.Errorf("similarity search failed: %w", err)
	}
	if len(matches) == 0 {
		fmt.Println("No similar patterns found. The library may be empty; run 'garden grow' first.")
		return nil
	}

	fmt.Printf("Closest patterns to %s:\n\n", args[0])
	for i, m := range matches {
		fmt.Printf("%2d. %-28s %-12s similarity %.3f  coherence %.2f\n",
			i+1, m.Pattern.Name, m.Pattern.Language, m.Similarity, m.Pattern.Coherence)
	}
	return nil
}
