package embedding

import (
	"context"
	"fmt"
	"sort"

	"codegarden/internal/logging"
	"codegarden/internal/pattern"
)

// =============================================================================
// SIMILARITY SEARCH - FIND THE PATTERN YOU ALMOST WROTE
// =============================================================================

// Library is the slice of the pattern store that similarity search needs.
// Both the SQLite store and the memory store satisfy it.
type Library interface {
	All(ctx context.Context) ([]*pattern.Pattern, error)
	Embeddings(ctx context.Context) (map[string][]float32, error)
	SetEmbedding(ctx context.Context, id string, vec []float32) error
}

// Match pairs a proven pattern with its similarity to the query.
type Match struct {
	Pattern    *pattern.Pattern `json:"pattern"`
	Similarity float64          `json:"similarity"`
}

// PatternText composes the text that gets embedded for a pattern. The index
// and query sides must agree on this composition; changing it silently
// invalidates every stored vector.
func PatternText(p *pattern.Pattern) string {
	if p.Description == "" {
		return p.Code
	}
	return p.Description + "\n\n" + p.Code
}

// Searcher ranks the proven library against a query snippet. Vectors are
// persisted through the Library, so a pattern is embedded once and reread
// on every later search.
type Searcher struct {
	engine Engine
	lib    Library
}

// NewSearcher creates a searcher over the given library.
func NewSearcher(engine Engine, lib Library) *Searcher {
	return &Searcher{engine: engine, lib: lib}
}

// Backfill embeds every pattern that has no stored vector yet and returns
// how many were filled in. Store write failures are logged and skipped; the
// error return is reserved for the engine being unable to embed at all.
func (s *Searcher) Backfill(ctx context.Context) (int, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "Searcher.Backfill")
	defer timer.Stop()

	pats, err := s.lib.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load patterns: %w", err)
	}
	vecs, err := s.lib.Embeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load embeddings: %w", err)
	}

	var missing []*pattern.Pattern
	for _, p := range pats {
		if _, ok := vecs[p.ID]; !ok {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	if hc, ok := s.engine.(HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return 0, fmt.Errorf("embedding backend unavailable: %w", err)
		}
	}

	logging.Embedding("Backfilling embeddings for %d of %d patterns via %s", len(missing), len(pats), s.engine.Name())

	texts := make([]string, len(missing))
	for i, p := range missing {
		texts[i] = PatternText(p)
	}
	embedded, err := s.engine.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed patterns: %w", err)
	}

	filled := 0
	for i, p := range missing {
		if err := s.lib.SetEmbedding(ctx, p.ID, embedded[i]); err != nil {
			logging.EmbeddingWarn("Failed to store embedding for %q: %v", p.Name, err)
			continue
		}
		filled++
	}
	return filled, nil
}

// Similar returns the k proven patterns closest to the query text, best
// first. Patterns without a stored vector are backfilled first, best effort:
// a failed backfill narrows the search to whatever is already embedded
// instead of aborting it.
func (s *Searcher) Similar(ctx context.Context, query string, k int) ([]Match, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "Searcher.Similar")
	defer timer.Stop()

	if k <= 0 {
		k = 10
	}

	qvec, err := s.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	if _, err := s.Backfill(ctx); err != nil {
		logging.EmbeddingWarn("Backfill before search failed: %v", err)
	}

	pats, err := s.lib.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load patterns: %w", err)
	}
	vecs, err := s.lib.Embeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}

	matches := make([]Match, 0, len(pats))
	skipped := 0
	for _, p := range pats {
		vec, ok := vecs[p.ID]
		if !ok {
			skipped++
			continue
		}
		sim, err := CosineSimilarity(qvec, vec)
		if err != nil {
			// Stored under a different model, most likely.
			skipped++
			continue
		}
		matches = append(matches, Match{Pattern: p, Similarity: sim})
	}
	if skipped > 0 {
		logging.EmbeddingWarn("Similarity search skipped %d of %d patterns without comparable vectors", skipped, len(pats))
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Pattern.Name < matches[j].Pattern.Name
	})
	if len(matches) > k {
		matches = matches[:k]
	}

	logging.EmbeddingDebug("Similarity search returned %d matches (requested %d)", len(matches), k)
	return matches, nil
}
