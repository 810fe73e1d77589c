package reflection

import (
	"context"
	"fmt"
	"sort"

	"codegarden/internal/coherence"
	"codegarden/internal/logging"
)

// =============================================================================
// REFLECTION LOOP - BOUNDED LOCAL SEARCH OVER THE STRATEGY PALETTE
// =============================================================================

// Defaults observed across the garden.
const (
	DefaultMaxLoops        = 5
	DefaultTargetCoherence = 0.9
	DefaultDropThreshold   = 0.05
)

// Request describes one healing run.
type Request struct {
	Code     string
	Language string

	// MaxLoops bounds the iteration count. Zero means DefaultMaxLoops.
	MaxLoops int

	// TargetCoherence stops the loop once the composite reaches it.
	// Zero means DefaultTargetCoherence.
	TargetCoherence float64

	// CascadeBoost is bias context from the global tracker. It shades
	// candidate ranking only; it never multiplies scores. Values below 1
	// are lifted to 1.
	CascadeBoost float64

	// DropThreshold is the per-dimension regression tolerance for the
	// monotonicity guard. Zero means DefaultDropThreshold.
	DropThreshold float64

	// GuidanceExamples, when present, unlock the guided-by-example
	// strategy. Only the first example steers the rewrite.
	GuidanceExamples []string

	// Observer, when non-nil, is called once per iteration. Panics in the
	// observer are swallowed; observation never aborts healing.
	Observer func(IterationReport)
}

// IterationReport is the per-iteration observer payload.
type IterationReport struct {
	Loop           int
	Strategy       Strategy
	Composite      float64
	CandidateCount int
	Accepted       bool
}

// StepRecord is one history entry: which strategy won the iteration and
// what it did to the composite.
type StepRecord struct {
	Loop     int      `json:"loop"`
	Strategy Strategy `json:"strategy"`
	Before   float64  `json:"before"`
	After    float64  `json:"after"`
	Changed  bool     `json:"changed"`
}

// Result is the healed code with its final verdict and the full history.
type Result struct {
	Code       string             `json:"code"`
	Composite  float64            `json:"composite"`
	Dimensions map[string]float64 `json:"dimensions"`
	LoopsRun   int                `json:"loops_run"`
	History    []StepRecord       `json:"history"`
}

// candidate is ephemeral: it lives inside one loop iteration and is
// discarded once the winner is chosen.
type candidate struct {
	strategy        Strategy
	code            string
	score           coherence.Score
	reflectionScore float64
	changed         bool
}

// Reflector runs the loop against a coherence oracle.
type Reflector struct {
	oracle coherence.Oracle
}

// New creates a Reflector.
func New(oracle coherence.Oracle) *Reflector {
	return &Reflector{oracle: oracle}
}

// Reflect heals code via bounded local search. Each iteration generates the
// full strategy palette, scores every distinct candidate, ranks them, and
// accepts the first ranked candidate that passes the monotonicity guard:
// no tracked dimension may drop by more than DropThreshold relative to the
// current state. When every candidate violates the guard the iteration
// holds, and because the palette is deterministic a hold (or an accepted
// no-op) is a fixpoint, so the loop exits early rather than replaying
// identical iterations.
func (r *Reflector) Reflect(ctx context.Context, req Request) (Result, error) {
	if req.MaxLoops <= 0 {
		req.MaxLoops = DefaultMaxLoops
	}
	if req.TargetCoherence <= 0 {
		req.TargetCoherence = DefaultTargetCoherence
	}
	if req.DropThreshold <= 0 {
		req.DropThreshold = DefaultDropThreshold
	}
	if req.CascadeBoost < 1 {
		req.CascadeBoost = 1
	}

	current, err := r.oracle.Score(ctx, req.Code, req.Language, coherence.Metadata{})
	if err != nil {
		return Result{}, fmt.Errorf("scoring input: %w", err)
	}

	result := Result{
		Code:       req.Code,
		Composite:  current.Composite,
		Dimensions: current.Clone().Dimensions,
	}

	timer := logging.StartTimer(logging.CategoryReflection, "reflect")
	defer timer.Stop()

	for result.LoopsRun < req.MaxLoops && result.Composite < req.TargetCoherence {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.LoopsRun++

		candidates := r.generate(ctx, req, result.Code)
		if len(candidates) == 0 {
			r.recordHold(&result, req)
			break
		}

		rank(candidates, result.Composite, req)

		winner := firstWithinGuard(candidates, result.Dimensions, req.DropThreshold)
		if winner == nil {
			r.recordHold(&result, req)
			break
		}

		result.History = append(result.History, StepRecord{
			Loop:     result.LoopsRun,
			Strategy: winner.strategy,
			Before:   result.Composite,
			After:    winner.score.Composite,
			Changed:  winner.changed,
		})
		logging.Reflection("loop %d accepted %s: %.3f -> %.3f",
			result.LoopsRun, winner.strategy, result.Composite, winner.score.Composite)

		unchanged := !winner.changed
		result.Code = winner.code
		result.Composite = winner.score.Composite
		result.Dimensions = winner.score.Clone().Dimensions

		notify(req.Observer, IterationReport{
			Loop:           result.LoopsRun,
			Strategy:       winner.strategy,
			Composite:      result.Composite,
			CandidateCount: len(candidates),
			Accepted:       true,
		})

		// An accepted no-op cannot progress on the next pass either.
		if unchanged {
			break
		}
	}

	return result, nil
}

// generate produces the deduplicated candidate palette for the current
// code, already scored. Candidates whose scoring fails are skipped.
func (r *Reflector) generate(ctx context.Context, req Request, code string) []*candidate {
	type namedTransform struct {
		strategy Strategy
		apply    func(string, string) string
	}
	palette := []namedTransform{
		{StrategySimplify, applySimplify},
		{StrategyHarden, applyHarden},
		{StrategyReadability, applyReadability},
		{StrategyUnifyStyle, applyUnifyStyle},
		{StrategyCorrectness, applyCorrectness},
		{StrategyFullHeal, applyFullHeal},
	}
	if len(req.GuidanceExamples) > 0 {
		example := req.GuidanceExamples[0]
		palette = append(palette, namedTransform{StrategyGuided, func(c, l string) string {
			return applyGuided(c, l, example)
		}})
	}

	seen := make(map[string]bool, len(palette))
	out := make([]*candidate, 0, len(palette))
	for _, nt := range palette {
		rewritten := nt.apply(code, req.Language)
		if seen[rewritten] {
			continue
		}
		seen[rewritten] = true

		score, err := r.oracle.Score(ctx, rewritten, req.Language, coherence.Metadata{})
		if err != nil {
			logging.ReflectionWarn("strategy %s: scoring failed, skipping candidate: %v", nt.strategy, err)
			continue
		}
		out = append(out, &candidate{
			strategy: nt.strategy,
			code:     rewritten,
			score:    score,
			changed:  rewritten != code,
		})
	}
	return out
}

// rank computes reflection scores and sorts candidates best-first. The
// score folds in the delta against the current state and the cascade and
// target context as an ordering bias; ties break on raw composite.
func rank(candidates []*candidate, currentComposite float64, req Request) {
	for _, c := range candidates {
		delta := c.score.Composite - currentComposite
		pull := req.CascadeBoost * (req.TargetCoherence - c.score.Composite)
		c.reflectionScore = c.score.Composite + 0.3*delta + 0.1*pull
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].reflectionScore != candidates[j].reflectionScore {
			return candidates[i].reflectionScore > candidates[j].reflectionScore
		}
		return candidates[i].score.Composite > candidates[j].score.Composite
	})
}

// firstWithinGuard walks ranked candidates and returns the first one that
// does not drop any tracked dimension by more than the threshold. Nil
// means every candidate degraded some axis beyond tolerance.
func firstWithinGuard(candidates []*candidate, current map[string]float64, threshold float64) *candidate {
	for _, c := range candidates {
		if withinGuard(current, c.score.Dimensions, threshold) {
			return c
		}
	}
	return nil
}

func withinGuard(current, proposed map[string]float64, threshold float64) bool {
	for dim, base := range current {
		if base-proposed[dim] > threshold {
			return false
		}
	}
	return true
}

// recordHold logs the iteration where no candidate survived the guard.
func (r *Reflector) recordHold(result *Result, req Request) {
	result.History = append(result.History, StepRecord{
		Loop:     result.LoopsRun,
		Strategy: StrategyHold,
		Before:   result.Composite,
		After:    result.Composite,
		Changed:  false,
	})
	logging.Reflection("loop %d held: every candidate breached the dimension guard", result.LoopsRun)
	notify(req.Observer, IterationReport{
		Loop:      result.LoopsRun,
		Strategy:  StrategyHold,
		Composite: result.Composite,
		Accepted:  false,
	})
}

// notify invokes the observer, swallowing panics. Observation must never
// abort healing.
func notify(observer func(IterationReport), report IterationReport) {
	if observer == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logging.ReflectionWarn("observer panicked on loop %d: %v", report.Loop, rec)
		}
	}()
	observer(report)
}
