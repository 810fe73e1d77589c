// Package growth turns a small seed set into a compounding library. A run
// is a bounded sequence of waves: wave 0 submits the seeds themselves, and
// each later wave derives variants from whatever the previous wave proved.
// Every candidate passes through the recycler's single registration gate,
// so growth failures are captured and healed exactly like user submissions.
package growth

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"codegarden/internal/coherence"
	"codegarden/internal/logging"
	"codegarden/internal/pattern"
	"codegarden/internal/recycler"
	"codegarden/internal/reflection"
	"codegarden/internal/store"
	"codegarden/internal/transpile"
)

// =============================================================================
// GROWTH ENGINE - WAVES OF DESCENT FROM THE PROVEN SET
// =============================================================================

// Viability screens generated code before it may attempt registration.
type Viability interface {
	Check(ctx context.Context, code, language string) bool
}

// Options bounds one growth run.
type Options struct {
	// Depth is the number of variant waves after wave 0.
	Depth int
	// MaxVariantsPerPattern caps the per-source variant budget used to size
	// the wave. With BatchMultiplier it bounds the sources a wave may visit.
	MaxVariantsPerPattern int
	// BatchMultiplier scales MaxVariantsPerPattern into the per-wave source cap.
	BatchMultiplier int
	// TargetLanguages lists the language-variant targets.
	TargetLanguages []string
	// Parallelism bounds concurrent variant generation within one wave.
	Parallelism int
	// ApproachSwapLoops / ApproachSwapTarget give swaps their short
	// exploratory reflection budget.
	ApproachSwapLoops  int
	ApproachSwapTarget float64
	// RefineLoops / RefineTarget drive the stricter refinement pass.
	RefineLoops  int
	RefineTarget float64
}

// DefaultOptions returns the standard growth bounds.
func DefaultOptions() Options {
	return Options{
		Depth:                 2,
		MaxVariantsPerPattern: 3,
		BatchMultiplier:       10,
		TargetLanguages:       []string{"python", "javascript"},
		Parallelism:           4,
		ApproachSwapLoops:     2,
		ApproachSwapTarget:    0.85,
		RefineLoops:           2,
		RefineTarget:          0.95,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Depth <= 0 {
		o.Depth = def.Depth
	}
	if o.MaxVariantsPerPattern <= 0 {
		o.MaxVariantsPerPattern = def.MaxVariantsPerPattern
	}
	if o.BatchMultiplier <= 0 {
		o.BatchMultiplier = def.BatchMultiplier
	}
	if len(o.TargetLanguages) == 0 {
		o.TargetLanguages = def.TargetLanguages
	}
	if o.Parallelism <= 0 {
		o.Parallelism = def.Parallelism
	}
	if o.ApproachSwapLoops <= 0 {
		o.ApproachSwapLoops = def.ApproachSwapLoops
	}
	if o.ApproachSwapTarget <= 0 {
		o.ApproachSwapTarget = def.ApproachSwapTarget
	}
	if o.RefineLoops <= 0 {
		o.RefineLoops = def.RefineLoops
	}
	if o.RefineTarget <= 0 {
		o.RefineTarget = def.RefineTarget
	}
	return o
}

// WaveReport counts one wave's outcomes. Wave 0 submits seeds, so its
// Generated stays zero; later waves submit variants.
type WaveReport struct {
	Wave       int             `json:"wave"`
	Sources    int             `json:"sources"`
	Generated  int             `json:"generated"`
	Submitted  int             `json:"submitted"`
	Registered int             `json:"registered"`
	Captured   int             `json:"captured"`
	Rejected   int             `json:"rejected"`
	Deduped    int             `json:"deduped"`
	Proven     int             `json:"proven"`
	Heal       recycler.Report `json:"heal"`
}

// RunReport aggregates a full growth run. Registered includes patterns that
// entered through healing, not just first-try registrations.
type RunReport struct {
	Waves      []WaveReport          `json:"waves"`
	Registered int                   `json:"registered"`
	Captured   int                   `json:"captured"`
	Final      coherence.GlobalState `json:"final"`
}

func (r *RunReport) add(w WaveReport) {
	r.Waves = append(r.Waves, w)
	r.Registered += w.Registered + w.Heal.Healed
	r.Captured += w.Captured
}

// Stats tracks engine totals across runs.
type Stats struct {
	Runs               int
	WavesRun           int
	SeedsSubmitted     int
	VariantsGenerated  int
	VariantsRegistered int
	Captured           int
	Deduped            int
}

// Engine orchestrates growth waves over the shared store, recycler, and
// reflection loop.
type Engine struct {
	store      store.Store
	tracker    *coherence.Tracker
	recycler   *recycler.Recycler
	reflector  *reflection.Reflector
	transpiler transpile.Transpiler
	checker    Viability

	mu    sync.Mutex
	stats Stats
}

// New creates a growth engine. A nil transpiler or checker falls back to the
// built-in rule transpiler and viability checker.
func New(st store.Store, tracker *coherence.Tracker, rec *recycler.Recycler, reflector *reflection.Reflector, transpiler transpile.Transpiler, checker Viability) *Engine {
	if transpiler == nil {
		transpiler = transpile.NewRuleTranspiler()
	}
	if checker == nil {
		checker = transpile.NewChecker()
	}
	return &Engine{
		store:      st,
		tracker:    tracker,
		recycler:   rec,
		reflector:  reflector,
		transpiler: transpiler,
		checker:    checker,
	}
}

// ProcessSeeds runs one growth cycle: submit the seeds, heal, then fan out
// variant waves until depth is reached or a wave proves nothing new.
func (e *Engine) ProcessSeeds(ctx context.Context, seeds []pattern.Draft, opts Options) (*RunReport, error) {
	opts = opts.withDefaults()
	timer := logging.StartTimer(logging.CategoryGrowth, "ProcessSeeds")
	defer timer.Stop()

	logging.Growth("Growth run started: %d seeds, depth=%d, targets=%v",
		len(seeds), opts.Depth, opts.TargetLanguages)

	e.mu.Lock()
	e.stats.Runs++
	e.mu.Unlock()

	report := &RunReport{}

	// Warm the tracker from the persisted library before any wave runs.
	e.refreshGlobal(ctx)

	// queued holds every name submitted this run; the store covers names
	// proven in earlier runs.
	queued := make(map[string]bool)

	wave, carry, err := e.runSeedWave(ctx, seeds, queued)
	if err != nil {
		return report, err
	}
	report.add(wave)
	e.bumpStats(wave)
	state := e.refreshGlobal(ctx)

	for waveNum := 1; waveNum <= opts.Depth; waveNum++ {
		if len(carry) == 0 {
			logging.Growth("Carry-forward empty after wave %d, stopping", waveNum-1)
			break
		}
		wave, next, err := e.runVariantWave(ctx, waveNum, carry, state, opts, queued)
		if err != nil {
			return report, err
		}
		report.add(wave)
		e.bumpStats(wave)
		carry = next
		state = e.refreshGlobal(ctx)
	}

	report.Final = state
	logging.Growth("Growth run complete: %d registered, %d captured, %d waves, xi=%.3f",
		report.Registered, report.Captured, len(report.Waves), state.XiGlobal)
	return report, nil
}

// runSeedWave submits every seed through the registration gate, heals once,
// and collects what the wave proved.
func (e *Engine) runSeedWave(ctx context.Context, seeds []pattern.Draft, queued map[string]bool) (WaveReport, []*pattern.Pattern, error) {
	wave := WaveReport{Wave: 0, Sources: len(seeds)}

	before, err := e.snapshotNames(ctx)
	if err != nil {
		return wave, nil, fmt.Errorf("snapshotting proven set: %w", err)
	}

	for _, seed := range seeds {
		if err := ctx.Err(); err != nil {
			return wave, nil, err
		}
		if queued[seed.Name] {
			wave.Deduped++
			continue
		}
		queued[seed.Name] = true
		wave.Submitted++
		e.submitDraft(ctx, &wave, seed)
	}

	heal, err := e.recycler.RecycleFailed(ctx, "")
	if err != nil {
		return wave, nil, err
	}
	wave.Heal = heal

	carry, err := e.newlyProven(ctx, before)
	if err != nil {
		return wave, nil, fmt.Errorf("collecting wave 0 registrants: %w", err)
	}
	wave.Proven = len(carry)

	logging.Growth("Wave 0: %d seeds -> %d registered, %d captured, heal healed=%d exhausted=%d",
		wave.Submitted, wave.Registered, wave.Captured, heal.Healed, heal.Exhausted)
	return wave, carry, nil
}

// runVariantWave fans out variant generation over the carry-forward set in
// parallel, then registers the results serially in wave order.
func (e *Engine) runVariantWave(ctx context.Context, waveNum int, carry []*pattern.Pattern, state coherence.GlobalState, opts Options, queued map[string]bool) (WaveReport, []*pattern.Pattern, error) {
	sources := carry
	if budget := opts.MaxVariantsPerPattern * opts.BatchMultiplier; len(sources) > budget {
		sources = sources[:budget]
	}
	wave := WaveReport{Wave: waveNum, Sources: len(sources)}

	before, err := e.snapshotNames(ctx)
	if err != nil {
		return wave, nil, fmt.Errorf("snapshotting proven set: %w", err)
	}

	results := make([]genResult, len(sources))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Parallelism)
	for i, src := range sources {
		eg.Go(func() error {
			res, err := e.generateVariants(egCtx, src, state, opts)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return wave, nil, err
	}

	// Registration order follows source order, not worker finish order.
	for _, res := range results {
		wave.Rejected += res.rejected
		for _, v := range res.variants {
			wave.Generated++
			if queued[v.Draft.Name] {
				wave.Deduped++
				continue
			}
			queued[v.Draft.Name] = true
			wave.Submitted++
			e.submitDraft(ctx, &wave, v.Draft)
		}
	}

	heal, err := e.recycler.RecycleFailed(ctx, "")
	if err != nil {
		return wave, nil, err
	}
	wave.Heal = heal

	next, err := e.newlyProven(ctx, before)
	if err != nil {
		return wave, nil, fmt.Errorf("collecting wave %d registrants: %w", waveNum, err)
	}
	wave.Proven = len(next)

	logging.Growth("Wave %d: %d sources -> %d generated, %d registered, %d captured, %d deduped, heal healed=%d exhausted=%d",
		waveNum, wave.Sources, wave.Generated, wave.Registered, wave.Captured, wave.Deduped, heal.Healed, heal.Exhausted)
	return wave, next, nil
}

// submitDraft pushes one draft through the recycler gate and tallies the
// outcome. Submission faults skip the draft unless the context is gone.
func (e *Engine) submitDraft(ctx context.Context, wave *WaveReport, d pattern.Draft) {
	out, err := e.recycler.Submit(ctx, d)
	if err != nil {
		if ctx.Err() == nil {
			logging.GrowthWarn("submission of %q failed: %v", d.Name, err)
		}
		wave.Rejected++
		return
	}
	switch {
	case out.Registered:
		wave.Registered++
	case out.Failure != nil:
		wave.Captured++
	case out.Reason == store.ReasonDuplicateName:
		wave.Deduped++
	default:
		wave.Rejected++
	}
}

func (e *Engine) snapshotNames(ctx context.Context) (map[string]bool, error) {
	all, err := e.store.All(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(all))
	for _, p := range all {
		names[p.Name] = true
	}
	return names, nil
}

// newlyProven returns the patterns registered since the before snapshot, in
// store order. Healed backlog entries count: they registered this wave.
func (e *Engine) newlyProven(ctx context.Context, before map[string]bool) ([]*pattern.Pattern, error) {
	all, err := e.store.All(ctx)
	if err != nil {
		return nil, err
	}
	var fresh []*pattern.Pattern
	for _, p := range all {
		if !before[p.Name] {
			fresh = append(fresh, p)
		}
	}
	return fresh, nil
}

// refreshGlobal recomputes the tracker from the proven set, keeping the last
// known state when the store read fails.
func (e *Engine) refreshGlobal(ctx context.Context) coherence.GlobalState {
	coherences, err := e.store.Coherences(ctx)
	if err != nil {
		logging.GrowthWarn("reading coherences for global recompute: %v", err)
		return e.tracker.Current()
	}
	return e.tracker.Update(coherences)
}

func (e *Engine) bumpStats(w WaveReport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.WavesRun++
	e.stats.Captured += w.Captured
	e.stats.Deduped += w.Deduped
	if w.Wave == 0 {
		e.stats.SeedsSubmitted += w.Submitted
	} else {
		e.stats.VariantsGenerated += w.Generated
		e.stats.VariantsRegistered += w.Registered
	}
}

// GetStats returns a copy of the engine totals.
func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// ResetStats clears the engine totals.
func (e *Engine) ResetStats() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats = Stats{}
}
