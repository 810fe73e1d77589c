// Package recycler captures rejected pattern submissions and heals them back
// toward the acceptance threshold. A failure is compost, not garbage: it is
// tracked through pending -> healing -> {recycled|exhausted}, healed output
// compounds across attempts, and attempts are bounded for the lifetime of the
// capture. The recycler is also the single registration gate, so every path
// into the store (fresh submissions, heal retries, growth variants) passes
// the same coherence check.
package recycler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"codegarden/internal/audit"
	"codegarden/internal/coherence"
	"codegarden/internal/logging"
	"codegarden/internal/pattern"
	"codegarden/internal/reflection"
	"codegarden/internal/store"
)

// =============================================================================
// FAILURE RECYCLER - EVERY FAILURE IS COMPOST
// =============================================================================

// Rejection reasons produced by the submission gate. Store-level duplicate
// rejection reuses store.ReasonDuplicateName.
const (
	ReasonEmptyCode    = "empty-code"
	ReasonLowCoherence = "low-coherence"
)

// Config tunes the recycler. Zero fields fall back to defaults.
type Config struct {
	MaxHealAttempts          int     // lifetime attempt bound per capture
	AcceptanceThreshold      float64 // composite floor for registration
	VoidScaffoldThreshold    float64 // previous-attempt score that triggers replenishment
	VoidScaffoldMinCoherency float64 // coherence floor for scaffold sources
	MaxPendingPerCycle       int     // backlog slice handled per cycle
	HealMaxLoops             int     // reflection loop bound per attempt
	HealTargetCoherence      float64 // reflection target per attempt
	DropThreshold            float64 // per-dimension regression tolerance
}

// DefaultConfig returns the observed defaults.
func DefaultConfig() Config {
	return Config{
		MaxHealAttempts:          3,
		AcceptanceThreshold:      0.7,
		VoidScaffoldThreshold:    0.3,
		VoidScaffoldMinCoherency: 0.8,
		MaxPendingPerCycle:       50,
		HealMaxLoops:             reflection.DefaultMaxLoops,
		HealTargetCoherence:      reflection.DefaultTargetCoherence,
		DropThreshold:            reflection.DefaultDropThreshold,
	}
}

// Stats tracks lifetime recycler activity.
type Stats struct {
	Captured      int
	Healed        int
	Exhausted     int
	AttemptsRun   int
	VoidScaffolds int
}

// Report summarizes one recycling cycle. Rejection and exhaustion are data;
// the operator sees counts, never stack traces.
type Report struct {
	Selected  int `json:"selected"`
	Healed    int `json:"healed"`
	Exhausted int `json:"exhausted"`
	Skipped   int `json:"skipped"`
	Remaining int `json:"remaining"`
}

// SubmitOutcome is the submission gate's verdict on one draft.
type SubmitOutcome struct {
	Registered bool
	Reason     string
	Pattern    *pattern.Pattern
	Failure    *pattern.CapturedFailure
	Score      coherence.Score
}

// Recycler owns the captured-failure backlog and the registration gate.
type Recycler struct {
	store     store.Store
	oracle    coherence.Oracle
	tracker   *coherence.Tracker
	reflector *reflection.Reflector
	auditLog  *audit.Log

	cfg Config

	mu      sync.Mutex
	entries map[string]*pattern.CapturedFailure
	stats   Stats
}

// New creates a Recycler. The audit log may be nil: capture persistence is
// best-effort and its absence never blocks healing.
func New(st store.Store, oracle coherence.Oracle, tracker *coherence.Tracker, reflector *reflection.Reflector, auditLog *audit.Log, cfg Config) *Recycler {
	def := DefaultConfig()
	if cfg.MaxHealAttempts <= 0 {
		cfg.MaxHealAttempts = def.MaxHealAttempts
	}
	if cfg.AcceptanceThreshold <= 0 {
		cfg.AcceptanceThreshold = def.AcceptanceThreshold
	}
	if cfg.VoidScaffoldThreshold <= 0 {
		cfg.VoidScaffoldThreshold = def.VoidScaffoldThreshold
	}
	if cfg.VoidScaffoldMinCoherency <= 0 {
		cfg.VoidScaffoldMinCoherency = def.VoidScaffoldMinCoherency
	}
	if cfg.MaxPendingPerCycle <= 0 {
		cfg.MaxPendingPerCycle = def.MaxPendingPerCycle
	}
	if cfg.HealMaxLoops <= 0 {
		cfg.HealMaxLoops = def.HealMaxLoops
	}
	if cfg.HealTargetCoherence <= 0 {
		cfg.HealTargetCoherence = def.HealTargetCoherence
	}
	if cfg.DropThreshold <= 0 {
		cfg.DropThreshold = def.DropThreshold
	}
	return &Recycler{
		store:     st,
		oracle:    oracle,
		tracker:   tracker,
		reflector: reflector,
		auditLog:  auditLog,
		cfg:       cfg,
		entries:   make(map[string]*pattern.CapturedFailure),
	}
}

// =============================================================================
// SUBMISSION GATE
// =============================================================================

// Submit runs a draft through the registration gate. Empty code and name
// collisions are rejected without capture: healing cannot invent code and
// it cannot fix a taken name. Drafts below the acceptance threshold are
// captured for later recycling.
func (r *Recycler) Submit(ctx context.Context, d pattern.Draft) (SubmitOutcome, error) {
	if strings.TrimSpace(d.Code) == "" {
		logging.RecyclerDebug("rejected %q: empty code", d.Name)
		return SubmitOutcome{Reason: ReasonEmptyCode}, nil
	}

	if _, err := r.store.GetByName(ctx, d.Name); err == nil {
		logging.RecyclerDebug("rejected %q: name already proven", d.Name)
		return SubmitOutcome{Reason: store.ReasonDuplicateName}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return SubmitOutcome{}, fmt.Errorf("checking name %q: %w", d.Name, err)
	}

	out, err := r.tryRegister(ctx, d)
	if err != nil {
		return out, err
	}
	if !out.Registered && out.Reason == ReasonLowCoherence {
		detail := fmt.Sprintf("composite %.3f below acceptance threshold %.2f",
			out.Score.Composite, r.cfg.AcceptanceThreshold)
		out.Failure = r.Capture(ctx, d, out.Reason, detail)
	}
	return out, nil
}

// tryRegister scores a draft and registers it when it clears the acceptance
// threshold. It never captures: heal retries reuse it against the same
// capture without minting a second one.
func (r *Recycler) tryRegister(ctx context.Context, d pattern.Draft) (SubmitOutcome, error) {
	score, err := r.oracle.Score(ctx, d.Code, d.Language, coherence.Metadata{
		Description: d.Description,
		Tags:        d.Tags,
		TestPassed:  d.TestPassed,
		Reliability: d.Reliability,
	})
	if err != nil {
		return SubmitOutcome{}, fmt.Errorf("scoring draft %q: %w", d.Name, err)
	}

	out := SubmitOutcome{Score: score}
	if score.Composite < r.cfg.AcceptanceThreshold {
		out.Reason = ReasonLowCoherence
		return out, nil
	}

	reg, err := r.store.Register(ctx, pattern.FromDraft(d, score.Composite, score.Dimensions))
	if err != nil {
		return out, fmt.Errorf("registering %q: %w", d.Name, err)
	}
	out.Registered = reg.Registered
	out.Reason = reg.Reason
	out.Pattern = reg.Pattern
	return out, nil
}

// Capture records a rejected draft as a pending failure and mirrors it to
// the audit log.
func (r *Recycler) Capture(ctx context.Context, d pattern.Draft, reason, detail string) *pattern.CapturedFailure {
	cf := pattern.NewCapturedFailure(d, reason, detail)
	r.mu.Lock()
	r.entries[cf.ID] = cf
	r.stats.Captured++
	r.mu.Unlock()
	r.appendAudit(ctx, audit.EventCaptured, cf)
	logging.Recycler("captured %q (%s): %s", d.Name, reason, detail)
	return cf
}

// =============================================================================
// HEAL CYCLE
// =============================================================================

// RecycleFailed heals the captured backlog, oldest first. An empty language
// filter selects every language. A run with nothing pending returns a zero
// report and touches nothing.
func (r *Recycler) RecycleFailed(ctx context.Context, language string) (Report, error) {
	batch := r.selectBatch(language)
	report := Report{Selected: len(batch)}
	if len(batch) == 0 {
		report.Remaining = r.BacklogSize()
		return report, nil
	}

	timer := logging.StartTimer(logging.CategoryRecycler, "RecycleFailed")
	defer timer.Stop()

	state := r.refreshCascade(ctx)
	logging.Recycler("recycling %d captured failure(s), cascade boost %.3f",
		len(batch), state.CascadeBoost)

	for _, cf := range batch {
		final, err := r.heal(ctx, cf, &state)
		if err != nil {
			report.Remaining = r.BacklogSize()
			return report, err
		}
		switch final {
		case pattern.StatusRecycled:
			report.Healed++
		case pattern.StatusExhausted:
			report.Exhausted++
		default:
			// Oracle fault mid-heal. The entry stays in the backlog.
			report.Skipped++
		}
	}

	report.Remaining = r.BacklogSize()
	logging.Recycler("cycle done: %d healed, %d exhausted, %d skipped, %d remaining",
		report.Healed, report.Exhausted, report.Skipped, report.Remaining)
	return report, nil
}

// heal runs bounded attempts against one capture until it registers or the
// lifetime attempt budget is spent. Healed output carries into the next
// attempt, so progress compounds instead of restarting.
func (r *Recycler) heal(ctx context.Context, cf *pattern.CapturedFailure, state *coherence.GlobalState) (pattern.FailureStatus, error) {
	if cf.Status == pattern.StatusPending {
		if err := cf.Transition(pattern.StatusHealing); err != nil {
			return cf.Status, nil
		}
		r.appendAudit(ctx, audit.EventHealing, cf)
	}

	for cf.Attempts < r.cfg.MaxHealAttempts {
		if err := ctx.Err(); err != nil {
			return cf.Status, err
		}

		req := reflection.Request{
			Code:            cf.Submitted.Code,
			Language:        cf.Submitted.Language,
			MaxLoops:        r.cfg.HealMaxLoops,
			TargetCoherence: r.cfg.HealTargetCoherence,
			DropThreshold:   r.cfg.DropThreshold,
			CascadeBoost:    state.CascadeBoost,
		}

		// Void replenishment: only a previous attempt that landed in the
		// void triggers a scaffold. A first attempt has no previous.
		scaffolded := false
		if last := cf.LastAttempt(); last != nil && last.After < r.cfg.VoidScaffoldThreshold {
			if nearest := r.voidScaffold(ctx, cf); nearest != nil {
				req.Code = ApplyHint(req.Code, BuildHint(nearest))
				req.GuidanceExamples = []string{nearest.Code}
				scaffolded = true
				logging.Recycler("void replenishment for %q: scaffolding from %q (%.3f)",
					cf.Submitted.Name, nearest.Name, nearest.Coherence)
			}
		}

		result, err := r.reflector.Reflect(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return cf.Status, err
			}
			logging.RecyclerWarn("reflect failed for %q, leaving in backlog: %v", cf.Submitted.Name, err)
			return cf.Status, nil
		}

		healedCode := StripHints(result.Code)
		draft := cf.Submitted
		draft.Code = healedCode

		out, err := r.tryRegister(ctx, draft)
		if err != nil {
			if ctx.Err() != nil {
				return cf.Status, err
			}
			logging.RecyclerWarn("registration attempt for %q failed, leaving in backlog: %v", cf.Submitted.Name, err)
			return cf.Status, nil
		}

		attempt := pattern.HealAttempt{
			Strategy: winningStrategy(result.History),
			Before:   attemptBefore(result),
			After:    out.Score.Composite,
			Scaffold: scaffolded,
		}
		r.mu.Lock()
		r.stats.AttemptsRun++
		r.mu.Unlock()

		if out.Registered {
			attempt.Outcome = "registered"
			cf.RecordAttempt(attempt)
			r.appendAudit(ctx, audit.EventAttempt, cf)
			if err := cf.Transition(pattern.StatusRecycled); err != nil {
				logging.RecyclerError("capture %s: %v", cf.ID, err)
			}
			r.appendAudit(ctx, audit.EventRecycled, cf)
			r.mu.Lock()
			r.stats.Healed++
			r.mu.Unlock()
			logging.Recycler("recycled %q on attempt %d: %.3f -> %.3f",
				cf.Submitted.Name, cf.Attempts, attempt.Before, attempt.After)

			// A successful heal raises the garden's coherence; later heals
			// in this batch see the stronger cascade.
			*state = r.refreshCascade(ctx)
			return cf.Status, nil
		}

		reason := out.Reason
		if reason == "" {
			reason = "rejected"
		}
		attempt.Outcome = reason
		cf.RecordAttempt(attempt)
		r.appendAudit(ctx, audit.EventAttempt, cf)
		logging.RecyclerDebug("attempt %d for %q fell short (%s): composite %.3f",
			cf.Attempts, cf.Submitted.Name, reason, attempt.After)

		if reason == store.ReasonDuplicateName {
			// The name was taken mid-heal. Retries cannot help.
			break
		}

		cf.Submitted.Code = healedCode
	}

	if err := cf.Transition(pattern.StatusExhausted); err != nil {
		logging.RecyclerError("capture %s: %v", cf.ID, err)
	}
	r.appendAudit(ctx, audit.EventExhausted, cf)
	r.mu.Lock()
	r.stats.Exhausted++
	r.mu.Unlock()
	logging.Recycler("exhausted %q after %d attempt(s)", cf.Submitted.Name, cf.Attempts)
	return cf.Status, nil
}

// voidScaffold finds the nearest proven pattern to borrow structure from:
// same language, coherence above the scaffold floor, maximum tag overlap.
// Zero overlap still scaffolds from the most coherent candidate.
func (r *Recycler) voidScaffold(ctx context.Context, cf *pattern.CapturedFailure) *pattern.Pattern {
	candidates, err := r.store.ByLanguage(ctx, cf.Submitted.Language)
	if err != nil {
		logging.RecyclerWarn("scaffold lookup for %q failed: %v", cf.Submitted.Name, err)
		return nil
	}

	var best *pattern.Pattern
	bestOverlap := -1
	for _, p := range candidates {
		if p.Coherence < r.cfg.VoidScaffoldMinCoherency {
			continue
		}
		overlap := pattern.TagOverlap(cf.Submitted.Tags, p.Tags)
		if best == nil || overlap > bestOverlap ||
			(overlap == bestOverlap && p.Coherence > best.Coherence) {
			best = p
			bestOverlap = overlap
		}
	}
	if best == nil {
		return nil
	}

	if err := r.store.TouchUsage(ctx, best.ID); err != nil {
		logging.RecyclerDebug("usage touch for scaffold %q failed: %v", best.Name, err)
	}
	r.mu.Lock()
	r.stats.VoidScaffolds++
	r.mu.Unlock()
	return best
}

// =============================================================================
// BACKLOG MANAGEMENT
// =============================================================================

// selectBatch snapshots the non-terminal backlog, oldest capture first,
// bounded by MaxPendingPerCycle.
func (r *Recycler) selectBatch(language string) []*pattern.CapturedFailure {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch := make([]*pattern.CapturedFailure, 0, len(r.entries))
	for _, cf := range r.entries {
		if cf.Status.Terminal() {
			continue
		}
		if language != "" && cf.Submitted.Language != language {
			continue
		}
		batch = append(batch, cf)
	}
	sort.Slice(batch, func(i, j int) bool {
		if !batch[i].CapturedAt.Equal(batch[j].CapturedAt) {
			return batch[i].CapturedAt.Before(batch[j].CapturedAt)
		}
		return batch[i].ID < batch[j].ID
	})
	if len(batch) > r.cfg.MaxPendingPerCycle {
		batch = batch[:r.cfg.MaxPendingPerCycle]
	}
	return batch
}

// BacklogSize returns the number of captures still awaiting a terminal state.
func (r *Recycler) BacklogSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, cf := range r.entries {
		if !cf.Status.Terminal() {
			n++
		}
	}
	return n
}

// RestoreBacklog rebuilds the in-memory backlog from the audit log. Entries
// whose name has since been proven are dropped. Runs once at startup.
func (r *Recycler) RestoreBacklog(ctx context.Context) (int, error) {
	if r.auditLog == nil {
		return 0, nil
	}
	restored, err := r.auditLog.Restore(ctx, audit.DefaultReplayLimit)
	if err != nil {
		return 0, fmt.Errorf("restoring capture log: %w", err)
	}

	adopted := 0
	for _, cf := range restored {
		if _, err := r.store.GetByName(ctx, cf.Submitted.Name); err == nil {
			logging.RecyclerDebug("dropping restored capture %q: name already proven", cf.Submitted.Name)
			continue
		}
		r.mu.Lock()
		if _, ok := r.entries[cf.ID]; !ok {
			r.entries[cf.ID] = cf
			adopted++
		}
		r.mu.Unlock()
	}
	if adopted > 0 {
		logging.Recycler("restored %d captured failure(s) from the capture log", adopted)
	}
	return adopted, nil
}

// refreshCascade recomputes global coherence from the proven set. A census
// fault degrades to the neutral cascade instead of blocking the cycle.
func (r *Recycler) refreshCascade(ctx context.Context) coherence.GlobalState {
	coherences, err := r.store.Coherences(ctx)
	if err != nil {
		logging.RecyclerWarn("coherence census failed, using neutral cascade: %v", err)
		return r.tracker.Current()
	}
	return r.tracker.Update(coherences)
}

func (r *Recycler) appendAudit(ctx context.Context, event string, cf *pattern.CapturedFailure) {
	if r.auditLog == nil {
		return
	}
	if err := r.auditLog.Append(ctx, event, cf); err != nil {
		logging.RecyclerWarn("capture log append (%s) failed: %v", event, err)
	}
}

// GetStats returns a copy of lifetime statistics.
func (r *Recycler) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// ResetStats clears lifetime statistics.
func (r *Recycler) ResetStats() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = Stats{}
}

// winningStrategy returns the strategy of the last non-hold step, or hold
// when the loop never accepted a change.
func winningStrategy(history []reflection.StepRecord) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Strategy != reflection.StrategyHold {
			return string(history[i].Strategy)
		}
	}
	return string(reflection.StrategyHold)
}

// attemptBefore returns the composite the attempt started from.
func attemptBefore(result reflection.Result) float64 {
	if len(result.History) > 0 {
		return result.History[0].Before
	}
	return result.Composite
}
