package recycler

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"codegarden/internal/audit"
	"codegarden/internal/coherence"
	"codegarden/internal/pattern"
	"codegarden/internal/reflection"
	"codegarden/internal/store"
)

// scriptOracle scores by inspecting the code text, giving tests full control
// over which rewrites count as improvements.
type scriptOracle struct {
	score func(code string) coherence.Score
}

func (o *scriptOracle) Score(_ context.Context, code, _ string, _ coherence.Metadata) (coherence.Score, error) {
	return o.score(code), nil
}

func flatScore(composite float64) coherence.Score {
	dims := make(map[string]float64, len(coherence.TrackedDimensions))
	for _, d := range coherence.TrackedDimensions {
		dims[d] = composite
	}
	return coherence.Score{Composite: composite, Dimensions: dims}
}

func constOracle(composite float64) coherence.Oracle {
	return &scriptOracle{score: func(string) coherence.Score { return flatScore(composite) }}
}

func newTestRecycler(oracle coherence.Oracle, cfg Config) (*Recycler, *store.MemoryStore) {
	st := store.NewMemoryStore()
	tracker := coherence.NewTracker(coherence.TrackerConfig{})
	return New(st, oracle, tracker, reflection.New(oracle), nil, cfg), st
}

func almost(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSubmitRegistersCoherentDraft(t *testing.T) {
	ctx := context.Background()
	r, st := newTestRecycler(constOracle(0.95), DefaultConfig())

	out, err := r.Submit(ctx, pattern.Draft{
		Name:     "reverse-string",
		Language: "python",
		Code:     "def reverse(s):\n    return s[::-1]\n",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !out.Registered {
		t.Fatalf("expected registration, got reason %q", out.Reason)
	}
	if out.Pattern == nil || !almost(out.Pattern.Coherence, 0.95) {
		t.Errorf("registered pattern = %+v, want coherence 0.95", out.Pattern)
	}
	if n, _ := st.Count(ctx); n != 1 {
		t.Errorf("store count = %d, want 1", n)
	}
	if r.BacklogSize() != 0 {
		t.Errorf("backlog = %d, want 0", r.BacklogSize())
	}
}

func TestSubmitCapturesLowCoherenceDraft(t *testing.T) {
	ctx := context.Background()
	r, st := newTestRecycler(constOracle(0.4), DefaultConfig())

	out, err := r.Submit(ctx, pattern.Draft{
		Name:     "mystery-blob",
		Language: "python",
		Code:     "x = 1\n",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if out.Registered {
		t.Fatal("low-coherence draft should not register")
	}
	if out.Reason != ReasonLowCoherence {
		t.Errorf("reason = %q, want %q", out.Reason, ReasonLowCoherence)
	}
	if out.Failure == nil {
		t.Fatal("expected a captured failure")
	}
	if out.Failure.Status != pattern.StatusPending {
		t.Errorf("capture status = %s, want pending", out.Failure.Status)
	}
	if n, _ := st.Count(ctx); n != 0 {
		t.Errorf("store count = %d, want 0", n)
	}
	if got := r.GetStats().Captured; got != 1 {
		t.Errorf("stats.Captured = %d, want 1", got)
	}
	if r.BacklogSize() != 1 {
		t.Errorf("backlog = %d, want 1", r.BacklogSize())
	}
}

func TestSubmitRejectsEmptyCodeWithoutCapture(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRecycler(constOracle(0.95), DefaultConfig())

	out, err := r.Submit(ctx, pattern.Draft{Name: "empty", Language: "python", Code: "   \n\t\n"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if out.Registered || out.Reason != ReasonEmptyCode {
		t.Errorf("outcome = %+v, want empty-code rejection", out)
	}
	if out.Failure != nil || r.BacklogSize() != 0 {
		t.Error("empty code must not be captured: healing cannot invent code")
	}
}

func TestSubmitRejectsDuplicateNameWithoutCapture(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRecycler(constOracle(0.95), DefaultConfig())

	first := pattern.Draft{Name: "dedupe", Language: "python", Code: "def a():\n    return 1\n"}
	if out, err := r.Submit(ctx, first); err != nil || !out.Registered {
		t.Fatalf("seed registration failed: %+v, %v", out, err)
	}

	out, err := r.Submit(ctx, pattern.Draft{Name: "dedupe", Language: "python", Code: "def b():\n    return 2\n"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if out.Registered || out.Reason != store.ReasonDuplicateName {
		t.Errorf("outcome = %+v, want duplicate-name rejection", out)
	}
	if out.Failure != nil || r.BacklogSize() != 0 {
		t.Error("duplicate names must not be captured: healing cannot fix a taken name")
	}
}

// A fixable defect is captured, healed on the first attempt, and the healed
// code lands in the store.
func TestRecycleFailedHealsFixableCode(t *testing.T) {
	ctx := context.Background()
	oracle := &scriptOracle{score: func(code string) coherence.Score {
		if strings.Contains(code, "print(") {
			return flatScore(0.5)
		}
		return flatScore(0.95)
	}}
	r, st := newTestRecycler(oracle, DefaultConfig())

	out, err := r.Submit(ctx, pattern.Draft{
		Name:     "add-ints",
		Language: "python",
		Code:     "def add(a, b):\n    print(a)\n    return a + b\n",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	cf := out.Failure
	if cf == nil {
		t.Fatal("expected capture")
	}

	report, err := r.RecycleFailed(ctx, "")
	if err != nil {
		t.Fatalf("RecycleFailed: %v", err)
	}
	if report.Selected != 1 || report.Healed != 1 || report.Exhausted != 0 || report.Remaining != 0 {
		t.Errorf("report = %+v, want 1 selected, 1 healed", report)
	}

	if cf.Status != pattern.StatusRecycled {
		t.Errorf("status = %s, want recycled", cf.Status)
	}
	if cf.Attempts != 1 || len(cf.History) != 1 {
		t.Fatalf("attempts = %d, history = %d, want 1 and 1", cf.Attempts, len(cf.History))
	}
	att := cf.History[0]
	if att.Strategy != string(reflection.StrategySimplify) {
		t.Errorf("winning strategy = %q, want simplify", att.Strategy)
	}
	if att.Outcome != "registered" {
		t.Errorf("outcome = %q, want registered", att.Outcome)
	}
	if !almost(att.Before, 0.5) || !almost(att.After, 0.95) {
		t.Errorf("attempt scores = %.3f -> %.3f, want 0.5 -> 0.95", att.Before, att.After)
	}
	if cf.ResolvedAt.IsZero() {
		t.Error("recycled capture should carry a resolution time")
	}

	healed, err := st.GetByName(ctx, "add-ints")
	if err != nil {
		t.Fatalf("healed pattern missing: %v", err)
	}
	if strings.Contains(healed.Code, "print(") {
		t.Errorf("healed code still has the defect:\n%s", healed.Code)
	}

	// Terminal captures are absorbing and a drained backlog is a no-op.
	again, err := r.RecycleFailed(ctx, "")
	if err != nil {
		t.Fatalf("second RecycleFailed: %v", err)
	}
	if again.Selected != 0 || cf.Attempts != 1 {
		t.Errorf("second cycle touched terminal capture: report %+v, attempts %d", again, cf.Attempts)
	}
}

// A capture that never improves is exhausted after exactly MaxHealAttempts,
// with no further attempts on later cycles.
func TestRecycleFailedExhaustsAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	r, st := newTestRecycler(constOracle(0.5), DefaultConfig())

	out, err := r.Submit(ctx, pattern.Draft{
		Name:     "stubborn",
		Language: "python",
		Code:     "def noop():\n    pass\n",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	cf := out.Failure

	report, err := r.RecycleFailed(ctx, "")
	if err != nil {
		t.Fatalf("RecycleFailed: %v", err)
	}
	if report.Exhausted != 1 || report.Healed != 0 {
		t.Errorf("report = %+v, want 1 exhausted", report)
	}
	if cf.Status != pattern.StatusExhausted {
		t.Errorf("status = %s, want exhausted", cf.Status)
	}
	if cf.Attempts != 3 || len(cf.History) != 3 {
		t.Fatalf("attempts = %d, history = %d, want exactly 3", cf.Attempts, len(cf.History))
	}
	for i, att := range cf.History {
		if att.Attempt != i+1 {
			t.Errorf("history[%d].Attempt = %d, want %d", i, att.Attempt, i+1)
		}
		if att.Outcome != ReasonLowCoherence {
			t.Errorf("history[%d].Outcome = %q, want low-coherence", i, att.Outcome)
		}
	}
	if n, _ := st.Count(ctx); n != 0 {
		t.Errorf("store count = %d, want 0", n)
	}

	// No fourth attempt, ever.
	if _, err := r.RecycleFailed(ctx, ""); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if cf.Attempts != 3 {
		t.Errorf("attempts grew to %d after exhaustion", cf.Attempts)
	}

	stats := r.GetStats()
	if stats.AttemptsRun != 3 || stats.Exhausted != 1 {
		t.Errorf("stats = %+v, want 3 attempts run, 1 exhausted", stats)
	}
}

// Healed output carries into the next attempt: attempt two starts from
// attempt one's result, not from the original submission.
func TestHealCarriesForwardBetweenAttempts(t *testing.T) {
	ctx := context.Background()
	oracle := &scriptOracle{score: func(code string) coherence.Score {
		if strings.Contains(code, "print(") {
			return flatScore(0.40)
		}
		return flatScore(0.65) // improved, still below acceptance
	}}
	cfg := DefaultConfig()
	cfg.HealMaxLoops = 1
	r, _ := newTestRecycler(oracle, cfg)

	out, err := r.Submit(ctx, pattern.Draft{
		Name:     "compute-double",
		Language: "python",
		Code:     "def compute(total):\n    print(total)\n    return total * 2\n",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	cf := out.Failure

	if _, err := r.RecycleFailed(ctx, ""); err != nil {
		t.Fatalf("RecycleFailed: %v", err)
	}

	if cf.Status != pattern.StatusExhausted {
		t.Fatalf("status = %s, want exhausted", cf.Status)
	}
	if len(cf.History) != 3 {
		t.Fatalf("history = %d entries, want 3", len(cf.History))
	}
	if !almost(cf.History[0].After, 0.65) {
		t.Errorf("attempt 1 ended at %.3f, want 0.65", cf.History[0].After)
	}
	if !almost(cf.History[1].Before, 0.65) {
		t.Errorf("attempt 2 started at %.3f, want attempt 1's result 0.65", cf.History[1].Before)
	}
	if strings.Contains(cf.Submitted.Code, "print(") {
		t.Errorf("carried-forward code lost attempt 1's fix:\n%s", cf.Submitted.Code)
	}
}

// An attempt that lands in the void triggers scaffolding on the next one,
// borrowing from the proven pattern with the best tag overlap. The first
// attempt never scaffolds, and hints never leak into carried-forward code.
func TestVoidReplenishmentScaffoldsFromNearestPattern(t *testing.T) {
	ctx := context.Background()
	oracle := &scriptOracle{score: func(code string) coherence.Score {
		switch {
		case strings.Contains(code, ScaffoldMarker):
			return flatScore(0.95)
		case strings.Contains(code, "BROKEN"):
			return flatScore(0.2)
		default:
			return flatScore(0.9)
		}
	}}
	r, st := newTestRecycler(oracle, DefaultConfig())

	seed := func(name, code string, tags []string) {
		t.Helper()
		out, err := r.Submit(ctx, pattern.Draft{Name: name, Language: "python", Code: code, Tags: tags})
		if err != nil || !out.Registered {
			t.Fatalf("seeding %q failed: %+v, %v", name, out, err)
		}
	}
	seed("sorting-helper", "def sort_items(items):\n    return sorted(items)\n", []string{"sorting", "list"})
	seed("string-helper", "def join_words(words):\n    return ' '.join(words)\n", []string{"string"})

	out, err := r.Submit(ctx, pattern.Draft{
		Name:     "broken-sorter",
		Language: "python",
		Code:     "def broken_sort(items):\n    BROKEN\n    return items\n",
		Tags:     []string{"sorting"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	cf := out.Failure

	if _, err := r.RecycleFailed(ctx, ""); err != nil {
		t.Fatalf("RecycleFailed: %v", err)
	}

	if cf.Status != pattern.StatusExhausted {
		t.Fatalf("status = %s, want exhausted", cf.Status)
	}
	if len(cf.History) != 3 {
		t.Fatalf("history = %d entries, want 3", len(cf.History))
	}
	if cf.History[0].Scaffold {
		t.Error("first attempt must never scaffold: it has no previous attempt")
	}
	if !cf.History[1].Scaffold || !cf.History[2].Scaffold {
		t.Errorf("attempts after a void landing should scaffold: %v, %v",
			cf.History[1].Scaffold, cf.History[2].Scaffold)
	}
	if got := r.GetStats().VoidScaffolds; got != 2 {
		t.Errorf("stats.VoidScaffolds = %d, want 2", got)
	}
	if strings.Contains(cf.Submitted.Code, ScaffoldMarker) {
		t.Errorf("scaffold hint leaked into carried code:\n%s", cf.Submitted.Code)
	}

	// Tag overlap picks the sorting helper, and each scaffold touches usage.
	sorter, err := st.GetByName(ctx, "sorting-helper")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if sorter.UsageCount != 2 {
		t.Errorf("scaffold source usage = %d, want 2", sorter.UsageCount)
	}
	other, err := st.GetByName(ctx, "string-helper")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if other.UsageCount != 0 {
		t.Errorf("non-matching pattern usage = %d, want 0", other.UsageCount)
	}
}

func TestRecycleFailedOnEmptyBacklogIsZeroReport(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRecycler(constOracle(0.95), DefaultConfig())

	report, err := r.RecycleFailed(ctx, "")
	if err != nil {
		t.Fatalf("RecycleFailed: %v", err)
	}
	if report != (Report{}) {
		t.Errorf("report = %+v, want zero value", report)
	}
}

func TestRecycleFailedFiltersByLanguage(t *testing.T) {
	ctx := context.Background()
	oracle := &scriptOracle{score: func(code string) coherence.Score {
		if strings.Contains(code, "print(") || strings.Contains(code, "console.log(") {
			return flatScore(0.5)
		}
		return flatScore(0.95)
	}}
	r, _ := newTestRecycler(oracle, DefaultConfig())

	for _, d := range []pattern.Draft{
		{Name: "py-helper", Language: "python", Code: "def brief():\n    print(1)\n    return 2\n"},
		{Name: "js-helper", Language: "javascript", Code: "function brief() {\n  console.log(1)\n  return 2\n}\n"},
	} {
		if _, err := r.Submit(ctx, d); err != nil {
			t.Fatalf("Submit %q: %v", d.Name, err)
		}
	}
	if r.BacklogSize() != 2 {
		t.Fatalf("backlog = %d, want 2", r.BacklogSize())
	}

	report, err := r.RecycleFailed(ctx, "python")
	if err != nil {
		t.Fatalf("RecycleFailed: %v", err)
	}
	if report.Selected != 1 || report.Healed != 1 {
		t.Errorf("python cycle report = %+v, want 1 selected, 1 healed", report)
	}
	if report.Remaining != 1 {
		t.Errorf("remaining = %d, want the javascript capture", report.Remaining)
	}

	report, err = r.RecycleFailed(ctx, "")
	if err != nil {
		t.Fatalf("RecycleFailed: %v", err)
	}
	if report.Selected != 1 || report.Healed != 1 || report.Remaining != 0 {
		t.Errorf("catch-all cycle report = %+v, want the javascript capture healed", report)
	}
}

// Captures persisted to the audit log are rebuilt at startup, except those
// whose name has since been proven.
func TestRestoreBacklogAdoptsPersistedCaptures(t *testing.T) {
	ctx := context.Background()
	logPath := filepath.Join(t.TempDir(), "capture.db")
	auditLog, err := audit.Open(logPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer auditLog.Close()

	st := store.NewMemoryStore()
	oracle := constOracle(0.4)
	tracker := coherence.NewTracker(coherence.TrackerConfig{})

	first := New(st, oracle, tracker, reflection.New(oracle), auditLog, DefaultConfig())
	for _, name := range []string{"alpha", "beta"} {
		if _, err := first.Submit(ctx, pattern.Draft{
			Name:     name,
			Language: "python",
			Code:     "def " + name + "():\n    pass\n",
		}); err != nil {
			t.Fatalf("Submit %q: %v", name, err)
		}
	}

	// beta's name gets proven before the restart.
	reg, err := st.Register(ctx, pattern.FromDraft(pattern.Draft{
		Name:     "beta",
		Language: "python",
		Code:     "def beta():\n    return 1\n",
	}, 0.9, flatScore(0.9).Dimensions))
	if err != nil || !reg.Registered {
		t.Fatalf("seeding beta failed: %+v, %v", reg, err)
	}

	second := New(st, oracle, tracker, reflection.New(oracle), auditLog, DefaultConfig())
	adopted, err := second.RestoreBacklog(ctx)
	if err != nil {
		t.Fatalf("RestoreBacklog: %v", err)
	}
	if adopted != 1 {
		t.Errorf("adopted = %d, want only alpha", adopted)
	}
	if second.BacklogSize() != 1 {
		t.Errorf("backlog = %d, want 1", second.BacklogSize())
	}

	// Restoring again adopts nothing new.
	adopted, err = second.RestoreBacklog(ctx)
	if err != nil {
		t.Fatalf("second RestoreBacklog: %v", err)
	}
	if adopted != 0 {
		t.Errorf("re-restore adopted = %d, want 0", adopted)
	}
}

func TestStripHintsRemovesEveryMarkerLine(t *testing.T) {
	code := "# " + ScaffoldMarker + " after helper: def helper():\ndef f():\n    return 1\n"
	got := StripHints(code)
	if strings.Contains(got, ScaffoldMarker) {
		t.Errorf("marker survived: %q", got)
	}
	if !strings.Contains(got, "def f():") {
		t.Errorf("real code was stripped: %q", got)
	}
	if StripHints("def g():\n    pass\n") != "def g():\n    pass\n" {
		t.Error("hint-free code must pass through untouched")
	}
}

func TestBuildHintNamesPatternAndSignature(t *testing.T) {
	p := &pattern.Pattern{
		Name:     "sorting-helper",
		Language: "python",
		Code:     "# sorts things\ndef sort_items(items):\n    return sorted(items)\n",
	}
	hint := BuildHint(p)
	if !strings.HasPrefix(hint, "# ") {
		t.Errorf("python hint should be a comment line: %q", hint)
	}
	for _, want := range []string{ScaffoldMarker, "sorting-helper", "def sort_items(items):"} {
		if !strings.Contains(hint, want) {
			t.Errorf("hint %q missing %q", hint, want)
		}
	}
}
