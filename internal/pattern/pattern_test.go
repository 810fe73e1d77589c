package pattern

import (
	"testing"
)

// =============================================================================
// STATUS MACHINE TESTS
// =============================================================================

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name  string
		from  FailureStatus
		to    FailureStatus
		legal bool
	}{
		{"pending to healing", StatusPending, StatusHealing, true},
		{"healing to recycled", StatusHealing, StatusRecycled, true},
		{"healing to exhausted", StatusHealing, StatusExhausted, true},
		{"pending to recycled skips healing", StatusPending, StatusRecycled, false},
		{"pending to exhausted skips healing", StatusPending, StatusExhausted, false},
		{"healing back to pending", StatusHealing, StatusPending, false},
		{"recycled is absorbing", StatusRecycled, StatusHealing, false},
		{"recycled to exhausted", StatusRecycled, StatusExhausted, false},
		{"exhausted is absorbing", StatusExhausted, StatusHealing, false},
		{"exhausted to recycled", StatusExhausted, StatusRecycled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.legal {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.legal)
			}
		})
	}
}

func TestCapturedFailureLifecycle(t *testing.T) {
	c := NewCapturedFailure(Draft{Name: "leaky-sort", Language: "python", Code: "def s(): pass"}, "below acceptance threshold", "")

	if c.Status != StatusPending {
		t.Fatalf("new capture status = %s, want pending", c.Status)
	}
	if c.ID == "" {
		t.Fatal("new capture should have an ID")
	}

	if err := c.Transition(StatusHealing); err != nil {
		t.Fatalf("pending -> healing should be legal: %v", err)
	}
	if err := c.Transition(StatusRecycled); err != nil {
		t.Fatalf("healing -> recycled should be legal: %v", err)
	}
	if c.ResolvedAt.IsZero() {
		t.Error("terminal transition should stamp ResolvedAt")
	}

	// Terminal state is absorbing
	if err := c.Transition(StatusHealing); err == nil {
		t.Error("recycled capture must reject further transitions")
	}
	if err := c.Transition(StatusExhausted); err == nil {
		t.Error("recycled capture must never become exhausted")
	}
}

func TestRecordAttemptNumbering(t *testing.T) {
	c := NewCapturedFailure(Draft{Name: "x", Language: "go", Code: "package x"}, "rejected", "")

	c.RecordAttempt(HealAttempt{Strategy: "fix-correctness", Before: 0.4, After: 0.6, Outcome: "rejected: still below threshold"})
	c.RecordAttempt(HealAttempt{Strategy: "full-heal", Before: 0.6, After: 0.75, Outcome: "registered"})

	if c.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", c.Attempts)
	}
	if c.History[0].Attempt != 1 || c.History[1].Attempt != 2 {
		t.Errorf("attempt numbering = %d,%d, want 1,2", c.History[0].Attempt, c.History[1].Attempt)
	}
	if last := c.LastAttempt(); last == nil || last.Outcome != "registered" {
		t.Errorf("LastAttempt = %+v, want the registered attempt", last)
	}
	if c.History[0].Timestamp.IsZero() {
		t.Error("RecordAttempt should stamp a timestamp when none is given")
	}
}

// =============================================================================
// PATTERN CONSTRUCTION TESTS
// =============================================================================

func TestFromDraft(t *testing.T) {
	passed := true
	d := Draft{
		Name:        "binary-search",
		Language:    "go",
		Code:        "func Search(xs []int, t int) int { return 0 }",
		Description: "classic binary search",
		Tags:        []string{"search", "algorithms"},
		TestPassed:  &passed,
		ParentID:    "parent-1",
		Derivation:  "iterative-refine",
	}
	dims := map[string]float64{"readability": 0.9, "security": 0.95}

	p := FromDraft(d, 0.92, dims)

	if p.ID == "" {
		t.Error("pattern should receive an ID")
	}
	if p.Coherence != 0.92 {
		t.Errorf("Coherence = %f, want 0.92", p.Coherence)
	}
	if p.TestProof == "" {
		t.Error("passing test outcome should produce a test proof")
	}
	if p.ParentID != "parent-1" || p.Derivation != "iterative-refine" {
		t.Errorf("lineage not carried: parent=%s derivation=%s", p.ParentID, p.Derivation)
	}

	// Dimensions map must be copied, not aliased
	dims["readability"] = 0.1
	if p.Dimensions["readability"] != 0.9 {
		t.Error("FromDraft must copy the dimensions map")
	}

	// Tags must be copied, not aliased
	d.Tags[0] = "mutated"
	if p.Tags[0] != "search" {
		t.Error("FromDraft must copy the tags slice")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	p := &Pattern{
		ID:        "p1",
		Name:      "quick-sort",
		Language:  "python",
		Code:      "def qs(xs): return xs",
		Tags:      []string{"sort"},
		Coherence: 0.88,
		TestProof: "external test passed",
	}

	d := p.Snapshot()
	if d.Name != p.Name || d.Language != p.Language || d.Code != p.Code {
		t.Errorf("Snapshot lost identity fields: %+v", d)
	}
	if d.TestPassed == nil || !*d.TestPassed {
		t.Error("Snapshot should carry the test proof as a passed outcome")
	}
	if d.Reliability != p.Coherence {
		t.Errorf("Reliability = %f, want prior coherence %f", d.Reliability, p.Coherence)
	}
}

func TestTagOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want int
	}{
		{"disjoint", []string{"a", "b"}, []string{"c"}, 0},
		{"partial", []string{"sort", "search", "go"}, []string{"search", "go", "py"}, 2},
		{"identical", []string{"x", "y"}, []string{"x", "y"}, 2},
		{"empty left", nil, []string{"x"}, 0},
		{"empty right", []string{"x"}, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TagOverlap(tt.a, tt.b); got != tt.want {
				t.Errorf("TagOverlap(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestNewVariantLineage(t *testing.T) {
	parent := &Pattern{
		ID:        "parent-id",
		Name:      "fib",
		Language:  "python",
		Code:      "def fib(n): ...",
		Tags:      []string{"math"},
		Coherence: 0.91,
	}

	v := NewVariant(parent, GenLanguageVariant, "fib-javascript", "javascript", "function fib(n) {}")

	if v.Parent != "parent-id" || v.Draft.ParentID != "parent-id" {
		t.Errorf("variant parent link missing: %+v", v)
	}
	if v.Draft.Derivation != string(GenLanguageVariant) {
		t.Errorf("Derivation = %s, want %s", v.Draft.Derivation, GenLanguageVariant)
	}
	if v.Draft.Language != "javascript" {
		t.Errorf("Language = %s, want javascript", v.Draft.Language)
	}
	if v.Draft.Reliability != parent.Coherence {
		t.Errorf("variant should inherit parent coherence as prior reliability")
	}
}
