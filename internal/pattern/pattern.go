// Package pattern defines the core data model for codegarden:
// proven patterns, submission drafts, captured failures, and lineage.
package pattern

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// PROVEN PATTERNS
// =============================================================================

// Pattern is a proven library entry. It is created on successful registration
// and never silently deleted by the evolution core.
type Pattern struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Language    string             `json:"language"`
	Code        string             `json:"code"`
	Description string             `json:"description,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
	Coherence   float64            `json:"coherence"`  // composite score [0,1]
	Dimensions  map[string]float64 `json:"dimensions"` // per-dimension scores [0,1]
	TestProof   string             `json:"test_proof,omitempty"`

	// Lineage
	ParentID   string `json:"parent_id,omitempty"`
	Derivation string `json:"derivation,omitempty"` // generation method that produced this from ParentID

	// Access tracking
	UsageCount int       `json:"usage_count"`
	LastUsed   time.Time `json:"last_used,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Draft is a submission attempt: a pattern candidate that has not yet been
// proven. Seeds, heal outputs, and growth variants are all Drafts.
type Draft struct {
	Name        string   `json:"name"`
	Language    string   `json:"language"`
	Code        string   `json:"code"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	// Known test outcome, nil when untested
	TestPassed *bool `json:"test_passed,omitempty"`

	// Prior reliability [0,1] from external history, 0 when unknown
	Reliability float64 `json:"reliability,omitempty"`

	// Lineage, set on variants
	ParentID   string `json:"parent_id,omitempty"`
	Derivation string `json:"derivation,omitempty"`
}

// NewID returns a fresh pattern/capture identifier.
func NewID() string {
	return uuid.New().String()
}

// FromDraft builds a Pattern from a scored draft.
func FromDraft(d Draft, composite float64, dimensions map[string]float64) *Pattern {
	now := time.Now()
	dims := make(map[string]float64, len(dimensions))
	for k, v := range dimensions {
		dims[k] = v
	}
	proof := ""
	if d.TestPassed != nil && *d.TestPassed {
		proof = "external test passed"
	}
	return &Pattern{
		ID:          NewID(),
		Name:        d.Name,
		Language:    d.Language,
		Code:        d.Code,
		Description: d.Description,
		Tags:        append([]string(nil), d.Tags...),
		Coherence:   composite,
		Dimensions:  dims,
		TestProof:   proof,
		ParentID:    d.ParentID,
		Derivation:  d.Derivation,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate library state through a returned pointer.
func (p *Pattern) Clone() *Pattern {
	if p == nil {
		return nil
	}
	out := *p
	out.Tags = append([]string(nil), p.Tags...)
	if p.Dimensions != nil {
		out.Dimensions = make(map[string]float64, len(p.Dimensions))
		for k, v := range p.Dimensions {
			out.Dimensions[k] = v
		}
	}
	return &out
}

// Snapshot converts a proven pattern back into a Draft, used when re-running
// the reflection loop on library entries (refinement, approach swaps).
func (p *Pattern) Snapshot() Draft {
	passed := p.TestProof != ""
	var tp *bool
	if passed {
		tp = &passed
	}
	return Draft{
		Name:        p.Name,
		Language:    p.Language,
		Code:        p.Code,
		Description: p.Description,
		Tags:        append([]string(nil), p.Tags...),
		TestPassed:  tp,
		Reliability: p.Coherence,
		ParentID:    p.ParentID,
		Derivation:  p.Derivation,
	}
}

// TagOverlap counts tags shared between two tag sets (case-sensitive).
func TagOverlap(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	overlap := 0
	for _, t := range b {
		if _, ok := set[t]; ok {
			overlap++
		}
	}
	return overlap
}

// =============================================================================
// CAPTURED FAILURES - THE COMPOST HEAP
// =============================================================================

// FailureStatus tracks a captured failure through its heal lifecycle.
// Transitions are one-directional: pending -> healing -> {recycled|exhausted}.
// Both terminal states are absorbing.
type FailureStatus string

const (
	StatusPending   FailureStatus = "pending"
	StatusHealing   FailureStatus = "healing"
	StatusRecycled  FailureStatus = "recycled"
	StatusExhausted FailureStatus = "exhausted"
)

// String returns the status name.
func (s FailureStatus) String() string {
	return string(s)
}

// Terminal reports whether the status is absorbing.
func (s FailureStatus) Terminal() bool {
	return s == StatusRecycled || s == StatusExhausted
}

// CanTransition reports whether moving to next is a legal forward step.
func (s FailureStatus) CanTransition(next FailureStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusHealing
	case StatusHealing:
		return next == StatusRecycled || next == StatusExhausted
	default:
		return false
	}
}

// HealAttempt records one heal attempt against a captured failure.
type HealAttempt struct {
	Attempt   int       `json:"attempt"`  // 1-based
	Strategy  string    `json:"strategy"` // winning strategy of the final loop step, or "hold"
	Before    float64   `json:"before"`   // composite coherence entering the attempt
	After     float64   `json:"after"`    // composite coherence leaving the attempt
	Outcome   string    `json:"outcome"`  // "registered" or rejection reason
	Scaffold  bool      `json:"scaffold"` // void replenishment hint applied
	Timestamp time.Time `json:"timestamp"`
}

// CapturedFailure is the record created when a submission is rejected.
// It is tracked in-memory for healing and mirrored to the audit log.
type CapturedFailure struct {
	ID         string        `json:"id"`
	Submitted  Draft         `json:"submitted"` // snapshot of the attempted pattern
	Reason     string        `json:"reason"`
	Detail     string        `json:"detail,omitempty"`
	Attempts   int           `json:"attempts"`
	History    []HealAttempt `json:"history,omitempty"`
	Status     FailureStatus `json:"status"`
	CapturedAt time.Time     `json:"captured_at"`
	ResolvedAt time.Time     `json:"resolved_at,omitempty"`
}

// NewCapturedFailure creates a pending capture for a rejected draft.
func NewCapturedFailure(d Draft, reason, detail string) *CapturedFailure {
	return &CapturedFailure{
		ID:         NewID(),
		Submitted:  d,
		Reason:     reason,
		Detail:     detail,
		Status:     StatusPending,
		CapturedAt: time.Now(),
	}
}

// Transition advances the status, rejecting any move that is not a legal
// forward step. Terminal states are absorbing.
func (c *CapturedFailure) Transition(next FailureStatus) error {
	if !c.Status.CanTransition(next) {
		return fmt.Errorf("illegal status transition %s -> %s for capture %s", c.Status, next, c.ID)
	}
	c.Status = next
	if next.Terminal() {
		c.ResolvedAt = time.Now()
	}
	return nil
}

// RecordAttempt appends a heal attempt and bumps the counter.
func (c *CapturedFailure) RecordAttempt(a HealAttempt) {
	c.Attempts++
	a.Attempt = c.Attempts
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	c.History = append(c.History, a)
}

// LastAttempt returns the most recent heal attempt, or nil when none exist.
func (c *CapturedFailure) LastAttempt() *HealAttempt {
	if len(c.History) == 0 {
		return nil
	}
	return &c.History[len(c.History)-1]
}

// =============================================================================
// GROWTH VARIANTS
// =============================================================================

// GenMethod names the generation method that derived a variant from its parent.
type GenMethod string

const (
	GenLanguageVariant GenMethod = "language-variant"
	GenApproachSwap    GenMethod = "approach-swap"
	GenIterativeRefine GenMethod = "iterative-refine"
)

// String returns the method name.
func (m GenMethod) String() string {
	return string(m)
}

// Variant is a candidate pattern produced by the growth engine from one
// proven parent. It is itself a submission attempt.
type Variant struct {
	Draft  Draft     `json:"draft"`
	Method GenMethod `json:"method"`
	Parent string    `json:"parent"` // parent pattern ID
}

// NewVariant builds a variant draft from a parent pattern, wiring lineage.
func NewVariant(parent *Pattern, method GenMethod, name, language, code string) Variant {
	d := Draft{
		Name:        name,
		Language:    language,
		Code:        code,
		Description: parent.Description,
		Tags:        append([]string(nil), parent.Tags...),
		Reliability: parent.Coherence,
		ParentID:    parent.ID,
		Derivation:  string(method),
	}
	return Variant{Draft: d, Method: method, Parent: parent.ID}
}
