// Package coherence defines the scoring contract every gardener shares:
// an Oracle turns code plus submitter metadata into a composite score with
// per-dimension breakdowns, and a Tracker derives the garden-wide cascade
// state that biases healing and growth.
package coherence

import "context"

// Tracked quality dimensions. Every oracle verdict carries all five.
const (
	DimCompleteness = "completeness"
	DimCorrectness  = "correctness"
	DimReadability  = "readability"
	DimConsistency  = "consistency"
	DimSecurity     = "security"
)

// TrackedDimensions lists the canonical dimension names in display order.
var TrackedDimensions = []string{
	DimCompleteness,
	DimCorrectness,
	DimReadability,
	DimConsistency,
	DimSecurity,
}

// Metadata carries the submitter's claims about a piece of code. Claims
// influence scoring but never replace inspection of the code itself.
type Metadata struct {
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	// TestPassed reports external test evidence. nil means no evidence
	// either way.
	TestPassed *bool `json:"test_passed,omitempty"`

	// Reliability is the prior coherence of the lineage this code derives
	// from (variants inherit their parent's). Zero when unknown.
	Reliability float64 `json:"reliability,omitempty"`
}

// Score is an oracle verdict: one composite in [0,1] plus the per-dimension
// breakdown behind it.
type Score struct {
	Composite  float64            `json:"composite"`
	Dimensions map[string]float64 `json:"dimensions"`
}

// Dimension returns the named dimension score, 0 when absent.
func (s Score) Dimension(name string) float64 {
	return s.Dimensions[name]
}

// Clone returns a deep copy safe to mutate.
func (s Score) Clone() Score {
	out := Score{Composite: s.Composite}
	if s.Dimensions != nil {
		out.Dimensions = make(map[string]float64, len(s.Dimensions))
		for k, v := range s.Dimensions {
			out.Dimensions[k] = v
		}
	}
	return out
}

// Oracle scores code against the tracked dimensions.
//
// Implementations must be deterministic: the same (code, language, metadata)
// triple always produces the same Score. All hosted state lives elsewhere;
// an oracle holds no memory of prior calls.
type Oracle interface {
	Score(ctx context.Context, code, language string, meta Metadata) (Score, error)
}
