package growth

import (
	"regexp"
	"strings"
)

// =============================================================================
// MOTIF PREDICATES - WHAT ELSE COULD THIS PATTERN HAVE BEEN
// =============================================================================
// Each motif detects a structural trait in proven code and names the
// alternative approach worth exploring. Predicates are independent; one
// pattern can trigger several swaps in the same wave.

// Motif pairs a structural predicate with the hint handed to the reflection
// loop when the swap runs. Name doubles as the variant name suffix.
type Motif struct {
	Name   string
	Hint   string
	Detect func(code string) bool
}

var (
	motifFuncDef   = regexp.MustCompile(`(?m)^\s*(?:def|function|func)\s+([A-Za-z_]\w*)`)
	motifLoopLine  = regexp.MustCompile(`(?m)^\s*(for|while)\b`)
	motifMutation  = regexp.MustCompile(`\+=|-=|\*=|\.append\s*\(|\.push\s*\(`)
	motifScanMatch = regexp.MustCompile(`(?s)\b(for|while)\b.*==.*\breturn\b`)
	motifIfLine    = regexp.MustCompile(`(?m)^\s*(if|elif|else if)\b`)
)

// Motifs returns the fixed predicate set in its canonical order. Order is
// load-bearing: variant names derive from it, and waves must be replayable.
func Motifs() []Motif {
	return []Motif{
		{
			Name:   "iterative",
			Hint:   "rewrite the self-recursive call structure as an explicit loop with an accumulator, keeping the same signature and results",
			Detect: detectRecursion,
		},
		{
			Name:   "higher-order",
			Hint:   "replace the explicit loop with a higher-order formulation native to the language, such as map, filter, or reduce, producing identical results",
			Detect: func(code string) bool { return motifLoopLine.MatchString(code) },
		},
		{
			Name:   "immutable",
			Hint:   "rework in-place mutation of accumulators into construction of new values, preferring expressions over statement-by-statement updates",
			Detect: func(code string) bool { return motifMutation.MatchString(code) },
		},
		{
			Name:   "binary-search",
			Hint:   "if the scanned data can be kept sorted, replace the linear scan with a binary search over two moving bounds",
			Detect: func(code string) bool { return motifScanMatch.MatchString(code) },
		},
		{
			Name:   "declarative",
			Hint:   "collapse the branch ladder into a declarative form, such as a lookup table or a single boolean expression",
			Detect: func(code string) bool { return len(motifIfLine.FindAllString(code, 3)) >= 2 },
		},
	}
}

// detectRecursion reports whether any defined function calls itself. The
// definition line itself counts as one occurrence, so a self-call means the
// name appears with an open paren at least twice.
func detectRecursion(code string) bool {
	for _, m := range motifFuncDef.FindAllStringSubmatch(code, -1) {
		if strings.Count(code, m[1]+"(") >= 2 {
			return true
		}
	}
	return false
}
