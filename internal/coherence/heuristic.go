package coherence

import (
	"context"
	"regexp"
	"strings"

	"codegarden/internal/logging"
)

// =============================================================================
// HEURISTIC ORACLE - STATIC SIGNALS, DETERMINISTIC VERDICTS
// =============================================================================

// Dimension weights for the composite. Correctness and security dominate;
// style dimensions keep a lighter hand.
var dimensionWeights = map[string]float64{
	DimCompleteness: 0.25,
	DimCorrectness:  0.30,
	DimReadability:  0.15,
	DimConsistency:  0.10,
	DimSecurity:     0.20,
}

// coherenceRule flags one code smell and charges its penalty to a single
// dimension. Hits beyond MaxHits are ignored so one noisy file cannot
// zero a dimension on its own.
type coherenceRule struct {
	Name        string
	Dimension   string
	Pattern     *regexp.Regexp
	Penalty     float64
	MaxHits     int
	Description string
}

// defaultCoherenceRules returns the built-in smell detectors.
func defaultCoherenceRules() []coherenceRule {
	return []coherenceRule{
		{
			Name:        "unfinished_marker",
			Dimension:   DimCompleteness,
			Pattern:     regexp.MustCompile(`(?i)\b(TODO|FIXME|XXX|HACK)\b`),
			Penalty:     0.15,
			MaxHits:     3,
			Description: "Work-in-progress marker left in code",
		},
		{
			Name:        "stubbed_body",
			Dimension:   DimCompleteness,
			Pattern:     regexp.MustCompile(`(?i)(not\s+implemented|notimplementederror|unimplemented|placeholder)`),
			Penalty:     0.20,
			MaxHits:     2,
			Description: "Stubbed or unimplemented body",
		},
		{
			Name:        "ellipsis_body",
			Dimension:   DimCompleteness,
			Pattern:     regexp.MustCompile(`(?m)^\s*\.\.\.\s*$`),
			Penalty:     0.20,
			MaxHits:     2,
			Description: "Ellipsis standing in for an implementation",
		},
		{
			Name:        "conflict_marker",
			Dimension:   DimCorrectness,
			Pattern:     regexp.MustCompile(`(?m)^(<<<<<<<|>>>>>>>)`),
			Penalty:     0.40,
			MaxHits:     1,
			Description: "Unresolved merge conflict marker",
		},
		{
			Name:        "bare_except",
			Dimension:   DimCorrectness,
			Pattern:     regexp.MustCompile(`(?m)except\s*:\s*$`),
			Penalty:     0.15,
			MaxHits:     2,
			Description: "Bare except swallows every error",
		},
		{
			Name:        "empty_catch",
			Dimension:   DimCorrectness,
			Pattern:     regexp.MustCompile(`catch\s*(\([^)]*\))?\s*\{\s*\}`),
			Penalty:     0.15,
			MaxHits:     2,
			Description: "Empty catch block swallows every error",
		},
		{
			Name:        "debug_print",
			Dimension:   DimReadability,
			Pattern:     regexp.MustCompile(`(?m)^\s*(console\.(log|debug)|fmt\.Print(ln|f)?|print)\s*\(`),
			Penalty:     0.08,
			MaxHits:     3,
			Description: "Leftover debug print",
		},
		{
			Name:        "eval_call",
			Dimension:   DimSecurity,
			Pattern:     regexp.MustCompile(`(?i)\beval\s*\(`),
			Penalty:     0.30,
			MaxHits:     1,
			Description: "Dynamic eval of runtime data",
		},
		{
			Name:        "exec_call",
			Dimension:   DimSecurity,
			Pattern:     regexp.MustCompile(`(?i)\b(exec|execsync|execfile|popen)\s*\(`),
			Penalty:     0.20,
			MaxHits:     1,
			Description: "Process or code execution from string input",
		},
		{
			Name:        "shell_injection",
			Dimension:   DimSecurity,
			Pattern:     regexp.MustCompile(`(?i)(os\.system\s*\(|shell\s*=\s*True|child_process)`),
			Penalty:     0.25,
			MaxHits:     1,
			Description: "Shell execution surface",
		},
		{
			Name:        "hardcoded_secret",
			Dimension:   DimSecurity,
			Pattern:     regexp.MustCompile(`(?i)(password|passwd|secret|api_?key|auth_?token|private_?key)\s*[:=]\s*["'][^"']{4,}["']`),
			Penalty:     0.35,
			MaxHits:     1,
			Description: "Credential committed as a literal",
		},
		{
			Name:        "sql_concat",
			Dimension:   DimSecurity,
			Pattern:     regexp.MustCompile(`(?i)["'][^"']*\b(select|insert|update|delete)\b[^"']*["']\s*\+`),
			Penalty:     0.25,
			MaxHits:     1,
			Description: "SQL assembled by string concatenation",
		},
		{
			Name:        "inner_html",
			Dimension:   DimSecurity,
			Pattern:     regexp.MustCompile(`\.innerHTML\s*=`),
			Penalty:     0.15,
			MaxHits:     1,
			Description: "Direct innerHTML assignment",
		},
	}
}

// HeuristicOracle scores code from static signals alone: smell rules,
// delimiter balance, comment density, indentation shape. No network, no
// model calls, no state. Same input, same verdict, every time.
type HeuristicOracle struct {
	rules []coherenceRule
}

// NewHeuristicOracle creates the default oracle.
func NewHeuristicOracle() *HeuristicOracle {
	return &HeuristicOracle{rules: defaultCoherenceRules()}
}

// Score implements Oracle.
func (o *HeuristicOracle) Score(ctx context.Context, code, language string, meta Metadata) (Score, error) {
	if strings.TrimSpace(code) == "" {
		dims := make(map[string]float64, len(TrackedDimensions))
		for _, d := range TrackedDimensions {
			dims[d] = 0
		}
		return Score{Composite: 0, Dimensions: dims}, nil
	}

	stats := analyzeLines(code)

	dims := map[string]float64{
		DimCompleteness: o.scoreCompleteness(stats, meta),
		DimCorrectness:  o.scoreCorrectness(code, meta),
		DimReadability:  o.scoreReadability(stats),
		DimConsistency:  o.scoreConsistency(code, language, stats),
		DimSecurity:     1.0,
	}

	for _, rule := range o.rules {
		hits := len(rule.Pattern.FindAllStringIndex(code, rule.MaxHits))
		if hits == 0 {
			continue
		}
		dims[rule.Dimension] -= rule.Penalty * float64(hits)
		logging.CoherenceDebug("rule %s hit %d time(s): %s", rule.Name, hits, rule.Description)
	}

	// Fixed iteration order keeps float summation bit-stable across runs.
	composite := 0.0
	for _, name := range TrackedDimensions {
		dims[name] = clamp(dims[name], 0.0, 1.0)
		composite += dimensionWeights[name] * dims[name]
	}

	logging.CoherenceDebug("scored %s code (%d lines): composite=%.3f", language, stats.total, composite)
	return Score{Composite: clamp(composite, 0.0, 1.0), Dimensions: dims}, nil
}

// scoreCompleteness judges whether the code looks finished. Marker and stub
// penalties come from the rule table; this covers the structural side.
func (o *HeuristicOracle) scoreCompleteness(stats lineStats, meta Metadata) float64 {
	score := 1.0
	switch {
	case stats.total-stats.blank < 3:
		score -= 0.30 // a fragment, not a pattern
	case stats.total-stats.blank < 6:
		score -= 0.10
	}
	if strings.TrimSpace(meta.Description) != "" {
		score += 0.05
	}
	return score
}

// scoreCorrectness checks structural sanity plus the submitter's test
// evidence. Delimiters are counted naively; string literals count too.
func (o *HeuristicOracle) scoreCorrectness(code string, meta Metadata) float64 {
	score := 1.0
	score -= 0.30 * float64(unbalancedPairs(code))

	if meta.TestPassed != nil {
		if *meta.TestPassed {
			score += 0.15
		} else {
			score -= 0.25
		}
	}
	if meta.Reliability > 0 {
		score += 0.10 * (meta.Reliability - 0.5)
	}
	return score
}

// scoreReadability rewards commented, shallow, narrow code.
func (o *HeuristicOracle) scoreReadability(stats lineStats) float64 {
	score := 1.0
	if stats.comment == 0 && stats.total-stats.blank >= 6 {
		score -= 0.15
	}
	if stats.total > 0 {
		score -= 0.30 * float64(stats.long) / float64(stats.total)
	}
	if stats.maxIndent > 4 {
		score -= 0.15
	}
	if stats.headerComment {
		score += 0.05
	}
	return score
}

// scoreConsistency checks formatting discipline.
func (o *HeuristicOracle) scoreConsistency(code, language string, stats lineStats) float64 {
	score := 1.0
	if stats.mixedIndent {
		score -= 0.30
	}
	if stats.total > 0 && float64(stats.trailingWS)/float64(stats.total) > 0.1 {
		score -= 0.15
	}
	if stats.maxBlankRun >= 3 {
		score -= 0.10
	}
	if !strings.HasSuffix(code, "\n") {
		score -= 0.05
	}
	switch strings.ToLower(language) {
	case "python", "javascript", "typescript":
		if strings.Contains(code, `"`) && strings.Contains(code, `'`) {
			score -= 0.08
		}
	}
	return score
}

// =============================================================================
// LINE ANALYSIS
// =============================================================================

type lineStats struct {
	total         int
	blank         int
	comment       int
	long          int // over 120 columns
	trailingWS    int
	maxIndent     int // indent levels, tab or 4 spaces per level
	maxBlankRun   int
	mixedIndent   bool
	headerComment bool
}

var commentPrefixes = []string{"//", "#", "--", "/*", "*", `"""`, "'''"}

func analyzeLines(code string) lineStats {
	var stats lineStats
	var sawTabIndent, sawSpaceIndent bool
	blankRun := 0

	lines := strings.Split(code, "\n")
	for i, line := range lines {
		// Split on a trailing newline yields one empty tail element.
		if i == len(lines)-1 && line == "" {
			break
		}
		stats.total++

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			stats.blank++
			blankRun++
			if blankRun > stats.maxBlankRun {
				stats.maxBlankRun = blankRun
			}
			continue
		}
		blankRun = 0

		for _, prefix := range commentPrefixes {
			if strings.HasPrefix(trimmed, prefix) {
				stats.comment++
				if stats.total == 1 {
					stats.headerComment = true
				}
				break
			}
		}

		if len(line) > 120 {
			stats.long++
		}
		if line != strings.TrimRight(line, " \t") {
			stats.trailingWS++
		}

		indent := 0
		for _, r := range line {
			if r == '\t' {
				sawTabIndent = true
				indent += 4
			} else if r == ' ' {
				sawSpaceIndent = true
				indent++
			} else {
				break
			}
		}
		if levels := indent / 4; levels > stats.maxIndent {
			stats.maxIndent = levels
		}
	}

	stats.mixedIndent = sawTabIndent && sawSpaceIndent
	return stats
}

// unbalancedPairs counts delimiter kinds whose open/close totals differ.
func unbalancedPairs(code string) int {
	pairs := [][2]rune{{'(', ')'}, {'[', ']'}, {'{', '}'}}
	unbalanced := 0
	for _, p := range pairs {
		if strings.Count(code, string(p[0])) != strings.Count(code, string(p[1])) {
			unbalanced++
		}
	}
	return unbalanced
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
