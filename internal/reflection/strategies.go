// Package reflection implements the bounded local-search rewriter that
// heals code: a fixed palette of named strategies proposes candidate
// rewrites, the coherence oracle scores them, and a monotonicity guard
// decides which candidate (if any) survives each loop.
package reflection

import (
	"fmt"
	"regexp"
	"strings"
)

// =============================================================================
// STRATEGY PALETTE - THE NAMED REWRITES
// =============================================================================

// Strategy names one rewrite in the palette. Hold is never generated as a
// candidate; it is recorded when the guard rejects every candidate in an
// iteration.
type Strategy string

const (
	StrategyHold        Strategy = "hold"
	StrategySimplify    Strategy = "simplify"
	StrategyHarden      Strategy = "harden"
	StrategyReadability Strategy = "improve-readability"
	StrategyUnifyStyle  Strategy = "unify-style"
	StrategyCorrectness Strategy = "fix-correctness"
	StrategyFullHeal    Strategy = "full-heal"
	StrategyGuided      Strategy = "guided-by-example"
)

var (
	debugPrintLine  = regexp.MustCompile(`(?m)^[ \t]*(console\.(log|debug)|fmt\.Print(ln|f)?|print)\s*\(.*\n?`)
	blankRuns       = regexp.MustCompile(`\n{3,}`)
	trailingWS      = regexp.MustCompile(`(?m)[ \t]+$`)
	bareExcept      = regexp.MustCompile(`(?m)except\s*:`)
	secretAssign    = regexp.MustCompile(`(?i)(password|passwd|secret|api_?key|auth_?token|private_?key)(\s*[:=]\s*)["'][^"']{4,}["']`)
	shellTrueFlag   = regexp.MustCompile(`shell\s*=\s*True`)
	innerHTMLAssign = regexp.MustCompile(`\.innerHTML(\s*)=`)
	pythonEvalCall  = regexp.MustCompile(`\beval\s*\(`)
	namedFunction   = regexp.MustCompile(`(?m)^\s*(?:def|function|func)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	commentLine     = regexp.MustCompile(`(?m)^\s*(//|#|--|/\*)`)
	pythonOSImport  = regexp.MustCompile(`(?m)^(import os\b|from os\b)`)
	pythonASTImport = regexp.MustCompile(`(?m)^(import ast\b|from ast\b)`)
)

// applySimplify strips debug prints, collapses blank runs, and trims
// trailing whitespace. Prints survive when removing them would empty the
// snippet entirely.
func applySimplify(code, language string) string {
	out := debugPrintLine.ReplaceAllString(code, "")
	if strings.TrimSpace(out) == "" {
		out = code
	}
	out = blankRuns.ReplaceAllString(out, "\n\n")
	out = trailingWS.ReplaceAllString(out, "")
	return out
}

// applyHarden rewrites the security smells the oracle penalizes: dynamic
// eval, shell=True, innerHTML sinks, and credentials committed as literals.
func applyHarden(code, language string) string {
	out := code
	lang := strings.ToLower(language)

	if lang == "python" && pythonEvalCall.MatchString(out) {
		out = pythonEvalCall.ReplaceAllString(out, "ast.literal_eval(")
		if !pythonASTImport.MatchString(out) {
			out = "import ast\n" + out
		}
	}

	out = shellTrueFlag.ReplaceAllString(out, "shell=False")
	out = innerHTMLAssign.ReplaceAllString(out, ".textContent${1}=")

	if secretAssign.MatchString(out) {
		out = secretAssign.ReplaceAllStringFunc(out, func(m string) string {
			parts := secretAssign.FindStringSubmatch(m)
			return parts[1] + parts[2] + envLookup(lang, parts[1])
		})
		if lang == "python" && strings.Contains(out, "os.getenv(") && !pythonOSImport.MatchString(out) {
			out = "import os\n" + out
		}
	}
	return out
}

func envLookup(language, name string) string {
	envName := strings.ToUpper(name)
	switch language {
	case "python":
		return fmt.Sprintf("os.getenv(%q)", envName)
	case "javascript", "typescript":
		return "process.env." + envName
	case "go":
		return fmt.Sprintf("os.Getenv(%q)", envName)
	default:
		return fmt.Sprintf("getenv(%q)", envName)
	}
}

// applyReadability gives uncommented code a header derived from its first
// named function, and tidies whitespace.
func applyReadability(code, language string) string {
	out := trailingWS.ReplaceAllString(code, "")
	if !commentLine.MatchString(out) {
		if m := namedFunction.FindStringSubmatch(out); m != nil {
			out = commentPrefix(language) + humanize(m[1]) + "\n" + out
		}
	}
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out
}

func commentPrefix(language string) string {
	switch strings.ToLower(language) {
	case "python", "ruby", "shell", "bash":
		return "# "
	case "lua", "sql":
		return "-- "
	default:
		return "// "
	}
}

// humanize turns snake_case and camelCase identifiers into a sentence.
func humanize(name string) string {
	words := strings.ReplaceAll(name, "_", " ")
	if words == "" {
		return words
	}
	return strings.ToUpper(words[:1]) + words[1:] + "."
}

// applyUnifyStyle normalizes indentation to four spaces and squares away
// blank runs and line endings.
func applyUnifyStyle(code, language string) string {
	out := strings.ReplaceAll(code, "\t", "    ")
	out = blankRuns.ReplaceAllString(out, "\n\n")
	out = trailingWS.ReplaceAllString(out, "")
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out
}

// applyCorrectness resolves merge conflicts (keeping the first side) and
// widens bare excepts.
func applyCorrectness(code, language string) string {
	out := resolveConflicts(code)
	out = bareExcept.ReplaceAllString(out, "except Exception:")
	return out
}

// resolveConflicts keeps the "ours" side of any conflict block.
func resolveConflicts(code string) string {
	if !strings.Contains(code, "<<<<<<<") {
		return code
	}
	var kept []string
	const (
		outside = iota
		ours
		theirs
	)
	state := outside
	for _, line := range strings.Split(code, "\n") {
		switch {
		case strings.HasPrefix(line, "<<<<<<<"):
			state = ours
		case state == ours && strings.HasPrefix(line, "======="):
			state = theirs
		case state != outside && strings.HasPrefix(line, ">>>>>>>"):
			state = outside
		case state == theirs:
			// dropped
		default:
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// applyFullHeal chains every repair in order: structural fixes first, then
// security, then cosmetics.
func applyFullHeal(code, language string) string {
	out := applyCorrectness(code, language)
	out = applyHarden(out, language)
	out = applySimplify(out, language)
	out = applyReadability(out, language)
	return applyUnifyStyle(out, language)
}

// applyGuided full-heals and then adopts the exemplar's indentation unit,
// so the result reads like the proven pattern it is guided by.
func applyGuided(code, language, example string) string {
	out := applyFullHeal(code, language)
	if unit := detectIndentUnit(example); unit > 0 && unit != 4 {
		out = reindent(out, unit)
	}
	return out
}

// detectIndentUnit returns the smallest leading-space width in the example,
// or 0 when it never indents with spaces.
func detectIndentUnit(example string) int {
	unit := 0
	for _, line := range strings.Split(example, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		spaces := 0
		for _, r := range line {
			if r != ' ' {
				break
			}
			spaces++
		}
		if spaces > 0 && (unit == 0 || spaces < unit) {
			unit = spaces
		}
	}
	return unit
}

// reindent rescales four-space indentation levels to the given unit.
func reindent(code string, unit int) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		spaces := 0
		for _, r := range line {
			if r != ' ' {
				break
			}
			spaces++
		}
		if spaces == 0 {
			continue
		}
		levels := spaces / 4
		lines[i] = strings.Repeat(" ", levels*unit) + line[spaces:]
	}
	return strings.Join(lines, "\n")
}
