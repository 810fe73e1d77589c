package transpile

import (
	"context"
	"regexp"
	"strings"

	"codegarden/internal/logging"
)

// =============================================================================
// RULE TRANSPILER - A SMALL MATRIX, HONESTLY DECLINED
// =============================================================================
// Line-oriented rewriting between python and javascript: block structure is
// tracked through indentation on one side and braces on the other, and a
// beyond-matrix screen declines any snippet using constructs the rules do
// not cover. Declining is cheap; emitting plausible garbage is not, because
// the viability checker downstream is the only other net.

// RuleTranspiler is the built-in source-to-source converter. The supported
// matrix is python <-> javascript; every other pair is declined.
type RuleTranspiler struct{}

// NewRuleTranspiler creates the rule-based transpiler.
func NewRuleTranspiler() *RuleTranspiler { return &RuleTranspiler{} }

// Transpile implements Transpiler.
func (rt *RuleTranspiler) Transpile(ctx context.Context, code, fromLang, toLang string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	from, to := normalizeLang(fromLang), normalizeLang(toLang)
	switch {
	case from == "python" && to == "javascript":
		return pythonToJavaScript(code)
	case from == "javascript" && to == "python":
		return javascriptToPython(code)
	default:
		logging.TranspileDebug("no rules for %s -> %s", from, to)
		return "", false, nil
	}
}

// screenRule pairs a named construct with the pattern that detects it.
// The beyond-matrix screens and the viability leak rules share this shape.
type screenRule struct {
	Name    string
	Pattern *regexp.Regexp
}

// pyBeyondMatrix lists python constructs the rules do not cover. One hit
// declines the conversion.
var pyBeyondMatrix = []screenRule{
	{"class", regexp.MustCompile(`(?m)^\s*class\b`)},
	{"exceptions", regexp.MustCompile(`(?m)^\s*(try|except|finally|raise)\b`)},
	{"imports", regexp.MustCompile(`(?m)^\s*(import|from)\b`)},
	{"context_manager", regexp.MustCompile(`(?m)^\s*with\b`)},
	{"async", regexp.MustCompile(`(?m)^\s*async\b|\bawait\b`)},
	{"decorator", regexp.MustCompile(`(?m)^\s*@`)},
	{"scope_stmt", regexp.MustCompile(`(?m)^\s*(global|nonlocal|del|assert)\b`)},
	{"tuple_assign", regexp.MustCompile(`(?m)^\s*\w+(\s*,\s*\w+)+\s*=[^=]`)},
	{"lambda", regexp.MustCompile(`\blambda\b`)},
	{"generator", regexp.MustCompile(`\byield\b`)},
	{"fstring", regexp.MustCompile(`\bf["']`)},
	{"triple_quote", regexp.MustCompile(`"""|'''`)},
	{"floor_div", regexp.MustCompile(`//`)},
	{"comprehension", regexp.MustCompile(`\[[^\[\]]*\bfor\b[^\[\]]*\]`)},
	{"slice", regexp.MustCompile(`\w\[[^\[\]]*:[^\[\]]*\]`)},
}

// jsBeyondMatrix lists javascript constructs the rules do not cover.
var jsBeyondMatrix = []screenRule{
	{"class", regexp.MustCompile(`(?m)^\s*class\b`)},
	{"exceptions", regexp.MustCompile(`(?m)^\s*(try|catch|finally|throw)\b`)},
	{"modules", regexp.MustCompile(`(?m)^\s*(import|export)\b|\brequire\s*\(`)},
	{"async", regexp.MustCompile(`\basync\b|\bawait\b`)},
	{"arrow_function", regexp.MustCompile(`=>`)},
	{"template_literal", regexp.MustCompile("`")},
	{"object_oriented", regexp.MustCompile(`\bnew\b|\bthis\b`)},
	{"switch", regexp.MustCompile(`\bswitch\b|\bdo\b`)},
	{"spread", regexp.MustCompile(`\.\.\.`)},
	{"object_literal", regexp.MustCompile(`=\s*\{|\breturn\s*\{`)},
	{"empty_block", regexp.MustCompile(`\{\s*\}`)},
	{"ternary_or_optional", regexp.MustCompile(`\?`)},
}

func hitRule(rules []screenRule, code string) string {
	for _, r := range rules {
		if r.Pattern.MatchString(code) {
			return r.Name
		}
	}
	return ""
}

// Python block headers. Bodies are recognized by indentation.
var (
	pyDefHeader   = regexp.MustCompile(`^def\s+([A-Za-z_]\w*)\s*\((.*)\)\s*:$`)
	pyIfHeader    = regexp.MustCompile(`^if\s+(.+):$`)
	pyElifHeader  = regexp.MustCompile(`^elif\s+(.+):$`)
	pyElseHeader  = regexp.MustCompile(`^else\s*:$`)
	pyWhileHeader = regexp.MustCompile(`^while\s+(.+):$`)
	pyForIn       = regexp.MustCompile(`^for\s+([A-Za-z_]\w*)\s+in\s+(.+?)\s*:$`)
	pyAssign      = regexp.MustCompile(`^([A-Za-z_]\w*)\s*=\s*[^=]`)
)

// Javascript block headers. Bodies are recognized by braces.
var (
	jsFuncHeader   = regexp.MustCompile(`^function\s+([A-Za-z_$][\w$]*)\s*\((.*)\)$`)
	jsIfHeader     = regexp.MustCompile(`^if\s*\((.*)\)$`)
	jsElseIfHeader = regexp.MustCompile(`^else\s+if\s*\((.*)\)$`)
	jsWhileHeader  = regexp.MustCompile(`^while\s*\((.*)\)$`)
	jsForCount     = regexp.MustCompile(`^for\s*\(\s*(?:let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*([^;]+?)\s*;\s*([A-Za-z_$][\w$]*)\s*<\s*([^;]+?)\s*;\s*([A-Za-z_$][\w$]*)\s*\+\+\s*\)$`)
	jsForOf        = regexp.MustCompile(`^for\s*\(\s*(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s+of\s+(.+?)\s*\)$`)
	jsDeclPrefix   = regexp.MustCompile(`^(let|const|var)\s+`)
	jsIncrement    = regexp.MustCompile(`^([A-Za-z_$][\w$]*)\+\+$`)
	jsDecrement    = regexp.MustCompile(`^([A-Za-z_$][\w$]*)--$`)
)

// pythonToJavaScript converts indentation blocks to brace blocks. Open
// headers are tracked on a stack of indents; a line at or below a header's
// indent closes its block, except elif/else which continue it.
func pythonToJavaScript(code string) (string, bool, error) {
	if rule := hitRule(pyBeyondMatrix, code); rule != "" {
		logging.TranspileDebug("python -> javascript declined: %s", rule)
		return "", false, nil
	}
	code = strings.ReplaceAll(code, "\t", "    ")

	var out []string
	var open []int
	declared := map[string]bool{}

	closeTo := func(indent int, continuation bool) {
		for len(open) > 0 {
			top := open[len(open)-1]
			if indent > top || (continuation && indent == top) {
				break
			}
			open = open[:len(open)-1]
			out = append(out, pad(top)+"}")
		}
	}

	for _, raw := range splitLines(code) {
		line := strings.TrimRight(raw, " ")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			out = append(out, "")
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " "))
		continuation := pyElifHeader.MatchString(trimmed) || pyElseHeader.MatchString(trimmed)
		closeTo(indent, continuation)

		switch {
		case strings.HasPrefix(trimmed, "#"):
			out = append(out, pad(indent)+"//"+strings.TrimPrefix(trimmed, "#"))

		case trimmed == "pass":
			// an empty brace block needs no body

		case pyDefHeader.MatchString(trimmed):
			m := pyDefHeader.FindStringSubmatch(trimmed)
			out = append(out, pad(indent)+"function "+m[1]+"("+m[2]+") {")
			open = append(open, indent)

		case pyElifHeader.MatchString(trimmed):
			m := pyElifHeader.FindStringSubmatch(trimmed)
			out = append(out, pad(indent)+"} else if ("+pyExprToJS(m[1])+") {")

		case pyElseHeader.MatchString(trimmed):
			out = append(out, pad(indent)+"} else {")

		case pyIfHeader.MatchString(trimmed):
			m := pyIfHeader.FindStringSubmatch(trimmed)
			out = append(out, pad(indent)+"if ("+pyExprToJS(m[1])+") {")
			open = append(open, indent)

		case pyWhileHeader.MatchString(trimmed):
			m := pyWhileHeader.FindStringSubmatch(trimmed)
			out = append(out, pad(indent)+"while ("+pyExprToJS(m[1])+") {")
			open = append(open, indent)

		case pyForIn.MatchString(trimmed):
			m := pyForIn.FindStringSubmatch(trimmed)
			header, ok := forHeaderToJS(m[1], m[2])
			if !ok {
				logging.TranspileDebug("python -> javascript declined: stepped range")
				return "", false, nil
			}
			out = append(out, pad(indent)+header)
			open = append(open, indent)

		default:
			stmt := pyExprToJS(trimmed)
			if m := pyAssign.FindStringSubmatch(stmt); m != nil && !declared[m[1]] {
				declared[m[1]] = true
				stmt = "let " + stmt
			}
			out = append(out, pad(indent)+stmt)
		}
	}
	closeTo(0, false)
	return strings.Join(out, "\n") + "\n", true, nil
}

// forHeaderToJS renders a python for header as a counting loop when the
// iterable is a one- or two-argument range, a for-of otherwise.
func forHeaderToJS(v, iter string) (string, bool) {
	if strings.HasPrefix(iter, "range(") && strings.HasSuffix(iter, ")") {
		args := splitArgs(iter[len("range(") : len(iter)-1])
		switch len(args) {
		case 1:
			return "for (let " + v + " = 0; " + v + " < " + pyExprToJS(args[0]) + "; " + v + "++) {", true
		case 2:
			return "for (let " + v + " = " + pyExprToJS(args[0]) + "; " + v + " < " + pyExprToJS(args[1]) + "; " + v + "++) {", true
		default:
			return "", false
		}
	}
	return "for (const " + v + " of " + pyExprToJS(iter) + ") {", true
}

// javascriptToPython converts brace blocks to indentation blocks. Depth is
// tracked by brace counting; unbalanced braces decline the snippet.
func javascriptToPython(code string) (string, bool, error) {
	if rule := hitRule(jsBeyondMatrix, code); rule != "" {
		logging.TranspileDebug("javascript -> python declined: %s", rule)
		return "", false, nil
	}

	depth := 0
	var out []string
	for _, raw := range splitLines(code) {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			out = append(out, "")
			continue
		}
		if strings.HasPrefix(trimmed, "//") {
			out = append(out, pad(depth*4)+"#"+strings.TrimPrefix(trimmed, "//"))
			continue
		}
		for strings.HasPrefix(trimmed, "}") {
			depth--
			if depth < 0 {
				return "", false, nil
			}
			trimmed = strings.TrimSpace(trimmed[1:])
		}
		if trimmed == "" {
			continue
		}
		if trimmed == "{" {
			depth++
			continue
		}
		opens := strings.HasSuffix(trimmed, "{")
		if opens {
			trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "{"))
		}
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))

		var py string
		switch {
		case opens && jsFuncHeader.MatchString(trimmed):
			m := jsFuncHeader.FindStringSubmatch(trimmed)
			py = "def " + m[1] + "(" + m[2] + "):"

		case opens && jsElseIfHeader.MatchString(trimmed):
			m := jsElseIfHeader.FindStringSubmatch(trimmed)
			py = "elif " + jsExprToPy(m[1]) + ":"

		case opens && trimmed == "else":
			py = "else:"

		case opens && jsIfHeader.MatchString(trimmed):
			m := jsIfHeader.FindStringSubmatch(trimmed)
			py = "if " + jsExprToPy(m[1]) + ":"

		case opens && jsWhileHeader.MatchString(trimmed):
			m := jsWhileHeader.FindStringSubmatch(trimmed)
			py = "while " + jsExprToPy(m[1]) + ":"

		case opens && jsForCount.MatchString(trimmed):
			m := jsForCount.FindStringSubmatch(trimmed)
			if m[1] != m[3] || m[1] != m[5] {
				return "", false, nil
			}
			bound := jsExprToPy(m[4])
			if strings.TrimSpace(m[2]) == "0" {
				py = "for " + m[1] + " in range(" + bound + "):"
			} else {
				py = "for " + m[1] + " in range(" + jsExprToPy(m[2]) + ", " + bound + "):"
			}

		case opens && jsForOf.MatchString(trimmed):
			m := jsForOf.FindStringSubmatch(trimmed)
			py = "for " + m[1] + " in " + jsExprToPy(m[2]) + ":"

		case opens:
			logging.TranspileDebug("javascript -> python declined: unrecognized block header %q", trimmed)
			return "", false, nil

		default:
			stmt := jsDeclPrefix.ReplaceAllString(trimmed, "")
			if m := jsIncrement.FindStringSubmatch(stmt); m != nil {
				stmt = m[1] + " += 1"
			} else if m := jsDecrement.FindStringSubmatch(stmt); m != nil {
				stmt = m[1] + " -= 1"
			} else {
				stmt = jsExprToPy(stmt)
			}
			py = stmt
		}

		out = append(out, pad(depth*4)+py)
		if opens {
			depth++
		}
	}
	if depth != 0 {
		return "", false, nil
	}
	return strings.Join(out, "\n") + "\n", true, nil
}

// Expression rewrites, python to javascript.
var (
	pyNotInOp   = regexp.MustCompile(`\b([A-Za-z_]\w*)\s+not\s+in\s+([A-Za-z_]\w*)\b`)
	pyInOp      = regexp.MustCompile(`\b([A-Za-z_]\w*)\s+in\s+([A-Za-z_]\w*)\b`)
	pyPrintCall = regexp.MustCompile(`\bprint\s*\(`)
	pyLenCall   = regexp.MustCompile(`\blen\(\s*([A-Za-z_]\w*(?:\.\w+)*)\s*\)`)
	pyAndOp     = regexp.MustCompile(`\band\b`)
	pyOrOp      = regexp.MustCompile(`\bor\b`)
	pyNotOp     = regexp.MustCompile(`\bnot\s+`)
	pyTrueLit   = regexp.MustCompile(`\bTrue\b`)
	pyFalseLit  = regexp.MustCompile(`\bFalse\b`)
	pyNoneLit   = regexp.MustCompile(`\bNone\b`)
	pyStrCall   = regexp.MustCompile(`\bstr\(`)
	pyIntCall   = regexp.MustCompile(`\bint\(`)
	pyFloatCall = regexp.MustCompile(`\bfloat\(`)
)

func pyExprToJS(expr string) string {
	out := expr
	out = pyNotInOp.ReplaceAllString(out, "!$2.includes($1)")
	out = pyInOp.ReplaceAllString(out, "$2.includes($1)")
	out = pyPrintCall.ReplaceAllString(out, "console.log(")
	out = pyLenCall.ReplaceAllString(out, "$1.length")
	out = pyStrCall.ReplaceAllString(out, "String(")
	out = pyIntCall.ReplaceAllString(out, "parseInt(")
	out = pyFloatCall.ReplaceAllString(out, "parseFloat(")
	out = strings.ReplaceAll(out, ".append(", ".push(")
	out = pyAndOp.ReplaceAllString(out, "&&")
	out = pyOrOp.ReplaceAllString(out, "||")
	out = pyNotOp.ReplaceAllString(out, "!")
	out = pyTrueLit.ReplaceAllString(out, "true")
	out = pyFalseLit.ReplaceAllString(out, "false")
	out = pyNoneLit.ReplaceAllString(out, "null")
	return out
}

// Expression rewrites, javascript to python.
var (
	jsConsoleCall  = regexp.MustCompile(`\bconsole\.log\(`)
	jsLengthProp   = regexp.MustCompile(`\b([A-Za-z_$][\w$]*(?:\.[\w$]+)*)\.length\b`)
	jsIncludesCall = regexp.MustCompile(`\b([A-Za-z_$][\w$]*)\.includes\(([^()]*)\)`)
	jsAndOp        = regexp.MustCompile(`\s*&&\s*`)
	jsOrOp         = regexp.MustCompile(`\s*\|\|\s*`)
	jsBangOp       = regexp.MustCompile(`!\s*`)
	jsTrueLit      = regexp.MustCompile(`\btrue\b`)
	jsFalseLit     = regexp.MustCompile(`\bfalse\b`)
	jsNullLit      = regexp.MustCompile(`\bnull\b|\bundefined\b`)
)

func jsExprToPy(expr string) string {
	out := strings.ReplaceAll(expr, "!==", "!=")
	out = strings.ReplaceAll(out, "===", "==")
	out = jsConsoleCall.ReplaceAllString(out, "print(")
	out = jsLengthProp.ReplaceAllString(out, "len($1)")
	out = jsIncludesCall.ReplaceAllString(out, "($2 in $1)")
	out = strings.ReplaceAll(out, ".push(", ".append(")
	out = strings.ReplaceAll(out, "String(", "str(")
	out = strings.ReplaceAll(out, "parseInt(", "int(")
	out = strings.ReplaceAll(out, "parseFloat(", "float(")
	// Keep != intact while rewriting standalone negation.
	out = strings.ReplaceAll(out, "!=", "\x00")
	out = jsBangOp.ReplaceAllString(out, "not ")
	out = strings.ReplaceAll(out, "\x00", "!=")
	out = jsAndOp.ReplaceAllString(out, " and ")
	out = jsOrOp.ReplaceAllString(out, " or ")
	out = jsTrueLit.ReplaceAllString(out, "True")
	out = jsFalseLit.ReplaceAllString(out, "False")
	out = jsNullLit.ReplaceAllString(out, "None")
	return out
}

func pad(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(" ", n)
}

// splitLines splits and drops trailing blank lines so emitted block closers
// land directly after the last statement.
func splitLines(code string) []string {
	lines := strings.Split(code, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// splitArgs splits a call argument list on top-level commas.
func splitArgs(args string) []string {
	args = strings.TrimSpace(args)
	if args == "" {
		return nil
	}
	var out []string
	depth, start := 0, 0
	for i, r := range args {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(args[start:i]))
				start = i + 1
			}
		}
	}
	out = append(out, strings.TrimSpace(args[start:]))
	return out
}
