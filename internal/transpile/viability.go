package transpile

import (
	"context"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"codegarden/internal/logging"
)

// =============================================================================
// VIABILITY CHECKER - DOES THE VARIANT EVEN PARSE
// =============================================================================
// Converted code earns registration in three stages: leak rules catch source
// text from the wrong language that survived conversion, a tree-sitter parse
// catches broken syntax, and go snippets additionally face yaegi's type
// checker. A variant that fails here is skipped outright, never captured as
// a failure, because a botched conversion says nothing about the source
// pattern's worth.

// jsLeakRules flag python constructs inside javascript or typescript text.
var jsLeakRules = []screenRule{
	{"py_def", regexp.MustCompile(`(?m)^\s*def\s+\w+\s*\(.*\)\s*:`)},
	{"py_elif", regexp.MustCompile(`(?m)^\s*elif\b`)},
	{"py_pass", regexp.MustCompile(`(?m)^\s*pass\s*$`)},
	{"py_print", regexp.MustCompile(`\bprint\s*\(`)},
	{"py_range", regexp.MustCompile(`\brange\s*\(`)},
	{"py_len", regexp.MustCompile(`\blen\s*\(`)},
	{"py_block", regexp.MustCompile(`(?m)^\s*(if|for|while)\b[^{;]*:\s*$`)},
}

// crossLeakRules maps a target language to the foreign constructs that must
// not appear in it. They run before any grammar parse because leaked text
// can still parse clean in the target grammar.
var crossLeakRules = map[string][]screenRule{
	"python": {
		{"js_function", regexp.MustCompile(`(?m)^\s*function\s+\w+\s*\(`)},
		{"js_console", regexp.MustCompile(`console\.(log|debug|error|warn)`)},
		{"js_declaration", regexp.MustCompile(`(?m)^\s*(let|const|var)\s+\w`)},
		{"js_arrow", regexp.MustCompile(`=>`)},
		{"brace_block", regexp.MustCompile(`(?m)^\s*[{}]\s*$`)},
		{"semicolon_line", regexp.MustCompile(`(?m);\s*$`)},
	},
	"javascript": jsLeakRules,
	"typescript": jsLeakRules,
	"go": {
		{"py_def", regexp.MustCompile(`(?m)^\s*def\s+\w+\s*\(.*\)\s*:`)},
		{"js_function", regexp.MustCompile(`(?m)^\s*function\s+\w+\s*\(`)},
	},
}

// Checker screens converted code before it may enter the garden. It holds
// no state; each Check builds its own parser because tree-sitter parsers
// are not safe for concurrent use and variant generation runs in parallel.
type Checker struct{}

// NewChecker creates a viability checker.
func NewChecker() *Checker { return &Checker{} }

// Check reports whether code is plausible source in language. Languages
// without a grammar binding get the leak screen only.
func (c *Checker) Check(ctx context.Context, code, language string) bool {
	if strings.TrimSpace(code) == "" {
		return false
	}
	lang := normalizeLang(language)

	for _, r := range crossLeakRules[lang] {
		if r.Pattern.MatchString(code) {
			logging.TranspileDebug("viability: %s leak in %s snippet", r.Name, lang)
			return false
		}
	}

	grammar := grammarFor(lang)
	if grammar == nil {
		return true
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, []byte(code))
	if err != nil {
		logging.TranspileWarn("viability: parse failed for %s: %v", lang, err)
		return false
	}
	defer tree.Close()

	if tree.RootNode().HasError() {
		logging.TranspileDebug("viability: %s snippet has syntax errors", lang)
		return false
	}

	if lang == "go" {
		return goDeepCheck(code)
	}
	return true
}

// goDeepCheck type-checks a go snippet with yaegi. Snippets without a
// package clause are wrapped as package main first.
func goDeepCheck(code string) bool {
	src := code
	if !strings.Contains(src, "package ") {
		src = "package main\n\n" + src
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		logging.TranspileWarn("viability: yaegi stdlib unavailable, grammar check only: %v", err)
		return true
	}
	if _, err := i.Compile(src); err != nil {
		logging.TranspileDebug("viability: go snippet fails type check: %v", err)
		return false
	}
	return true
}

func grammarFor(lang string) *sitter.Language {
	switch lang {
	case "go":
		return golang.GetLanguage()
	case "python":
		return python.GetLanguage()
	case "javascript":
		return javascript.GetLanguage()
	case "typescript":
		return typescript.GetLanguage()
	default:
		return nil
	}
}
