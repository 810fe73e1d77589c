// Package transpile converts snippets between languages for growth's
// language variants and screens the results for viability. The rule
// transpiler covers a deliberately small matrix; anything it declines or
// botches is caught by the viability checker and becomes a skipped
// variant, never a registered one.
package transpile

import (
	"context"
	"strings"
)

// Transpiler converts a snippet between languages. ok is false when the
// language pair or the snippet is outside the supported matrix; the error
// return is reserved for faults.
type Transpiler interface {
	Transpile(ctx context.Context, code, fromLang, toLang string) (string, bool, error)
}

// normalizeLang folds language aliases onto canonical names.
func normalizeLang(language string) string {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "py", "python", "python3":
		return "python"
	case "js", "javascript", "node":
		return "javascript"
	case "ts", "typescript":
		return "typescript"
	case "go", "golang":
		return "go"
	default:
		return strings.ToLower(strings.TrimSpace(language))
	}
}
