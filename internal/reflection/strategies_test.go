package reflection

import (
	"strings"
	"testing"
)

func TestApplySimplifyRemovesDebugPrints(t *testing.T) {
	code := "def add(a, b):\n    print(a)\n    return a + b\n"
	out := applySimplify(code, "python")

	if strings.Contains(out, "print(") {
		t.Errorf("debug print survived simplify:\n%s", out)
	}
	if !strings.Contains(out, "return a + b") {
		t.Errorf("simplify damaged the body:\n%s", out)
	}
}

func TestApplySimplifyKeepsPrintOnlySnippet(t *testing.T) {
	code := "print(\"hello\")\n"
	out := applySimplify(code, "python")

	if strings.TrimSpace(out) == "" {
		t.Error("simplify emptied a print-only snippet")
	}
}

func TestApplyHardenRewritesPythonEval(t *testing.T) {
	code := "def parse(expr):\n    return eval(expr)\n"
	out := applyHarden(code, "python")

	if !strings.Contains(out, "ast.literal_eval(") {
		t.Errorf("eval was not rewritten:\n%s", out)
	}
	if !strings.HasPrefix(out, "import ast\n") {
		t.Errorf("missing ast import:\n%s", out)
	}
}

func TestApplyHardenMovesSecretsToEnv(t *testing.T) {
	code := "def connect():\n    api_key = \"sk-live-123456\"\n    return session(api_key)\n"
	out := applyHarden(code, "python")

	if strings.Contains(out, "sk-live-123456") {
		t.Errorf("literal secret survived harden:\n%s", out)
	}
	if !strings.Contains(out, `os.getenv("API_KEY")`) {
		t.Errorf("expected env lookup, got:\n%s", out)
	}
	if !strings.HasPrefix(out, "import os\n") {
		t.Errorf("missing os import:\n%s", out)
	}
}

func TestApplyHardenShellAndDOM(t *testing.T) {
	code := "subprocess.call(cmd, shell=True)\nel.innerHTML = value\n"
	out := applyHarden(code, "python")

	if strings.Contains(out, "shell=True") {
		t.Errorf("shell=True survived:\n%s", out)
	}
	if strings.Contains(out, "innerHTML") {
		t.Errorf("innerHTML sink survived:\n%s", out)
	}
	if !strings.Contains(out, ".textContent =") {
		t.Errorf("expected textContent rewrite:\n%s", out)
	}
}

func TestApplyCorrectnessResolvesConflictsKeepingOurs(t *testing.T) {
	code := "def greet():\n<<<<<<< HEAD\n    return \"hello\"\n=======\n    return \"hi\"\n>>>>>>> branch\n"
	out := applyCorrectness(code, "python")

	if strings.Contains(out, "<<<<<<<") || strings.Contains(out, ">>>>>>>") {
		t.Errorf("conflict markers survived:\n%s", out)
	}
	if !strings.Contains(out, `return "hello"`) {
		t.Errorf("ours side was dropped:\n%s", out)
	}
	if strings.Contains(out, `return "hi"`) {
		t.Errorf("theirs side was kept:\n%s", out)
	}
}

func TestApplyCorrectnessWidensBareExcept(t *testing.T) {
	code := "try:\n    risky()\nexcept:\n    pass\n"
	out := applyCorrectness(code, "python")

	if !strings.Contains(out, "except Exception:") {
		t.Errorf("bare except survived:\n%s", out)
	}
}

func TestApplyCorrectnessPassThrough(t *testing.T) {
	code := "def add(a, b):\n    return a + b\n"
	if out := applyCorrectness(code, "python"); out != code {
		t.Errorf("clean code was altered:\n%s", out)
	}
}

func TestApplyReadabilityAddsHeader(t *testing.T) {
	code := "def reverse_string(s):\n    return s[::-1]\n"
	out := applyReadability(code, "python")

	if !strings.HasPrefix(out, "# Reverse string.\n") {
		t.Errorf("expected derived header, got:\n%s", out)
	}
}

func TestApplyReadabilityLeavesCommentedCodeAlone(t *testing.T) {
	code := "# Already documented.\ndef f():\n    return 1\n"
	out := applyReadability(code, "python")

	if strings.Count(out, "#") != 1 {
		t.Errorf("header was duplicated:\n%s", out)
	}
}

func TestApplyUnifyStyleNormalizesTabs(t *testing.T) {
	code := "def f():\n\treturn 1"
	out := applyUnifyStyle(code, "python")

	if strings.Contains(out, "\t") {
		t.Errorf("tab survived unify-style:\n%s", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("missing trailing newline")
	}
}

func TestApplyGuidedAdoptsExampleIndent(t *testing.T) {
	example := "def mul(a, b):\n  return a * b\n"
	code := "def add(a, b):\n    return a + b\n"
	out := applyGuided(code, "python", example)

	if !strings.Contains(out, "\n  return a + b") {
		t.Errorf("indent was not rescaled to the example's unit:\n%s", out)
	}
}

func TestDetectIndentUnit(t *testing.T) {
	tests := []struct {
		name string
		code string
		want int
	}{
		{"two spaces", "def f():\n  return 1\n", 2},
		{"four spaces", "def f():\n    return 1\n", 4},
		{"flat", "x = 1\ny = 2\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectIndentUnit(tt.code); got != tt.want {
				t.Errorf("detectIndentUnit() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHumanize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"reverse_string", "Reverse string."},
		{"add", "Add."},
		{"parse_json_body", "Parse json body."},
	}
	for _, tt := range tests {
		if got := humanize(tt.in); got != tt.want {
			t.Errorf("humanize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
