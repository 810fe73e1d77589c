package transpile

import (
	"context"
	"testing"
)

func TestPythonToJavaScriptConvertsFunctionAndBranches(t *testing.T) {
	src := "def add(a, b):\n    if a > b and b != 0:\n        return a + b\n    return a - b\n"
	want := "function add(a, b) {\n    if (a > b && b != 0) {\n        return a + b\n    }\n    return a - b\n}\n"

	rt := NewRuleTranspiler()
	got, ok, err := rt.Transpile(context.Background(), src, "python", "javascript")
	if err != nil {
		t.Fatalf("Transpile returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected conversion, got decline")
	}
	if got != want {
		t.Errorf("converted code mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestPythonToJavaScriptCountingLoop(t *testing.T) {
	src := "def total(n):\n    result = 0\n    for i in range(n):\n        result += i\n    return result\n"
	want := "function total(n) {\n    let result = 0\n    for (let i = 0; i < n; i++) {\n        result += i\n    }\n    return result\n}\n"

	got, ok, err := NewRuleTranspiler().Transpile(context.Background(), src, "python", "javascript")
	if err != nil {
		t.Fatalf("Transpile returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected conversion, got decline")
	}
	if got != want {
		t.Errorf("converted code mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestPythonToJavaScriptElifChain(t *testing.T) {
	src := "def sign(x):\n    if x > 0:\n        return 1\n    elif x < 0:\n        return -1\n    else:\n        return 0\n"
	want := "function sign(x) {\n    if (x > 0) {\n        return 1\n    } else if (x < 0) {\n        return -1\n    } else {\n        return 0\n    }\n}\n"

	got, ok, err := NewRuleTranspiler().Transpile(context.Background(), src, "python", "javascript")
	if err != nil {
		t.Fatalf("Transpile returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected conversion, got decline")
	}
	if got != want {
		t.Errorf("converted code mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestPythonToJavaScriptMembership(t *testing.T) {
	src := "def seen_before(key, seen):\n    if key not in seen:\n        return False\n    return True\n"
	want := "function seen_before(key, seen) {\n    if (!seen.includes(key)) {\n        return false\n    }\n    return true\n}\n"

	got, ok, err := NewRuleTranspiler().Transpile(context.Background(), src, "python", "javascript")
	if err != nil {
		t.Fatalf("Transpile returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected conversion, got decline")
	}
	if got != want {
		t.Errorf("converted code mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestJavaScriptToPythonConvertsFunctionAndBranches(t *testing.T) {
	src := "function greet(name) {\n    if (name === \"world\" || name.length > 3) {\n        console.log(\"hi \" + name);\n    } else {\n        return false;\n    }\n    return true;\n}\n"
	want := "def greet(name):\n    if name == \"world\" or len(name) > 3:\n        print(\"hi \" + name)\n    else:\n        return False\n    return True\n"

	got, ok, err := NewRuleTranspiler().Transpile(context.Background(), src, "javascript", "python")
	if err != nil {
		t.Fatalf("Transpile returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected conversion, got decline")
	}
	if got != want {
		t.Errorf("converted code mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestJavaScriptToPythonCountingLoop(t *testing.T) {
	src := "function sum(items) {\n    let total = 0;\n    for (let i = 0; i < items.length; i++) {\n        total += items[i];\n    }\n    return total;\n}\n"
	want := "def sum(items):\n    total = 0\n    for i in range(len(items)):\n        total += items[i]\n    return total\n"

	got, ok, err := NewRuleTranspiler().Transpile(context.Background(), src, "javascript", "python")
	if err != nil {
		t.Fatalf("Transpile returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected conversion, got decline")
	}
	if got != want {
		t.Errorf("converted code mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestTranspileDeclinesBeyondMatrix(t *testing.T) {
	cases := []struct {
		name string
		code string
		from string
		to   string
	}{
		{"python comprehension", "squares = [x * x for x in nums]\n", "python", "javascript"},
		{"python class", "class Counter:\n    pass\n", "python", "javascript"},
		{"python fstring", "msg = f\"got {n}\"\n", "python", "javascript"},
		{"javascript arrow", "const f = (x) => x + 1;\n", "javascript", "python"},
		{"javascript template literal", "let s = `hi ${name}`;\n", "javascript", "python"},
		{"javascript object literal", "let point = { x: 1 };\n", "javascript", "python"},
		{"unsupported pair", "func main() {}\n", "go", "python"},
		{"same language", "x = 1\n", "python", "python"},
	}

	rt := NewRuleTranspiler()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, ok, err := rt.Transpile(context.Background(), tc.code, tc.from, tc.to)
			if err != nil {
				t.Fatalf("Transpile returned error: %v", err)
			}
			if ok {
				t.Errorf("expected decline, got conversion:\n%s", out)
			}
			if out != "" {
				t.Errorf("declined conversion should return empty output, got %q", out)
			}
		})
	}
}

func TestJavaScriptToPythonUnbalancedBracesDeclined(t *testing.T) {
	src := "function f() {\n    return 1\n"

	_, ok, err := NewRuleTranspiler().Transpile(context.Background(), src, "javascript", "python")
	if err != nil {
		t.Fatalf("Transpile returned error: %v", err)
	}
	if ok {
		t.Error("expected unbalanced snippet to be declined")
	}
}

func TestTranspileNormalizesAliases(t *testing.T) {
	got, ok, err := NewRuleTranspiler().Transpile(context.Background(), "x = 1\n", "py", "node")
	if err != nil {
		t.Fatalf("Transpile returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected py -> node to resolve to the python -> javascript rules")
	}
	if got != "let x = 1\n" {
		t.Errorf("converted code = %q, want %q", got, "let x = 1\n")
	}
}

func TestTranspileHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewRuleTranspiler().Transpile(ctx, "x = 1\n", "python", "javascript")
	if err == nil {
		t.Error("expected error from canceled context")
	}
}
