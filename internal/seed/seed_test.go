package seed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFileSingleSeed(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "sum.yaml", `
name: sum-list
language: python
code: |
  def sum_list(xs):
      return sum(xs)
description: Sum a list of numbers
tags: [math, list]
test_passed: true
reliability: 0.8
`)

	drafts, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	d := drafts[0]
	assert.Equal(t, "sum-list", d.Name)
	assert.Equal(t, "python", d.Language)
	assert.Equal(t, "def sum_list(xs):\n    return sum(xs)\n", d.Code)
	assert.Equal(t, "Sum a list of numbers", d.Description)
	assert.Equal(t, []string{"math", "list"}, d.Tags)
	require.NotNil(t, d.TestPassed)
	assert.True(t, *d.TestPassed)
	assert.Equal(t, 0.8, d.Reliability)
}

func TestLoadFileUntestedSeedStaysUntested(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "greet.yaml", `
name: greet
language: javascript
code: "function greet(n) { return 'hi ' + n; }"
`)

	drafts, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Nil(t, drafts[0].TestPassed, "absent test_passed must load as untested, not failed")
	assert.Zero(t, drafts[0].Reliability)
}

func TestLoadFileSeedList(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "packet.yaml", `
seeds:
  - name: first
    language: python
    code: "def first(xs): return xs[0]"
  - name: last
    language: python
    code: "def last(xs): return xs[-1]"
`)

	drafts, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, "first", drafts[0].Name)
	assert.Equal(t, "last", drafts[1].Name)
}

func TestLoadFileValidation(t *testing.T) {
	cases := []struct {
		name     string
		content  string
		wantHint string
	}{
		{"missing name", "language: python\ncode: \"def f(): pass\"\n", "missing a name"},
		{"missing language", "name: f\ncode: \"def f(): pass\"\n", "missing a language"},
		{"missing code", "name: f\nlanguage: python\n", "missing code"},
		{"blank code", "name: f\nlanguage: python\ncode: \"   \"\n", "missing code"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeManifest(t, t.TempDir(), "bad.yaml", tc.content)
			_, err := LoadFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantHint)
			assert.Contains(t, err.Error(), path, "errors must name the offending file")
		})
	}
}

func TestLoadFileNamesBrokenListEntry(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "packet.yaml", `
seeds:
  - name: good
    language: python
    code: "def g(): pass"
  - name: bad
    language: python
`)

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "(seed 2)")
}

func TestLoadFileRejectsBadYAML(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "mangled.yaml", "name: [unclosed\n")
	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestLoadDirCollectsInFilenameOrder(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "b.yaml", "name: beta\nlanguage: python\ncode: \"def b(): pass\"\n")
	writeManifest(t, dir, "a.yml", "name: alpha\nlanguage: python\ncode: \"def a(): pass\"\n")
	writeManifest(t, dir, "notes.txt", "not a manifest")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))

	drafts, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, "alpha", drafts[0].Name)
	assert.Equal(t, "beta", drafts[1].Name)
}

func TestLoadDirAbortsOnBrokenManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "good.yaml", "name: good\nlanguage: python\ncode: \"def g(): pass\"\n")
	broken := writeManifest(t, dir, "broken.yaml", "name: nothing-else\n")

	_, err := LoadDir(dir)
	require.Error(t, err, "a typo must not silently drop seeds")
	assert.Contains(t, err.Error(), broken)
}

func TestLoadDirEmpty(t *testing.T) {
	drafts, err := LoadDir(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestIsManifest(t *testing.T) {
	assert.True(t, IsManifest("seeds.yaml"))
	assert.True(t, IsManifest("seeds.yml"))
	assert.True(t, IsManifest("SEEDS.YAML"))
	assert.False(t, IsManifest("seeds.txt"))
	assert.False(t, IsManifest("seeds.yaml.bak"))
	assert.False(t, IsManifest("seeds"))
}
