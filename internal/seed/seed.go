// Package seed loads seed manifests, the YAML files that hand the garden
// its starting patterns. A manifest holds either a single seed or a list
// under a `seeds:` key; the loader flattens both into pattern drafts ready
// for a growth run.
package seed

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"codegarden/internal/logging"
	"codegarden/internal/pattern"
)

// entry is one seed as written in a manifest.
type entry struct {
	Name        string   `yaml:"name"`
	Language    string   `yaml:"language"`
	Code        string   `yaml:"code"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`

	// Tri-state: absent means untested, not failed.
	TestPassed  *bool   `yaml:"test_passed"`
	Reliability float64 `yaml:"reliability"`
}

// manifest accepts both shapes: a `seeds:` list, or a single seed spelled
// at the top level of the document.
type manifest struct {
	Seeds []entry `yaml:"seeds"`
	entry `yaml:",inline"`
}

func (e entry) validate(where string) error {
	switch {
	case e.Name == "":
		return fmt.Errorf("%s: seed is missing a name", where)
	case e.Language == "":
		return fmt.Errorf("%s: seed %q is missing a language", where, e.Name)
	case strings.TrimSpace(e.Code) == "":
		return fmt.Errorf("%s: seed %q is missing code", where, e.Name)
	}
	return nil
}

func (e entry) draft() pattern.Draft {
	return pattern.Draft{
		Name:        e.Name,
		Language:    e.Language,
		Code:        e.Code,
		Description: e.Description,
		Tags:        e.Tags,
		TestPassed:  e.TestPassed,
		Reliability: e.Reliability,
	}
}

// IsManifest reports whether a filename looks like a seed manifest.
func IsManifest(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// LoadFile parses one manifest into drafts. Invalid manifests fail loudly
// with the file path in the error; partial loads are never returned.
func LoadFile(path string) ([]pattern.Draft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s: not a valid seed manifest: %w", path, err)
	}

	entries := m.Seeds
	if len(entries) == 0 {
		entries = []entry{m.entry}
	}

	drafts := make([]pattern.Draft, 0, len(entries))
	for i, e := range entries {
		where := path
		if len(entries) > 1 {
			where = fmt.Sprintf("%s (seed %d)", path, i+1)
		}
		if err := e.validate(where); err != nil {
			return nil, err
		}
		drafts = append(drafts, e.draft())
	}

	logging.SeedsDebug("Loaded %d seed(s) from %s", len(drafts), path)
	return drafts, nil
}

// LoadDir loads every manifest in a directory, in filename order. Files
// without a manifest extension are ignored; a broken manifest aborts the
// whole load so a typo cannot silently drop seeds.
func LoadDir(dir string) ([]pattern.Draft, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed directory: %w", err)
	}

	var drafts []pattern.Draft
	files := 0
	for _, de := range entries {
		if de.IsDir() || !IsManifest(de.Name()) {
			continue
		}
		files++
		batch, err := LoadFile(filepath.Join(dir, de.Name()))
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, batch...)
	}

	logging.Seeds("Loaded %d seed(s) from %d manifest(s) in %s", len(drafts), files, dir)
	return drafts, nil
}
