package config

import "fmt"

// EvolutionConfig tunes the growth, recycler, and coherence engines. Zero
// values fall back to the engine defaults, so a partial block only moves the
// knobs it names.
type EvolutionConfig struct {
	// Growth waves
	Depth                 int      `yaml:"depth"`                    // variant waves after wave 0
	MaxVariantsPerPattern int      `yaml:"max_variants_per_pattern"` // per-source variant budget
	BatchMultiplier       int      `yaml:"batch_multiplier"`         // scales the budget into the per-wave source cap
	TargetLanguages       []string `yaml:"target_languages"`         // language-variant targets
	Parallelism           int      `yaml:"parallelism"`              // concurrent variant generation per wave

	// Reflection budgets
	ApproachSwapLoops  int     `yaml:"approach_swap_loops"`
	ApproachSwapTarget float64 `yaml:"approach_swap_target"`
	RefineLoops        int     `yaml:"refine_loops"`
	RefineTarget       float64 `yaml:"refine_target"`

	// Recycler
	MaxHealAttempts          int     `yaml:"max_heal_attempts"`           // lifetime attempt bound per capture
	MaxPendingPerCycle       int     `yaml:"max_pending_per_cycle"`       // backlog slice handled per cycle
	HealMaxLoops             int     `yaml:"heal_max_loops"`              // reflection loop bound per heal attempt
	HealTargetCoherence      float64 `yaml:"heal_target_coherence"`       // reflection target per heal attempt
	DropThreshold            float64 `yaml:"drop_threshold"`              // per-dimension regression tolerance
	VoidScaffoldThreshold    float64 `yaml:"void_scaffold_threshold"`     // previous-attempt score that triggers replenishment
	VoidScaffoldMinCoherency float64 `yaml:"void_scaffold_min_coherency"` // coherence floor for scaffold sources

	// Coherence field
	AcceptanceThreshold float64 `yaml:"acceptance_threshold"` // coherence floor for registration
	Beta                float64 `yaml:"beta"`                 // exponent steepness
	GammaBase           float64 `yaml:"gamma_base"`           // boost gain
}

// DefaultEvolutionConfig returns the standard evolution parameters.
func DefaultEvolutionConfig() EvolutionConfig {
	return EvolutionConfig{
		Depth:                 2,
		MaxVariantsPerPattern: 3,
		BatchMultiplier:       10,
		TargetLanguages:       []string{"python", "javascript"},
		Parallelism:           4,

		ApproachSwapLoops:  2,
		ApproachSwapTarget: 0.85,
		RefineLoops:        2,
		RefineTarget:       0.95,

		MaxHealAttempts:          3,
		MaxPendingPerCycle:       50,
		HealMaxLoops:             5,
		HealTargetCoherence:      0.9,
		DropThreshold:            0.05,
		VoidScaffoldThreshold:    0.3,
		VoidScaffoldMinCoherency: 0.8,

		AcceptanceThreshold: 0.7,
		Beta:                2.5,
		GammaBase:           0.05,
	}
}

// ValidateEvolution checks that evolution parameters are within range.
func (c *Config) ValidateEvolution() error {
	e := &c.Evolution

	thresholds := []struct {
		name  string
		value float64
	}{
		{"approach_swap_target", e.ApproachSwapTarget},
		{"refine_target", e.RefineTarget},
		{"heal_target_coherence", e.HealTargetCoherence},
		{"drop_threshold", e.DropThreshold},
		{"void_scaffold_threshold", e.VoidScaffoldThreshold},
		{"void_scaffold_min_coherency", e.VoidScaffoldMinCoherency},
		{"acceptance_threshold", e.AcceptanceThreshold},
	}
	for _, t := range thresholds {
		if t.value < 0 || t.value > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %v", t.name, t.value)
		}
	}

	counts := []struct {
		name  string
		value int
	}{
		{"depth", e.Depth},
		{"max_variants_per_pattern", e.MaxVariantsPerPattern},
		{"batch_multiplier", e.BatchMultiplier},
		{"parallelism", e.Parallelism},
		{"approach_swap_loops", e.ApproachSwapLoops},
		{"refine_loops", e.RefineLoops},
		{"max_heal_attempts", e.MaxHealAttempts},
		{"max_pending_per_cycle", e.MaxPendingPerCycle},
		{"heal_max_loops", e.HealMaxLoops},
	}
	for _, n := range counts {
		if n.value < 0 {
			return fmt.Errorf("%s must not be negative, got %d", n.name, n.value)
		}
	}

	if e.Beta < 0 {
		return fmt.Errorf("beta must not be negative, got %v", e.Beta)
	}
	if e.GammaBase < 0 {
		return fmt.Errorf("gamma_base must not be negative, got %v", e.GammaBase)
	}

	return nil
}
