package coherence

import (
	"math"
	"sync"
	"time"

	"codegarden/internal/logging"
)

// =============================================================================
// GLOBAL COHERENCE TRACKER - THE GARDEN-WIDE PULSE
// =============================================================================

// GlobalState is a point-in-time reading of garden-wide coherence. It is
// never persisted; every snapshot is recomputed from the proven set.
type GlobalState struct {
	// XiGlobal is the mean composite coherence over the full proven set.
	XiGlobal float64 `json:"xi_global"`

	// AvgRecognition is the mean of per-pattern recognition, where a
	// pattern contributes its coherence when it clears the acceptance
	// threshold and zero otherwise.
	AvgRecognition float64 `json:"avg_recognition"`

	// CascadeBoost = 1 + gammaBase * e^(beta * XiGlobal) * AvgRecognition.
	// Always >= 1. Passed into healing as bias context, never applied as
	// a direct multiplier on scores.
	CascadeBoost float64 `json:"cascade_boost"`

	PatternCount int       `json:"pattern_count"`
	ComputedAt   time.Time `json:"computed_at"`
}

// TrackerConfig tunes the cascade formula.
type TrackerConfig struct {
	Beta                float64 // exponent steepness
	GammaBase           float64 // boost gain
	AcceptanceThreshold float64 // coherence floor for recognition
}

// DefaultTrackerConfig returns the observed defaults.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Beta:                2.5,
		GammaBase:           0.05,
		AcceptanceThreshold: 0.7,
	}
}

// Tracker recomputes GlobalState from the proven set's coherence values.
// Checkpoints that call Update: process start, before each heal batch,
// after each successful heal, and before/after each growth wave.
type Tracker struct {
	cfg TrackerConfig

	mu   sync.RWMutex
	last GlobalState
}

// NewTracker creates a tracker, filling zero config fields from defaults.
func NewTracker(cfg TrackerConfig) *Tracker {
	def := DefaultTrackerConfig()
	if cfg.Beta <= 0 {
		cfg.Beta = def.Beta
	}
	if cfg.GammaBase <= 0 {
		cfg.GammaBase = def.GammaBase
	}
	if cfg.AcceptanceThreshold <= 0 {
		cfg.AcceptanceThreshold = def.AcceptanceThreshold
	}
	return &Tracker{cfg: cfg}
}

// Update recomputes the global state from the given proven-set coherence
// values and caches the snapshot for Current.
func (t *Tracker) Update(coherences []float64) GlobalState {
	var xi, recognition float64
	if n := len(coherences); n > 0 {
		var sum, recSum float64
		for _, c := range coherences {
			sum += c
			if c >= t.cfg.AcceptanceThreshold {
				recSum += c
			}
		}
		xi = sum / float64(n)
		recognition = recSum / float64(n)
	}

	boost := 1 + t.cfg.GammaBase*math.Exp(t.cfg.Beta*xi)*recognition
	if boost < 1 {
		boost = 1
	}

	state := GlobalState{
		XiGlobal:       xi,
		AvgRecognition: recognition,
		CascadeBoost:   boost,
		PatternCount:   len(coherences),
		ComputedAt:     time.Now(),
	}

	t.mu.Lock()
	t.last = state
	t.mu.Unlock()

	logging.CoherenceDebug("global state: xi=%.4f recognition=%.4f boost=%.4f over %d pattern(s)",
		xi, recognition, boost, len(coherences))
	return state
}

// Current returns the last computed snapshot, or a neutral baseline if
// Update has never run.
func (t *Tracker) Current() GlobalState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last.ComputedAt.IsZero() {
		return GlobalState{CascadeBoost: 1}
	}
	return t.last
}
