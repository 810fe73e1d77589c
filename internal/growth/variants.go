package growth

import (
	"context"
	"strings"

	"codegarden/internal/coherence"
	"codegarden/internal/logging"
	"codegarden/internal/pattern"
	"codegarden/internal/reflection"
)

// =============================================================================
// VARIANT GENERATION - THREE WAYS TO DESCEND FROM A PROVEN PARENT
// =============================================================================

// genResult collects one source pattern's candidates. Slots in the wave's
// result slice are written by exactly one worker, so no lock is needed.
type genResult struct {
	variants []pattern.Variant
	rejected int // viability rejections, skipped without registration or capture
}

// generateVariants derives every applicable variant from one proven parent:
// language variants through the transpiler, approach swaps for each detected
// motif, and one refinement pass. Collaborator faults skip the variant and
// keep the wave alive; only context cancellation aborts.
func (e *Engine) generateVariants(ctx context.Context, src *pattern.Pattern, state coherence.GlobalState, opts Options) (genResult, error) {
	var res genResult

	for _, target := range opts.TargetLanguages {
		if strings.EqualFold(target, src.Language) {
			continue
		}
		code, ok, err := e.transpiler.Transpile(ctx, src.Code, src.Language, target)
		if err != nil {
			if ctx.Err() != nil {
				return res, err
			}
			logging.GrowthWarn("transpile %s -> %s failed for %q: %v", src.Language, target, src.Name, err)
			continue
		}
		if !ok {
			logging.GrowthDebug("no %s rendition for %q", target, src.Name)
			continue
		}
		if !e.checker.Check(ctx, code, target) {
			res.rejected++
			logging.GrowthDebug("variant %s-%s failed viability, skipped", src.Name, strings.ToLower(target))
			continue
		}
		name := src.Name + "-" + strings.ToLower(target)
		res.variants = append(res.variants, pattern.NewVariant(src, pattern.GenLanguageVariant, name, target, code))
	}

	for _, m := range Motifs() {
		if !m.Detect(src.Code) {
			continue
		}
		result, err := e.reflector.Reflect(ctx, reflection.Request{
			Code:             src.Code,
			Language:         src.Language,
			MaxLoops:         opts.ApproachSwapLoops,
			TargetCoherence:  opts.ApproachSwapTarget,
			CascadeBoost:     state.CascadeBoost,
			GuidanceExamples: []string{m.Hint},
		})
		if err != nil {
			if ctx.Err() != nil {
				return res, err
			}
			logging.GrowthWarn("approach swap %s on %q failed: %v", m.Name, src.Name, err)
			continue
		}
		if result.Code == src.Code {
			continue
		}
		name := src.Name + "-" + m.Name
		res.variants = append(res.variants, pattern.NewVariant(src, pattern.GenApproachSwap, name, src.Language, result.Code))
	}

	result, err := e.reflector.Reflect(ctx, reflection.Request{
		Code:            src.Code,
		Language:        src.Language,
		MaxLoops:        opts.RefineLoops,
		TargetCoherence: opts.RefineTarget,
		CascadeBoost:    state.CascadeBoost,
	})
	if err != nil {
		if ctx.Err() != nil {
			return res, err
		}
		logging.GrowthWarn("refinement of %q failed: %v", src.Name, err)
		return res, nil
	}
	if result.Code != src.Code {
		name := src.Name + "-refined"
		res.variants = append(res.variants, pattern.NewVariant(src, pattern.GenIterativeRefine, name, src.Language, result.Code))
	}

	return res, nil
}
