package stage

import (
	"testing"

	"github.com/jeremiafourie/cogniflight-edge/internal/model"
)

func out(score, confidence float64, critical bool) model.FusionOutput {
	return model.FusionOutput{FusionScore: score, Confidence: confidence, IsCriticalEvent: critical}
}

func TestEvaluate_StaysActiveBelowThreshold(t *testing.T) {
	c := New(DefaultConfig())
	s := c.Evaluate(out(0.05, 0.8, false), model.SensitivityMedium, 0)
	if s != model.StageActive {
		t.Fatalf("expected ACTIVE, got %s", s)
	}
}

func TestEvaluate_RateLimitedNormalPath(t *testing.T) {
	c := New(DefaultConfig())
	// At t=0 the classifier's internal lastStageChangeS also reads 0, so
	// the very first proposed transition is held until min_stage_duration_s
	// has elapsed.
	s := c.Evaluate(out(0.9, 0.8, false), model.SensitivityMedium, 0)
	if s != model.StageActive {
		t.Fatalf("expected transition to be rate-limited at t=0, got %s", s)
	}

	s = c.Evaluate(out(0.9, 0.8, false), model.SensitivityMedium, 2)
	if s == model.StageActive {
		t.Fatal("expected transition to be admitted once min_stage_duration_s has elapsed")
	}
}

func TestEvaluate_HysteresisPreventsOscillation(t *testing.T) {
	c := New(DefaultConfig())
	// Ramp up one level per admitted tick: MILD at t=2, MODERATE at t=4,
	// SEVERE at t=6.
	c.Evaluate(out(0.9, 0.8, false), model.SensitivityMedium, 0)
	c.Evaluate(out(0.9, 0.8, false), model.SensitivityMedium, 2)
	c.Evaluate(out(0.9, 0.8, false), model.SensitivityMedium, 4)
	mid := c.Evaluate(out(0.9, 0.8, false), model.SensitivityMedium, 6)
	if mid.Rank() < model.StageMild.Rank() {
		t.Fatalf("expected at least MILD after ramp, got %s", mid)
	}

	// A lower score pulls window_avg to 0.625, under SEVERE's
	// threshold-hysteresis, so the stage drops, but only by one level
	// (SEVERE to MODERATE), never straight to ACTIVE.
	held := c.Evaluate(out(0.35, 0.8, false), model.SensitivityMedium, 8)
	if held == model.StageActive {
		t.Fatal("hysteresis should have prevented a drop straight to ACTIVE")
	}
}

func TestEvaluate_CriticalPathBypassesRateLimit(t *testing.T) {
	c := New(DefaultConfig())
	// Warm up the window_avg with high scores first so the weighted
	// average (which does not renormalize over a partial window) has
	// enough mass to cross the MODERATE threshold once the critical tick
	// lands.
	c.Evaluate(out(0.9, 0.8, false), model.SensitivityMedium, 1)
	c.Evaluate(out(0.9, 0.8, false), model.SensitivityMedium, 2)
	s := c.Evaluate(out(0.95, 0.8, true), model.SensitivityMedium, 3)
	if s != model.StageModerate && s != model.StageSevere {
		t.Fatalf("expected critical escalation to MODERATE or SEVERE, got %s", s)
	}
}

func TestEvaluate_CriticalPathRespectsAlertRateLimit(t *testing.T) {
	c := New(DefaultConfig())
	c.Evaluate(out(0.9, 0.8, false), model.SensitivityMedium, 1)
	c.Evaluate(out(0.9, 0.8, false), model.SensitivityMedium, 2)
	c.Evaluate(out(0.95, 0.8, true), model.SensitivityMedium, 3)
	// A second critical tick within 0.5s of the first should not escalate
	// again via the critical path (it still may escalate via the normal
	// path once min_stage_duration_s has elapsed, but not before).
	s := c.Evaluate(out(0.95, 0.8, true), model.SensitivityMedium, 3.1)
	if s == model.StageActive {
		t.Fatal("unexpected regression to ACTIVE")
	}
}

func TestEvaluate_MonotoneInSensitivity(t *testing.T) {
	high := New(DefaultConfig())
	low := New(DefaultConfig())

	o := out(0.4, 0.8, false)
	highStage := high.Evaluate(o, model.SensitivityHigh, 2)
	lowStage := low.Evaluate(o, model.SensitivityLow, 2)

	if highStage.Rank() < lowStage.Rank() {
		t.Fatalf("HIGH sensitivity (%s) should reach a stage >= LOW sensitivity (%s) on identical input", highStage, lowStage)
	}
}
