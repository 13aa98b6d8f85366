// Package stage implements the Stage Classifier: confidence-scaled
// thresholds, hysteresis relative to the current stage, rate limiting, and
// the dual-path (normal/critical) transition policy.
package stage

import (
	"sync"

	"github.com/jeremiafourie/cogniflight-edge/internal/model"
)

// Base thresholds and hysteresis band (spec §4.5).
const (
	baseMild     = 0.25
	baseModerate = 0.50
	baseSevere   = 0.75
	hysteresis   = 0.10

	minStageDurationS    = 2.0
	maxCriticalAlertRateS = 0.5

	windowSize = 3
)

var windowWeights = []float64{0.5, 0.3, 0.2}

// SensitivityMultipliers scales all three thresholds (spec §4.5).
var SensitivityMultipliers = map[model.Sensitivity]float64{
	model.SensitivityHigh:   0.7,
	model.SensitivityMedium: 1.0,
	model.SensitivityLow:    1.3,
}

// Config holds classifier tuning parameters.
type Config struct {
	Mild, Moderate, Severe float64
	Hysteresis             float64
	MinStageDurationS      float64
	MaxCriticalAlertRateS  float64
}

// DefaultConfig returns the production threshold configuration.
func DefaultConfig() Config {
	return Config{
		Mild:                  baseMild,
		Moderate:              baseModerate,
		Severe:                baseSevere,
		Hysteresis:            hysteresis,
		MinStageDurationS:     minStageDurationS,
		MaxCriticalAlertRateS: maxCriticalAlertRateS,
	}
}

// Classifier owns the current stage and the timestamps gating rate limits.
// Private state, touched only by the evaluation thread (spec §5).
type Classifier struct {
	mu sync.Mutex

	cfg Config

	stage             model.FatigueStage
	lastStageChangeS  float64
	lastCriticalAlertS float64

	smoothedWindow []float64 // most-recent last, used for window_avg
}

// New creates a Classifier starting in ACTIVE.
func New(cfg Config) *Classifier {
	return &Classifier{
		cfg:   cfg,
		stage: model.StageActive,
	}
}

// Stage returns the current stage.
func (c *Classifier) Stage() model.FatigueStage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// Evaluate feeds one FusionOutput through the classifier and returns the
// (possibly unchanged) stage after applying hysteresis and rate limiting.
func (c *Classifier) Evaluate(out model.FusionOutput, sensitivity model.Sensitivity, nowS float64) model.FatigueStage {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.smoothedWindow = append(c.smoothedWindow, out.FusionScore)
	if len(c.smoothedWindow) > windowSize {
		c.smoothedWindow = c.smoothedWindow[len(c.smoothedWindow)-windowSize:]
	}
	avgScore := windowAverage(c.smoothedWindow)

	mult := SensitivityMultipliers[sensitivity]
	if mult == 0 {
		mult = 1.0
	}
	factor := 0.8 + out.Confidence*0.4

	thresholds := map[model.FatigueStage]float64{
		model.StageMild:     c.cfg.Mild * mult * factor,
		model.StageModerate: c.cfg.Moderate * mult * factor,
		model.StageSevere:   c.cfg.Severe * mult * factor,
	}

	if out.IsCriticalEvent {
		direct := stageFromThresholds(avgScore, thresholds)
		if (direct == model.StageModerate || direct == model.StageSevere) &&
			nowS-c.lastCriticalAlertS >= c.cfg.MaxCriticalAlertRateS {
			c.lastCriticalAlertS = nowS
			c.commit(direct, nowS)
			return c.stage
		}
		// Not an escalation worth bypassing the rate limit for; fall
		// through to normal-path logic.
	}

	proposed := proposeStage(avgScore, c.stage, thresholds, c.cfg.Hysteresis)
	if nowS-c.lastStageChangeS >= c.cfg.MinStageDurationS {
		c.commit(proposed, nowS)
	}
	return c.stage
}

// stageFromThresholds returns the highest stage whose threshold avgScore
// meets or exceeds, used only by the critical path which is permitted to
// skip intermediate stages (spec §4.5: direct ACTIVE<->SEVERE is reachable
// only through the critical path).
func stageFromThresholds(avgScore float64, thresholds map[model.FatigueStage]float64) model.FatigueStage {
	if avgScore >= thresholds[model.StageSevere] {
		return model.StageSevere
	}
	if avgScore >= thresholds[model.StageModerate] {
		return model.StageModerate
	}
	if avgScore >= thresholds[model.StageMild] {
		return model.StageMild
	}
	return model.StageActive
}

func (c *Classifier) commit(proposed model.FatigueStage, nowS float64) {
	if proposed != c.stage {
		c.stage = proposed
		c.lastStageChangeS = nowS
	}
}

// proposeStage applies hysteresis relative to the current stage and admits
// at most one level change.
func proposeStage(avgScore float64, current model.FatigueStage, thresholds map[model.FatigueStage]float64, band float64) model.FatigueStage {
	order := []model.FatigueStage{model.StageActive, model.StageMild, model.StageModerate, model.StageSevere}
	idx := current.Rank()

	// Upward: the next stage up requires meeting its threshold.
	if idx < len(order)-1 {
		next := order[idx+1]
		if avgScore >= thresholds[next] {
			return next
		}
	}

	// Downward: current stage requires falling below threshold-hysteresis.
	if idx > 0 {
		if avgScore < thresholds[current]-band {
			return order[idx-1]
		}
	}

	return current
}

func windowAverage(samples []float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n && i < len(windowWeights); i++ {
		sum += samples[n-1-i] * windowWeights[i]
	}
	return sum
}
