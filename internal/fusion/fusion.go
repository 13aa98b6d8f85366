// Package fusion implements the Fusion Core: confidence-weighted
// combination of vision and biometric sub-scores, with dual-path temporal
// smoothing (critical bypass vs. exponential smoothing with trend boost).
package fusion

import (
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/jeremiafourie/cogniflight-edge/internal/biometric"
	"github.com/jeremiafourie/cogniflight-edge/internal/model"
	"github.com/jeremiafourie/cogniflight-edge/internal/vision"
)

// Modality base weights before redistribution (spec §4.4).
const (
	visionBaseWeight = 0.70
	bioBaseWeight    = 0.30

	trendBoostThreshold = 0.20
	trendBoostAmount    = 0.05
)

// Config holds fusion tuning parameters (spec §6 configuration surface).
type Config struct {
	WindowSize      int
	TrendWindowSize int
	EMAWeights      []float64
}

// DefaultConfig returns the fusion configuration used in production.
func DefaultConfig() Config {
	return Config{
		WindowSize:      5,
		TrendWindowSize: 10,
		EMAWeights:      []float64{0.4, 0.3, 0.2, 0.07, 0.03},
	}
}

// Core owns the ring buffer of raw fusion scores and the trend buffer of
// smoothed scores. Both buffers are private to the Core and touched only by
// the evaluation thread (spec §5): the mutex below guards the rare case of
// a concurrent diagnostic read, not contended hot-path writes.
type Core struct {
	mu sync.Mutex

	cfg Config

	ring  []float64 // most-recent last
	trend []float64 // most-recent last
}

// New creates a Fusion Core with cfg.
func New(cfg Config) *Core {
	return &Core{cfg: cfg}
}

// modality is one input to the weighted fusion, with its redistributed
// weight once missing modalities have been dropped.
type modality struct {
	present bool
	score   float64
	weight  float64
}

// Evaluate runs one fusion tick. vision/bio results and their presence flags
// come from the VFE/BFE; either may be absent, but not both
// (model.ErrInsufficientModalities covers that case).
func (c *Core) Evaluate(
	visionResult *vision.Result, visionSample *model.VisionSample,
	bioResult *biometric.Result, bioSample *model.BioSample,
	nowS float64,
) (model.FusionOutput, error) {
	vis := modality{present: visionResult != nil, weight: visionBaseWeight}
	bio := modality{present: bioResult != nil, weight: bioBaseWeight}
	if vis.present {
		vis.score = visionResult.Score
	}
	if bio.present {
		bio.score = bioResult.Score
	}

	if !vis.present && !bio.present {
		return model.FusionOutput{}, model.ErrInsufficientModalities
	}

	redistribute(&vis, &bio)
	raw := model.Clamp01(vis.weight*vis.score + bio.weight*bio.score)

	confidence := confidenceOf(vis.present, bio.present, visionSample, bioResult)

	critical := (visionResult != nil && visionResult.Critical) || (bioResult != nil && bioResult.Critical)

	c.mu.Lock()
	smoothed := c.smooth(raw, critical)
	c.mu.Unlock()

	out := model.FusionOutput{
		FusionScore:     smoothed,
		Confidence:      confidence,
		IsCriticalEvent: critical,
		Vision:          visionSample,
		Bio:             bioSample,
		TimestampS:      nowS,
	}
	return out, nil
}

// redistribute renormalizes vis/bio weights so they sum to 1.0 over present
// modalities (spec invariant I6).
func redistribute(vis, bio *modality) {
	total := 0.0
	if vis.present {
		total += vis.weight
	}
	if bio.present {
		total += bio.weight
	}
	if total == 0 {
		return
	}
	if vis.present {
		vis.weight = vis.weight / total
	} else {
		vis.weight = 0
	}
	if bio.present {
		bio.weight = bio.weight / total
	} else {
		bio.weight = 0
	}
}

// confidenceOf computes base confidence plus quality bonuses, normalized
// into the unused fraction above base so the total never exceeds 1.0 (spec
// §9 open question (a): accumulation order is ours to choose; we normalize
// at the end rather than clamping mid-sum, so no bonus is silently lost to
// an early clamp).
func confidenceOf(visPresent, bioPresent bool, vs *model.VisionSample, br *biometric.Result) float64 {
	present := 0
	if visPresent {
		present++
	}
	if bioPresent {
		present++
	}
	if present == 0 {
		return 0
	}

	base := float64(present) / 2.0

	bonus := 0.0
	if visPresent && vs != nil {
		bonus += 0.35 // vision landmarks present
	}
	if bioPresent && br != nil {
		bonus += br.QualityBonus
	}

	// Bonuses are drawn from the fraction of confidence still unused above
	// base, capping the combined score at 1.0 without discarding partial
	// credit the way a naive clamp would.
	headroom := 1.0 - base
	if headroom <= 0 {
		return 1.0
	}
	maxBonus := 0.35 + 0.35 + 0.30 + 0.20 + 0.15 // vision + all four bio bonuses
	normalizedBonus := headroom * (bonus / maxBonus)

	return model.Clamp01(base + normalizedBonus)
}

// smooth applies the dual-path temporal smoothing. Must be called with c.mu
// held.
func (c *Core) smooth(raw float64, critical bool) float64 {
	if critical {
		c.ring = append(c.ring[:0], raw)
		return raw
	}

	c.ring = append(c.ring, raw)
	if len(c.ring) > c.cfg.WindowSize {
		c.ring = c.ring[len(c.ring)-c.cfg.WindowSize:]
	}

	ema := weightedAverage(c.ring, c.cfg.EMAWeights)

	c.trend = append(c.trend, ema)
	if len(c.trend) > c.cfg.TrendWindowSize {
		c.trend = c.trend[len(c.trend)-c.cfg.TrendWindowSize:]
	}

	if slopeOf(c.trend) > trendBoostThreshold {
		ema = model.Clamp01(ema + trendBoostAmount)
	}

	return model.Clamp01(ema)
}

// weightedAverage applies weights most-recent-first over the available
// suffix of samples, without renormalizing when fewer than len(weights)
// samples exist (spec §9 open question (c): deliberately safety-leaning).
func weightedAverage(samples []float64, weights []float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n && i < len(weights); i++ {
		// samples[n-1-i] is the i-th most recent sample.
		sum += samples[n-1-i] * weights[i]
	}
	return sum
}

// slopeOf computes the linear-regression slope over up to the last 5
// smoothed samples, used to detect a worsening trend.
func slopeOf(trend []float64) float64 {
	n := len(trend)
	if n < 2 {
		return 0
	}
	window := 5
	if n < window {
		window = n
	}
	recent := trend[n-window:]

	xs := make([]float64, len(recent))
	for i := range recent {
		xs[i] = float64(i)
	}

	_, beta := stat.LinearRegression(xs, recent, nil, false)
	return beta
}

// RingLen reports the current ring buffer size (used by tests asserting
// invariant §8: after a critical tick the ring holds exactly one score).
func (c *Core) RingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ring)
}
