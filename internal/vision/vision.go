// Package vision implements the Vision Feature Extractor: a pure mapping
// from a raw camera-frame sample to a bounded fatigue sub-score, a critical
// flag, and diagnostic sub-scores.
package vision

import (
	"github.com/jeremiafourie/cogniflight-edge/internal/clock"
	"github.com/jeremiafourie/cogniflight-edge/internal/model"
)

// Weights for the vision sub-scores (spec §4.2, yawning-inclusive revision).
const (
	weightEAR        = 0.40
	weightClosure     = 0.25
	weightMicrosleep  = 0.15
	weightYawn        = 0.15
	weightBlink       = 0.05

	// MaxAgeS is the default freshness budget for vision samples (§3).
	MaxAgeS = 5.0
)

// Diagnostics exposes the individual sub-scores behind a fused vision score.
type Diagnostics struct {
	EARSub        float64
	ClosureSub    float64
	MicrosleepSub float64
	YawnSub       float64
	BlinkSub      float64
}

// Result is the VFE's output for one sample.
type Result struct {
	Score    float64
	Critical bool
	Diag     Diagnostics
}

// Extract computes the vision sub-score for s. now is the monotonic clock
// reading used to check s.TimestampS for staleness.
func Extract(now float64, s model.VisionSample) (Result, error) {
	if err := validate(now, s); err != nil {
		return Result{}, err
	}

	diag := Diagnostics{
		EARSub:        earSub(s.AvgEAR),
		ClosureSub:    closureSub(s.ClosureDurationS),
		MicrosleepSub: microsleepSub(s.MicrosleepCount),
		YawnSub:       yawnSub(s),
		BlinkSub:      blinkSub(s.BlinkRatePerMinute),
	}

	score := weightEAR*diag.EARSub +
		weightClosure*diag.ClosureSub +
		weightMicrosleep*diag.MicrosleepSub +
		weightYawn*diag.YawnSub +
		weightBlink*diag.BlinkSub

	return Result{
		Score:    model.Clamp01(score),
		Critical: isCritical(s),
		Diag:     diag,
	}, nil
}

func validate(now float64, s model.VisionSample) error {
	if s.AvgEAR <= 0 || s.AvgEAR > 1 {
		return model.ErrInvalidSample
	}
	if err := clock.CheckFresh(now, s.TimestampS, MaxAgeS); err != nil {
		return err
	}
	return nil
}

func isCritical(s model.VisionSample) bool {
	if s.ClosureDurationS >= 1.0 {
		return true
	}
	if s.AvgEAR < 0.15 {
		return true
	}
	if s.MicrosleepCount >= 2 {
		return true
	}
	if s.YawnCount >= 3 && s.YawnDurationS > 2.0 {
		return true
	}
	return false
}

func earSub(ear float64) float64 {
	var v float64
	switch {
	case ear < 0.15:
		v = 1.0
	case ear < 0.20:
		v = 0.8 + ((0.20-ear)/0.05)*0.2
	case ear < 0.25:
		v = ((0.25 - ear) / 0.05) * 0.8
	default:
		v = (0.30 - ear) / 0.20
		if v < 0 {
			v = 0
		}
	}
	return model.Clamp01(v)
}

func closureSub(closureS float64) float64 {
	switch {
	case closureS < 0.5:
		return 0
	case closureS < 1.0:
		return 0.5
	case closureS < 3.0:
		return 0.5 + (closureS-1.0)*0.25
	default:
		return 1.0
	}
}

func microsleepSub(count int) float64 {
	v := float64(count) * 0.3
	if v > 1 {
		v = 1
	}
	return v
}

func yawnFrequencySub(count int) float64 {
	switch {
	case count <= 0:
		return 0
	case count <= 2:
		return float64(count) * 0.3
	case count <= 4:
		return 0.6 + float64(count-3)*0.2
	default:
		return 1.0
	}
}

func yawnDurationSub(yawning bool, durationS float64) float64 {
	if !yawning {
		return 0
	}
	switch {
	case durationS < 1:
		return 0.2
	case durationS < 2:
		return durationS * 0.5
	case durationS < 4:
		return 0.5 + (durationS-2)*0.25
	default:
		return 1.0
	}
}

func yawnMarSub(mar float64) float64 {
	switch {
	case mar < 0.35:
		return 0
	case mar < 0.5:
		return (mar - 0.35) * 3.33
	case mar < 0.6:
		return (mar - 0.5) * 10.0
	default:
		return 1.0
	}
}

// yawnSub blends frequency (50%), current duration (30%), and MAR (20%).
func yawnSub(s model.VisionSample) float64 {
	freq := yawnFrequencySub(s.YawnCount)
	dur := yawnDurationSub(s.Yawning, s.YawnDurationS)
	mar := yawnMarSub(s.MAR)
	return model.Clamp01(0.5*freq + 0.3*dur + 0.2*mar)
}

func blinkSub(ratePerMin float64) float64 {
	var v float64
	switch {
	case ratePerMin < 5:
		v = 1.0
	case ratePerMin < 10:
		v = (10 - ratePerMin) / 5
	case ratePerMin > 40:
		v = (ratePerMin - 40) / 20
	default:
		v = 0
	}
	return model.Clamp01(v)
}
