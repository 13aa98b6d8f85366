// Package biometric implements the Biometric Feature Extractor: a pure
// mapping from a heart-rate/HRV sample to a bounded fatigue sub-score and a
// critical flag.
package biometric

import "github.com/jeremiafourie/cogniflight-edge/internal/model"

// Weights for the enhanced biometric sub-score (spec §4.3).
const (
	weightStress        = 0.40
	weightHRV            = 0.25
	weightTrend          = 0.15
	weightBaselineDev    = 0.20

	// rmssdCriticalMs and stressCriticalIdx gate the critical flag.
	rmssdCriticalMs   = 20.0
	stressCriticalIdx = 0.75
	trendCriticalBpm  = 5.0
)

// Result is the BFE's output for one sample.
type Result struct {
	Score        float64
	Critical     bool
	QualityBonus float64
}

// Extract computes the biometric sub-score for s.
func Extract(s model.BioSample) (Result, error) {
	if s.HR < 0 || s.HR > 255 {
		return Result{}, model.ErrInvalidSample
	}

	var score float64
	var bonus float64
	if s.HasEnhanced {
		score = enhancedScore(s)
		bonus = qualityBonus(s)
	} else {
		score = rawHRScore(s)
	}

	return Result{
		Score:        model.Clamp01(score),
		Critical:     isCritical(s),
		QualityBonus: bonus,
	}, nil
}

func enhancedScore(s model.BioSample) float64 {
	stress := model.Clamp01(s.StressIndex)
	hrv := hrvSub(s.RMSSDMs, s.BaselineHRV)
	trend := trendSub(s.HRTrendBpmPerMin)
	dev := model.Clamp01(s.BaselineDeviation * 2)

	return weightStress*stress + weightHRV*hrv + weightTrend*trend + weightBaselineDev*dev
}

func hrvSub(rmssdMs, baselineHRV float64) float64 {
	if rmssdMs < rmssdCriticalMs {
		return 1.0
	}
	if baselineHRV <= rmssdCriticalMs {
		return 0
	}
	v := 1.0 - (rmssdMs-rmssdCriticalMs)/(baselineHRV-rmssdCriticalMs)
	return model.Clamp01(v)
}

func trendSub(trendBpmPerMin float64) float64 {
	if trendBpmPerMin > trendCriticalBpm {
		return 1.0
	}
	if trendBpmPerMin <= 0 {
		return 0
	}
	return model.Clamp01(trendBpmPerMin / trendCriticalBpm)
}

func rawHRScore(s model.BioSample) float64 {
	if s.BaselineHR == 0 {
		return 0
	}
	v := absF(s.HR-s.BaselineHR) / s.BaselineHR * 1.5
	return model.Clamp01(v)
}

// qualityBonus accumulates completeness bonuses for modality confidence
// (spec §4.4 / §9 open question (a)): each present enhanced field
// contributes its declared bonus, normalized to stay within the unused
// confidence fraction by the caller. The model has no per-field presence
// flag beyond HasEnhanced, so a field reading exactly zero is treated as
// absent; callers populating an enhanced sample should avoid sending a
// literal zero for a field that was actually measured.
func qualityBonus(s model.BioSample) float64 {
	bonus := 0.0
	if s.StressIndex > 0 {
		bonus += 0.35
	}
	if s.RMSSDMs > 0 {
		bonus += 0.30
	}
	if s.HRTrendBpmPerMin != 0 {
		bonus += 0.20
	}
	if s.BaselineDeviation > 0 {
		bonus += 0.15
	}
	return bonus
}

func isCritical(s model.BioSample) bool {
	if !s.HasEnhanced {
		return false
	}
	if s.StressIndex >= stressCriticalIdx {
		return true
	}
	if s.RMSSDMs < rmssdCriticalMs {
		return true
	}
	if s.HRTrendBpmPerMin > trendCriticalBpm {
		return true
	}
	return false
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
