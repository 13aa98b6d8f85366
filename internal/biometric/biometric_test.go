package biometric

import (
	"testing"

	"github.com/jeremiafourie/cogniflight-edge/internal/model"
)

func TestExtract_RawHROnly(t *testing.T) {
	s := model.BioSample{HR: 90, BaselineHR: 70}
	res, err := Extract(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Critical {
		t.Fatal("raw HR path should never flag critical")
	}
	if res.Score <= 0 {
		t.Fatalf("expected positive score for elevated HR, got %f", res.Score)
	}
}

func TestExtract_EnhancedCritical(t *testing.T) {
	s := model.BioSample{
		HR:          90,
		HasEnhanced: true,
		StressIndex: 0.8,
		RMSSDMs:     15,
		BaselineHRV: 60,
	}
	res, err := Extract(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Critical {
		t.Fatal("expected critical: stress_index >= 0.75")
	}
}

func TestExtract_InvalidHR(t *testing.T) {
	for _, hr := range []float64{-1, 256} {
		if _, err := Extract(model.BioSample{HR: hr}); err != model.ErrInvalidSample {
			t.Fatalf("HR=%f: expected ErrInvalidSample, got %v", hr, err)
		}
	}
}

func TestExtract_ScoreInRange(t *testing.T) {
	s := model.BioSample{
		HR:                80,
		HasEnhanced:       true,
		StressIndex:       1.5, // out-of-spec input still clamps
		RMSSDMs:           0,
		BaselineHRV:       50,
		HRTrendBpmPerMin:  20,
		BaselineDeviation: 2,
	}
	res, err := Extract(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Score < 0 || res.Score > 1 {
		t.Fatalf("score out of range: %f", res.Score)
	}
}
