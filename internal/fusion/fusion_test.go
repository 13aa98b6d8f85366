package fusion

import (
	"testing"

	"github.com/jeremiafourie/cogniflight-edge/internal/biometric"
	"github.com/jeremiafourie/cogniflight-edge/internal/model"
	"github.com/jeremiafourie/cogniflight-edge/internal/vision"
)

func TestEvaluate_InsufficientModalities(t *testing.T) {
	c := New(DefaultConfig())
	_, err := c.Evaluate(nil, nil, nil, nil, 0)
	if err != model.ErrInsufficientModalities {
		t.Fatalf("expected ErrInsufficientModalities, got %v", err)
	}
}

func TestEvaluate_VisionOnlyWeightRedistribution(t *testing.T) {
	c := New(DefaultConfig())
	vr := &vision.Result{Score: 0.5}
	out, err := c.Evaluate(vr, &model.VisionSample{}, nil, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Vision-only: redistributed weight is 1.0, so the raw score is 0.5. On
	// the first normal-path tick the EMA applies only the leading weight 0.4
	// (no renormalization over a partial window), giving 0.2.
	if out.FusionScore != 0.2 {
		t.Fatalf("expected fusion score 0.2, got %f", out.FusionScore)
	}
}

func TestEvaluate_CriticalPathClearsRing(t *testing.T) {
	c := New(DefaultConfig())
	vr := &vision.Result{Score: 0.2}
	for i := 0; i < 3; i++ {
		if _, err := c.Evaluate(vr, &model.VisionSample{}, nil, nil, float64(i)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if c.RingLen() != 3 {
		t.Fatalf("expected ring of 3 before critical tick, got %d", c.RingLen())
	}

	critical := &vision.Result{Score: 0.9, Critical: true}
	out, err := c.Evaluate(critical, &model.VisionSample{}, nil, nil, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsCriticalEvent {
		t.Fatal("expected critical event")
	}
	if c.RingLen() != 1 {
		t.Fatalf("invariant: ring must hold exactly 1 entry after a critical tick, got %d", c.RingLen())
	}
	if out.FusionScore != 0.9 {
		// vision-only redistributes to weight 1.0, so raw score passes through unchanged.
		t.Fatalf("expected unchanged raw score 0.9 on critical path, got %f", out.FusionScore)
	}
}

func TestEvaluate_ConfidenceBounds(t *testing.T) {
	c := New(DefaultConfig())
	vr := &vision.Result{Score: 0.4}
	br := &biometric.Result{Score: 0.6, QualityBonus: 1.0}
	out, err := c.Evaluate(vr, &model.VisionSample{}, br, &model.BioSample{}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		t.Fatalf("confidence out of range: %f", out.Confidence)
	}
	if out.FusionScore < 0 || out.FusionScore > 1 {
		t.Fatalf("fusion score out of range: %f", out.FusionScore)
	}
}

func TestEvaluate_RisingScoresStayInRange(t *testing.T) {
	c := New(DefaultConfig())
	scores := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7}
	var last model.FusionOutput
	for i, s := range scores {
		vr := &vision.Result{Score: s}
		out, err := c.Evaluate(vr, &model.VisionSample{}, nil, nil, float64(i))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		last = out
	}
	if last.FusionScore > 1.0 || last.FusionScore < 0 {
		t.Fatalf("score out of range on rising input: %f", last.FusionScore)
	}
}
