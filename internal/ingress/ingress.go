// Package ingress provides the thin boundary adapters binding the keyed
// hash store (spec §6) to the VFE/BFE/FC/SC/SM pipeline, plus the
// evaluation loop that ties them together on each tick. Ingress adapters
// are treated as mechanical glue (spec §2): they translate payloads, track
// per-modality freshness, and enforce the out-of-order drop rule.
package ingress

import (
	"encoding/json"
	"time"

	"github.com/jeremiafourie/cogniflight-edge/internal/biometric"
	"github.com/jeremiafourie/cogniflight-edge/internal/bus"
	"github.com/jeremiafourie/cogniflight-edge/internal/clock"
	"github.com/jeremiafourie/cogniflight-edge/internal/fusion"
	"github.com/jeremiafourie/cogniflight-edge/internal/model"
	"github.com/jeremiafourie/cogniflight-edge/internal/stage"
	"github.com/jeremiafourie/cogniflight-edge/internal/statemgr"
	"github.com/jeremiafourie/cogniflight-edge/internal/vision"
	"github.com/jeremiafourie/cogniflight-edge/pkg/logging"
	"github.com/jeremiafourie/cogniflight-edge/pkg/metrics"
)

// FailureBudgetS is the continuous no-valid-sample duration after which the
// evaluation loop forces SYSTEM_ERROR (spec §7 default: 30s).
const FailureBudgetS = 30.0

// Config bundles the tunables of the whole evaluation loop.
type Config struct {
	Clock   clock.Source
	Fusion  fusion.Config
	Stage   stage.Config
	State   statemgr.Config
}

// DefaultConfig wires production defaults for every sub-component.
func DefaultConfig() Config {
	return Config{
		Clock:  clock.NewReal(),
		Fusion: fusion.DefaultConfig(),
		Stage:  stage.DefaultConfig(),
		State:  statemgr.DefaultConfig(),
	}
}

// Loop is the evaluation thread: it consumes the latest vision/bio samples
// from the bus, runs VFE->BFE->FC->SC->SM, and publishes the result back.
type Loop struct {
	cfg   Config
	store bus.Store

	fc *fusion.Core
	sc *stage.Classifier
	sm *statemgr.Manager

	pilot          model.PilotProfile
	lastVisionTS   float64
	lastBioTS      float64
	lastValidTickS float64
	sawValidTick   bool
}

// NewLoop wires a fresh evaluation loop against store.
func NewLoop(cfg Config, store bus.Store) *Loop {
	return &Loop{
		cfg:   cfg,
		store: store,
		fc:    fusion.New(cfg.Fusion),
		sc:    stage.New(cfg.Stage),
		sm:    statemgr.New(cfg.State),
	}
}

// StateManager exposes the SM for subscribers outside the loop (alcohol
// override notification, pilot profile updates).
func (l *Loop) StateManager() *statemgr.Manager { return l.sm }

// SetPilot updates the active pilot profile used for sensitivity scaling.
func (l *Loop) SetPilot(p model.PilotProfile) { l.pilot = p }

// Tick runs one evaluation cycle. It is safe to call at most once per
// evaluation-thread wakeup (spec §5: no concurrent ticks).
func (l *Loop) Tick() error {
	now := l.cfg.Clock.NowS()
	start := time.Now()
	defer func() {
		metrics.Get().FusionTickDuration.Observe(time.Since(start).Seconds())
	}()

	visRes, visSample, visErr := l.readVision(now)
	if visErr != nil {
		l.recordSkip(visErr)
	}

	bioRes, bioSample, bioErr := l.readBio(now)
	if bioErr != nil {
		l.recordSkip(bioErr)
	}

	out, err := l.fc.Evaluate(visRes, visSample, bioRes, bioSample, now)
	if err != nil {
		metrics.Get().FusionTicksTotal.WithLabelValues("insufficient_modalities").Inc()
		l.checkFailureBudget(now)
		return err
	}
	metrics.Get().FusionTicksTotal.WithLabelValues("ok").Inc()
	if out.IsCriticalEvent {
		metrics.Get().FusionCriticalEvents.Inc()
	}

	l.sawValidTick = true
	l.lastValidTickS = now

	sensitivity := l.pilot.Sensitivity
	if sensitivity == "" {
		sensitivity = model.SensitivityMedium
	}
	newStage := l.sc.Evaluate(out, sensitivity, now)

	if err := l.publishFusion(out, now); err != nil {
		logging.Logger.WithError(err).Warn("failed to publish fusion output")
	}

	return l.applyStage(newStage, now)
}

func (l *Loop) checkFailureBudget(now float64) {
	if !l.sawValidTick {
		return
	}
	if now-l.lastValidTickS > FailureBudgetS {
		var pilotID *string
		if l.pilot.ID != "" {
			pilotID = &l.pilot.ID
		}
		_, _ = l.sm.SetState(model.StateSystemError, "no valid sample within failure budget", "ffe", pilotID, nil, now)
	}
}

func (l *Loop) applyStage(s model.FatigueStage, now float64) error {
	current := l.sm.GetCurrent()
	if current.State == model.StateAlcoholDetected || current.State == model.StateScanning ||
		current.State == model.StateIntruderDetected {
		// Classifier is silent until MONITORING_ACTIVE, and alcohol
		// override suppresses fatigue transitions (spec §4.6).
		return nil
	}

	target := stageToState(s)
	var pilotID *string
	if l.pilot.ID != "" {
		pilotID = &l.pilot.ID
	}

	_, err := l.sm.SetState(target, "fatigue stage "+string(s), "ffe", pilotID, nil, now)
	if err != nil {
		return err
	}

	metrics.Get().StageCurrentGauge.Reset()
	metrics.Get().StageCurrentGauge.WithLabelValues(string(s)).Set(1)

	return l.publishFatigueAlert(s, now)
}

func stageToState(s model.FatigueStage) model.SystemState {
	switch s {
	case model.StageMild:
		return model.StateAlertMild
	case model.StageModerate:
		return model.StateAlertModerate
	case model.StageSevere:
		return model.StateAlertSevere
	default:
		return model.StateMonitoringActive
	}
}

func (l *Loop) recordSkip(err error) {
	reason := "invalid"
	if err == model.ErrStaleSample {
		reason = "stale"
	}
	metrics.Get().FusionSkippedSamples.WithLabelValues(reason).Inc()
}

func (l *Loop) readVision(now float64) (*vision.Result, *model.VisionSample, error) {
	rec, ok := l.store.Get(bus.KeyVision)
	if !ok {
		return nil, nil, nil
	}
	sample, ok := rec.Value.(model.VisionSample)
	if !ok {
		return nil, nil, model.ErrInvalidSample
	}
	if sample.TimestampS < l.lastVisionTS {
		// Out-of-order sample per modality is dropped (spec §5).
		return nil, nil, nil
	}
	l.lastVisionTS = sample.TimestampS

	res, err := vision.Extract(now, sample)
	if err != nil {
		return nil, nil, err
	}
	return &res, &sample, nil
}

func (l *Loop) readBio(now float64) (*biometric.Result, *model.BioSample, error) {
	rec, ok := l.store.Get(bus.KeyHR)
	if !ok {
		return nil, nil, nil
	}
	sample, ok := rec.Value.(model.BioSample)
	if !ok {
		return nil, nil, model.ErrInvalidSample
	}
	if sample.TimestampS < l.lastBioTS {
		return nil, nil, nil
	}
	l.lastBioTS = sample.TimestampS

	res, err := biometric.Extract(sample)
	if err != nil {
		return nil, nil, err
	}
	return &res, &sample, nil
}

func (l *Loop) publishFusion(out model.FusionOutput, now float64) error {
	return l.store.Put(bus.Record{Key: bus.KeyFusion, Value: out, TimestampS: now, Service: "ffe"})
}

func (l *Loop) publishFatigueAlert(s model.FatigueStage, now float64) error {
	return l.store.Put(bus.Record{Key: bus.KeyFatigueAlert, Value: s, TimestampS: now, Service: "ffe"})
}

// HandleAlcoholDetection decodes an alcohol-detection payload and records
// it against the state manager's override window.
func (l *Loop) HandleAlcoholDetection(rec bus.Record) {
	payload, ok := rec.Value.(bus.AlcoholDetectionPayload)
	if !ok {
		raw, err := json.Marshal(rec.Value)
		if err != nil {
			return
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return
		}
	}
	l.sm.NoteAlcoholDetection(payload.TimestampS)
}

// HandlePilotProfile decodes a pilot-profile payload and drives the
// SCANNING<->MONITORING_ACTIVE transition as the pilot becomes active or
// inactive (spec §2/§6: pilot profile updates enter the SM directly). The
// fatigue pipeline is silent outside MONITORING_ACTIVE (applyStage), so this
// is what actually admits the SC->SM link into the running system.
func (l *Loop) HandlePilotProfile(rec bus.Record) {
	payload, ok := rec.Value.(bus.PilotProfilePayload)
	if !ok {
		raw, err := json.Marshal(rec.Value)
		if err != nil {
			return
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return
		}
	}

	now := l.cfg.Clock.NowS()
	current := l.sm.GetCurrent().State

	if payload.Active {
		l.SetPilot(payload.PilotProfile)
		if current == model.StateScanning {
			pilotID := payload.ID
			if _, err := l.sm.SetState(model.StateMonitoringActive, "pilot active", "ffe", &pilotID, nil, now); err != nil {
				logging.Logger.WithError(err).Warn("failed to enter MONITORING_ACTIVE on pilot activation")
			}
		}
		return
	}

	l.SetPilot(model.PilotProfile{})
	if current == model.StateMonitoringActive {
		if _, err := l.sm.SetState(model.StateScanning, "pilot inactive", "ffe", nil, nil, now); err != nil {
			logging.Logger.WithError(err).Warn("failed to return to SCANNING on pilot deactivation")
		}
	}
}

// Dispatch routes a bus record to the matching ingress handler by key.
// Subscribe this to the bus wildcard ("") so ancillary inputs outside the
// vision/bio sample path (alcohol detection, pilot profile updates) reach
// the state manager without the evaluation loop having to poll for them.
func (l *Loop) Dispatch(rec bus.Record) {
	switch {
	case rec.Key == bus.KeyAlcoholDetected:
		l.HandleAlcoholDetection(rec)
	case bus.IsPilotKey(rec.Key):
		l.HandlePilotProfile(rec)
	}
}
