package statemgr

import (
	"testing"

	"github.com/jeremiafourie/cogniflight-edge/internal/model"
)

func TestSetState_LegalTransition(t *testing.T) {
	m := New(DefaultConfig())
	snap, err := m.SetState(model.StateMonitoringActive, "starting monitoring", "ffe", nil, nil, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.State != model.StateMonitoringActive {
		t.Fatalf("expected MONITORING_ACTIVE, got %s", snap.State)
	}
	if m.GetCurrent().State != model.StateMonitoringActive {
		t.Fatal("GetCurrent should reflect the committed transition")
	}
}

func TestSetState_ScanningAdmitsOverrideAndFailureTargets(t *testing.T) {
	// Scenario 6 requires the alcohol override and the failure-budget
	// SYSTEM_ERROR transition to fire "regardless of current fatigue",
	// including while the SM is still in its initial SCANNING state.
	for _, target := range []model.SystemState{
		model.StateAlcoholDetected,
		model.StateSystemError,
		model.StateSystemCrashed,
	} {
		m := New(DefaultConfig())
		snap, err := m.SetState(target, "forced", "ffe", nil, nil, 1)
		if err != nil {
			t.Fatalf("SCANNING -> %s: unexpected error: %v", target, err)
		}
		if snap.State != target {
			t.Fatalf("expected %s, got %s", target, snap.State)
		}
	}
}

func TestSetState_IntruderDetectedAdmitsOverrideAndFailureTargets(t *testing.T) {
	for _, target := range []model.SystemState{
		model.StateAlcoholDetected,
		model.StateSystemError,
		model.StateSystemCrashed,
	} {
		m := New(DefaultConfig())
		if _, err := m.SetState(model.StateIntruderDetected, "intruder", "ffe", nil, nil, 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		snap, err := m.SetState(target, "forced", "ffe", nil, nil, 2)
		if err != nil {
			t.Fatalf("INTRUDER_DETECTED -> %s: unexpected error: %v", target, err)
		}
		if snap.State != target {
			t.Fatalf("expected %s, got %s", target, snap.State)
		}
	}
}

func TestSetState_IllegalTransitionRejected(t *testing.T) {
	m := New(DefaultConfig())
	// SCANNING -> ALERT_MILD is not in the graph.
	_, err := m.SetState(model.StateAlertMild, "bad", "ffe", nil, nil, 1)
	if err != model.ErrIllegalTransition {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	if m.GetCurrent().State != model.StateScanning {
		t.Fatal("rejected transition must not mutate state")
	}
}

func TestSetState_Idempotent(t *testing.T) {
	m := New(DefaultConfig())
	m.SetState(model.StateMonitoringActive, "hello", "ffe", nil, nil, 1)
	before := len(m.History(0))

	_, err := m.SetState(model.StateMonitoringActive, "hello", "ffe", nil, nil, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := len(m.History(0))
	if after != before {
		t.Fatalf("idempotent set_state must not duplicate history: before=%d after=%d", before, after)
	}
}

func TestHistory_NewestFirstAndHeadIsCurrent(t *testing.T) {
	m := New(DefaultConfig())
	m.SetState(model.StateMonitoringActive, "a", "ffe", nil, nil, 1)
	m.SetState(model.StateAlertMild, "b", "ffe", nil, nil, 2)

	hist := m.History(0)
	if hist[0].State != model.StateAlertMild {
		t.Fatalf("expected newest-first history, head=%s", hist[0].State)
	}
	if hist[0].ID != m.GetCurrent().ID {
		t.Fatal("invariant I3: current snapshot must be history's head")
	}
}

func TestHistory_BoundedCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryLimit = 3
	m := New(cfg)

	m.SetState(model.StateMonitoringActive, "a", "ffe", nil, nil, 1)
	m.SetState(model.StateAlertMild, "b", "ffe", nil, nil, 2)
	m.SetState(model.StateAlertModerate, "c", "ffe", nil, nil, 3)
	m.SetState(model.StateAlertSevere, "d", "ffe", nil, nil, 4)

	hist := m.History(0)
	if len(hist) > cfg.HistoryLimit {
		t.Fatalf("history exceeded limit: %d > %d", len(hist), cfg.HistoryLimit)
	}
	if hist[0].State != model.StateAlertSevere {
		t.Fatalf("expected newest entry at head, got %s", hist[0].State)
	}
}

func TestAlcoholOverride_ForcesStateAndClears(t *testing.T) {
	m := New(DefaultConfig())
	m.SetState(model.StateMonitoringActive, "monitoring", "ffe", nil, nil, 1)

	m.NoteAlcoholDetection(5) // detected at t=5

	snap, err := m.SetState(model.StateAlertMild, "fatigue mild", "ffe", nil, nil, 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.State != model.StateAlcoholDetected {
		t.Fatalf("expected override to force ALCOHOL_DETECTED, got %s", snap.State)
	}

	// Override window is 10s; at t=20 (15s after detection) it has cleared,
	// so a requested target is no longer rewritten to ALCOHOL_DETECTED. The
	// graph admits only SYSTEM_ERROR and SYSTEM_CRASHED out of
	// ALCOHOL_DETECTED, so the cleared override is observed through one of
	// those.
	snap, err = m.SetState(model.StateSystemError, "sensor fault", "ffe", nil, nil, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.State != model.StateSystemError {
		t.Fatalf("expected override to have cleared, got %s", snap.State)
	}
}

func TestSubscribe_NotifiedAfterCommit(t *testing.T) {
	m := New(DefaultConfig())
	received := make(chan model.StateSnapshot, 1)
	m.Subscribe(func(s model.StateSnapshot) { received <- s })

	_, err := m.SetState(model.StateMonitoringActive, "go", "ffe", nil, nil, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case s := <-received:
		if s.State != model.StateMonitoringActive {
			t.Fatalf("subscriber saw wrong state: %s", s.State)
		}
	default:
		t.Fatal("subscriber was not notified")
	}
}

func TestSubscribe_PanicIsolated(t *testing.T) {
	m := New(DefaultConfig())
	ok := make(chan struct{}, 1)

	m.Subscribe(func(model.StateSnapshot) { panic("boom") })
	m.Subscribe(func(model.StateSnapshot) { ok <- struct{}{} })

	_, err := m.SetState(model.StateMonitoringActive, "go", "ffe", nil, nil, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-ok:
	default:
		t.Fatal("a panicking subscriber must not prevent other subscribers from running")
	}
}
