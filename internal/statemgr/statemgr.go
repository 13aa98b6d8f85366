// Package statemgr implements the State Manager: the process-wide state
// authority with a validated transition graph, bounded history, alcohol
// override, and isolated subscriber dispatch.
package statemgr

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeremiafourie/cogniflight-edge/internal/model"
	"github.com/jeremiafourie/cogniflight-edge/pkg/logging"
	"github.com/jeremiafourie/cogniflight-edge/pkg/metrics"
)

// Subscriber is invoked after a commit, outside the manager's mutex, with a
// copy of the new snapshot. A subscriber must not call back into the
// manager's mutating methods.
type Subscriber func(model.StateSnapshot)

// Config holds state-manager tuning parameters (spec §6).
type Config struct {
	HistoryLimit          int
	AlcoholOverrideWindowS float64
	SubscriberTimeout      time.Duration
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		HistoryLimit:           1000,
		AlcoholOverrideWindowS: 10.0,
		SubscriberTimeout:      2 * time.Second,
	}
}

// graph is the validated transition table from spec §4.6. Self-edges are
// always admissible (message-only updates); entries are the *additional*
// admissible targets from each source.
var graph = map[model.SystemState]map[model.SystemState]bool{
	model.StateScanning: {
		model.StateIntruderDetected: true,
		model.StateMonitoringActive: true,
		model.StateAlcoholDetected:  true,
		model.StateSystemError:      true,
		model.StateSystemCrashed:    true,
	},
	model.StateIntruderDetected: {
		model.StateScanning:         true,
		model.StateMonitoringActive: true,
		model.StateAlcoholDetected:  true,
		model.StateSystemError:      true,
		model.StateSystemCrashed:    true,
	},
	model.StateMonitoringActive: {
		model.StateScanning:         true,
		model.StateIntruderDetected: true,
		model.StateAlertMild:        true,
		model.StateAlertModerate:    true,
		model.StateAlertSevere:      true,
		model.StateAlcoholDetected:  true,
		model.StateSystemError:      true,
		model.StateSystemCrashed:    true,
	},
	model.StateAlertMild: {
		model.StateScanning:         true,
		model.StateMonitoringActive: true,
		model.StateAlertModerate:    true,
		model.StateAlertSevere:      true,
		model.StateAlcoholDetected:  true,
		model.StateSystemError:      true,
		model.StateSystemCrashed:    true,
	},
	model.StateAlertModerate: {
		model.StateScanning:         true,
		model.StateMonitoringActive: true,
		model.StateAlertMild:        true,
		model.StateAlertSevere:      true,
		model.StateAlcoholDetected:  true,
		model.StateSystemError:      true,
		model.StateSystemCrashed:    true,
	},
	model.StateAlertSevere: {
		model.StateScanning:         true,
		model.StateMonitoringActive: true,
		model.StateAlertMild:        true,
		model.StateAlertModerate:    true,
		model.StateAlcoholDetected:  true,
		model.StateSystemError:      true,
		model.StateSystemCrashed:    true,
	},
	model.StateAlcoholDetected: {
		model.StateSystemError:   true,
		model.StateSystemCrashed: true,
	},
	model.StateSystemError: {
		model.StateScanning:         true,
		model.StateMonitoringActive: true,
		model.StateAlcoholDetected:  true,
		model.StateSystemCrashed:    true,
	},
	model.StateSystemCrashed: {
		model.StateSystemCrashed: true,
	},
}

// Manager is the authoritative, mutex-protected holder of the current
// SystemState snapshot and its bounded history.
type Manager struct {
	mu sync.Mutex

	current model.StateSnapshot
	history []model.StateSnapshot // oldest first; index 0 evicted on overflow

	subscribers []Subscriber

	cfg Config

	alcoholDetectionTimeS float64 // monotonic time of most recent alcohol event
	hasAlcoholEvent       bool
}

// New creates a Manager starting in SCANNING.
func New(cfg Config) *Manager {
	m := &Manager{cfg: cfg}
	initial := model.StateSnapshot{
		ID:         uuid.New(),
		State:      model.StateScanning,
		Message:    "initializing",
		Service:    "ffe",
		TimestampS: 0,
	}
	m.current = initial
	m.history = append(m.history, initial)
	return m
}

// GetCurrent returns a consistent copy of the current snapshot (non-blocking
// read, spec invariant I4).
func (m *Manager) GetCurrent() model.StateSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History returns up to limit snapshots, newest first.
func (m *Manager) History(limit int) []model.StateSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.StateSnapshot, limit)
	for i := 0; i < limit; i++ {
		out[i] = m.history[n-1-i]
	}
	return out
}

// Subscribe registers a callback invoked after every committed transition.
func (m *Manager) Subscribe(sub Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, sub)
}

// NoteAlcoholDetection records a fresh alcohol-detection event. Until
// AlcoholOverrideWindowS elapses, SetState forces ALCOHOL_DETECTED and
// suppresses fatigue transitions (spec §4.6 override semantics).
func (m *Manager) NoteAlcoholDetection(nowS float64) {
	m.mu.Lock()
	m.hasAlcoholEvent = true
	m.alcoholDetectionTimeS = nowS
	m.mu.Unlock()
}

func (m *Manager) overrideActive(nowS float64) bool {
	if !m.hasAlcoholEvent {
		return false
	}
	return nowS-m.alcoholDetectionTimeS <= m.cfg.AlcoholOverrideWindowS
}

// SetState attempts a validated transition. On success it commits the new
// snapshot, appends it to history, and dispatches to subscribers outside
// the lock. On failure it returns model.ErrIllegalTransition without any
// side effects (spec §7).
func (m *Manager) SetState(target model.SystemState, message, service string, pilotID *string, data map[string]interface{}, nowS float64) (model.StateSnapshot, error) {
	m.mu.Lock()

	if m.overrideActive(nowS) && target != model.StateAlcoholDetected {
		// An override is active: any non-alcohol target is suppressed in
		// favor of forcing ALCOHOL_DETECTED, unless the caller is already
		// asking for that state.
		target = model.StateAlcoholDetected
		message = "alcohol override active"
	}

	if target == m.current.State && message == m.current.Message {
		// Idempotent no-op: same state, same message (spec §8 idempotence
		// law). No history duplicate, no subscriber dispatch.
		snap := m.current
		m.mu.Unlock()
		return snap, nil
	}

	if !isAdmissible(m.current.State, target) {
		m.mu.Unlock()
		metrics.Get().StateRejectedTotal.Inc()
		return model.StateSnapshot{}, model.ErrIllegalTransition
	}

	snap := model.StateSnapshot{
		ID:         uuid.New(),
		State:      target,
		Message:    message,
		TimestampS: nowS,
		PilotID:    pilotID,
		Service:    service,
		Data:       data,
	}

	m.current = snap
	m.history = append(m.history, snap)
	if len(m.history) > m.cfg.HistoryLimit {
		m.history = m.history[len(m.history)-m.cfg.HistoryLimit:]
	}
	subs := make([]Subscriber, len(m.subscribers))
	copy(subs, m.subscribers)
	historyLen := len(m.history)

	m.mu.Unlock()

	metrics.Get().StateTransitionsTotal.WithLabelValues(string(target)).Inc()
	metrics.Get().StateHistorySize.Set(float64(historyLen))
	m.dispatch(subs, snap)

	return snap, nil
}

// dispatch runs each subscriber in isolation with a bounded timeout; a
// failing or stuck subscriber is logged and counted but never affects the
// committed state or other subscribers (spec §5, §7).
func (m *Manager) dispatch(subs []Subscriber, snap model.StateSnapshot) {
	for _, sub := range subs {
		sub := sub
		done := make(chan struct{})
		go func() {
			defer func() {
				if r := recover(); r != nil {
					metrics.Get().SubscriberFailures.Inc()
					logging.Logger.WithField("panic", r).Warn("state subscriber panicked")
				}
				close(done)
			}()
			sub(snap)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SubscriberTimeout)
		select {
		case <-done:
		case <-ctx.Done():
			metrics.Get().SubscriberFailures.Inc()
			logging.Logger.Warn("state subscriber abandoned after timeout")
		}
		cancel()
	}
}

// isAdmissible reports whether the from->to edge is present in the
// transition graph. The self-edge is always admissible.
func isAdmissible(from, to model.SystemState) bool {
	if from == to {
		return true
	}
	return graph[from][to]
}
