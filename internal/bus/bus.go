// Package bus defines the keyed hash store contract the FFE assumes (spec
// §6): a pub/sub+kv abstraction any bus implementation can satisfy. It
// ships an in-process MemoryStore for single-process deployment and tests,
// and a NATSStore adapter for multi-process deployment.
package bus

import (
	"strings"

	"github.com/jeremiafourie/cogniflight-edge/internal/model"
)

// Record is one keyed payload plus its freshness/authorship tags (spec §6
// payload rules: every record carries timestamp_s and service tags).
type Record struct {
	Key        string
	Value      interface{}
	TimestampS float64
	Service    string
}

// ChangeHandler is invoked when a key is published.
type ChangeHandler func(Record)

// Store is the minimal contract the FFE depends on. Any pub/sub+kv system
// satisfying it may back the FFE's ingress/egress.
type Store interface {
	// Get returns the latest record for key, or ok=false if absent.
	Get(key string) (Record, bool)

	// Put publishes a new value for key, notifying subscribers.
	Put(rec Record) error

	// Subscribe registers a handler invoked on every Put to key.
	// Passing the empty string subscribes to all keys.
	Subscribe(key string, handler ChangeHandler)

	// Close releases resources held by the store.
	Close() error
}

// Well-known keys from spec §6.
const (
	KeyVision            = "data:vision"
	KeyHR                = "data:hr"
	KeyEnv               = "data:env"
	KeyAlcoholDetected   = "data:alcohol_detected"
	KeyPilotIDRequest    = "data:pilot_id_request"
	KeyFusion            = "data:fusion"
	KeyFatigueAlert      = "data:fatigue_alert"
	KeyStateCurrent      = "state:current"
)

// keyPilotPrefix namespaces the per-pilot profile keys (spec §6).
const keyPilotPrefix = "data:pilot:"

// KeyPilot returns the per-pilot profile key (spec §6: data:pilot:{id}).
func KeyPilot(id string) string { return keyPilotPrefix + id }

// IsPilotKey reports whether key is a per-pilot profile key rather than one
// of the fixed well-known keys above.
func IsPilotKey(key string) bool { return strings.HasPrefix(key, keyPilotPrefix) }

// AlcoholDetectionPayload is the payload shape for KeyAlcoholDetected.
type AlcoholDetectionPayload struct {
	DetectionTime float64 `json:"detectionTime"`
	TimestampS    float64 `json:"timestampS"`
}

// PilotProfilePayload is the payload shape for KeyPilot(id).
type PilotProfilePayload struct {
	model.PilotProfile
	Active bool `json:"active"`
}
