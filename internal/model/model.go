// Package model defines the data types shared across the fatigue fusion
// pipeline: vision/biometric samples, pilot profiles, fusion output, fatigue
// stages, and system state snapshots.
package model

import "github.com/google/uuid"

// Sensitivity scales fatigue thresholds per pilot.
type Sensitivity string

const (
	SensitivityHigh   Sensitivity = "HIGH"
	SensitivityMedium Sensitivity = "MEDIUM"
	SensitivityLow    Sensitivity = "LOW"
)

// VisionSample is a single camera-frame observation. Immutable once built.
type VisionSample struct {
	AvgEAR             float64 `json:"avgEar"`
	MAR                float64 `json:"mar"`
	EyesClosed         bool    `json:"eyesClosed"`
	ClosureDurationS   float64 `json:"closureDurationS"`
	MicrosleepCount    int     `json:"microsleepCount"`
	BlinkRatePerMinute float64 `json:"blinkRatePerMinute"`
	Yawning            bool    `json:"yawning"`
	YawnCount          int     `json:"yawnCount"`
	YawnDurationS      float64 `json:"yawnDurationS"`
	TimestampS         float64 `json:"timestampS"`
}

// BioSample is a single biometric observation. RRIntervalS is a pointer so
// an absent interval can be told apart from zero; the enhanced fields are
// plain values whose presence is marked only as a group, by HasEnhanced.
type BioSample struct {
	HR                float64  `json:"hr"`
	RRIntervalS       *float64 `json:"rrIntervalS,omitempty"`
	RMSSDMs           float64  `json:"rmssdMs"`
	HRTrendBpmPerMin  float64  `json:"hrTrendBpmPerMin"`
	BaselineDeviation float64  `json:"baselineDeviation"`
	StressIndex       float64  `json:"stressIndex"`
	BaselineHR        float64  `json:"baselineHr"`
	BaselineHRV       float64  `json:"baselineHrv"`
	TimestampS        float64  `json:"timestampS"`

	// HasEnhanced indicates stress/RMSSD/trend/deviation fields were
	// actually populated by the ingress adapter rather than zero-valued.
	HasEnhanced bool `json:"hasEnhanced"`
}

// PilotProfile is the subset of pilot metadata the FFE needs. Other
// fields carried by the face-authentication service are opaque to it.
type PilotProfile struct {
	ID          string      `json:"id"`
	BaselineHR  float64     `json:"baselineHr"`
	BaselineHRV float64     `json:"baselineHrv"`
	Sensitivity Sensitivity `json:"sensitivity,omitempty"`
}

// FusionOutput is the Fusion Core's tick result.
type FusionOutput struct {
	FusionScore     float64       `json:"fusionScore"`
	Confidence      float64       `json:"confidence"`
	IsCriticalEvent bool          `json:"isCriticalEvent"`
	Vision          *VisionSample `json:"vision,omitempty"`
	Bio             *BioSample    `json:"bio,omitempty"`
	TimestampS      float64       `json:"timestampS"`
}

// FatigueStage is the four-stage classifier output.
type FatigueStage string

const (
	StageActive   FatigueStage = "ACTIVE"
	StageMild     FatigueStage = "MILD"
	StageModerate FatigueStage = "MODERATE"
	StageSevere   FatigueStage = "SEVERE"
)

// stageOrder is used for monotone-in-sensitivity and adjacency checks.
var stageOrder = map[FatigueStage]int{
	StageActive:   0,
	StageMild:     1,
	StageModerate: 2,
	StageSevere:   3,
}

// Rank returns the stage's ordinal position, ACTIVE=0 .. SEVERE=3.
func (s FatigueStage) Rank() int { return stageOrder[s] }

// SystemState is the system-wide authoritative state.
type SystemState string

const (
	StateScanning          SystemState = "SCANNING"
	StateIntruderDetected  SystemState = "INTRUDER_DETECTED"
	StateMonitoringActive  SystemState = "MONITORING_ACTIVE"
	StateAlertMild         SystemState = "ALERT_MILD"
	StateAlertModerate     SystemState = "ALERT_MODERATE"
	StateAlertSevere       SystemState = "ALERT_SEVERE"
	StateAlcoholDetected   SystemState = "ALCOHOL_DETECTED"
	StateSystemError       SystemState = "SYSTEM_ERROR"
	StateSystemCrashed     SystemState = "SYSTEM_CRASHED"
)

// StateSnapshot is an immutable point-in-time record of SystemState.
type StateSnapshot struct {
	ID         uuid.UUID              `json:"id"`
	State      SystemState            `json:"state"`
	Message    string                 `json:"message"`
	TimestampS float64                `json:"timestampS"`
	PilotID    *string                `json:"pilotId,omitempty"`
	Service    string                 `json:"service"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// Clamp01 clamps v to the closed interval [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
