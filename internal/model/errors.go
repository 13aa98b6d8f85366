package model

// FFEError is the common error shape raised by the fusion pipeline: a kind
// from the constants below plus a human-readable message.
type FFEError struct {
	Kind    string
	Message string
}

func (e *FFEError) Error() string { return e.Kind + ": " + e.Message }

// Error kind constants, see spec §7.
const (
	KindStaleSample             = "StaleSample"
	KindInvalidSample           = "InvalidSample"
	KindInsufficientModalities  = "InsufficientModalities"
	KindIllegalTransition       = "IllegalTransition"
	KindSubscriberFailure       = "SubscriberFailure"
	KindStoreUnavailable        = "StoreUnavailable"
	KindShutdownRequested       = "ShutdownRequested"
)

// Sentinel errors tested with errors.Is via wrapping at call sites.
var (
	ErrStaleSample            = &FFEError{Kind: KindStaleSample, Message: "sample older than its freshness budget"}
	ErrInvalidSample          = &FFEError{Kind: KindInvalidSample, Message: "sample violates declared constraints"}
	ErrInsufficientModalities = &FFEError{Kind: KindInsufficientModalities, Message: "no modality present for fusion"}
	ErrIllegalTransition      = &FFEError{Kind: KindIllegalTransition, Message: "transition not present in state graph"}
	ErrSubscriberFailure      = &FFEError{Kind: KindSubscriberFailure, Message: "state subscriber callback failed or timed out"}
	ErrStoreUnavailable       = &FFEError{Kind: KindStoreUnavailable, Message: "keyed hash store unreachable"}
	ErrShutdownRequested      = &FFEError{Kind: KindShutdownRequested, Message: "graceful shutdown in progress"}
)
