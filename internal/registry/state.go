package registry

import "github.com/upb/ai-gateway/internal/gwerrors"

// Status is ModelState.status: ready xor error, enforced by the invariant
// status = ready ⇔ reason = NONE.
type Status string

const (
	StatusReady Status = "ready"
	StatusError Status = "error"
)

// Reason is ModelState.reason, the provider error class that put a model
// into the error state.
type Reason string

const (
	ReasonNone           Reason = "NONE"
	ReasonRateLimit      Reason = "PROVIDER_RATE_LIMIT_ERROR"
	ReasonRequestTimeout Reason = "PROVIDER_REQUEST_TIMEOUT_ERROR"
	ReasonStreamTimeout  Reason = "PROVIDER_REQUEST_STREAM_TIMEOUT_ERROR"
	ReasonResponseError  Reason = "PROVIDER_RESPONSE_ERROR"
	ReasonNoContent      Reason = "PROVIDER_RESPONSE_NO_CONTENT"
	ReasonExceededQuota  Reason = "PROVIDER_EXCEEDED_QUOTA_ERROR"
)

// reasonByCode maps a retryable/fallback error code to its ModelState
// reason, per §4.6.
var reasonByCode = map[gwerrors.Code]Reason{
	gwerrors.CodeProviderRateLimit:      ReasonRateLimit,
	gwerrors.CodeProviderRequestTimeout: ReasonRequestTimeout,
	gwerrors.CodeProviderStreamTimeout:  ReasonStreamTimeout,
	gwerrors.CodeProviderResponseError:  ReasonResponseError,
	gwerrors.CodeProviderNoContent:      ReasonNoContent,
	gwerrors.CodeProviderExceededQuota:  ReasonExceededQuota,
}

// ReasonForCode resolves a provider error code to its restore reason. ok is
// false for codes outside the retryable/fallback category.
func ReasonForCode(code gwerrors.Code) (Reason, bool) {
	r, ok := reasonByCode[code]
	return r, ok
}

// restoreMs picks the restore duration (ms) for reason out of restore.
func restoreMs(reason Reason, restore ModelRestore) uint64 {
	switch reason {
	case ReasonRateLimit:
		return restore.RateLimit
	case ReasonRequestTimeout, ReasonStreamTimeout:
		return restore.Timeout
	case ReasonResponseError, ReasonNoContent:
		return restore.ProviderCommunicationError
	case ReasonExceededQuota:
		return restore.ProviderExceededError
	default:
		return 0
	}
}

// RateState is the live fixed-window rate counter.
type RateState struct {
	Count         uint64 `json:"count"`
	WindowStartMs int64  `json:"windowStartMs"`
}

// State is ModelState: the shared, storage-owned record per (provider,
// name).
type State struct {
	Rate        RateState `json:"rateLimit"`
	Status      Status    `json:"status"`
	Reason      Reason    `json:"reason"`
	TimestampMs int64     `json:"timestampMs"`
}

func readyState() State {
	return State{Status: StatusReady, Reason: ReasonNone}
}

// restoreDeadlineElapsed reports whether now has passed the restore
// deadline for an error state stamped at s.TimestampMs.
func (s State) restoreDeadlineElapsed(now int64, restore ModelRestore) bool {
	if s.Status != StatusError {
		return false
	}
	deadline := s.TimestampMs + int64(restoreMs(s.Reason, restore))
	return now >= deadline
}
