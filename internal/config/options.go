package config

import (
	"fmt"

	"github.com/upb/ai-gateway/internal/gwerrors"
	"github.com/upb/ai-gateway/internal/registry"
	"github.com/upb/ai-gateway/internal/timewindow"
)

// Options is one layer of the strict-deep-merge resolution chain (§4.10):
// hard-coded defaults, engine-level options, per-model overrides, per-
// request overrides, in that order. Every field is optional so Merge can
// tell "unset" apart from "explicitly zero".
type Options struct {
	RateMax              *uint64
	RateWindow           interface{} // time-window form: string ("30s") or ms (uint64/int/float64)
	RequestTimeout       interface{}
	RetryMax             *int
	RetryInterval        interface{}
	HistoryExpiration    interface{}
	RestoreRateLimit     interface{}
	RestoreRetry         interface{}
	RestoreTimeout       interface{}
	RestoreCommunication interface{}
	RestoreExceeded      interface{}
	StorageType          *string
}

// Defaults returns the hard-coded defaults from §4.10.
func Defaults() Options {
	u := func(v uint64) *uint64 { return &v }
	i := func(v int) *int { return &v }
	s := func(v string) *string { return &v }
	return Options{
		RateMax:              u(200),
		RateWindow:           "30s",
		RequestTimeout:       "30s",
		RetryMax:             i(1),
		RetryInterval:        "1s",
		HistoryExpiration:    "1d",
		RestoreRateLimit:     "1m",
		RestoreRetry:         "1m",
		RestoreTimeout:       "1m",
		RestoreCommunication: "1m",
		RestoreExceeded:      "10m",
		StorageType:          s("memory"),
	}
}

// Merge strict-deep-merges override on top of base: any non-nil field on
// override replaces base's.
func Merge(base, override Options) Options {
	out := base
	if override.RateMax != nil {
		out.RateMax = override.RateMax
	}
	if override.RateWindow != nil {
		out.RateWindow = override.RateWindow
	}
	if override.RequestTimeout != nil {
		out.RequestTimeout = override.RequestTimeout
	}
	if override.RetryMax != nil {
		out.RetryMax = override.RetryMax
	}
	if override.RetryInterval != nil {
		out.RetryInterval = override.RetryInterval
	}
	if override.HistoryExpiration != nil {
		out.HistoryExpiration = override.HistoryExpiration
	}
	if override.RestoreRateLimit != nil {
		out.RestoreRateLimit = override.RestoreRateLimit
	}
	if override.RestoreRetry != nil {
		out.RestoreRetry = override.RestoreRetry
	}
	if override.RestoreTimeout != nil {
		out.RestoreTimeout = override.RestoreTimeout
	}
	if override.RestoreCommunication != nil {
		out.RestoreCommunication = override.RestoreCommunication
	}
	if override.RestoreExceeded != nil {
		out.RestoreExceeded = override.RestoreExceeded
	}
	if override.StorageType != nil {
		out.StorageType = override.StorageType
	}
	return out
}

// Resolved is the fully normalized, millisecond-denominated result of
// resolving an Options chain.
type Resolved struct {
	Limits              registry.ModelLimits
	Restore             registry.ModelRestore
	RequestTimeoutMs    uint64
	RetryMax            int
	RetryIntervalMs     uint64
	HistoryExpirationMs uint64
	StorageType         string
}

// Resolve parses every time-window field via timewindow.Parse and packs the
// result into the concrete millisecond shapes C6/C9 consume. It fails
// config validation (AI_OPTIONS_ERROR family) on any malformed field.
func Resolve(o Options) (Resolved, error) {
	parse := func(v interface{}, field string) (uint64, error) {
		ms, err := timewindow.Parse(v)
		if err != nil {
			return 0, gwerrors.New(gwerrors.CodeOptionsError, fmt.Sprintf("invalid %s", field), err)
		}
		return ms, nil
	}

	rateWindow, err := parse(o.RateWindow, "limits.rate.timeWindow")
	if err != nil {
		return Resolved{}, err
	}
	requestTimeout, err := parse(o.RequestTimeout, "limits.requestTimeout")
	if err != nil {
		return Resolved{}, err
	}
	retryInterval, err := parse(o.RetryInterval, "limits.retry.interval")
	if err != nil {
		return Resolved{}, err
	}
	historyExpiration, err := parse(o.HistoryExpiration, "limits.historyExpiration")
	if err != nil {
		return Resolved{}, err
	}
	restoreRateLimit, err := parse(o.RestoreRateLimit, "restore.rateLimit")
	if err != nil {
		return Resolved{}, err
	}
	restoreRetry, err := parse(o.RestoreRetry, "restore.retry")
	if err != nil {
		return Resolved{}, err
	}
	restoreTimeout, err := parse(o.RestoreTimeout, "restore.timeout")
	if err != nil {
		return Resolved{}, err
	}
	restoreCommunication, err := parse(o.RestoreCommunication, "restore.providerCommunicationError")
	if err != nil {
		return Resolved{}, err
	}
	restoreExceeded, err := parse(o.RestoreExceeded, "restore.providerExceededError")
	if err != nil {
		return Resolved{}, err
	}

	if o.RateMax == nil {
		return Resolved{}, gwerrors.New(gwerrors.CodeOptionsError, "limits.rate.max is required", nil)
	}
	if o.RetryMax == nil {
		return Resolved{}, gwerrors.New(gwerrors.CodeOptionsError, "limits.retry.max is required", nil)
	}
	if o.StorageType == nil || (*o.StorageType != "memory" && *o.StorageType != "valkey") {
		return Resolved{}, gwerrors.New(gwerrors.CodeOptionsError, "storage.type must be \"memory\" or \"valkey\"", nil)
	}

	return Resolved{
		Limits: registry.ModelLimits{
			Rate: registry.RateLimits{Max: *o.RateMax, WindowMs: rateWindow},
		},
		Restore: registry.ModelRestore{
			RateLimit:                  restoreRateLimit,
			Retry:                      restoreRetry,
			Timeout:                    restoreTimeout,
			ProviderCommunicationError: restoreCommunication,
			ProviderExceededError:      restoreExceeded,
		},
		RequestTimeoutMs:    requestTimeout,
		RetryMax:            *o.RetryMax,
		RetryIntervalMs:     retryInterval,
		HistoryExpirationMs: historyExpiration,
		StorageType:         *o.StorageType,
	}, nil
}
