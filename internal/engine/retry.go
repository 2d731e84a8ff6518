package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/upb/ai-gateway/internal/gwerrors"
)

// callWithRetry runs call, which must itself apply a per-attempt timeout; the
// error it returns is passed back as is, for the caller to classify (see
// classifyProviderErr). Per §4.9, timeouts are
// never retried: call signals one by returning isTimeout=true, which this
// wrapper turns into a backoff.Permanent so the retry loop stops
// immediately. Any other failure is retried up to retryMax additional times
// with a fixed interval between attempts.
func callWithRetry(ctx context.Context, retryMax int, retryInterval time.Duration, call func(ctx context.Context) (isTimeout bool, err error)) error {
	op := func() error {
		isTimeout, err := call(ctx)
		if err == nil {
			return nil
		}
		if isTimeout {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(retryInterval), uint64(retryMax)), ctx)
	return backoff.Retry(op, b)
}

// isTimeoutDeadline reports whether cctx, derived with a per-attempt
// timeout, expired — the signal callWithRetry needs to classify a failure
// as non-retryable.
func isTimeoutDeadline(cctx context.Context) bool {
	return cctx.Err() == context.DeadlineExceeded
}

// classifyProviderErr resolves err to a *gwerrors.Error, defaulting unknown
// failures to PROVIDER_RESPONSE_ERROR so the fallback/retry classification
// in §4.2 always has a code to work with.
func classifyProviderErr(err error) *gwerrors.Error {
	if gerr, ok := err.(*gwerrors.Error); ok {
		return gerr
	}
	return gwerrors.New(gwerrors.CodeProviderResponseError, err.Error(), err)
}
