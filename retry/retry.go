// Package retry holds the DynamoDB backoff policy shared by the readers and
// writers.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Backoff bounds. Lambda invocations here run with a 5s ceiling, so the
// ceiling is much lower than for long-running batch jobs.
var (
	BaseDelay = 50 * time.Millisecond
	MaxDelay  = time.Second
)

// IsThrottling returns true if the error is a DynamoDB throughput throttling error.
// These errors indicate temporary capacity constraints and should trigger backoff and retry.
func IsThrottling(err error) bool {
	var throughputErr *types.ProvisionedThroughputExceededException
	var requestLimitErr *types.RequestLimitExceeded
	return errors.As(err, &throughputErr) || errors.As(err, &requestLimitErr)
}

// IsTransactionRetryable reports whether a cancelled transaction failed only
// for transient reasons (throttling or a conflicting transaction) and can be
// resubmitted unchanged.
func IsTransactionRetryable(err error) bool {
	if IsThrottling(err) {
		return true
	}
	var conflict *types.TransactionConflictException
	if errors.As(err, &conflict) {
		return true
	}
	var inProgress *types.TransactionInProgressException
	if errors.As(err, &inProgress) {
		return true
	}
	var cancelled *types.TransactionCanceledException
	if !errors.As(err, &cancelled) || len(cancelled.CancellationReasons) == 0 {
		return false
	}
	for _, r := range cancelled.CancellationReasons {
		if r.Code == nil {
			continue
		}
		switch *r.Code {
		case "None", "ThrottlingError", "TransactionConflict", "ProvisionedThroughputExceeded", "RequestLimitExceeded":
		default:
			return false
		}
	}
	return true
}

// Wait sleeps for an exponentially increasing duration with jitter.
// Returns false if the context is cancelled during the wait.
func Wait(ctx context.Context, attempt int) bool {
	delay := BaseDelay * time.Duration(1<<uint(attempt))
	if delay > MaxDelay || delay <= 0 {
		delay = MaxDelay
	}

	// Add jitter: random value between 0 and delay
	jitter := time.Duration(rand.Int64N(int64(delay)))
	delay = delay + jitter

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}
