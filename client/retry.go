package client

import (
	"context"
	"errors"
	"net"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/researchaccelerator-hub/viewcast/model"
)

const maxTransientAttempts = 3

var baseBackoff = 500 * time.Millisecond

// errorClass partitions remote failures into the retry policy buckets.
type errorClass int

const (
	classOK errorClass = iota
	classQuota
	classNotFound
	classTransient
	classPermanent
)

// classify maps a call error to its retry policy. Quota rejections come from
// the remote service (the local ledger never produces them here); transient
// failures are network errors and 5xx responses.
func classify(err error) errorClass {
	if err == nil {
		return classOK
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 403 && hasQuotaReason(gerr):
			return classQuota
		case gerr.Code == 404:
			return classNotFound
		case gerr.Code == 429 || gerr.Code >= 500:
			return classTransient
		default:
			return classPermanent
		}
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return classTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return classTransient
	}

	return classPermanent
}

func hasQuotaReason(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "quotaExceeded", "dailyLimitExceeded", "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return false
}

// backoffDelay returns the doubling delay before the given retry attempt
// (attempt counts from 1).
func backoffDelay(attempt int) time.Duration {
	delay := baseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepBackoff waits out the backoff schedule, honouring cancellation so
// retries never block past the caller's deadline.
func sleepBackoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(backoffDelay(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// wrapClass converts a classified error into the taxonomy error the caller
// handles.
func wrapClass(class errorClass, err error) error {
	switch class {
	case classNotFound:
		return errors.Join(model.ErrNotFound, err)
	case classTransient:
		return errors.Join(model.ErrTransientFailure, err)
	case classQuota:
		return errors.Join(model.ErrQuotaExhausted, err)
	default:
		return err
	}
}
