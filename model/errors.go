package model

import "errors"

// Error taxonomy for the collection and prediction paths. Collection-side
// errors are recovered locally (retry, skip, quarantine) and aggregated into
// run summaries; prediction-side errors degrade to the fallback path.
var (
	// ErrQuotaExhausted signals that every credential in the pool is
	// depleted. Pending work is requeued, never dropped.
	ErrQuotaExhausted = errors.New("quota exhausted across all credentials")

	// ErrTransientFailure is surfaced only after bounded retries of a
	// network or 5xx failure.
	ErrTransientFailure = errors.New("transient failure")

	// ErrNotFound is permanent: the record is skipped and logged, not
	// retried.
	ErrNotFound = errors.New("not found")

	// ErrMalformedMetadata means the remote payload was missing required
	// fields or carried unparseable values.
	ErrMalformedMetadata = errors.New("malformed metadata")

	// ErrModelUnavailable routes a prediction request to the fallback
	// estimator. Never fatal for the caller.
	ErrModelUnavailable = errors.New("model artifact unavailable")

	// ErrStatAnomaly marks a snapshot whose view count decreased against
	// history. The record is flagged and preserved.
	ErrStatAnomaly = errors.New("statistics anomaly")
)
