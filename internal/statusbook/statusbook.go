// Package statusbook computes the truthful terminal status of an ingestion
// from its accounting numbers. Both the synchronous and asynchronous
// ingestion paths funnel through the same Decide function so a client can
// never observe a status that overstates what was actually written.
package statusbook

import "fmt"

// Status is one of the terminal processing_status values a raw ingestion
// row can carry once the batch processor has returned. The zero value is
// intentionally invalid so a forgotten assignment is caught by review
// rather than silently reported as healthy. "pending" and "processing" are
// pre-terminal states the store assigns directly and never appear here.
type Status string

const (
	StatusProcessed      Status = "processed"
	StatusPartialSuccess Status = "partial_success"
	StatusError          Status = "error"
)

// Counts is the raw accounting for one ingestion, mirroring batch.Result.
// Input is the parsed metric count handed to the batch processor — the
// "expected" total — counted *before* in-batch deduplication, so a batch
// that resolves entirely to in-batch duplicates still shows up as residue
// (Silent, below) rather than vanishing from the accounting.
type Counts struct {
	Input            int
	Written          int
	Failed           int
	DeduplicatedAway int
	// HasParameterLimitError is true when any chunk in this batch was
	// rejected with apperr.CodeParameterLimitExceeded. This always escalates
	// to "error" regardless of how small the rest of the residue is — it is
	// a configuration bug, not a data problem.
	HasParameterLimitError bool
	// LossPercentageThreshold and SilentFailureParamLimitThreshold mirror
	// the LOSS_PERCENTAGE_THRESHOLD and SILENT_FAILURE_PARAM_LIMIT_THRESHOLD
	// config options. Zero values fall back to the package defaults (1.0%
	// and 50).
	LossPercentageThreshold           float64
	SilentFailureParamLimitThreshold int
}

// Decision is the outcome Decide returns: a status plus the metadata blob
// persisted alongside the raw ingestion row for later inspection.
type Decision struct {
	Status   Status
	Metadata map[string]any
}

const (
	defaultLossPercentageThreshold           = 1.0
	defaultSilentFailureParamLimitThreshold = 50
)

// Decide applies the accounting formulas and an eight-branch total-ordering
// decision table. Every branch is named and every input combination is
// covered, checked by this package's tests.
func Decide(c Counts) Decision {
	expected := c.Input
	written := c.Written
	failed := c.Failed
	silent := expected - (written + failed)
	if silent < 0 {
		silent = 0
	}

	lossThreshold := c.LossPercentageThreshold
	if lossThreshold <= 0 {
		lossThreshold = defaultLossPercentageThreshold
	}
	paramLimitThreshold := c.SilentFailureParamLimitThreshold
	if paramLimitThreshold <= 0 {
		paramLimitThreshold = defaultSilentFailureParamLimitThreshold
	}

	lossPct := 0.0
	if expected > 0 {
		lossPct = 100 * float64(failed+silent) / float64(expected)
	}
	paramLimitViolation := c.HasParameterLimitError || silent > paramLimitThreshold

	status := decideStatus(expected, written, failed, silent, lossPct, lossThreshold, paramLimitViolation)

	meta := map[string]any{
		"expected":                expected,
		"written":                 written,
		"failed":                  failed,
		"silent":                  silent,
		"deduplicated_away":       c.DeduplicatedAway,
		"loss_pct":                lossPct,
		"param_limit_violation":   paramLimitViolation,
		"detection_thresholds": map[string]any{
			"loss_percentage_threshold":            lossThreshold,
			"silent_failure_param_limit_threshold": paramLimitThreshold,
		},
		"status": string(status),
	}
	return Decision{Status: status, Metadata: meta}
}

// decideStatus implements the total ordering: first match wins, every
// branch named so a reviewer can check it against the table directly
// rather than reverse-engineer intent from a cascade of ifs.
func decideStatus(expected, written, failed, silent int, lossPct, lossThreshold float64, paramLimitViolation bool) Status {
	switch {
	case expected == 0:
		return StatusProcessed
	case written == 0 && failed > 0:
		return StatusError
	case paramLimitViolation:
		return StatusError
	case lossPct > lossThreshold:
		return StatusError
	case silent > 0:
		return StatusPartialSuccess
	case failed > 0:
		return StatusPartialSuccess
	case written > 0:
		return StatusProcessed
	default:
		return StatusError
	}
}

// Validate reports whether the given Counts could have produced a
// consistent Decision — used by tests and by callers that want to fail
// loudly on a broken accounting identity rather than silently misreport
// status. Unlike Decide, which tolerates silent residue as a signal to
// surface, Validate checks the stronger identity a healthy batch must
// satisfy: every input metric is accounted as written, failed, or an
// in-batch duplicate.
func Validate(c Counts) error {
	if c.Written+c.Failed+c.DeduplicatedAway != c.Input {
		return fmt.Errorf("accounting identity violated: written(%d)+failed(%d)+deduplicated_away(%d) != input(%d)",
			c.Written, c.Failed, c.DeduplicatedAway, c.Input)
	}
	return nil
}
