package dispatcher

import (
	"time"

	"github.com/callforge/dialer-backend/internal/dialer"
	"github.com/callforge/dialer-backend/internal/model"
)

// Decision is one retry-state-machine transition for a row that just
// resolved a call attempt.
type Decision struct {
	Status       model.RowStatus
	Disposition  model.Disposition
	Reason       model.RetryCause
	AttemptCount int
	NextRetryAt  *time.Time
}

// Evaluate classifies a call outcome against the campaign's retry config.
// priorAttempts is the row's attempt_count before this call.
//
// A disposition completes the row unless it is one of the terminal-failure
// causes; a provider-classified retryable cause re-queues the row while the
// config allows it and attempts remain, and fails it otherwise.
func Evaluate(cfg model.RetryConfig, priorAttempts int, out dialer.Outcome, now time.Time) Decision {
	d := Decision{
		Disposition:  out.Disposition,
		Reason:       out.Cause,
		AttemptCount: priorAttempts + 1,
	}

	if out.Cause != model.CauseNone {
		if out.Cause.Retryable(cfg) && priorAttempts < cfg.MaxRetries {
			next := now.Add(time.Duration(cfg.RetryDelaySeconds) * time.Second)
			d.Status = model.RowRetryScheduled
			d.NextRetryAt = &next
			return d
		}
		d.Status = model.RowFailed
		return d
	}

	if out.Disposition.TerminalFailure() {
		d.Status = model.RowFailed
		return d
	}

	d.Status = model.RowCompleted
	return d
}
