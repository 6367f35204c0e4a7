// Package dialer is the boundary to the call-placement collaborator. The
// conversation itself is someone else's problem: a placed call resolves to
// a disposition and, when the provider classified the failure, a retryable
// cause.
package dialer

import (
	"context"

	"github.com/callforge/dialer-backend/internal/model"
)

// Outcome is the bounded result of one placement attempt.
type Outcome struct {
	Disposition model.Disposition `json:"disposition"`
	Cause       model.RetryCause  `json:"retryable_cause,omitempty"`
}

// CallPlacer places one call and blocks until it resolves. Safe to invoke
// at most once per dispatch attempt; an error means the outcome was never
// observed.
type CallPlacer interface {
	PlaceCall(ctx context.Context, payload model.ContactPayload, workflowID int) (Outcome, error)
}
