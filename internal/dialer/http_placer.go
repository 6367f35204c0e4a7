package dialer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/callforge/dialer-backend/internal/model"
)

// HTTPPlacer drives the external dialing service over its blocking REST
// endpoint. The service holds the request open until the call resolves, so
// the client timeout has to cover a full call duration.
type HTTPPlacer struct {
	client *resty.Client
}

func NewHTTPPlacer(baseURL string) *HTTPPlacer {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Minute).
		SetRetryCount(0)
	return &HTTPPlacer{client: client}
}

type placeCallRequest struct {
	WorkflowID int                  `json:"workflow_id"`
	Contact    model.ContactPayload `json:"contact"`
}

func (p *HTTPPlacer) PlaceCall(ctx context.Context, payload model.ContactPayload, workflowID int) (Outcome, error) {
	var outcome Outcome
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(placeCallRequest{WorkflowID: workflowID, Contact: payload}).
		SetResult(&outcome).
		Post("/calls")
	if err != nil {
		return Outcome{}, err
	}
	if resp.IsError() {
		return Outcome{}, fmt.Errorf("dialer returned %s: %s", resp.Status(), resp.String())
	}
	if outcome.Disposition == "" {
		outcome.Disposition = model.DispositionUnknown
	}
	return outcome, nil
}

var _ CallPlacer = (*HTTPPlacer)(nil)
