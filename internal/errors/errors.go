// internal/errors/errors.go
package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrInvalidTransition rejects a lifecycle command that is not legal from
// the campaign's current status. Surfaced synchronously at the Control API
// boundary, never propagated into the orchestration loop.
type ErrInvalidTransition struct {
	CampaignID int
	From       string
	To         string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("campaign %d cannot transition from %s to %s", e.CampaignID, e.From, e.To)
}

func NewInvalidTransition(id int, from, to string) error {
	return &ErrInvalidTransition{CampaignID: id, From: from, To: to}
}

// ErrSlotTimeout is returned when a concurrency permit could not be
// acquired within the batch's processing window. The row is deferred, not
// failed.
type ErrSlotTimeout struct {
	OrganizationID int
	CampaignID     int
}

func (e *ErrSlotTimeout) Error() string {
	return fmt.Sprintf("no concurrent call slot for org %d, campaign %d", e.OrganizationID, e.CampaignID)
}

func NewSlotTimeout(orgID, campaignID int) error {
	return &ErrSlotTimeout{OrganizationID: orgID, CampaignID: campaignID}
}

// ErrSourceRead wraps contact-source failures so sync can record them on
// the campaign.
type ErrSourceRead struct {
	SourceType string
	Locator    string
	Err        error
}

func (e *ErrSourceRead) Error() string {
	return fmt.Sprintf("reading %s source %q: %v", e.SourceType, e.Locator, e.Err)
}

func (e *ErrSourceRead) Unwrap() error { return e.Err }

func NewSourceRead(sourceType, locator string, err error) error {
	return &ErrSourceRead{SourceType: sourceType, Locator: locator, Err: err}
}
