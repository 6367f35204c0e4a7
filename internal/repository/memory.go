package repository

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/callforge/dialer-backend/internal/errors"
	"github.com/callforge/dialer-backend/internal/model"
)

// MemoryStore is an in-process implementation of both repositories with
// the same claim/reclaim semantics as the Postgres one. The single mutex
// stands in for the claim transaction. Used by tests and available for
// ephemeral single-node runs.
type MemoryStore struct {
	mu sync.Mutex

	campaigns map[int]*model.Campaign
	orgs      map[int]*model.Organization
	rows      map[int]*model.CampaignRow

	nextCampaignID int
	nextRowID      int

	// Now is swappable so tests can control retry due times.
	Now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns:      make(map[int]*model.Campaign),
		orgs:           make(map[int]*model.Organization),
		rows:           make(map[int]*model.CampaignRow),
		nextCampaignID: 1,
		nextRowID:      1,
		Now:            time.Now,
	}
}

func (s *MemoryStore) PutOrganization(o *model.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs[o.ID] = o
}

// ---------------------- campaigns ----------------------

func (s *MemoryStore) Create(c *model.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextCampaignID
	s.nextCampaignID++
	c.CreatedAt = s.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	clone := *c
	s.campaigns[c.ID] = &clone
	return nil
}

func (s *MemoryStore) GetByID(id int) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	clone := *c
	return &clone, nil
}

func (s *MemoryStore) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := []*model.Campaign{}
	for _, c := range s.campaigns {
		if status != "" && string(c.Status) != status {
			continue
		}
		clone := *c
		all = append(all, &clone)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset >= len(all) {
		return []*model.Campaign{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (s *MemoryStore) UpdateStatus(campaignID int, status model.CampaignStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[campaignID]; ok {
		c.Status = status
	}
	return nil
}

func (s *MemoryStore) MarkStarted(campaignID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[campaignID]; ok {
		now := s.Now()
		if c.StartedAt == nil {
			c.StartedAt = &now
		}
		c.LastActivityAt = &now
	}
	return nil
}

func (s *MemoryStore) MarkCompleted(campaignID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[campaignID]; ok && c.Status == model.CampaignRunning {
		now := s.Now()
		c.Status = model.CampaignCompleted
		c.CompletedAt = &now
	}
	return nil
}

func (s *MemoryStore) RecordSyncResult(campaignID, totalRows int, status model.CampaignStatus, syncErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[campaignID]; ok {
		now := s.Now()
		c.TotalRows = totalRows
		c.Status = status
		c.SyncError = syncErr
		c.LastActivityAt = &now
	}
	return nil
}

func (s *MemoryStore) AddBatchResult(campaignID, processed, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[campaignID]; ok {
		now := s.Now()
		c.ProcessedRows += processed
		c.FailedRows += failed
		c.LastActivityAt = &now
	}
	return nil
}

func (s *MemoryStore) RunningCampaigns() ([]*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*model.Campaign{}
	for _, c := range s.campaigns {
		if c.Status == model.CampaignRunning {
			clone := *c
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetOrganization(id int) (*model.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[id]
	if !ok {
		return nil, nil
	}
	clone := *o
	return &clone, nil
}

// ---------------------- rows ----------------------

func (s *MemoryStore) BulkInsert(rows []*model.CampaignRow) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, row := range rows {
		if s.findByKey(row.CampaignID, row.SourceKey) != nil {
			continue
		}
		row.ID = s.nextRowID
		s.nextRowID++
		now := s.Now()
		row.CreatedAt = now
		row.UpdatedAt = now
		if row.Status == "" {
			row.Status = model.RowPending
		}
		clone := *row
		s.rows[row.ID] = &clone
		inserted++
	}
	return inserted, nil
}

func (s *MemoryStore) findByKey(campaignID int, key string) *model.CampaignRow {
	for _, r := range s.rows {
		if r.CampaignID == campaignID && r.SourceKey == key {
			return r
		}
	}
	return nil
}

func (s *MemoryStore) RowsByIDs(ids []int) ([]*model.CampaignRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*model.CampaignRow{}
	for _, id := range ids {
		if r, ok := s.rows[id]; ok {
			clone := *r
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ClaimBatch(campaignID, limit int) (*model.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[campaignID]
	if !ok || c.Status != model.CampaignRunning {
		return nil, nil
	}
	now := s.Now()
	for _, r := range s.rows {
		if r.CampaignID == campaignID && r.Status == model.RowDispatched {
			return nil, nil // a batch is still draining
		}
	}

	eligible := s.eligibleLocked(campaignID, now)
	if len(eligible) == 0 {
		return nil, nil
	}
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	ids := make([]int, 0, len(eligible))
	for _, r := range eligible {
		r.Status = model.RowDispatched
		dispatchedAt := now
		r.DispatchedAt = &dispatchedAt
		r.UpdatedAt = now
		ids = append(ids, r.ID)
	}
	c.LastBatchScheduledAt = &now
	c.LastActivityAt = &now

	return &model.Batch{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		RowIDs:     ids,
		ClaimedAt:  now,
	}, nil
}

// eligibleLocked returns claimable rows, pending before due retries.
func (s *MemoryStore) eligibleLocked(campaignID int, now time.Time) []*model.CampaignRow {
	out := []*model.CampaignRow{}
	for _, r := range s.rows {
		if r.CampaignID != campaignID {
			continue
		}
		if r.Status == model.RowPending ||
			(r.Status == model.RowRetryScheduled && r.NextRetryAt != nil && !r.NextRetryAt.After(now)) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].Status == model.RowPending, out[j].Status == model.RowPending
		if pi != pj {
			return pi
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *MemoryStore) MarkOutcome(rowID int, status model.RowStatus, disposition model.Disposition,
	reason model.RetryCause, attemptCount int, nextRetryAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[rowID]
	if !ok || r.Status != model.RowDispatched {
		return nil
	}
	r.Status = status
	r.Disposition = disposition
	r.RetryReason = reason
	r.AttemptCount = attemptCount
	r.NextRetryAt = nextRetryAt
	r.DispatchedAt = nil
	r.UpdatedAt = s.Now()
	return nil
}

func (s *MemoryStore) Defer(rowID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[rowID]
	if !ok || r.Status != model.RowDispatched {
		return nil
	}
	now := s.Now()
	r.Status = model.RowRetryScheduled
	r.NextRetryAt = &now
	r.DispatchedAt = nil
	r.UpdatedAt = now
	return nil
}

func (s *MemoryStore) ReclaimStale(olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	reclaimed := 0
	for _, r := range s.rows {
		if r.Status == model.RowDispatched && r.DispatchedAt != nil && r.DispatchedAt.Before(olderThan) {
			r.Status = model.RowRetryScheduled
			next := now
			r.NextRetryAt = &next
			r.DispatchedAt = nil
			r.UpdatedAt = now
			reclaimed++
		}
	}
	return reclaimed, nil
}

func (s *MemoryStore) OpenCount(campaignID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.CampaignID != campaignID {
			continue
		}
		switch r.Status {
		case model.RowPending, model.RowDispatched, model.RowRetryScheduled:
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) EligibleCount(campaignID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.eligibleLocked(campaignID, s.Now())), nil
}

func (s *MemoryStore) DueRetryCampaignIDs() ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	seen := map[int]bool{}
	ids := []int{}
	for _, r := range s.rows {
		if r.Status == model.RowRetryScheduled && r.NextRetryAt != nil && !r.NextRetryAt.After(now) && !seen[r.CampaignID] {
			seen[r.CampaignID] = true
			ids = append(ids, r.CampaignID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (s *MemoryStore) CountsByStatus(campaignID int) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int{
		string(model.RowPending):        0,
		string(model.RowDispatched):     0,
		string(model.RowCompleted):      0,
		string(model.RowRetryScheduled): 0,
		string(model.RowFailed):         0,
	}
	for _, r := range s.rows {
		if r.CampaignID == campaignID {
			counts[string(r.Status)]++
		}
	}
	return counts, nil
}

var (
	_ CampaignRepositoryInterface = (*MemoryStore)(nil)
	_ RowRepositoryInterface      = (*MemoryStore)(nil)
)
