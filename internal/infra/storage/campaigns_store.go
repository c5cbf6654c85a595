package storage

import (
	"context"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
)

// ============================================================
// Campaigns — admin_campaigns collection
// ============================================================

// ListCampaigns returns every stored campaign.
func (s *Store) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	ctx, span := tracer.Start(ctx, "Storage.ListCampaigns")
	defer span.End()

	var campaigns []domain.Campaign
	if _, err := s.getJSON(ctx, KeyCampaigns, &campaigns); err != nil {
		return nil, err
	}
	return campaigns, nil
}

// AddCampaign validates c and appends it to the collection.
func (s *Store) AddCampaign(ctx context.Context, c *domain.Campaign) error {
	if err := c.Validate(); err != nil {
		return s.rejectInvalid(KeyCampaigns, c.ID, err)
	}
	return s.UpdateCampaigns(ctx, func(campaigns []domain.Campaign) ([]domain.Campaign, bool, error) {
		return append(campaigns, *c), true, nil
	})
}

// UpdateCampaigns runs a read-modify-write on the collection. fn reports
// whether it changed anything; nothing is written otherwise.
func (s *Store) UpdateCampaigns(ctx context.Context, fn func([]domain.Campaign) ([]domain.Campaign, bool, error)) error {
	ctx, span := tracer.Start(ctx, "Storage.UpdateCampaigns")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	var campaigns []domain.Campaign
	if _, err := s.getJSON(ctx, KeyCampaigns, &campaigns); err != nil {
		return err
	}
	updated, changed, err := fn(campaigns)
	if err != nil || !changed {
		return err
	}
	if updated == nil {
		updated = []domain.Campaign{}
	}
	return s.putJSON(ctx, KeyCampaigns, updated)
}
