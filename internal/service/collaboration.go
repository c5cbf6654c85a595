package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// ApplyToCampaign — POST /v1/campaigns/{id}/requests
// ============================================================

// ApplyToCampaign files a pending collaboration request from an influencer.
// The campaign must exist and be active; a user applies at most once per campaign.
func (s *CampaignService) ApplyToCampaign(ctx context.Context, session *domain.Session, campaignID string, req *domain.ApplyRequest) (*domain.CollaborationRequest, error) {
	ctx, span := campaignTracer.Start(ctx, "CampaignService.ApplyToCampaign")
	defer span.End()
	span.SetAttributes(attribute.String("campaign.id", campaignID))

	if session.Role != domain.UserTypeInfluencer {
		return nil, &domain.ErrForbidden{Action: "apply to campaign"}
	}

	user, err := s.store.GetUser(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, &domain.ErrUnauthorized{Message: "user no longer exists"}
	}

	campaign, err := s.findCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, &domain.ErrNotFound{Resource: "campaign", ID: campaignID}
	}
	if campaign.Status != domain.CampaignStatusActive {
		return nil, &domain.ErrValidation{Field: "campaign", Message: "campaign is not accepting requests"}
	}
	if req.SelectedDate != "" && len(campaign.AvailableDates) > 0 && !slices.Contains(campaign.AvailableDates, req.SelectedDate) {
		return nil, &domain.ErrValidation{Field: "selectedDate", Message: "date is not offered by the campaign"}
	}

	request := domain.CollaborationRequest{
		ID:              s.newID(),
		CollaborationID: campaign.ID,
		UserID:          user.ID,
		UserName:        user.Name,
		UserInstagram:   user.Instagram,
		Status:          domain.RequestStatusPending,
		SelectedDate:    req.SelectedDate,
		SubmittedAt:     s.now().UTC(),
	}

	err = s.store.UpdateRequests(ctx, func(requests []domain.CollaborationRequest) ([]domain.CollaborationRequest, bool, error) {
		for _, r := range requests {
			if r.UserID == user.ID && r.CollaborationID == campaign.ID {
				return nil, false, &domain.ErrDuplicate{Key: fmt.Sprintf("request %s/%s", campaign.ID, user.ID)}
			}
		}
		return append(requests, request), true, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("collaboration requested",
		zap.String("request_id", request.ID),
		zap.String("campaign_id", campaign.ID),
		zap.String("user_id", user.ID),
	)
	return &request, nil
}

// ============================================================
// UpdateRequestStatus — PUT /v1/requests/{id}/status
// ============================================================

// UpdateRequestStatus moves a request along pending → approved|rejected,
// approved → completed. Only the owning company or an admin may do so.
func (s *CampaignService) UpdateRequestStatus(ctx context.Context, session *domain.Session, requestID string, req *domain.UpdateRequestStatusRequest) (*domain.CollaborationRequest, error) {
	ctx, span := campaignTracer.Start(ctx, "CampaignService.UpdateRequestStatus")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", requestID))

	if session.Role != domain.UserTypeAdmin && session.Role != domain.UserTypeCompany {
		return nil, &domain.ErrForbidden{Action: "review collaboration request"}
	}
	if !req.Status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: fmt.Sprintf("invalid request status %q", req.Status)}
	}

	campaigns, err := s.store.ListCampaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	owner := make(map[string]string, len(campaigns))
	for _, c := range campaigns {
		owner[c.ID] = c.CompanyID
	}

	var updated domain.CollaborationRequest
	err = s.store.UpdateRequests(ctx, func(requests []domain.CollaborationRequest) ([]domain.CollaborationRequest, bool, error) {
		i := slices.IndexFunc(requests, func(r domain.CollaborationRequest) bool { return r.ID == requestID })
		if i < 0 {
			return nil, false, &domain.ErrNotFound{Resource: "collaboration request", ID: requestID}
		}
		r := &requests[i]
		if session.Role == domain.UserTypeCompany && owner[r.CollaborationID] != session.UserID {
			return nil, false, &domain.ErrForbidden{Action: "review another company's request"}
		}
		if !r.Status.CanTransitionTo(req.Status) {
			return nil, false, &domain.ErrValidation{
				Field:   "status",
				Message: fmt.Sprintf("cannot move from %s to %s", r.Status, req.Status),
			}
		}
		now := s.now().UTC()
		r.Status = req.Status
		r.UpdatedAt = &now
		r.ReviewedBy = session.UserID
		updated = *r
		return requests, true, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("collaboration request reviewed",
		zap.String("request_id", requestID),
		zap.String("status", string(updated.Status)),
		zap.String("reviewed_by", session.UserID),
	)
	return &updated, nil
}
