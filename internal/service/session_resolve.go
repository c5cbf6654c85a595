package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/storage"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// ============================================================
// Resolve — GET /v1/me/view
// ============================================================

// Resolve loads everything the session's role may see. Stored data that
// breaks an invariant is reported as *domain.ErrIntegrity, never patched up
// on the way out; store failures surface as *domain.ErrPersistence.
func (s *SessionService) Resolve(ctx context.Context, session *domain.Session) (*domain.RoleView, error) {
	if session == nil {
		return nil, &domain.ErrUnauthorized{Message: "no session"}
	}

	ctx, span := sessionTracer.Start(ctx, "SessionService.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", session.UserID))

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("session.resolve", time.Since(start))
	}()

	user, err := s.store.GetUser(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, &domain.ErrUnauthorized{Message: "user no longer exists"}
	}
	if !user.UserType.Valid() {
		return nil, s.integrity(domain.IssueMissingUserType, storage.UserKey(user.ID), user.ID,
			fmt.Sprintf("user has no valid userType (%q)", user.UserType))
	}
	span.SetAttributes(attribute.String("user.type", string(user.UserType)))

	var (
		company   *domain.Company
		campaigns []domain.Campaign
		requests  []domain.CollaborationRequest
	)

	g, gCtx := errgroup.WithContext(ctx)
	if user.UserType == domain.UserTypeCompany {
		g.Go(func() error {
			c, err := s.store.GetCompany(gCtx, user.ID)
			if err != nil {
				return fmt.Errorf("get company: %w", err)
			}
			company = c
			return nil
		})
	}
	g.Go(func() error {
		c, err := s.store.ListCampaigns(gCtx)
		if err != nil {
			return fmt.Errorf("list campaigns: %w", err)
		}
		campaigns = c
		return nil
	})
	g.Go(func() error {
		r, err := s.store.ListRequests(gCtx)
		if err != nil {
			return fmt.Errorf("list requests: %w", err)
		}
		requests = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	view := &domain.RoleView{User: user.Public()}

	switch user.UserType {
	case domain.UserTypeCompany:
		if company == nil {
			return nil, s.integrity(domain.IssueOrphanedUser, storage.CompanyKey(user.ID), user.ID,
				"company user has no company record")
		}
		owned, err := s.ownedCampaigns(company, campaigns)
		if err != nil {
			return nil, err
		}
		view.Company = company
		view.Campaigns = owned
		view.Requests = requestsForCampaigns(requests, owned)

	case domain.UserTypeInfluencer:
		for _, c := range campaigns {
			if c.Status == domain.CampaignStatusActive {
				view.Campaigns = append(view.Campaigns, c)
			}
		}
		for _, r := range requests {
			if r.UserID == user.ID {
				view.Requests = append(view.Requests, r)
			}
		}

	case domain.UserTypeAdmin:
		view.Campaigns = campaigns
		view.Requests = requests
	}

	if view.Campaigns == nil {
		view.Campaigns = []domain.Campaign{}
	}
	if view.Requests == nil {
		view.Requests = []domain.CollaborationRequest{}
	}
	return view, nil
}

// ownedCampaigns selects the campaigns linked to company by companyId.
// business is checked against the company name but never used to decide
// ownership; a legacy campaign that is only linked by name is reported.
func (s *SessionService) ownedCampaigns(company *domain.Company, campaigns []domain.Campaign) ([]domain.Campaign, error) {
	var owned []domain.Campaign
	for _, c := range campaigns {
		switch {
		case c.CompanyID == company.ID:
			if c.Business != company.CompanyName {
				return nil, s.integrity(domain.IssueBusinessMismatch, storage.KeyCampaigns, c.ID,
					fmt.Sprintf("campaign business %q does not match company name %q", c.Business, company.CompanyName))
			}
			owned = append(owned, c)
		case c.CompanyID == "" && c.Business == company.CompanyName:
			return nil, s.integrity(domain.IssueUnlinkedCampaign, storage.KeyCampaigns, c.ID,
				fmt.Sprintf("campaign names %q but has no companyId", c.Business))
		}
	}
	return owned, nil
}

func requestsForCampaigns(requests []domain.CollaborationRequest, campaigns []domain.Campaign) []domain.CollaborationRequest {
	ids := make(map[string]struct{}, len(campaigns))
	for _, c := range campaigns {
		ids[c.ID] = struct{}{}
	}
	var out []domain.CollaborationRequest
	for _, r := range requests {
		if _, ok := ids[r.CollaborationID]; ok {
			out = append(out, r)
		}
	}
	return out
}
