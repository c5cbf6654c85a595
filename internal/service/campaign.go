package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
	"github.com/boddenberg/influmatch-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var campaignTracer = otel.Tracer("service/campaign")

// CampaignService manages campaigns and the collaboration requests made on them.
type CampaignService struct {
	store  port.RecordStore
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewCampaignService creates a new campaign service.
func NewCampaignService(store port.RecordStore, logger *zap.Logger) *CampaignService {
	return &CampaignService{
		store:  store,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// ============================================================
// CreateCampaign — POST /v1/campaigns (admin)
// ============================================================

// CreateCampaign publishes a campaign on behalf of an existing company.
// The campaign is linked by companyId and carries the company name as business.
func (s *CampaignService) CreateCampaign(ctx context.Context, session *domain.Session, req *domain.CreateCampaignRequest) (*domain.Campaign, error) {
	ctx, span := campaignTracer.Start(ctx, "CampaignService.CreateCampaign")
	defer span.End()

	if session.Role != domain.UserTypeAdmin {
		return nil, &domain.ErrForbidden{Action: "create campaign"}
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, &domain.ErrValidation{Field: "title", Message: "is required"}
	}
	if req.CompanyID == "" {
		return nil, &domain.ErrValidation{Field: "companyId", Message: "is required"}
	}
	span.SetAttributes(attribute.String("company.id", req.CompanyID))

	status := req.Status
	if status == "" {
		status = domain.CampaignStatusActive
	}
	if !status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: fmt.Sprintf("invalid campaign status %q", status)}
	}

	company, err := s.store.GetCompany(ctx, req.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("get company: %w", err)
	}
	if company == nil {
		return nil, &domain.ErrNotFound{Resource: "company", ID: req.CompanyID}
	}

	campaign := &domain.Campaign{
		ID:             s.newID(),
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		Category:       req.Category,
		City:           req.City,
		Status:         status,
		CompanyID:      company.ID,
		Business:       company.CompanyName,
		AvailableDates: req.AvailableDates,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.AddCampaign(ctx, campaign); err != nil {
		return nil, fmt.Errorf("add campaign: %w", err)
	}

	s.logger.Info("campaign created",
		zap.String("campaign_id", campaign.ID),
		zap.String("company_id", company.ID),
		zap.String("created_by", session.UserID),
	)
	return campaign, nil
}

func (s *CampaignService) findCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	campaigns, err := s.store.ListCampaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	for i := range campaigns {
		if campaigns[i].ID == id {
			return &campaigns[i], nil
		}
	}
	return nil, nil
}
