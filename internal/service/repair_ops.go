package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/storage"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Repair names, as reported in RepairResult.Repair.
const (
	RepairUserTypeName          = "user_type"
	RepairCampaignOwnershipName = "campaign_ownership"
	RepairOrphanedRequestsName  = "orphaned_requests"
	RestoreCompanyFieldsName    = "restore_company_fields"
)

// ============================================================
// RepairUserType
// ============================================================

// RepairUserType sets a missing or unknown userType: company when a
// company_<id> record exists, influencer otherwise. Admin is never inferred.
func (s *RepairService) RepairUserType(ctx context.Context, dryRun bool) (*domain.RepairResult, error) {
	ctx, span := repairTracer.Start(ctx, "RepairService.RepairUserType")
	defer span.End()
	span.SetAttributes(attribute.Bool("dry_run", dryRun))

	result := &domain.RepairResult{Repair: RepairUserTypeName, DryRun: dryRun, Changes: []domain.Change{}}

	users, _, err := s.store.ScanUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}

	for i := range users {
		u := &users[i]
		if u.UserType.Valid() {
			continue
		}

		company, err := s.store.GetCompany(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("get company %s: %w", u.ID, err)
		}
		inferred := domain.UserTypeInfluencer
		if company != nil {
			inferred = domain.UserTypeCompany
		}

		change := domain.Change{
			Key:      storage.UserKey(u.ID),
			RecordID: u.ID,
			Field:    "userType",
			Before:   string(u.UserType),
			After:    string(inferred),
		}
		if !dryRun {
			u.UserType = inferred
			if err := s.store.PutUser(ctx, u); err != nil {
				if asIssue(err, &result.Skipped) {
					continue
				}
				return nil, fmt.Errorf("write user %s: %w", u.ID, err)
			}
		}
		result.Changes = append(result.Changes, change)
	}

	s.logResult(result)
	return result, nil
}

// ============================================================
// RepairCampaignOwnership
// ============================================================

// RepairCampaignOwnership links campaigns without companyId to the single
// company whose name equals their business, and resets business to the
// owner's current name on linked campaigns. Campaigns with no match, an
// ambiguous match or a missing owner are left as they are and reported.
func (s *RepairService) RepairCampaignOwnership(ctx context.Context, dryRun bool) (*domain.RepairResult, error) {
	ctx, span := repairTracer.Start(ctx, "RepairService.RepairCampaignOwnership")
	defer span.End()
	span.SetAttributes(attribute.Bool("dry_run", dryRun))

	result := &domain.RepairResult{Repair: RepairCampaignOwnershipName, DryRun: dryRun, Changes: []domain.Change{}}

	companies, _, err := s.store.ScanCompanies(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan companies: %w", err)
	}
	byID := make(map[string]domain.Company, len(companies))
	byName := make(map[string][]domain.Company, len(companies))
	for _, c := range companies {
		byID[c.ID] = c
		byName[c.CompanyName] = append(byName[c.CompanyName], c)
	}

	err = s.store.UpdateCampaigns(ctx, func(campaigns []domain.Campaign) ([]domain.Campaign, bool, error) {
		for i := range campaigns {
			c := &campaigns[i]

			if c.CompanyID == "" {
				matches := byName[c.Business]
				if len(matches) != 1 {
					detail := fmt.Sprintf("no company named %q", c.Business)
					if len(matches) > 1 {
						detail = fmt.Sprintf("%d companies named %q", len(matches), c.Business)
					}
					result.Skipped = append(result.Skipped, domain.Issue{
						Kind: domain.IssueUnlinkedCampaign, Key: storage.KeyCampaigns, RecordID: c.ID, Detail: detail,
					})
					continue
				}
				result.Changes = append(result.Changes, domain.Change{
					Key: storage.KeyCampaigns, RecordID: c.ID, Field: "companyId", Before: "", After: matches[0].ID,
				})
				c.CompanyID = matches[0].ID
			}

			owner, ok := byID[c.CompanyID]
			if !ok {
				result.Skipped = append(result.Skipped, domain.Issue{
					Kind: domain.IssueMissingOwner, Key: storage.KeyCampaigns, RecordID: c.ID,
					Detail: fmt.Sprintf("company %s does not exist", c.CompanyID),
				})
				continue
			}
			if c.Business != owner.CompanyName {
				result.Changes = append(result.Changes, domain.Change{
					Key: storage.KeyCampaigns, RecordID: c.ID, Field: "business", Before: c.Business, After: owner.CompanyName,
				})
				c.Business = owner.CompanyName
			}
		}
		return campaigns, len(result.Changes) > 0 && !dryRun, nil
	})
	if err != nil {
		return nil, fmt.Errorf("update campaigns: %w", err)
	}

	s.logResult(result)
	return result, nil
}

// ============================================================
// RepairOrphanedRequests
// ============================================================

// RepairOrphanedRequests moves to orphaned_collaboration_requests every
// request whose campaign or requester no longer exists, and every request
// that fails validation. A requester whose record exists but cannot be
// decoded is left alone; Diagnose reports that record on its own.
func (s *RepairService) RepairOrphanedRequests(ctx context.Context, dryRun bool) (*domain.RepairResult, error) {
	ctx, span := repairTracer.Start(ctx, "RepairService.RepairOrphanedRequests")
	defer span.End()
	span.SetAttributes(attribute.Bool("dry_run", dryRun))

	result := &domain.RepairResult{Repair: RepairOrphanedRequestsName, DryRun: dryRun, Changes: []domain.Change{}}

	campaigns, err := s.store.ListCampaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	exists := make(map[string]struct{}, len(campaigns))
	for _, c := range campaigns {
		exists[c.ID] = struct{}{}
	}
	users, undecodable, err := s.store.ScanUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	known := make(map[string]struct{}, len(users)+len(undecodable))
	for _, u := range users {
		known[u.ID] = struct{}{}
	}
	for _, issue := range undecodable {
		known[strings.TrimPrefix(issue.Key, storage.UserKey(""))] = struct{}{}
	}

	orphaned := func(r domain.CollaborationRequest) bool {
		if _, ok := exists[r.CollaborationID]; !ok {
			return true
		}
		if _, ok := known[r.UserID]; !ok || r.UserID == "" {
			return true
		}
		return r.Validate() != nil
	}

	var moved []domain.CollaborationRequest
	if dryRun {
		requests, err := s.store.ListRequests(ctx)
		if err != nil {
			return nil, fmt.Errorf("list requests: %w", err)
		}
		for _, r := range requests {
			if orphaned(r) {
				moved = append(moved, r)
			}
		}
	} else {
		moved, err = s.store.QuarantineRequests(ctx, orphaned)
		if err != nil {
			return nil, fmt.Errorf("quarantine requests: %w", err)
		}
	}

	for _, r := range moved {
		result.Changes = append(result.Changes, domain.Change{
			Key:      storage.KeyRequests,
			RecordID: r.ID,
			Field:    "location",
			Before:   storage.KeyRequests,
			After:    storage.KeyOrphanedRequests,
		})
	}

	s.logResult(result)
	return result, nil
}

// ============================================================
// RestoreCompanyFields
// ============================================================

// RestoreCompanyFields fills the empty fields of company_<id> from form.
// Fields that already hold a value are never overwritten.
func (s *RepairService) RestoreCompanyFields(ctx context.Context, id string, form *domain.CompanyRegistrationForm, dryRun bool) (*domain.RepairResult, error) {
	ctx, span := repairTracer.Start(ctx, "RepairService.RestoreCompanyFields")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", id), attribute.Bool("dry_run", dryRun))

	result := &domain.RepairResult{Repair: RestoreCompanyFieldsName, DryRun: dryRun, Changes: []domain.Change{}}

	company, err := s.store.GetCompany(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get company: %w", err)
	}
	if company == nil {
		return nil, &domain.ErrNotFound{Resource: "company", ID: id}
	}

	fields := []struct {
		name string
		dst  *string
		src  string
	}{
		{"companyName", &company.CompanyName, form.CompanyName},
		{"cifNif", &company.CIFNIF, form.CIFNIF},
		{"companyAddress", &company.CompanyAddress, form.CompanyAddress},
		{"companyPhone", &company.CompanyPhone, form.CompanyPhone},
		{"companyEmail", &company.CompanyEmail, form.CompanyEmail},
		{"representativeName", &company.RepresentativeName, form.RepresentativeName},
		{"representativeEmail", &company.RepresentativeEmail, form.RepresentativeEmail},
		{"representativePosition", &company.RepresentativePosition, form.RepresentativePosition},
		{"businessType", &company.BusinessType, form.BusinessType},
		{"businessDescription", &company.BusinessDescription, form.BusinessDescription},
		{"website", &company.Website, form.Website},
		{"city", &company.City, form.City},
		{"phone", &company.Phone, form.CompanyPhone},
	}
	for _, f := range fields {
		if strings.TrimSpace(*f.dst) != "" || strings.TrimSpace(f.src) == "" {
			continue
		}
		result.Changes = append(result.Changes, domain.Change{
			Key: storage.CompanyKey(id), RecordID: id, Field: f.name, Before: *f.dst, After: f.src,
		})
		*f.dst = f.src
	}

	if result.Changed() && !dryRun {
		if err := s.store.PutCompany(ctx, company); err != nil {
			return nil, fmt.Errorf("write company: %w", err)
		}
	}

	s.logResult(result)
	return result, nil
}

// ============================================================
// RepairAll — influmatch repair, POST /v1/admin/repair
// ============================================================

// RepairAll runs the store-wide repairs in dependency order: user types
// first, then campaign links, then the requests those links leave orphaned.
func (s *RepairService) RepairAll(ctx context.Context, dryRun bool) ([]domain.RepairResult, error) {
	ctx, span := repairTracer.Start(ctx, "RepairService.RepairAll")
	defer span.End()

	repairs := []func(context.Context, bool) (*domain.RepairResult, error){
		s.RepairUserType,
		s.RepairCampaignOwnership,
		s.RepairOrphanedRequests,
	}
	results := make([]domain.RepairResult, 0, len(repairs))
	for _, repair := range repairs {
		r, err := repair(ctx, dryRun)
		if err != nil {
			return results, err
		}
		results = append(results, *r)
	}
	return results, nil
}

func (s *RepairService) logResult(r *domain.RepairResult) {
	s.logger.Info("repair finished",
		zap.String("repair", r.Repair),
		zap.Bool("dry_run", r.DryRun),
		zap.Int("changes", len(r.Changes)),
		zap.Int("skipped", len(r.Skipped)),
	)
}
