package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/observability"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/storage"
	"github.com/boddenberg/influmatch-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var repairTracer = otel.Tracer("service/repair")

// StaleStagingAfter is how long a staged registration may wait for its
// payment confirmation before Diagnose reports it.
const StaleStagingAfter = 24 * time.Hour

// RepairService finds and fixes stored records that break the data
// invariants. Every repair is deterministic and idempotent.
type RepairService struct {
	store   port.RecordStore
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewRepairService creates a new repair service.
func NewRepairService(store port.RecordStore, metrics *observability.Metrics, logger *zap.Logger) *RepairService {
	return &RepairService{
		store:   store,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// snapshot is every record Diagnose and the repairs reason about.
type snapshot struct {
	users     []domain.User
	companies []domain.Company
	campaigns []domain.Campaign
	requests  []domain.CollaborationRequest
	staged    *domain.StagedRegistration
	issues    []domain.Issue
}

// load reads the whole store. Undecodable records become issues instead of
// aborting the scan; store failures abort it.
func (s *RepairService) load(ctx context.Context) (*snapshot, error) {
	snap := &snapshot{}

	users, issues, err := s.store.ScanUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	snap.users = users
	snap.issues = append(snap.issues, issues...)

	companies, issues, err := s.store.ScanCompanies(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan companies: %w", err)
	}
	snap.companies = companies
	snap.issues = append(snap.issues, issues...)

	if snap.campaigns, err = s.store.ListCampaigns(ctx); err != nil {
		if !asIssue(err, &snap.issues) {
			return nil, fmt.Errorf("list campaigns: %w", err)
		}
	}
	if snap.requests, err = s.store.ListRequests(ctx); err != nil {
		if !asIssue(err, &snap.issues) {
			return nil, fmt.Errorf("list requests: %w", err)
		}
	}
	if snap.staged, err = s.store.GetStaging(ctx); err != nil {
		if !asIssue(err, &snap.issues) {
			return nil, fmt.Errorf("get staging: %w", err)
		}
	}
	return snap, nil
}

// asIssue records an integrity error as an issue and reports whether it did.
func asIssue(err error, issues *[]domain.Issue) bool {
	var integrity *domain.ErrIntegrity
	if !errors.As(err, &integrity) {
		return false
	}
	*issues = append(*issues, domain.Issue{
		Kind:     integrity.Kind,
		Key:      integrity.Key,
		RecordID: integrity.RecordID,
		Detail:   integrity.Detail,
	})
	return true
}

// ============================================================
// Diagnose — influmatch diagnose, GET /v1/admin/diagnostics
// ============================================================

// Diagnose reports every invariant violation in the store. It never writes.
func (s *RepairService) Diagnose(ctx context.Context) (*domain.DiagnosticReport, error) {
	ctx, span := repairTracer.Start(ctx, "RepairService.Diagnose")
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("repair.diagnose", time.Since(start))
	}()

	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	users := make(map[string]domain.User, len(snap.users))
	for _, u := range snap.users {
		users[u.ID] = u
	}
	companies := make(map[string]domain.Company, len(snap.companies))
	for _, c := range snap.companies {
		companies[c.ID] = c
	}

	issues := snap.issues
	add := func(kind domain.IssueKind, key, id, detail string) {
		issues = append(issues, domain.Issue{Kind: kind, Key: key, RecordID: id, Detail: detail})
	}

	for _, u := range snap.users {
		key := storage.UserKey(u.ID)
		if !u.UserType.Valid() {
			add(domain.IssueMissingUserType, key, u.ID, fmt.Sprintf("userType is %q", u.UserType))
			continue
		}
		if err := u.Validate(); err != nil {
			add(domain.IssueInvalidRecord, key, u.ID, err.Error())
		}
		if _, ok := companies[u.ID]; u.UserType == domain.UserTypeCompany && !ok {
			add(domain.IssueOrphanedUser, key, u.ID, "company user has no company record")
		}
	}

	for _, c := range snap.companies {
		key := storage.CompanyKey(c.ID)
		u, ok := users[c.ID]
		switch {
		case !ok:
			add(domain.IssueOrphanedCompany, key, c.ID, "no user with this id")
		case u.UserType.Valid() && u.UserType != domain.UserTypeCompany:
			add(domain.IssueOrphanedCompany, key, c.ID, fmt.Sprintf("owning user is %s", u.UserType))
		}
		if err := c.Validate(); err != nil {
			add(domain.IssueInvalidRecord, key, c.ID, err.Error())
		}
	}

	campaignIDs := make(map[string]struct{}, len(snap.campaigns))
	for _, c := range snap.campaigns {
		campaignIDs[c.ID] = struct{}{}
		if c.CompanyID == "" {
			add(domain.IssueUnlinkedCampaign, storage.KeyCampaigns, c.ID, fmt.Sprintf("no companyId (business %q)", c.Business))
			continue
		}
		owner, ok := companies[c.CompanyID]
		if !ok {
			add(domain.IssueMissingOwner, storage.KeyCampaigns, c.ID, fmt.Sprintf("company %s does not exist", c.CompanyID))
			continue
		}
		if c.Business != owner.CompanyName {
			add(domain.IssueBusinessMismatch, storage.KeyCampaigns, c.ID,
				fmt.Sprintf("business %q, company name %q", c.Business, owner.CompanyName))
		}
	}

	undecodable := make(map[string]struct{})
	for _, issue := range snap.issues {
		if issue.Kind == domain.IssueUndecodableRecord {
			undecodable[issue.Key] = struct{}{}
		}
	}

	for _, r := range snap.requests {
		if _, ok := campaignIDs[r.CollaborationID]; !ok {
			add(domain.IssueOrphanedRequest, storage.KeyRequests, r.ID, fmt.Sprintf("campaign %s does not exist", r.CollaborationID))
		}
		_, broken := undecodable[storage.UserKey(r.UserID)]
		if _, ok := users[r.UserID]; !ok && !broken {
			add(domain.IssueUnknownRequester, storage.KeyRequests, r.ID, fmt.Sprintf("user %q does not exist", r.UserID))
		}
		if err := r.Validate(); err != nil && r.UserID != "" {
			add(domain.IssueInvalidRecord, storage.KeyRequests, r.ID, err.Error())
		}
	}

	if snap.staged != nil && s.now().Sub(snap.staged.StagedAt) > StaleStagingAfter {
		add(domain.IssueStaleStaging, storage.KeyStaging, snap.staged.CheckoutSessionID,
			fmt.Sprintf("staged at %s and never confirmed", snap.staged.StagedAt.Format(time.RFC3339)))
	}

	report := &domain.DiagnosticReport{
		Users:     len(snap.users),
		Companies: len(snap.companies),
		Campaigns: len(snap.campaigns),
		Requests:  len(snap.requests),
		Issues:    issues,
	}
	if report.Issues == nil {
		report.Issues = []domain.Issue{}
	}

	s.logger.Info("diagnose finished",
		zap.Int("users", report.Users),
		zap.Int("companies", report.Companies),
		zap.Int("campaigns", report.Campaigns),
		zap.Int("requests", report.Requests),
		zap.Int("issues", len(report.Issues)),
	)
	return report, nil
}
