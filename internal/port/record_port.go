package port

import (
	"context"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
)

// RecordStore persists the marketplace records on top of a KVStore.
// Getters return nil (or found=false) for an absent record. Writers refuse
// records that fail Validate with *domain.ErrIntegrity; store failures are
// *domain.ErrPersistence.
type RecordStore interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	PutUser(ctx context.Context, u *domain.User) error
	GetUserIDByEmail(ctx context.Context, email string) (string, bool, error)
	PutEmailIndex(ctx context.Context, email, id string) error
	ScanUsers(ctx context.Context) ([]domain.User, []domain.Issue, error)

	GetCompany(ctx context.Context, id string) (*domain.Company, error)
	PutCompany(ctx context.Context, c *domain.Company) error
	ScanCompanies(ctx context.Context) ([]domain.Company, []domain.Issue, error)

	ListCampaigns(ctx context.Context) ([]domain.Campaign, error)
	AddCampaign(ctx context.Context, c *domain.Campaign) error
	UpdateCampaigns(ctx context.Context, fn func([]domain.Campaign) ([]domain.Campaign, bool, error)) error

	ListRequests(ctx context.Context) ([]domain.CollaborationRequest, error)
	UpdateRequests(ctx context.Context, fn func([]domain.CollaborationRequest) ([]domain.CollaborationRequest, bool, error)) error
	ListQuarantinedRequests(ctx context.Context) ([]domain.CollaborationRequest, error)
	QuarantineRequests(ctx context.Context, pred func(domain.CollaborationRequest) bool) ([]domain.CollaborationRequest, error)

	GetStaging(ctx context.Context) (*domain.StagedRegistration, error)
	PutStaging(ctx context.Context, staged *domain.StagedRegistration) error
	ClearStaging(ctx context.Context) error
	ClearStagingFor(ctx context.Context, checkoutSessionID string) (bool, error)

	GetDeviceSession(ctx context.Context) (*domain.DeviceSession, error)
	PutDeviceSession(ctx context.Context, ds *domain.DeviceSession) error
	ClearDeviceSession(ctx context.Context) error

	Remove(ctx context.Context, key string) error
}
