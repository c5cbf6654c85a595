package storage

import (
	"context"
	"encoding/json"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Companies — company_<id>
// ============================================================

// GetCompany returns the company stored under company_<id>, or nil if absent.
func (s *Store) GetCompany(ctx context.Context, id string) (*domain.Company, error) {
	ctx, span := tracer.Start(ctx, "Storage.GetCompany")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", id))

	var c domain.Company
	found, err := s.getJSON(ctx, CompanyKey(id), &c)
	if err != nil || !found {
		return nil, err
	}
	return &c, nil
}

// PutCompany validates and writes c.
func (s *Store) PutCompany(ctx context.Context, c *domain.Company) error {
	ctx, span := tracer.Start(ctx, "Storage.PutCompany")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", c.ID))

	if err := c.Validate(); err != nil {
		return s.rejectInvalid(CompanyKey(c.ID), c.ID, err)
	}
	return s.putJSON(ctx, CompanyKey(c.ID), c)
}

// ScanCompanies decodes every company_<id> record.
func (s *Store) ScanCompanies(ctx context.Context) ([]domain.Company, []domain.Issue, error) {
	ctx, span := tracer.Start(ctx, "Storage.ScanCompanies")
	defer span.End()

	keys, err := s.keysWithPrefix(ctx, companyPrefix)
	if err != nil {
		return nil, nil, err
	}

	var (
		companies []domain.Company
		issues    []domain.Issue
	)
	for _, key := range keys {
		raw, found, err := s.kv.Get(ctx, key)
		if err != nil {
			s.metrics.IncrStoreError("get")
			return nil, nil, &domain.ErrPersistence{Op: "get", Key: key, Err: err}
		}
		if !found {
			continue
		}
		var c domain.Company
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			issues = append(issues, domain.Issue{
				Kind:   domain.IssueUndecodableRecord,
				Key:    key,
				Detail: err.Error(),
			})
			continue
		}
		companies = append(companies, c)
	}
	return companies, issues, nil
}
