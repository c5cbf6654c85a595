package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedLegacyData writes the kind of records the app produced before
// write-time validation existed.
func seedLegacyData(t *testing.T, e *testEnv) {
	t.Helper()
	e.putLegacyUser(t, domain.User{ID: "legacy-co", Email: "info@acme.example", Name: "Acme Spa", IsActive: true}, "secret1")
	e.putLegacyUser(t, domain.User{ID: "legacy-inf", Email: "ana@example.com", Name: "Ana", IsActive: true}, "secret1")
	e.putRaw(t, storage.CompanyKey("legacy-co"), domain.Company{
		ID:           "legacy-co",
		CompanyName:  "Acme Spa",
		CompanyEmail: "info@acme.example",
		SelectedPlan: "basic",
		Status:       domain.CompanyStatusActive,
	})
	e.putRaw(t, storage.KeyCampaigns, []domain.Campaign{
		{ID: "k1", Title: "Spring glow", Business: "Acme Spa", Status: domain.CampaignStatusActive},
		{ID: "k2", Title: "Winter", CompanyID: "legacy-co", Business: "ACME old name", Status: domain.CampaignStatusClosed},
		{ID: "k3", Title: "Ghost", Business: "Ghost Co", Status: domain.CampaignStatusActive},
	})
	e.putRaw(t, storage.KeyRequests, []domain.CollaborationRequest{
		{ID: "r1", CollaborationID: "k1", UserID: "legacy-inf", Status: domain.RequestStatusPending},
		{ID: "r2", CollaborationID: "deleted", UserID: "legacy-inf", Status: domain.RequestStatusPending},
	})
}

func issueKinds(issues []domain.Issue) map[domain.IssueKind]int {
	out := map[domain.IssueKind]int{}
	for _, i := range issues {
		out[i.Kind]++
	}
	return out
}

func TestDiagnose_ReportsEveryViolation(t *testing.T) {
	e := newEnv(t)
	seedLegacyData(t, e)
	before := e.kv.Snapshot()

	report, err := e.repairs.Diagnose(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Users)
	assert.Equal(t, 1, report.Companies)
	assert.Equal(t, 3, report.Campaigns)
	assert.Equal(t, 2, report.Requests)
	assert.False(t, report.Healthy())
	assert.Equal(t, map[domain.IssueKind]int{
		domain.IssueMissingUserType:  2,
		domain.IssueUnlinkedCampaign: 2,
		domain.IssueBusinessMismatch: 1,
		domain.IssueOrphanedRequest:  1,
	}, issueKinds(report.Issues))
	assert.Equal(t, before, e.kv.Snapshot(), "diagnose is read-only")
}

func TestDiagnose_HealthyStore(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := newMarketplace(t, e)
	campaign, err := e.campaigns.CreateCampaign(ctx, m.admin, &domain.CreateCampaignRequest{CompanyID: m.acme.UserID, Title: "Spring glow"})
	require.NoError(t, err)
	_, err = e.campaigns.ApplyToCampaign(ctx, m.influencer, campaign.ID, &domain.ApplyRequest{})
	require.NoError(t, err)

	report, err := e.repairs.Diagnose(ctx)
	require.NoError(t, err)
	assert.True(t, report.Healthy(), "%+v", report.Issues)
}

func TestDiagnose_UndecodableAndOrphanedRecords(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.kv.Memory.Set(ctx, "user_broken", "{"))
	e.putRaw(t, storage.CompanyKey("nobody"), domain.Company{ID: "nobody", CompanyName: "Nobody SL", CompanyEmail: "n@x.example", SelectedPlan: "basic"})
	e.putRaw(t, storage.KeyStaging, domain.StagedRegistration{CheckoutSessionID: "cs_old", StagedAt: time.Now().Add(-48 * time.Hour)})

	report, err := e.repairs.Diagnose(ctx)
	require.NoError(t, err)

	kinds := issueKinds(report.Issues)
	assert.Equal(t, 1, kinds[domain.IssueUndecodableRecord])
	assert.Equal(t, 1, kinds[domain.IssueOrphanedCompany])
	assert.Equal(t, 1, kinds[domain.IssueStaleStaging])
}

func TestRepairAll_FixesLegacyDataAndIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedLegacyData(t, e)

	first, err := e.repairs.RepairAll(ctx, false)
	require.NoError(t, err)
	require.Len(t, first, 3)
	for _, r := range first {
		assert.True(t, r.Changed(), r.Repair)
	}
	afterFirst := e.kv.Snapshot()

	second, err := e.repairs.RepairAll(ctx, false)
	require.NoError(t, err)
	for _, r := range second {
		assert.False(t, r.Changed(), "%s changed on the second run: %+v", r.Repair, r.Changes)
	}
	assert.Equal(t, afterFirst, e.kv.Snapshot(), "running twice equals running once")

	co, err := e.store.GetUser(ctx, "legacy-co")
	require.NoError(t, err)
	assert.Equal(t, domain.UserTypeCompany, co.UserType)
	inf, err := e.store.GetUser(ctx, "legacy-inf")
	require.NoError(t, err)
	assert.Equal(t, domain.UserTypeInfluencer, inf.UserType)

	campaigns, err := e.store.ListCampaigns(ctx)
	require.NoError(t, err)
	byID := map[string]domain.Campaign{}
	for _, c := range campaigns {
		byID[c.ID] = c
	}
	assert.Equal(t, "legacy-co", byID["k1"].CompanyID)
	assert.Equal(t, "Acme Spa", byID["k2"].Business)
	assert.Empty(t, byID["k3"].CompanyID, "no company to link to")

	quarantined, err := e.store.ListQuarantinedRequests(ctx)
	require.NoError(t, err)
	require.Len(t, quarantined, 1)
	assert.Equal(t, "r2", quarantined[0].ID)

	report, err := e.repairs.Diagnose(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.IssueKind]int{domain.IssueUnlinkedCampaign: 1}, issueKinds(report.Issues))

	view, err := e.sessions.Resolve(ctx, &domain.Session{ID: "s", UserID: "legacy-co", Role: domain.UserTypeCompany})
	require.NoError(t, err)
	assert.Len(t, view.Campaigns, 2)
	require.Len(t, view.Requests, 1)
	assert.Equal(t, "r1", view.Requests[0].ID)
}

func TestRepairAll_DryRunWritesNothing(t *testing.T) {
	e := newEnv(t)
	seedLegacyData(t, e)
	before := e.kv.Snapshot()

	results, err := e.repairs.RepairAll(context.Background(), true)
	require.NoError(t, err)

	changes := 0
	for _, r := range results {
		assert.True(t, r.DryRun)
		changes += len(r.Changes)
	}
	assert.Equal(t, 5, changes)
	assert.Equal(t, before, e.kv.Snapshot())
}

func TestRepairAll_QuarantinesRequestWithoutRequester(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := newMarketplace(t, e)
	campaign, err := e.campaigns.CreateCampaign(ctx, m.admin, &domain.CreateCampaignRequest{CompanyID: m.acme.UserID, Title: "Spring glow"})
	require.NoError(t, err)
	e.putRaw(t, storage.KeyRequests, []map[string]any{
		{"id": "legacy1", "collaborationId": campaign.ID, "status": "pending", "submittedAt": "2024-05-01T10:00:00Z"},
	})

	report, err := e.repairs.Diagnose(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.IssueKind]int{domain.IssueUnknownRequester: 1}, issueKinds(report.Issues))

	_, err = e.campaigns.ApplyToCampaign(ctx, m.influencer, campaign.ID, &domain.ApplyRequest{})
	require.NoError(t, err, "an untouched legacy request does not block new applications")

	first, err := e.repairs.RepairAll(ctx, false)
	require.NoError(t, err)
	changed := 0
	for _, r := range first {
		changed += len(r.Changes)
	}
	assert.Equal(t, 1, changed)

	quarantined, err := e.store.ListQuarantinedRequests(ctx)
	require.NoError(t, err)
	require.Len(t, quarantined, 1)
	assert.Equal(t, "legacy1", quarantined[0].ID)
	live, err := e.store.ListRequests(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, m.influencer.UserID, live[0].UserID)

	afterFirst := e.kv.Snapshot()
	second, err := e.repairs.RepairAll(ctx, false)
	require.NoError(t, err)
	for _, r := range second {
		assert.False(t, r.Changed(), r.Repair)
	}
	assert.Equal(t, afterFirst, e.kv.Snapshot())

	report, err = e.repairs.Diagnose(ctx)
	require.NoError(t, err)
	assert.True(t, report.Healthy(), "%+v", report.Issues)
}

func TestRepairCampaignOwnership_AmbiguousNameIsSkipped(t *testing.T) {
	e := newEnv(t)
	for _, id := range []string{"c1", "c2"} {
		e.putRaw(t, storage.CompanyKey(id), domain.Company{ID: id, CompanyName: "Acme Spa", CompanyEmail: id + "@acme.example", SelectedPlan: "basic"})
	}
	e.putRaw(t, storage.KeyCampaigns, []domain.Campaign{{ID: "k1", Title: "Spring", Business: "Acme Spa", Status: domain.CampaignStatusActive}})

	result, err := e.repairs.RepairCampaignOwnership(context.Background(), false)
	require.NoError(t, err)

	assert.False(t, result.Changed())
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, domain.IssueUnlinkedCampaign, result.Skipped[0].Kind)
}

func TestRestoreCompanyFields_FillsOnlyEmptyFields(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.putRaw(t, storage.CompanyKey("c1"), domain.Company{
		ID:           "c1",
		CompanyName:  "Acme Spa",
		CompanyEmail: "billing@acme.example",
		SelectedPlan: "basic",
	})

	form := acmeForm()
	result, err := e.repairs.RestoreCompanyFields(ctx, "c1", &form, false)
	require.NoError(t, err)
	assert.True(t, result.Changed())

	c, err := e.store.GetCompany(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "billing@acme.example", c.CompanyEmail, "existing value kept")
	assert.Equal(t, form.CIFNIF, c.CIFNIF)
	assert.Equal(t, form.RepresentativeName, c.RepresentativeName)
	assert.Equal(t, form.CompanyPhone, c.Phone)

	again, err := e.repairs.RestoreCompanyFields(ctx, "c1", &form, false)
	require.NoError(t, err)
	assert.False(t, again.Changed())

	_, err = e.repairs.RestoreCompanyFields(ctx, "missing", &form, false)
	var notFound *domain.ErrNotFound
	require.ErrorAs(t, err, &notFound)
}
