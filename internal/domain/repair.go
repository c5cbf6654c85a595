package domain

// ============================================================
// Diagnostics & repair
// ============================================================

// IssueKind classifies a stored record that breaks a data invariant.
type IssueKind string

const (
	IssueMissingUserType   IssueKind = "missing_user_type"
	IssueOrphanedUser      IssueKind = "orphaned_user"
	IssueOrphanedCompany   IssueKind = "orphaned_company"
	IssueUnlinkedCampaign  IssueKind = "unlinked_campaign"
	IssueBusinessMismatch  IssueKind = "business_mismatch"
	IssueMissingOwner      IssueKind = "missing_owner"
	IssueOrphanedRequest   IssueKind = "orphaned_request"
	IssueUnknownRequester  IssueKind = "unknown_requester"
	IssueUndecodableRecord IssueKind = "undecodable_record"
	IssueInvalidRecord     IssueKind = "invalid_record"
	IssueStaleStaging      IssueKind = "stale_staging"
)

// Issue is one invariant violation found by Diagnose.
type Issue struct {
	Kind     IssueKind `json:"kind"`
	Key      string    `json:"key"`
	RecordID string    `json:"recordId,omitempty"`
	Detail   string    `json:"detail"`
}

// DiagnosticReport lists every violation found in the store.
type DiagnosticReport struct {
	Users     int     `json:"users"`
	Companies int     `json:"companies"`
	Campaigns int     `json:"campaigns"`
	Requests  int     `json:"requests"`
	Issues    []Issue `json:"issues"`
}

// Healthy reports whether no violations were found.
func (r *DiagnosticReport) Healthy() bool {
	return len(r.Issues) == 0
}

// Change is one record rewritten (or that would be rewritten) by a repair.
type Change struct {
	Key      string `json:"key"`
	RecordID string `json:"recordId"`
	Field    string `json:"field"`
	Before   string `json:"before"`
	After    string `json:"after"`
}

// RepairResult describes what a repair changed and what it could not fix.
type RepairResult struct {
	Repair  string   `json:"repair"`
	DryRun  bool     `json:"dryRun"`
	Changes []Change `json:"changes"`
	Skipped []Issue  `json:"skipped,omitempty"`
}

// Changed reports whether the repair rewrote anything.
func (r *RepairResult) Changed() bool {
	return len(r.Changes) > 0
}

// RepairRequest is the body for POST /v1/admin/repair.
type RepairRequest struct {
	DryRun bool `json:"dryRun"`
}
