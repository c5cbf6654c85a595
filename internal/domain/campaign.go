package domain

// ============================================================
// Campaigns & collaboration requests — request types
// ============================================================

// CreateCampaignRequest is the body for POST /v1/campaigns.
type CreateCampaignRequest struct {
	CompanyID      string         `json:"companyId"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Category       string         `json:"category"`
	City           string         `json:"city"`
	Status         CampaignStatus `json:"status,omitempty"`
	AvailableDates []string       `json:"availableDates,omitempty"`
}

// ApplyRequest is the body for POST /v1/campaigns/{id}/requests.
type ApplyRequest struct {
	SelectedDate string `json:"selectedDate"`
}

// UpdateRequestStatusRequest is the body for PUT /v1/requests/{id}/status.
type UpdateRequestStatusRequest struct {
	Status RequestStatus `json:"status"`
}
