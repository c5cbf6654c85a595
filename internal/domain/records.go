package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// ============================================================
// Persisted records
// ============================================================

// UserType is the role a user plays in the marketplace.
type UserType string

const (
	UserTypeInfluencer UserType = "influencer"
	UserTypeCompany    UserType = "company"
	UserTypeAdmin      UserType = "admin"
)

// Valid reports whether t is one of the known user types.
func (t UserType) Valid() bool {
	switch t {
	case UserTypeInfluencer, UserTypeCompany, UserTypeAdmin:
		return true
	}
	return false
}

// User is the identity record stored under user_<id>.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	UserType         UserType   `json:"userType,omitempty"`
	Instagram        string     `json:"instagram,omitempty"`
	PasswordHash     string     `json:"passwordHash,omitempty"`
	IsActive         bool       `json:"isActive"`
	RegistrationDate time.Time  `json:"registrationDate"`
	LastLogin        *time.Time `json:"lastLogin,omitempty"`
}

// Validate checks the invariants a User must satisfy before it is persisted.
func (u *User) Validate() error {
	if u.ID == "" {
		return &ErrValidation{Field: "id", Message: "is required"}
	}
	if err := validateEmail("email", u.Email); err != nil {
		return err
	}
	if !u.UserType.Valid() {
		return &ErrValidation{Field: "userType", Message: fmt.Sprintf("invalid user type %q", u.UserType)}
	}
	return nil
}

// Public returns a copy of the user that is safe to serialize to clients.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

// CompanyStatus is the lifecycle status of a company account.
type CompanyStatus string

const (
	CompanyStatusActive    CompanyStatus = "active"
	CompanyStatusSuspended CompanyStatus = "suspended"
)

// Company is stored under company_<id>; its ID equals the owning company User's ID.
type Company struct {
	ID                     string        `json:"id"`
	CompanyName            string        `json:"companyName"`
	CIFNIF                 string        `json:"cifNif"`
	CompanyAddress         string        `json:"companyAddress"`
	CompanyPhone           string        `json:"companyPhone"`
	CompanyEmail           string        `json:"companyEmail"`
	RepresentativeName     string        `json:"representativeName"`
	RepresentativeEmail    string        `json:"representativeEmail"`
	RepresentativePosition string        `json:"representativePosition"`
	BusinessType           string        `json:"businessType"`
	BusinessDescription    string        `json:"businessDescription,omitempty"`
	Website                string        `json:"website,omitempty"`
	City                   string        `json:"city,omitempty"`
	Phone                  string        `json:"phone"`
	SelectedPlan           string        `json:"selectedPlan"`
	Status                 CompanyStatus `json:"status"`
	CheckoutSessionID      string        `json:"checkoutSessionId,omitempty"`
	RegistrationDate       time.Time     `json:"registrationDate"`
}

// Validate checks the invariants a Company must satisfy before it is persisted.
func (c *Company) Validate() error {
	if c.ID == "" {
		return &ErrValidation{Field: "id", Message: "is required"}
	}
	if strings.TrimSpace(c.CompanyName) == "" {
		return &ErrValidation{Field: "companyName", Message: "is required"}
	}
	if err := validateEmail("companyEmail", c.CompanyEmail); err != nil {
		return err
	}
	if c.SelectedPlan == "" {
		return &ErrValidation{Field: "selectedPlan", Message: "is required"}
	}
	return nil
}

// CampaignStatus is the publication status of a campaign.
type CampaignStatus string

const (
	CampaignStatusDraft  CampaignStatus = "draft"
	CampaignStatusActive CampaignStatus = "active"
	CampaignStatusClosed CampaignStatus = "closed"
)

// Valid reports whether s is a known campaign status.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusActive, CampaignStatusClosed:
		return true
	}
	return false
}

// Campaign is an element of the admin_campaigns collection.
// CompanyID is the owning relation; Business is the owner's display name
// and must match it.
type Campaign struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Category       string         `json:"category"`
	City           string         `json:"city"`
	Status         CampaignStatus `json:"status"`
	CompanyID      string         `json:"companyId,omitempty"`
	Business       string         `json:"business"`
	AvailableDates []string       `json:"availableDates,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Validate checks the invariants a Campaign must satisfy before it is persisted.
func (c *Campaign) Validate() error {
	if c.ID == "" {
		return &ErrValidation{Field: "id", Message: "is required"}
	}
	if strings.TrimSpace(c.Title) == "" {
		return &ErrValidation{Field: "title", Message: "is required"}
	}
	if c.CompanyID == "" {
		return &ErrValidation{Field: "companyId", Message: "is required"}
	}
	if c.Business == "" {
		return &ErrValidation{Field: "business", Message: "is required"}
	}
	if !c.Status.Valid() {
		return &ErrValidation{Field: "status", Message: fmt.Sprintf("invalid campaign status %q", c.Status)}
	}
	return nil
}

// RequestStatus is the review status of a collaboration request.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusCompleted RequestStatus = "completed"
)

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending:  {RequestStatusApproved, RequestStatusRejected},
	RequestStatusApproved: {RequestStatusCompleted},
}

// Valid reports whether s is a known request status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected, RequestStatusCompleted:
		return true
	}
	return false
}

// CanTransitionTo reports whether a request in status s may move to next.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, allowed := range requestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CollaborationRequest is an element of the collaboration_requests collection.
type CollaborationRequest struct {
	ID              string        `json:"id"`
	CollaborationID string        `json:"collaborationId"`
	UserID          string        `json:"userId"`
	UserName        string        `json:"userName"`
	UserInstagram   string        `json:"userInstagram,omitempty"`
	Status          RequestStatus `json:"status"`
	SelectedDate    string        `json:"selectedDate,omitempty"`
	SubmittedAt     time.Time     `json:"submittedAt"`
	UpdatedAt       *time.Time    `json:"updatedAt,omitempty"`
	ReviewedBy      string        `json:"reviewedBy,omitempty"`
}

// Validate checks the invariants a CollaborationRequest must satisfy before it is persisted.
func (r *CollaborationRequest) Validate() error {
	if r.ID == "" {
		return &ErrValidation{Field: "id", Message: "is required"}
	}
	if r.CollaborationID == "" {
		return &ErrValidation{Field: "collaborationId", Message: "is required"}
	}
	if r.UserID == "" {
		return &ErrValidation{Field: "userId", Message: "is required"}
	}
	if !r.Status.Valid() {
		return &ErrValidation{Field: "status", Message: fmt.Sprintf("invalid request status %q", r.Status)}
	}
	return nil
}

// NormalizeEmail lowercases and trims an email so it can be used as an index key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ErrValidation{Field: field, Message: "is required"}
	}
	if _, err := mail.ParseAddress(value); err != nil {
		return &ErrValidation{Field: field, Message: "invalid email address"}
	}
	return nil
}
