package domain

import (
	"strings"
	"time"
)

// ============================================================
// Registration — request / response types
// ============================================================

// CompanyRegistrationForm is the body for POST /v1/registrations/company.
type CompanyRegistrationForm struct {
	CompanyName            string `json:"companyName"`
	CIFNIF                 string `json:"cifNif"`
	CompanyAddress         string `json:"companyAddress"`
	CompanyPhone           string `json:"companyPhone"`
	CompanyEmail           string `json:"companyEmail"`
	Password               string `json:"password,omitempty"`
	RepresentativeName     string `json:"representativeName"`
	RepresentativeEmail    string `json:"representativeEmail"`
	RepresentativePosition string `json:"representativePosition"`
	BusinessType           string `json:"businessType"`
	BusinessDescription    string `json:"businessDescription,omitempty"`
	Website                string `json:"website,omitempty"`
	City                   string `json:"city,omitempty"`
}

const minPasswordLength = 6

// Validate rejects a form with a missing or malformed required field.
func (f *CompanyRegistrationForm) Validate() error {
	required := []struct{ field, value string }{
		{"companyName", f.CompanyName},
		{"cifNif", f.CIFNIF},
		{"companyAddress", f.CompanyAddress},
		{"companyPhone", f.CompanyPhone},
		{"companyEmail", f.CompanyEmail},
		{"password", f.Password},
		{"representativeName", f.RepresentativeName},
		{"representativeEmail", f.RepresentativeEmail},
		{"representativePosition", f.RepresentativePosition},
		{"businessType", f.BusinessType},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ErrValidation{Field: r.field, Message: "is required"}
		}
	}
	if err := validateEmail("companyEmail", f.CompanyEmail); err != nil {
		return err
	}
	if err := validateEmail("representativeEmail", f.RepresentativeEmail); err != nil {
		return err
	}
	if len(f.Password) < minPasswordLength {
		return &ErrValidation{Field: "password", Message: "must have at least 6 characters"}
	}
	return nil
}

// StartRegistrationRequest pairs the form with the chosen plan.
type StartRegistrationRequest struct {
	Form   CompanyRegistrationForm `json:"form"`
	PlanID string                  `json:"planId"`
}

// StartRegistrationResponse is returned once the checkout session exists.
type StartRegistrationResponse struct {
	CheckoutSessionID string `json:"checkoutSessionId"`
	CheckoutURL       string `json:"checkoutUrl"`
	Plan              Plan   `json:"plan"`
}

// StagedRegistration is what temp_company_registration holds between the
// form step and the payment confirmation.
type StagedRegistration struct {
	Form              CompanyRegistrationForm `json:"form"`
	PasswordHash      string                  `json:"passwordHash"`
	Plan              Plan                    `json:"plan"`
	CheckoutSessionID string                  `json:"checkoutSessionId"`
	StagedAt          time.Time               `json:"stagedAt"`
}

// PaymentConfirmation is delivered by the payment collaborator on success.
type PaymentConfirmation struct {
	CheckoutSessionID string `json:"checkoutSessionId"`
	Status            string `json:"status"`
}

// PaymentStatusPaid is the only confirmation status that creates records.
const PaymentStatusPaid = "paid"

// RegistrationResult is returned by POST /v1/registrations/company/confirm.
type RegistrationResult struct {
	UserID  string  `json:"userId"`
	User    User    `json:"user"`
	Company Company `json:"company"`
}

// InfluencerSignupForm is the body for POST /v1/registrations/influencer.
type InfluencerSignupForm struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Instagram string `json:"instagram"`
	Password  string `json:"password"`
}

// Validate rejects a signup form with a missing or malformed field.
func (f *InfluencerSignupForm) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return &ErrValidation{Field: "name", Message: "is required"}
	}
	if err := validateEmail("email", f.Email); err != nil {
		return err
	}
	if strings.TrimSpace(f.Instagram) == "" {
		return &ErrValidation{Field: "instagram", Message: "is required"}
	}
	if len(f.Password) < minPasswordLength {
		return &ErrValidation{Field: "password", Message: "must have at least 6 characters"}
	}
	return nil
}

// CheckoutSession is the collaborator's reference for a created checkout.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ============================================================
// Plans
// ============================================================

// Plan is a subscription plan a company pays for at registration.
type Plan struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PriceCents  int64  `json:"priceCents"`
	Currency    string `json:"currency"`
	Interval    string `json:"interval"`
	Description string `json:"description,omitempty"`
}

var plans = map[string]Plan{
	"basic":        {ID: "basic", Name: "Basic", PriceCents: 3900, Currency: "eur", Interval: "month", Description: "Up to 3 active campaigns"},
	"professional": {ID: "professional", Name: "Professional", PriceCents: 7900, Currency: "eur", Interval: "month", Description: "Up to 10 active campaigns"},
	"premium":      {ID: "premium", Name: "Premium", PriceCents: 14900, Currency: "eur", Interval: "month", Description: "Unlimited campaigns"},
}

// LookupPlan returns the plan with the given id.
func LookupPlan(id string) (Plan, bool) {
	p, ok := plans[strings.ToLower(strings.TrimSpace(id))]
	return p, ok
}
