package domain

import "time"

// ============================================================
// Auth — Request / Response types
// ============================================================

// LoginRequest is the body for POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the body for 200 from POST /v1/auth/login.
type LoginResponse struct {
	AccessToken string   `json:"accessToken"`
	ExpiresIn   int      `json:"expiresIn"`
	SessionID   string   `json:"sessionId"`
	UserID      string   `json:"userId"`
	UserType    UserType `json:"userType"`
	Name        string   `json:"name"`
}

// Session is the explicit identity handed to every operation that needs one.
// It is created by Login and destroyed by Logout.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Role      UserType  `json:"role"`
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// DeviceSession is the snapshot persisted under currentUser so the app can
// resume the last session after a restart.
type DeviceSession struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	SavedAt   time.Time `json:"savedAt"`
}

// RoleView is everything a role needs to render its screens.
type RoleView struct {
	User      User                   `json:"user"`
	Company   *Company               `json:"company,omitempty"`
	Campaigns []Campaign             `json:"campaigns"`
	Requests  []CollaborationRequest `json:"requests"`
}

// CreateAdminRequest is used by the create-admin command.
type CreateAdminRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
