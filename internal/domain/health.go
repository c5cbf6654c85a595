package domain

// ============================================================
// Health API Responses
// ============================================================

// HealthStatus is returned by GET /healthz and GET /readyz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	Error       string `json:"error,omitempty"`
	LastChecked string `json:"lastChecked"`
}

// OperationalCounters is a snapshot of the fault counters, attached to
// diagnostic responses so operators see corruption next to user errors.
type OperationalCounters struct {
	RegistrationsCompleted float64 `json:"registrationsCompleted"`
	RegistrationsFailed    float64 `json:"registrationsFailed"`
	Rollbacks              float64 `json:"rollbacks"`
	AuthFailures           float64 `json:"authFailures"`
	IntegrityViolations    float64 `json:"integrityViolations"`
	StoreErrors            float64 `json:"storeErrors"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
