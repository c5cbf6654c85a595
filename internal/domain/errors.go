package domain

import "fmt"

// Error types for consistent error handling across the backend.
// ErrValidation and ErrUnauthorized are user-facing outcomes; ErrPersistence
// and ErrIntegrity are operational faults and are logged as such.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrPaymentNotConfirmed indicates the payment collaborator did not confirm
// the checkout. No records are written when this is returned.
type ErrPaymentNotConfirmed struct {
	Reason     string
	StatusCode int
	Err        error
}

func (e *ErrPaymentNotConfirmed) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("payment not confirmed (status %d): %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("payment not confirmed: %s", e.Reason)
}

func (e *ErrPaymentNotConfirmed) Unwrap() error {
	return e.Err
}

// ErrPersistence indicates the key-value store failed a read or write.
type ErrPersistence struct {
	Op  string
	Key string
	Err error
}

func (e *ErrPersistence) Error() string {
	return fmt.Sprintf("persistence failure [%s %s]: %v", e.Op, e.Key, e.Err)
}

func (e *ErrPersistence) Unwrap() error {
	return e.Err
}

// ErrIntegrity indicates a stored record violates a data invariant. It is
// never coerced on read; a repair must be run deliberately.
type ErrIntegrity struct {
	Kind     IssueKind
	Key      string
	RecordID string
	Detail   string
}

func (e *ErrIntegrity) Error() string {
	return fmt.Sprintf("integrity violation [%s] on %s: %s", e.Kind, e.Key, e.Detail)
}

// ErrRollback indicates a compensating removal failed after a partial write.
// The original failure is kept in Cause.
type ErrRollback struct {
	Keys  []string
	Cause error
	Err   error
}

func (e *ErrRollback) Error() string {
	return fmt.Sprintf("rollback of %v failed: %v (after: %v)", e.Keys, e.Err, e.Cause)
}

func (e *ErrRollback) Unwrap() []error {
	return []error{e.Cause, e.Err}
}

// ErrDuplicate indicates the influencer already applied to the campaign.
type ErrDuplicate struct {
	Key string
}

func (e *ErrDuplicate) Error() string {
	return fmt.Sprintf("duplicate operation: %s", e.Key)
}

// ErrForbidden indicates the user lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates a resource already exists (e.g. duplicate email).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}
