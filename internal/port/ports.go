// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
)

// KVStore is the device-local key-value persistence contract.
// Get reports found=false for a missing key; Remove of a missing key is not
// an error. A Set is not guaranteed durable until the backend has flushed.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Pinger is implemented by stores backed by a remote server.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PaymentGateway creates checkout sessions with the external payment collaborator.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, company *domain.CompanyRegistrationForm, plan domain.Plan) (*domain.CheckoutSession, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	SetWithTTL(key string, value T, ttl time.Duration)
	Delete(key string)
	Len() int
}
