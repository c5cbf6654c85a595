package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/observability"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("client")

const checkoutPath = "/api/stripe/create-checkout-session"

// PaymentConfig holds the payment collaborator endpoints.
type PaymentConfig struct {
	BaseURL    string
	SuccessURL string
	CancelURL  string
	Timeout    time.Duration
}

// PaymentClient creates checkout sessions with the payment collaborator.
type PaymentClient struct {
	httpClient *http.Client
	cfg        PaymentConfig
	cb         *gobreaker.CircuitBreaker
	retry      resilience.Config
	bulkhead   *resilience.Bulkhead
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewPaymentClient creates a new PaymentClient.
func NewPaymentClient(
	httpClient *http.Client,
	cfg PaymentConfig,
	cb *gobreaker.CircuitBreaker,
	retry resilience.Config,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *PaymentClient {
	return &PaymentClient{
		httpClient: httpClient,
		cfg:        cfg,
		cb:         cb,
		retry:      retry,
		bulkhead:   resilience.NewBulkhead(retry.MaxConcurrency),
		metrics:    metrics,
		logger:     logger,
	}
}

type checkoutCompany struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	CIFNIF         string `json:"cifNif"`
	Representative string `json:"representative"`
	City           string `json:"city,omitempty"`
}

type checkoutPlan struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
	Interval string `json:"interval"`
}

type checkoutRequest struct {
	Company    checkoutCompany   `json:"company"`
	Plan       checkoutPlan      `json:"plan"`
	SuccessURL string            `json:"success_url"`
	CancelURL  string            `json:"cancel_url"`
	Metadata   map[string]string `json:"metadata"`
}

type checkoutResponse struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type checkoutError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreateCheckoutSession asks the collaborator for a checkout session.
// Any outcome other than a 2xx with a session id is ErrPaymentNotConfirmed.
// 4xx answers are final; transport errors and 5xx are retried.
func (c *PaymentClient) CreateCheckoutSession(ctx context.Context, form *domain.CompanyRegistrationForm, plan domain.Plan) (*domain.CheckoutSession, error) {
	ctx, span := tracer.Start(ctx, "PaymentClient.CreateCheckoutSession")
	defer span.End()
	span.SetAttributes(attribute.String("plan.id", plan.ID))

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	if err := c.bulkhead.Acquire(ctx); err != nil {
		return nil, c.notConfirmed("busy", err)
	}
	defer c.bulkhead.Release()

	body, err := json.Marshal(checkoutRequest{
		Company: checkoutCompany{
			Name:           form.CompanyName,
			Email:          domain.NormalizeEmail(form.CompanyEmail),
			CIFNIF:         form.CIFNIF,
			Representative: form.RepresentativeName,
			City:           form.City,
		},
		Plan: checkoutPlan{
			ID:       plan.ID,
			Name:     plan.Name,
			Price:    plan.PriceCents,
			Currency: plan.Currency,
			Interval: plan.Interval,
		},
		SuccessURL: c.cfg.SuccessURL,
		CancelURL:  c.cfg.CancelURL,
		Metadata: map[string]string{
			"companyName":  form.CompanyName,
			"companyEmail": domain.NormalizeEmail(form.CompanyEmail),
			"planId":       plan.ID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode checkout request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + checkoutPath

	result, err := c.cb.Execute(func() (any, error) {
		var session *domain.CheckoutSession
		innerErr := resilience.RetryWithBackoff(ctx, c.retry, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return resilience.Permanent(err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 500 {
				return fmt.Errorf("payment API returned status %d", resp.StatusCode)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return resilience.Permanent(&domain.ErrPaymentNotConfirmed{
					Reason:     readReason(resp.Body),
					StatusCode: resp.StatusCode,
				})
			}

			var out checkoutResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return resilience.Permanent(&domain.ErrPaymentNotConfirmed{Reason: "malformed checkout response", StatusCode: resp.StatusCode, Err: err})
			}
			id := out.ID
			if id == "" {
				id = out.SessionID
			}
			if id == "" {
				return resilience.Permanent(&domain.ErrPaymentNotConfirmed{Reason: "checkout response without session id", StatusCode: resp.StatusCode})
			}
			session = &domain.CheckoutSession{ID: id, URL: out.URL}
			return nil
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return session, nil
	})
	if err != nil {
		var declined *domain.ErrPaymentNotConfirmed
		if errors.As(err, &declined) {
			c.metrics.IncrPaymentError("declined")
			c.logger.Warn("payment: checkout declined",
				zap.Int("status", declined.StatusCode),
				zap.String("reason", declined.Reason),
			)
			return nil, declined
		}
		switch {
		case resilience.IsBreakerOpen(err):
			return nil, c.notConfirmed("circuit_open", &domain.ErrCircuitOpen{Service: "payment"})
		case isTimeout(err):
			return nil, c.notConfirmed("timeout", &domain.ErrTimeout{Operation: "create checkout session"})
		default:
			return nil, c.notConfirmed("unavailable", &domain.ErrExternalService{Service: "payment", Err: err})
		}
	}

	session := result.(*domain.CheckoutSession)
	span.SetAttributes(attribute.String("checkout.session_id", session.ID))
	return session, nil
}

func (c *PaymentClient) notConfirmed(reason string, err error) error {
	c.metrics.IncrPaymentError(reason)
	c.logger.Error("payment: checkout not confirmed", zap.String("reason", reason), zap.Error(err))
	return &domain.ErrPaymentNotConfirmed{Reason: reason, Err: err}
}

// readReason extracts a short reason from an error body; the body itself is
// only used for logs.
func readReason(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var e checkoutError
	if err := json.Unmarshal(raw, &e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	return "payment rejected"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
