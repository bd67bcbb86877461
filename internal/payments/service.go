package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/korle-health/clinic-platform/internal/identity"
	"github.com/korle-health/clinic-platform/internal/observability/metrics"
	"github.com/korle-health/clinic-platform/pkg/logging"
)

var serviceTracer = otel.Tracer("clinic.internal.payments")

var (
	// ErrNotOwner means the payment belongs to a different user.
	ErrNotOwner = errors.New("payments: payment belongs to another user")

	// ErrTooManyAttempts means the velocity limit for this phone was hit.
	ErrTooManyAttempts = errors.New("payments: too many payment attempts, try again later")

	// ErrNotRefundable means the payment is not in a refundable state.
	ErrNotRefundable = errors.New("payments: payment not refundable")
)

// Store is the persistence surface the service needs.
type Store interface {
	Insert(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	FindByProviderRef(ctx context.Context, userID, providerRef string) (*Payment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*Payment, error)
	MarkRefunded(ctx context.Context, id uuid.UUID) (*Payment, error)
}

// UserDirectory repairs the users projection before payment inserts.
type UserDirectory interface {
	EnsureProjection(ctx context.Context, p identity.Principal) (*identity.User, error)
}

// AttemptLimiter guards against rapid repeated payment attempts.
type AttemptLimiter interface {
	CheckPaymentAttempt(ctx context.Context, phone string) (*VelocityResult, error)
}

// Service is the payment record manager: it routes charges through the
// registry, persists the normalized result, and enforces idempotency on the
// (user, provider transaction id) pair.
type Service struct {
	registry *Registry
	store    Store
	users    UserDirectory
	velocity AttemptLimiter
	metrics  *metrics.PaymentMetrics
	logger   *logging.Logger

	defaultCurrency string
}

// NewService constructs the payment service.
func NewService(registry *Registry, store Store, users UserDirectory, logger *logging.Logger) *Service {
	if registry == nil {
		panic("payments: registry required")
	}
	if store == nil {
		panic("payments: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		registry:        registry,
		store:           store,
		users:           users,
		logger:          logger,
		defaultCurrency: "GHS",
	}
}

// WithVelocityChecker enables payment attempt limiting.
func (s *Service) WithVelocityChecker(v AttemptLimiter) *Service {
	s.velocity = v
	return s
}

// WithMetrics enables prometheus instrumentation.
func (s *Service) WithMetrics(m *metrics.PaymentMetrics) *Service {
	s.metrics = m
	return s
}

// WithDefaultCurrency overrides the deployment currency.
func (s *Service) WithDefaultCurrency(code string) *Service {
	if code != "" {
		s.defaultCurrency = code
	}
	return s
}

// InitiateRequest is a validated payment initiation.
type InitiateRequest struct {
	AmountPesewas int64
	Currency      string
	Method        Method
	Provider      ProviderName // optional routing override
	Email         string
	Name          string
	PhoneNumber   string
	BankName      string
	AccountNumber string
	BankNotes     string
	Metadata      map[string]string
}

// InitiateResult carries the persisted payment plus redirect/display hints.
type InitiateResult struct {
	Payment     *Payment
	PaymentURL  string
	DisplayText string
	Duplicate   bool
}

// Initiate charges the booking fee through the resolved provider and
// persists the payment record. Retried requests that resolve to the same
// provider transaction return the existing row unchanged.
func (s *Service) Initiate(ctx context.Context, principal identity.Principal, req InitiateRequest) (*InitiateResult, error) {
	ctx, span := serviceTracer.Start(ctx, "payments.initiate")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.payment_method", string(req.Method)),
		attribute.Int64("clinic.amount_pesewas", req.AmountPesewas),
	)

	// Defense in depth: the handler already screened the raw body, but a
	// metadata bag can smuggle card fields past schema validation.
	if field := RawCardMetadataField(req.Metadata); field != "" {
		return nil, &RejectedInputError{Field: field}
	}
	if req.AmountPesewas <= 0 {
		return nil, &RejectedInputError{Field: "amount"}
	}
	if req.Currency == "" {
		req.Currency = s.defaultCurrency
	}

	if s.velocity != nil && req.PhoneNumber != "" {
		result, err := s.velocity.CheckPaymentAttempt(ctx, req.PhoneNumber)
		if err != nil {
			// Velocity is advisory; a degraded redis never blocks payments.
			s.logger.Warn("velocity check unavailable", "error", err)
		} else if result != nil && !result.Allowed {
			s.logger.Warn("payment attempt velocity exceeded", "phone", req.PhoneNumber, "count", result.CurrentCount)
			return nil, ErrTooManyAttempts
		}
	}

	// Repair the users projection before any insert references it.
	if s.users != nil {
		if _, err := s.users.EnsureProjection(ctx, principal); err != nil {
			return nil, fmt.Errorf("payments: ensure user projection: %w", err)
		}
	}

	provider, charge, err := s.registry.ProcessPayment(ctx, req.Method, req.Provider, ChargeRequest{
		UserID:        principal.ID,
		AmountPesewas: req.AmountPesewas,
		Currency:      req.Currency,
		Method:        req.Method,
		Email:         firstNonEmpty(req.Email, principal.Email),
		Name:          firstNonEmpty(req.Name, principal.Name),
		PhoneNumber:   firstNonEmpty(req.PhoneNumber, principal.Phone),
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		BankNotes:     req.BankNotes,
		Metadata:      req.Metadata,
	})
	if err != nil {
		s.observeInitiated(provider, req.Method, "error")
		return nil, err
	}

	// Idempotency: a client retry after a timed-out-but-successful request
	// resolves to the same provider transaction id.
	if charge.ProviderRef != "" {
		existing, err := s.store.FindByProviderRef(ctx, principal.ID, charge.ProviderRef)
		if err == nil {
			s.logger.Info("duplicate payment submission deduplicated",
				"payment_id", existing.ID, "provider_ref", charge.ProviderRef)
			return &InitiateResult{
				Payment:     existing,
				PaymentURL:  existing.Metadata["payment_url"],
				DisplayText: existing.Metadata["display_text"],
				Duplicate:   true,
			}, nil
		}
		if !errors.Is(err, ErrPaymentNotFound) {
			return nil, err
		}
	}

	payment := &Payment{
		ID:            uuid.New(),
		UserID:        principal.ID,
		AmountPesewas: req.AmountPesewas,
		Currency:      req.Currency,
		Method:        req.Method,
		Provider:      provider,
		Status:        charge.Status,
		ProviderRef:   charge.ProviderRef,
		Metadata:      buildMetadata(req, charge),
	}
	if err := s.store.Insert(ctx, payment); err != nil {
		// Two concurrent submissions can both miss the lookup above; the
		// unique index on (user, provider ref) decides the winner. The loser
		// re-reads and returns the winner's row instead of an error.
		if errors.Is(err, ErrDuplicateProviderRef) && charge.ProviderRef != "" {
			existing, findErr := s.store.FindByProviderRef(ctx, principal.ID, charge.ProviderRef)
			if findErr != nil {
				return nil, fmt.Errorf("payments: resolve duplicate submission: %w", findErr)
			}
			s.logger.Info("concurrent duplicate payment submission deduplicated",
				"payment_id", existing.ID, "provider_ref", charge.ProviderRef)
			return &InitiateResult{
				Payment:     existing,
				PaymentURL:  existing.Metadata["payment_url"],
				DisplayText: existing.Metadata["display_text"],
				Duplicate:   true,
			}, nil
		}
		return nil, err
	}

	s.observeInitiated(provider, req.Method, string(charge.Status))
	s.logger.Info("payment initiated",
		"payment_id", payment.ID,
		"provider", provider,
		"method", req.Method,
		"status", payment.Status,
	)

	return &InitiateResult{
		Payment:     payment,
		PaymentURL:  charge.PaymentURL,
		DisplayText: charge.DisplayText,
	}, nil
}

// GetForOwner loads a payment the principal is allowed to see.
func (s *Service) GetForOwner(ctx context.Context, principal identity.Principal, id uuid.UUID) (*Payment, error) {
	payment, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.UserID != principal.ID && !principal.IsAdmin() {
		return nil, ErrNotOwner
	}
	return payment, nil
}

// Verify refreshes the settlement state from the provider and records any
// transition. Already-terminal payments are returned unchanged.
func (s *Service) Verify(ctx context.Context, principal identity.Principal, id uuid.UUID) (*Payment, error) {
	ctx, span := serviceTracer.Start(ctx, "payments.verify")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.payment_id", id.String()))

	payment, err := s.GetForOwner(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	if payment.Status.IsTerminal() || payment.ProviderRef == "" {
		return payment, nil
	}

	charge, err := s.registry.VerifyPayment(ctx, payment.Provider, payment.ProviderRef)
	if err != nil {
		return nil, err
	}
	if charge.Status == payment.Status {
		return payment, nil
	}

	updated, err := s.store.UpdateStatus(ctx, payment.ID, charge.Status)
	if err != nil {
		return nil, err
	}
	if updated.Status.IsTerminal() {
		s.observeSettled(updated.Provider, string(updated.Status))
	}
	s.logger.Info("payment settlement recorded",
		"payment_id", updated.ID, "status", updated.Status, "provider", updated.Provider)
	return updated, nil
}

// Refund reverses a completed payment through its provider. Admin flow only;
// role enforcement happens at the handler.
func (s *Service) Refund(ctx context.Context, id uuid.UUID) (*Payment, error) {
	ctx, span := serviceTracer.Start(ctx, "payments.refund")
	defer span.End()

	payment, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.Status != StatusCompleted {
		return nil, ErrNotRefundable
	}

	if _, err := s.registry.RefundPayment(ctx, payment.Provider, payment.ProviderRef, payment.AmountPesewas); err != nil {
		return nil, err
	}

	refunded, err := s.store.MarkRefunded(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	s.observeSettled(refunded.Provider, string(StatusRefunded))
	s.logger.Info("payment refunded", "payment_id", refunded.ID, "provider", refunded.Provider)
	return refunded, nil
}

func (s *Service) observeInitiated(provider ProviderName, method Method, status string) {
	if s.metrics != nil {
		s.metrics.ObserveInitiated(string(provider), string(method), status)
	}
}

func (s *Service) observeSettled(provider ProviderName, status string) {
	if s.metrics != nil {
		s.metrics.ObserveSettled(string(provider), status)
	}
}

func buildMetadata(req InitiateRequest, charge *ChargeResult) map[string]string {
	meta := make(map[string]string)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	for k, v := range charge.Metadata {
		meta[k] = v
	}
	setIfNotEmpty(meta, "email", req.Email)
	setIfNotEmpty(meta, "name", req.Name)
	setIfNotEmpty(meta, "phone", req.PhoneNumber)
	setIfNotEmpty(meta, "bank_name", req.BankName)
	setIfNotEmpty(meta, "account_number", req.AccountNumber)
	setIfNotEmpty(meta, "bank_notes", req.BankNotes)
	setIfNotEmpty(meta, "payment_url", charge.PaymentURL)
	setIfNotEmpty(meta, "display_text", charge.DisplayText)
	return meta
}

func setIfNotEmpty(meta map[string]string, key, value string) {
	if value != "" {
		meta[key] = value
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
