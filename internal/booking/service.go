package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/korle-health/clinic-platform/internal/identity"
	"github.com/korle-health/clinic-platform/internal/observability/metrics"
	"github.com/korle-health/clinic-platform/internal/payments"
	"github.com/korle-health/clinic-platform/pkg/logging"
)

var bookingTracer = otel.Tracer("clinic.internal.booking")

var (
	// ErrSlotUnavailable means another appointment occupies the conflict
	// window at this branch.
	ErrSlotUnavailable = errors.New("booking: slot unavailable")

	// ErrPaymentRequired means the request carried no payment id.
	ErrPaymentRequired = errors.New("booking: payment_id is required")

	// ErrPaymentNotCompleted means the payment has not settled.
	ErrPaymentNotCompleted = errors.New("booking: payment is not completed")

	// ErrWrongAmount means the payment does not equal the booking fee.
	ErrWrongAmount = errors.New("booking: payment amount does not match the booking fee")

	// ErrPaymentAlreadyUsed means the payment is linked to another appointment.
	ErrPaymentAlreadyUsed = errors.New("booking: payment already used for another appointment")

	// ErrNotOwner means the appointment or payment belongs to someone else.
	ErrNotOwner = errors.New("booking: not the owner")

	// ErrPastTime means a reschedule target is not in the future.
	ErrPastTime = errors.New("booking: appointment time must be in the future")
)

// PrerequisitesError carries every failing gate reason so the caller can
// render all of them at once.
type PrerequisitesError struct {
	Reasons []string
}

func (e *PrerequisitesError) Error() string {
	return fmt.Sprintf("booking: prerequisites not met: %v", e.Reasons)
}

// LinkageError is the second half of the two-write commit failing. The
// appointment insert succeeded but the payment link did not; compensation
// has run (or been queued for reconciliation).
type LinkageError struct {
	Err error
}

func (e *LinkageError) Error() string {
	return fmt.Sprintf("booking: payment linkage failed: %v", e.Err)
}

func (e *LinkageError) Unwrap() error { return e.Err }

// PaymentLedger is the payment-side surface the orchestrator needs.
type PaymentLedger interface {
	GetByID(ctx context.Context, id uuid.UUID) (*payments.Payment, error)
	LinkAppointment(ctx context.Context, paymentID, appointmentID uuid.UUID) error
}

// AppointmentStore is the persistence surface the orchestrator needs.
type AppointmentStore interface {
	Insert(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	HasConflict(ctx context.Context, branchID string, t time.Time, window time.Duration) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, note string) (*Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, newTime time.Time) (*Appointment, error)
	ListForUser(ctx context.Context, userID string) ([]Appointment, error)
}

// ReconciliationRecorder durably records commits that could not be unwound.
type ReconciliationRecorder interface {
	Insert(ctx context.Context, userID string, eventType string, payload any) (uuid.UUID, error)
}

// Notifier dispatches patient notifications. Best effort only: failures are
// logged and never roll back a booking.
type Notifier interface {
	BookingCreated(ctx context.Context, a *Appointment)
	BookingStatusChanged(ctx context.Context, a *Appointment, previous Status)
}

// Policy holds the deployment-tunable business rules.
type Policy struct {
	FeePesewas     int64
	ConflictWindow time.Duration
	CancelNotice   time.Duration
}

// DefaultPolicy returns the current deployment values.
func DefaultPolicy() Policy {
	return Policy{
		FeePesewas:     10000,
		ConflictWindow: time.Hour,
		CancelNotice:   24 * time.Hour,
	}
}

// Service is the booking orchestrator. One booking attempt runs the steps
// sequentially: gate, payment validation, conflict check, appointment
// insert, payment link. The two writes span two rows with no shared
// transaction; the compensating delete in Book is the mechanism that keeps
// an appointment from existing without its payment.
type Service struct {
	gate     PrerequisiteGate
	ledger   PaymentLedger
	repo     AppointmentStore
	outbox   ReconciliationRecorder
	notifier Notifier
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	policy   Policy

	compensateAttempts int
	compensateBackoff  time.Duration
}

// NewService constructs the orchestrator.
func NewService(gate PrerequisiteGate, ledger PaymentLedger, repo AppointmentStore, policy Policy, logger *logging.Logger) *Service {
	if gate == nil {
		panic("booking: prerequisite gate required")
	}
	if ledger == nil {
		panic("booking: payment ledger required")
	}
	if repo == nil {
		panic("booking: appointment store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		gate:               gate,
		ledger:             ledger,
		repo:               repo,
		logger:             logger,
		policy:             policy,
		compensateAttempts: 3,
		compensateBackoff:  100 * time.Millisecond,
	}
}

// WithOutbox enables durable reconciliation events.
func (s *Service) WithOutbox(outbox ReconciliationRecorder) *Service {
	s.outbox = outbox
	return s
}

// WithNotifier enables patient notifications.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithMetrics enables prometheus instrumentation.
func (s *Service) WithMetrics(m *metrics.BookingMetrics) *Service {
	s.metrics = m
	return s
}

// BookRequest is a validated booking attempt.
type BookRequest struct {
	BranchID      string
	ScheduledAt   time.Time
	TreatmentType string
	Notes         string
	PaymentID     uuid.UUID
}

// Book runs one booking attempt end to end.
func (s *Service) Book(ctx context.Context, principal identity.Principal, req BookRequest) (*Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.branch_id", req.BranchID),
		attribute.String("clinic.payment_id", req.PaymentID.String()),
	)

	appt, err := s.book(ctx, principal, req)
	if err != nil {
		span.RecordError(err)
		s.observe(outcomeFor(err))
		return nil, err
	}
	s.observe("created")
	return appt, nil
}

func (s *Service) book(ctx context.Context, principal identity.Principal, req BookRequest) (*Appointment, error) {
	// Step 1: prerequisite gate. Always evaluated here regardless of any
	// client-side pre-check.
	decision, err := s.gate.Evaluate(ctx, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("booking: prerequisite gate: %w", err)
	}
	if !decision.CanProceed {
		return nil, &PrerequisitesError{Reasons: decision.Reasons}
	}

	// Step 2: payment validation.
	if req.PaymentID == uuid.Nil {
		return nil, ErrPaymentRequired
	}
	payment, err := s.ledger.GetByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != principal.ID {
		return nil, ErrNotOwner
	}
	if payment.Status != payments.StatusCompleted {
		return nil, ErrPaymentNotCompleted
	}
	if payment.AmountPesewas != s.policy.FeePesewas {
		return nil, ErrWrongAmount
	}
	if payment.Linked() {
		return nil, ErrPaymentAlreadyUsed
	}

	// Step 3: coarse conflict check inside the branch window.
	conflict, err := s.repo.HasConflict(ctx, req.BranchID, req.ScheduledAt, s.policy.ConflictWindow)
	if err != nil {
		return nil, err
	}
	if conflict {
		return nil, ErrSlotUnavailable
	}

	// Step 4: create the appointment.
	appt := &Appointment{
		ID:            uuid.New(),
		UserID:        principal.ID,
		BranchID:      req.BranchID,
		ScheduledAt:   req.ScheduledAt,
		TreatmentType: req.TreatmentType,
		Notes:         req.Notes,
		Status:        StatusPending,
	}
	if err := s.repo.Insert(ctx, appt); err != nil {
		return nil, err
	}

	// Step 5: link the payment. On failure the appointment must not survive.
	if err := s.ledger.LinkAppointment(ctx, payment.ID, appt.ID); err != nil {
		s.compensate(ctx, appt, payment.ID, err)
		if errors.Is(err, payments.ErrLinkConflict) {
			// A concurrent attempt linked this payment first.
			return nil, ErrPaymentAlreadyUsed
		}
		return nil, &LinkageError{Err: err}
	}

	s.logger.Info("booking created",
		"appointment_id", appt.ID,
		"payment_id", payment.ID,
		"branch_id", appt.BranchID,
		"scheduled_at", appt.ScheduledAt,
	)

	// Step 6: notification is not part of the commit.
	s.dispatchCreated(appt)
	return appt, nil
}

// compensate deletes the just-created appointment after a failed link.
// Retried with exponential backoff; if every attempt fails we have an
// orphaned appointment, which is recorded durably and logged as a
// data-integrity alert.
func (s *Service) compensate(ctx context.Context, appt *Appointment, paymentID uuid.UUID, cause error) {
	backoff := s.compensateBackoff
	for attempt := 1; attempt <= s.compensateAttempts; attempt++ {
		if err := s.repo.Delete(ctx, appt.ID); err == nil {
			s.logger.Warn("booking rolled back after linkage failure",
				"appointment_id", appt.ID, "payment_id", paymentID, "cause", cause)
			return
		} else if attempt < s.compensateAttempts {
			s.logger.Warn("compensating delete failed, retrying",
				"appointment_id", appt.ID, "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				attempt = s.compensateAttempts
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveCompensationFailure()
	}
	s.logger.Error("DATA INTEGRITY: compensating delete exhausted, appointment orphaned",
		"appointment_id", appt.ID, "payment_id", paymentID, "cause", cause)
	if s.outbox != nil {
		payload := map[string]string{
			"appointment_id": appt.ID.String(),
			"payment_id":     paymentID.String(),
			"cause":          cause.Error(),
		}
		if _, err := s.outbox.Insert(context.WithoutCancel(ctx), appt.UserID, "booking.reconciliation_needed", payload); err != nil {
			s.logger.Error("failed to record reconciliation event", "error", err, "appointment_id", appt.ID)
		}
	}
}

// GetForOwner loads an appointment the principal may see.
func (s *Service) GetForOwner(ctx context.Context, principal identity.Principal, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.UserID != principal.ID && !principal.IsAdmin() {
		return nil, ErrNotOwner
	}
	return appt, nil
}

// ListForUser returns the principal's appointments.
func (s *Service) ListForUser(ctx context.Context, principal identity.Principal) ([]Appointment, error) {
	return s.repo.ListForUser(ctx, principal.ID)
}

// UpdateStatus is the administrative transition. Any movement among the
// four lifecycle states is allowed; the optional note is appended to the
// existing notes and the patient is notified.
func (s *Service) UpdateStatus(ctx context.Context, principal identity.Principal, id uuid.UUID, status Status, note string) (*Appointment, error) {
	if !principal.IsAdmin() {
		return nil, ErrNotOwner
	}
	if !status.Valid() {
		return nil, fmt.Errorf("booking: invalid status %q", status)
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateStatus(ctx, id, status, note)
	if err != nil {
		return nil, err
	}
	s.logger.Info("appointment status updated",
		"appointment_id", id, "from", current.Status, "to", status, "admin", principal.ID)
	s.dispatchStatusChanged(updated, current.Status)
	return updated, nil
}

// Reschedule is the self-service move. The new time must be strictly in the
// future and the target window free; the appointment drops back to pending
// for re-confirmation.
func (s *Service) Reschedule(ctx context.Context, principal identity.Principal, id uuid.UUID, newTime time.Time) (*Appointment, error) {
	appt, err := s.GetForOwner(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	if !newTime.After(time.Now()) {
		return nil, ErrPastTime
	}
	conflict, err := s.repo.HasConflict(ctx, appt.BranchID, newTime, s.policy.ConflictWindow)
	if err != nil {
		return nil, err
	}
	if conflict {
		return nil, ErrSlotUnavailable
	}

	previous := appt.Status
	updated, err := s.repo.Reschedule(ctx, id, newTime)
	if err != nil {
		return nil, err
	}
	s.logger.Info("appointment rescheduled", "appointment_id", id, "new_time", newTime)
	s.dispatchStatusChanged(updated, previous)
	return updated, nil
}

// Cancel is the self-service cancellation. Cancelling inside the notice
// window is currently permitted outright; it is logged so the front desk
// can follow up.
// TODO: route short-notice cancellations through a review queue once the
// clinic decides the policy (see DESIGN.md).
func (s *Service) Cancel(ctx context.Context, principal identity.Principal, id uuid.UUID) (*Appointment, error) {
	appt, err := s.GetForOwner(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	if time.Until(appt.ScheduledAt) < s.policy.CancelNotice {
		s.logger.Warn("short-notice cancellation",
			"appointment_id", id, "scheduled_at", appt.ScheduledAt, "user_id", principal.ID)
	}

	previous := appt.Status
	updated, err := s.repo.UpdateStatus(ctx, id, StatusCancelled, "")
	if err != nil {
		return nil, err
	}
	s.dispatchStatusChanged(updated, previous)
	return updated, nil
}

func (s *Service) dispatchCreated(appt *Appointment) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.notifier.BookingCreated(ctx, appt)
	}()
}

func (s *Service) dispatchStatusChanged(appt *Appointment, previous Status) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.notifier.BookingStatusChanged(ctx, appt, previous)
	}()
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveAttempt(outcome)
	}
}

func outcomeFor(err error) string {
	var prereq *PrerequisitesError
	var linkage *LinkageError
	switch {
	case errors.As(err, &prereq):
		return "prerequisites_not_met"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrPaymentNotCompleted), errors.Is(err, ErrWrongAmount),
		errors.Is(err, ErrPaymentAlreadyUsed), errors.Is(err, ErrPaymentRequired):
		return "payment_invalid"
	case errors.As(err, &linkage):
		return "linkage_failed"
	default:
		return "error"
	}
}
