package notify

import (
	"context"
	"fmt"

	"github.com/korle-health/clinic-platform/internal/booking"
	"github.com/korle-health/clinic-platform/internal/identity"
	"github.com/korle-health/clinic-platform/pkg/logging"
)

// UserLookup resolves patient contact details.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*identity.User, error)
}

// Service sends booking notifications to patients over email and WhatsApp.
// Everything here is best effort: a notification failure never affects the
// booking itself.
type Service struct {
	email    EmailSender
	whatsapp WhatsAppSender
	users    UserLookup
	logger   *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, whatsapp WhatsAppSender, users UserLookup, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:    email,
		whatsapp: whatsapp,
		users:    users,
		logger:   logger,
	}
}

// BookingCreated notifies the patient their appointment was received.
func (s *Service) BookingCreated(ctx context.Context, a *booking.Appointment) {
	user := s.lookup(ctx, a.UserID)
	when := a.ScheduledAt.Format("Monday, 2 January 2006 at 3:04 PM")
	subject := "Your appointment request was received"
	body := fmt.Sprintf(
		"Hello %s,\n\nWe received your %s appointment for %s. We will confirm it shortly.\n\nKorle Health",
		displayName(user), a.TreatmentType, when,
	)
	s.send(ctx, user, subject, body)
}

// BookingStatusChanged notifies the patient of a lifecycle transition.
func (s *Service) BookingStatusChanged(ctx context.Context, a *booking.Appointment, previous booking.Status) {
	if a.Status == previous {
		return
	}
	user := s.lookup(ctx, a.UserID)
	when := a.ScheduledAt.Format("Monday, 2 January 2006 at 3:04 PM")

	var subject, line string
	switch a.Status {
	case booking.StatusConfirmed:
		subject = "Your appointment is confirmed"
		line = fmt.Sprintf("Your %s appointment on %s is confirmed.", a.TreatmentType, when)
	case booking.StatusCancelled:
		subject = "Your appointment was cancelled"
		line = fmt.Sprintf("Your %s appointment on %s has been cancelled.", a.TreatmentType, when)
	case booking.StatusCompleted:
		subject = "Thank you for your visit"
		line = "Thank you for visiting Korle Health. We hope to see you again."
	default:
		subject = "Your appointment was updated"
		line = fmt.Sprintf("Your %s appointment on %s needs re-confirmation.", a.TreatmentType, when)
	}

	body := fmt.Sprintf("Hello %s,\n\n%s\n\nKorle Health", displayName(user), line)
	s.send(ctx, user, subject, body)
}

func (s *Service) lookup(ctx context.Context, userID string) *identity.User {
	if s.users == nil {
		return nil
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.Warn("notification contact lookup failed", "error", err, "user_id", userID)
		return nil
	}
	return user
}

func (s *Service) send(ctx context.Context, user *identity.User, subject, body string) {
	if user == nil {
		s.logger.Warn("notification skipped, no contact details")
		return
	}
	if s.email != nil && user.Email != "" {
		if err := s.email.Send(ctx, EmailMessage{
			To:      user.Email,
			ToName:  user.Name,
			Subject: subject,
			Body:    body,
		}); err != nil {
			s.logger.Error("email notification failed", "error", err, "user_id", user.ID)
		}
	}
	if s.whatsapp != nil && user.Phone != "" {
		if err := s.whatsapp.SendWhatsApp(ctx, user.Phone, body); err != nil {
			s.logger.Error("whatsapp notification failed", "error", err, "user_id", user.ID)
		}
	}
}

func displayName(user *identity.User) string {
	if user == nil || user.Name == "" {
		return "there"
	}
	return user.Name
}
