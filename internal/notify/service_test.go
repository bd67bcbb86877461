package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/korle-health/clinic-platform/internal/booking"
	"github.com/korle-health/clinic-platform/internal/identity"
	"github.com/korle-health/clinic-platform/pkg/logging"
)

type capturedEmail struct {
	to      string
	subject string
	body    string
}

type stubEmailSender struct {
	sent []capturedEmail
	err  error
}

func (s *stubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, capturedEmail{to: msg.To, subject: msg.Subject, body: msg.Body})
	return nil
}

type stubWhatsAppSender struct {
	sent []string
	err  error
}

func (s *stubWhatsAppSender) SendWhatsApp(_ context.Context, phone, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, phone)
	return nil
}

type stubUsers struct {
	user *identity.User
	err  error
}

func (s *stubUsers) GetByID(context.Context, string) (*identity.User, error) {
	return s.user, s.err
}

func testAppointment(status booking.Status) *booking.Appointment {
	return &booking.Appointment{
		ID:            uuid.New(),
		UserID:        "u-1",
		BranchID:      "accra-central",
		ScheduledAt:   time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC),
		TreatmentType: "dental_cleaning",
		Status:        status,
	}
}

func TestBookingCreatedSendsBothChannels(t *testing.T) {
	email := &stubEmailSender{}
	whatsapp := &stubWhatsAppSender{}
	users := &stubUsers{user: &identity.User{ID: "u-1", Name: "Ama", Email: "ama@example.com", Phone: "+233201234567"}}
	svc := NewService(email, whatsapp, users, logging.New("error"))

	svc.BookingCreated(context.Background(), testAppointment(booking.StatusPending))

	if len(email.sent) != 1 {
		t.Fatalf("emails = %d, want 1", len(email.sent))
	}
	if email.sent[0].to != "ama@example.com" {
		t.Fatalf("to = %q", email.sent[0].to)
	}
	if !strings.Contains(email.sent[0].body, "Ama") || !strings.Contains(email.sent[0].body, "dental_cleaning") {
		t.Fatalf("body = %q", email.sent[0].body)
	}
	if len(whatsapp.sent) != 1 || whatsapp.sent[0] != "+233201234567" {
		t.Fatalf("whatsapp = %v", whatsapp.sent)
	}
}

func TestBookingStatusChangedSkipsWhenUnchanged(t *testing.T) {
	email := &stubEmailSender{}
	users := &stubUsers{user: &identity.User{ID: "u-1", Email: "ama@example.com"}}
	svc := NewService(email, nil, users, logging.New("error"))

	appt := testAppointment(booking.StatusConfirmed)
	svc.BookingStatusChanged(context.Background(), appt, booking.StatusConfirmed)

	if len(email.sent) != 0 {
		t.Fatalf("emails = %d, unchanged status must not notify", len(email.sent))
	}
}

func TestBookingStatusChangedSubjectPerTransition(t *testing.T) {
	cases := []struct {
		status      booking.Status
		wantSubject string
	}{
		{booking.StatusConfirmed, "confirmed"},
		{booking.StatusCancelled, "cancelled"},
		{booking.StatusCompleted, "Thank you"},
		{booking.StatusPending, "updated"},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			email := &stubEmailSender{}
			users := &stubUsers{user: &identity.User{ID: "u-1", Email: "ama@example.com"}}
			svc := NewService(email, nil, users, logging.New("error"))

			appt := testAppointment(tc.status)
			previous := booking.StatusConfirmed
			if tc.status == booking.StatusConfirmed {
				previous = booking.StatusPending
			}
			svc.BookingStatusChanged(context.Background(), appt, previous)

			if len(email.sent) != 1 {
				t.Fatalf("emails = %d, want 1", len(email.sent))
			}
			if !strings.Contains(email.sent[0].subject, tc.wantSubject) {
				t.Fatalf("subject = %q, want mention of %q", email.sent[0].subject, tc.wantSubject)
			}
		})
	}
}

func TestNotificationsSkipMissingContactDetails(t *testing.T) {
	email := &stubEmailSender{}
	whatsapp := &stubWhatsAppSender{}
	users := &stubUsers{user: &identity.User{ID: "u-1"}} // no email, no phone
	svc := NewService(email, whatsapp, users, logging.New("error"))

	svc.BookingCreated(context.Background(), testAppointment(booking.StatusPending))

	if len(email.sent) != 0 || len(whatsapp.sent) != 0 {
		t.Fatal("nothing should be sent without contact details")
	}
}

func TestNotificationsSurviveLookupFailure(t *testing.T) {
	email := &stubEmailSender{}
	users := &stubUsers{err: errors.New("db down")}
	svc := NewService(email, nil, users, logging.New("error"))

	// Must not panic or send; the booking flow never sees this failure.
	svc.BookingCreated(context.Background(), testAppointment(booking.StatusPending))

	if len(email.sent) != 0 {
		t.Fatalf("emails = %d, want 0", len(email.sent))
	}
}

func TestEmailFailureStillSendsWhatsApp(t *testing.T) {
	email := &stubEmailSender{err: errors.New("sendgrid 500")}
	whatsapp := &stubWhatsAppSender{}
	users := &stubUsers{user: &identity.User{ID: "u-1", Email: "ama@example.com", Phone: "+233201234567"}}
	svc := NewService(email, whatsapp, users, logging.New("error"))

	svc.BookingCreated(context.Background(), testAppointment(booking.StatusPending))

	if len(whatsapp.sent) != 1 {
		t.Fatalf("whatsapp = %v, a failed email must not block the other channel", whatsapp.sent)
	}
}
