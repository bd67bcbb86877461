package booking

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/korle-health/clinic-platform/internal/identity"
	"github.com/korle-health/clinic-platform/internal/payments"
	"github.com/korle-health/clinic-platform/pkg/logging"
)

// Handler serves the booking endpoints.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates the booking handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

type createBookingRequest struct {
	BranchID        string `json:"branch_id"`
	AppointmentDate string `json:"appointment_date"`
	TreatmentType   string `json:"treatment_type"`
	Notes           string `json:"notes,omitempty"`
	PaymentID       string `json:"payment_id"`
}

type appointmentView struct {
	ID            string    `json:"id"`
	BranchID      string    `json:"branch_id"`
	ScheduledAt   time.Time `json:"appointment_date"`
	TreatmentType string    `json:"treatment_type"`
	Notes         string    `json:"notes,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreateBooking handles POST /bookings.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid request body", nil)
		return
	}
	if req.BranchID == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "branch_id is required", nil)
		return
	}
	scheduledAt, err := time.Parse(time.RFC3339, req.AppointmentDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "appointment_date must be ISO-8601", nil)
		return
	}
	if req.TreatmentType == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "treatment_type is required", nil)
		return
	}
	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "payment_id is required", nil)
		return
	}

	appt, err := h.service.Book(r.Context(), principal, BookRequest{
		BranchID:      req.BranchID,
		ScheduledAt:   scheduledAt,
		TreatmentType: req.TreatmentType,
		Notes:         req.Notes,
		PaymentID:     paymentID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"appointment": toView(appt)})
}

// GetBooking handles GET /bookings/{id}.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid appointment id", nil)
		return
	}
	appt, err := h.service.GetForOwner(r.Context(), principal, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointment": toView(appt)})
}

// ListBookings handles GET /bookings.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	appts, err := h.service.ListForUser(r.Context(), principal)
	if err != nil {
		h.respondError(w, err)
		return
	}
	views := make([]appointmentView, 0, len(appts))
	for i := range appts {
		views = append(views, toView(&appts[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": views})
}

type updateBookingRequest struct {
	Action          string `json:"action"`
	Status          string `json:"status,omitempty"`
	Note            string `json:"note,omitempty"`
	AppointmentDate string `json:"appointment_date,omitempty"`
}

// UpdateBooking handles PATCH /bookings/{id} with reschedule, cancel and
// update_status actions.
func (h *Handler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid appointment id", nil)
		return
	}

	var req updateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid request body", nil)
		return
	}

	var appt *Appointment
	switch req.Action {
	case "reschedule":
		newTime, err := time.Parse(time.RFC3339, req.AppointmentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "appointment_date must be ISO-8601", nil)
			return
		}
		appt, err = h.service.Reschedule(r.Context(), principal, id, newTime)
		if err != nil {
			h.respondError(w, err)
			return
		}
	case "cancel":
		appt, err = h.service.Cancel(r.Context(), principal, id)
		if err != nil {
			h.respondError(w, err)
			return
		}
	case "update_status":
		appt, err = h.service.UpdateStatus(r.Context(), principal, id, Status(req.Status), req.Note)
		if err != nil {
			h.respondError(w, err)
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "invalid_input", "action must be reschedule, cancel or update_status", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"appointment": toView(appt)})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var prereq *PrerequisitesError
	var linkage *LinkageError

	switch {
	case errors.As(err, &prereq):
		writeError(w, http.StatusForbidden, "prerequisites_not_met", "booking prerequisites not met", prereq.Reasons)
	case errors.Is(err, ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "that time slot is no longer available at this branch", nil)
	case errors.Is(err, ErrPaymentRequired):
		writeError(w, http.StatusBadRequest, "invalid_input", "payment_id is required", nil)
	case errors.Is(err, payments.ErrPaymentNotFound):
		writeError(w, http.StatusBadRequest, "payment_not_found", "payment not found", nil)
	case errors.Is(err, ErrPaymentNotCompleted):
		writeError(w, http.StatusBadRequest, "payment_not_completed", "payment has not completed yet", nil)
	case errors.Is(err, ErrWrongAmount):
		writeError(w, http.StatusBadRequest, "wrong_amount", "payment amount does not match the booking fee", nil)
	case errors.Is(err, ErrPaymentAlreadyUsed):
		writeError(w, http.StatusConflict, "payment_already_used", "payment is already attached to an appointment", nil)
	case errors.Is(err, ErrNotOwner):
		writeError(w, http.StatusForbidden, "forbidden", "you do not have access to this resource", nil)
	case errors.Is(err, ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "not_found", "appointment not found", nil)
	case errors.Is(err, ErrPastTime):
		writeError(w, http.StatusBadRequest, "invalid_input", "appointment time must be in the future", nil)
	case errors.As(err, &linkage):
		h.logger.Error("booking linkage failure", "error", err)
		writeError(w, http.StatusInternalServerError, "linkage_failure", "booking could not be completed, your payment was not consumed", nil)
	default:
		h.logger.Error("booking request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "something went wrong, please retry", nil)
	}
}

func toView(a *Appointment) appointmentView {
	return appointmentView{
		ID:            a.ID.String(),
		BranchID:      a.BranchID,
		ScheduledAt:   a.ScheduledAt,
		TreatmentType: a.TreatmentType,
		Notes:         a.Notes,
		Status:        string(a.Status),
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

type errorBody struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Reasons []string `json:"reasons,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string, reasons []string) {
	writeJSON(w, status, errorBody{Error: message, Code: code, Reasons: reasons})
}
