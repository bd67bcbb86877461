package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/korle-health/clinic-platform/internal/identity"
	"github.com/korle-health/clinic-platform/internal/observability/metrics"
	"github.com/korle-health/clinic-platform/pkg/logging"
)

// Handler serves the payment endpoints.
type Handler struct {
	service *Service
	poller  *Poller
	metrics *metrics.PaymentMetrics
	logger  *logging.Logger
}

// NewHandler creates the payments handler.
func NewHandler(service *Service, poller *Poller, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, poller: poller, logger: logger}
}

// WithMetrics enables poll duration instrumentation.
func (h *Handler) WithMetrics(m *metrics.PaymentMetrics) *Handler {
	h.metrics = m
	return h
}

type createPaymentRequest struct {
	AmountPesewas int64             `json:"amount"`
	Currency      string            `json:"currency,omitempty"`
	PaymentMethod string            `json:"payment_method"`
	Provider      string            `json:"provider,omitempty"`
	Email         string            `json:"email,omitempty"`
	Name          string            `json:"name,omitempty"`
	PhoneNumber   string            `json:"phone_number,omitempty"`
	BankName      string            `json:"bank_name,omitempty"`
	AccountNumber string            `json:"account_number,omitempty"`
	BankNotes     string            `json:"bank_notes,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type paymentView struct {
	ID            string            `json:"id"`
	AmountPesewas int64             `json:"amount"`
	Currency      string            `json:"currency"`
	PaymentMethod string            `json:"payment_method"`
	Provider      string            `json:"provider"`
	Status        string            `json:"status"`
	ProviderRef   string            `json:"provider_transaction_id,omitempty"`
	AppointmentID string            `json:"appointment_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type createPaymentResponse struct {
	Payment     paymentView `json:"payment"`
	PaymentURL  string      `json:"payment_url,omitempty"`
	DisplayText string      `json:"display_text,omitempty"`
	Duplicate   bool        `json:"duplicate,omitempty"`
}

// CreatePayment initiates a booking-fee charge.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}

	// Decode into a raw map first: requests carrying card PAN/expiry/PIN
	// fields are rejected before any further processing or provider call.
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid request body", nil)
		return
	}
	if field := RawCardField(raw); field != "" {
		h.logger.Warn("raw card field rejected", "field", field, "user_id", principal.ID)
		writeError(w, http.StatusBadRequest, "invalid_input",
			"card details are never accepted here; card payments use the secure hosted page",
			[]string{"field " + field + " is not accepted"})
		return
	}

	data, err := json.Marshal(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid request body", nil)
		return
	}
	var req createPaymentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid request body", nil)
		return
	}
	if req.PaymentMethod == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "payment_method is required", nil)
		return
	}

	result, err := h.service.Initiate(r.Context(), principal, InitiateRequest{
		AmountPesewas: req.AmountPesewas,
		Currency:      req.Currency,
		Method:        Method(req.PaymentMethod),
		Provider:      ProviderName(req.Provider),
		Email:         req.Email,
		Name:          req.Name,
		PhoneNumber:   req.PhoneNumber,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		BankNotes:     req.BankNotes,
		Metadata:      req.Metadata,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createPaymentResponse{
		Payment:     toView(result.Payment),
		PaymentURL:  result.PaymentURL,
		DisplayText: result.DisplayText,
		Duplicate:   result.Duplicate,
	})
}

// GetPayment returns the current payment row; clients poll this for
// asynchronous rails.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "paymentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid payment id", nil)
		return
	}

	payment, err := h.service.Verify(r.Context(), principal, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment": toView(payment)})
}

type awaitResponse struct {
	Outcome string      `json:"outcome"`
	Payment paymentView `json:"payment"`
}

// AwaitSettlement long-polls the provider until the payment reaches a
// terminal state or the attempt budget is exhausted.
func (h *Handler) AwaitSettlement(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "paymentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid payment id", nil)
		return
	}
	if _, err := h.service.GetForOwner(r.Context(), principal, id); err != nil {
		h.respondError(w, err)
		return
	}

	start := time.Now()
	outcome, err := h.poller.Await(r.Context(), func(ctx context.Context) (Status, error) {
		payment, err := h.service.Verify(ctx, principal, id)
		if err != nil {
			return "", err
		}
		return payment.Status, nil
	})
	if h.metrics != nil {
		h.metrics.ObservePollDuration(time.Since(start).Seconds())
	}
	if err != nil && outcome != PollTimedOut {
		h.respondError(w, err)
		return
	}

	payment, err := h.service.GetForOwner(r.Context(), principal, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, awaitResponse{Outcome: string(outcome), Payment: toView(payment)})
}

// RefundPayment reverses a completed payment. Admin only.
func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	if !principal.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden", "admin role required", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "paymentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid payment id", nil)
		return
	}

	payment, err := h.service.Refund(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment": toView(payment)})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var rejected *RejectedInputError
	var unsupported *UnsupportedMethodError
	var declined *ProviderRejectedError

	switch {
	case errors.As(err, &rejected):
		writeError(w, http.StatusBadRequest, "invalid_input", rejected.Error(), nil)
	case errors.As(err, &unsupported):
		writeError(w, http.StatusBadRequest, "unsupported_method", unsupported.Error(), nil)
	case errors.Is(err, ErrProviderNotRegistered):
		writeError(w, http.StatusBadRequest, "invalid_input", "unknown payment provider", nil)
	case errors.Is(err, ErrPaymentNotFound):
		writeError(w, http.StatusNotFound, "not_found", "payment not found", nil)
	case errors.Is(err, ErrNotOwner):
		writeError(w, http.StatusForbidden, "forbidden", "payment belongs to another user", nil)
	case errors.Is(err, ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, "too_many_attempts", "too many payment attempts, try again later", nil)
	case errors.Is(err, ErrAccountNotProvisioned):
		writeError(w, http.StatusConflict, "account_not_provisioned", "account not fully provisioned, retry shortly", nil)
	case errors.Is(err, ErrNotRefundable):
		writeError(w, http.StatusConflict, "not_refundable", "payment is not in a refundable state", nil)
	case errors.As(err, &declined):
		writeError(w, http.StatusPaymentRequired, "payment_declined", declined.Reason, nil)
	case errors.Is(err, ErrMisconfigured):
		h.logger.Error("payment provider misconfigured", "error", err)
		writeError(w, http.StatusServiceUnavailable, "misconfigured", "payments are temporarily unavailable", nil)
	case errors.Is(err, ErrProviderUnavailable):
		h.logger.Error("payment provider unavailable", "error", err)
		writeError(w, http.StatusBadGateway, "provider_unavailable", "payment provider unavailable, please retry", nil)
	default:
		h.logger.Error("payment request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "something went wrong, please retry", nil)
	}
}

func toView(p *Payment) paymentView {
	view := paymentView{
		ID:            p.ID.String(),
		AmountPesewas: p.AmountPesewas,
		Currency:      p.Currency,
		PaymentMethod: string(p.Method),
		Provider:      string(p.Provider),
		Status:        string(p.Status),
		ProviderRef:   p.ProviderRef,
		Metadata:      p.Metadata,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.AppointmentID != nil {
		view.AppointmentID = p.AppointmentID.String()
	}
	return view
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
