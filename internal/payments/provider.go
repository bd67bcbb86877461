package payments

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMisconfigured means required provider credentials are missing.
	// Operational error; should alert, never a silent no-op.
	ErrMisconfigured = errors.New("payments: provider credentials not configured")

	// ErrProviderUnavailable means the provider could not be reached.
	ErrProviderUnavailable = errors.New("payments: provider unavailable")

	// ErrProviderNotRegistered means dispatch resolved to a provider that is
	// not in the registry allow-list.
	ErrProviderNotRegistered = errors.New("payments: provider not registered")
)

// ProviderRejectedError is a provider-side decline, translated so raw
// provider payloads never leak to callers.
type ProviderRejectedError struct {
	Provider ProviderName
	Reason   string
}

func (e *ProviderRejectedError) Error() string {
	return fmt.Sprintf("payments: %s rejected the charge: %s", e.Provider, e.Reason)
}

// RejectedInputError marks input refused before any network call, such as
// raw card details.
type RejectedInputError struct {
	Field string
}

func (e *RejectedInputError) Error() string {
	return fmt.Sprintf("payments: field %q is not accepted", e.Field)
}

// UnsupportedMethodError marks a payment method no adapter handles.
type UnsupportedMethodError struct {
	Method Method
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("payments: unsupported payment method %q", e.Method)
}

// ChargeRequest is the provider-agnostic payment request.
type ChargeRequest struct {
	UserID        string
	AmountPesewas int64
	Currency      string
	Method        Method
	Email         string
	Name          string
	PhoneNumber   string
	BankName      string
	AccountNumber string
	BankNotes     string
	Metadata      map[string]string
}

// ChargeResult is the normalized provider response.
type ChargeResult struct {
	ProviderRef string
	Status      Status
	PaymentURL  string
	DisplayText string
	Metadata    map[string]string
}

// Provider is the contract every payment rail adapter implements.
// Implementations translate one external provider's wire protocol into the
// normalized result; they never persist anything.
type Provider interface {
	Name() ProviderName
	ProcessPayment(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	VerifyPayment(ctx context.Context, providerRef string) (*ChargeResult, error)
	RefundPayment(ctx context.Context, providerRef string, amountPesewas int64) (*ChargeResult, error)
}
