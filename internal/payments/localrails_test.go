package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/korle-health/clinic-platform/pkg/logging"
)

func TestLocalRailsChargeStaysPendingUntilSettled(t *testing.T) {
	rails := NewLocalRails(logging.New("error"))

	charge, err := rails.ProcessPayment(context.Background(), ChargeRequest{
		Method:        MethodBankTransfer,
		AmountPesewas: 10000,
	})
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if charge.Status != StatusPending {
		t.Fatalf("status = %q, want pending", charge.Status)
	}
	if charge.ProviderRef == "" {
		t.Fatal("expected a provider reference")
	}
	if charge.DisplayText == "" {
		t.Fatal("expected payment instructions")
	}

	verified, err := rails.VerifyPayment(context.Background(), charge.ProviderRef)
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if verified.Status != StatusPending {
		t.Fatalf("status = %q, want pending before settlement", verified.Status)
	}

	if err := rails.Settle(charge.ProviderRef, StatusCompleted); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	verified, err = rails.VerifyPayment(context.Background(), charge.ProviderRef)
	if err != nil {
		t.Fatalf("VerifyPayment after settle: %v", err)
	}
	if verified.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", verified.Status)
	}
}

func TestLocalRailsRejectsRawCardMetadata(t *testing.T) {
	rails := NewLocalRails(logging.New("error"))

	_, err := rails.ProcessPayment(context.Background(), ChargeRequest{
		Method:   MethodWallet,
		Metadata: map[string]string{"card_number": "4111111111111111"},
	})
	var rejected *RejectedInputError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedInputError, got %v", err)
	}
	if rejected.Field != "card_number" {
		t.Fatalf("rejected field = %q, want card_number", rejected.Field)
	}
}

func TestLocalRailsUnknownReference(t *testing.T) {
	rails := NewLocalRails(logging.New("error"))

	if _, err := rails.VerifyPayment(context.Background(), "LOC-NOPE"); !errors.Is(err, ErrUnknownTransaction) {
		t.Fatalf("expected ErrUnknownTransaction, got %v", err)
	}
	if err := rails.Settle("LOC-NOPE", StatusCompleted); !errors.Is(err, ErrUnknownTransaction) {
		t.Fatalf("expected ErrUnknownTransaction, got %v", err)
	}
}

func TestLocalRailsRefund(t *testing.T) {
	rails := NewLocalRails(logging.New("error"))

	charge, err := rails.ProcessPayment(context.Background(), ChargeRequest{Method: MethodQR})
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if err := rails.Settle(charge.ProviderRef, StatusCompleted); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	refunded, err := rails.RefundPayment(context.Background(), charge.ProviderRef, 10000)
	if err != nil {
		t.Fatalf("RefundPayment: %v", err)
	}
	if refunded.Status != StatusRefunded {
		t.Fatalf("status = %q, want refunded", refunded.Status)
	}
}
