package payments

import (
	"context"
	"errors"
	"sync"

	"github.com/korle-health/clinic-platform/pkg/logging"
)

// ErrUnknownTransaction is returned when the local rails have no record of
// the reference.
var ErrUnknownTransaction = errors.New("payments: unknown transaction reference")

// LocalRails simulates bank transfer, QR, wallet, cash-on-delivery and
// mobile-money rails that lack a real settlement API in this deployment.
// Charges stay pending until settled out-of-band (admin action or tests).
// It conforms to the Provider contract so it is interchangeable with the
// real gateways.
type LocalRails struct {
	mu     sync.Mutex
	status map[string]Status
	texts  map[string]string
	logger *logging.Logger
}

// NewLocalRails creates the local simulation adapter.
func NewLocalRails(logger *logging.Logger) *LocalRails {
	if logger == nil {
		logger = logging.Default()
	}
	return &LocalRails{
		status: make(map[string]Status),
		texts:  make(map[string]string),
		logger: logger,
	}
}

// Name identifies this adapter in the registry.
func (l *LocalRails) Name() ProviderName {
	return ProviderLocal
}

// ProcessPayment records the charge and returns pending immediately.
func (l *LocalRails) ProcessPayment(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if field := RawCardMetadataField(req.Metadata); field != "" {
		return nil, &RejectedInputError{Field: field}
	}

	ref := newClientReference("LOC")
	display := instructionFor(req)

	l.mu.Lock()
	l.status[ref] = StatusPending
	l.texts[ref] = display
	l.mu.Unlock()

	l.logger.Info("local rails charge recorded", "ref", ref, "method", req.Method)
	return &ChargeResult{
		ProviderRef: ref,
		Status:      StatusPending,
		DisplayText: display,
	}, nil
}

// VerifyPayment returns the last recorded status for the reference.
func (l *LocalRails) VerifyPayment(ctx context.Context, providerRef string) (*ChargeResult, error) {
	l.mu.Lock()
	status, ok := l.status[providerRef]
	display := l.texts[providerRef]
	l.mu.Unlock()
	if !ok {
		return nil, ErrUnknownTransaction
	}
	return &ChargeResult{ProviderRef: providerRef, Status: status, DisplayText: display}, nil
}

// RefundPayment marks a settled local charge refunded.
func (l *LocalRails) RefundPayment(ctx context.Context, providerRef string, amountPesewas int64) (*ChargeResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.status[providerRef]; !ok {
		return nil, ErrUnknownTransaction
	}
	l.status[providerRef] = StatusRefunded
	return &ChargeResult{ProviderRef: providerRef, Status: StatusRefunded}, nil
}

// Settle transitions a local charge out of band, standing in for the async
// settlement a real rail would deliver. Demo deployments and the poller
// tests drive it directly.
func (l *LocalRails) Settle(providerRef string, status Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.status[providerRef]; !ok {
		return ErrUnknownTransaction
	}
	l.status[providerRef] = status
	return nil
}

func instructionFor(req ChargeRequest) string {
	switch req.Method {
	case MethodBankTransfer:
		return "Transfer the booking fee to the clinic account and quote your reference at the front desk."
	case MethodQR:
		return "Scan the clinic QR code at reception to complete your booking fee."
	case MethodCashOnDelivery:
		return "Pay the booking fee in cash when you arrive for your visit."
	case MethodWallet:
		return "Complete the charge from your clinic wallet balance."
	default:
		return "Approve the payment prompt on your phone to complete the booking fee."
	}
}
