package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/korle-health/clinic-platform/pkg/logging"
)

// fakeProvider records calls and returns canned results.
type fakeProvider struct {
	name       ProviderName
	calls      int
	result     *ChargeResult
	err        error
	lastCharge ChargeRequest
}

func (f *fakeProvider) Name() ProviderName { return f.name }

func (f *fakeProvider) ProcessPayment(_ context.Context, req ChargeRequest) (*ChargeResult, error) {
	f.calls++
	f.lastCharge = req
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &ChargeResult{ProviderRef: string(f.name) + "-ref", Status: StatusPending}, nil
}

func (f *fakeProvider) VerifyPayment(_ context.Context, providerRef string) (*ChargeResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &ChargeResult{ProviderRef: providerRef, Status: StatusPending}, nil
}

func (f *fakeProvider) RefundPayment(_ context.Context, providerRef string, _ int64) (*ChargeResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ChargeResult{ProviderRef: providerRef, Status: StatusRefunded}, nil
}

func newTestRegistry() (*Registry, *fakeProvider, *fakeProvider, *fakeProvider) {
	logger := logging.New("error")
	hubtel := &fakeProvider{name: ProviderHubtel}
	paystack := &fakeProvider{name: ProviderPaystack}
	local := &fakeProvider{name: ProviderLocal}
	reg := NewRegistry(logger)
	reg.Register(hubtel)
	reg.Register(paystack)
	reg.Register(local)
	return reg, hubtel, paystack, local
}

func TestCardRoutesToHubtel(t *testing.T) {
	reg, hubtel, _, local := newTestRegistry()

	provider, _, err := reg.ProcessPayment(context.Background(), MethodCard, "", ChargeRequest{Method: MethodCard})
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if provider != ProviderHubtel {
		t.Fatalf("card routed to %q, want hubtel", provider)
	}
	if hubtel.calls != 1 || local.calls != 0 {
		t.Fatalf("unexpected call counts: hubtel=%d local=%d", hubtel.calls, local.calls)
	}
}

func TestMobileMoneyDefaultsToLocalRails(t *testing.T) {
	reg, hubtel, _, local := newTestRegistry()

	provider, _, err := reg.ProcessPayment(context.Background(), MethodMomoMTN, "", ChargeRequest{Method: MethodMomoMTN})
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if provider != ProviderLocal {
		t.Fatalf("momo routed to %q, want local", provider)
	}
	if local.calls != 1 || hubtel.calls != 0 {
		t.Fatalf("unexpected call counts: hubtel=%d local=%d", hubtel.calls, local.calls)
	}
}

func TestMobileMoneyOverrideToHubtel(t *testing.T) {
	reg, hubtel, _, local := newTestRegistry()

	provider, _, err := reg.ProcessPayment(context.Background(), MethodMomoVodafone, ProviderHubtel, ChargeRequest{Method: MethodMomoVodafone})
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if provider != ProviderHubtel {
		t.Fatalf("override routed to %q, want hubtel", provider)
	}
	if hubtel.calls != 1 || local.calls != 0 {
		t.Fatalf("unexpected call counts: hubtel=%d local=%d", hubtel.calls, local.calls)
	}
}

func TestExplicitPaystackOverrideIsHonored(t *testing.T) {
	reg, _, paystack, _ := newTestRegistry()

	provider, _, err := reg.ProcessPayment(context.Background(), MethodWallet, ProviderPaystack, ChargeRequest{Method: MethodWallet})
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if provider != ProviderPaystack {
		t.Fatalf("override routed to %q, want paystack", provider)
	}
	if paystack.calls != 1 {
		t.Fatalf("paystack calls = %d, want 1", paystack.calls)
	}
}

func TestUnknownOverrideIsRejected(t *testing.T) {
	reg, hubtel, _, local := newTestRegistry()

	_, _, err := reg.ProcessPayment(context.Background(), MethodWallet, ProviderName("stripe"), ChargeRequest{Method: MethodWallet})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Fatalf("expected ErrProviderNotRegistered, got %v", err)
	}
	if hubtel.calls+local.calls != 0 {
		t.Fatal("no adapter should be called for an unknown override")
	}
}

func TestUnsupportedMethodIsRejected(t *testing.T) {
	reg, hubtel, paystack, local := newTestRegistry()

	_, _, err := reg.ProcessPayment(context.Background(), Method("crypto"), "", ChargeRequest{Method: Method("crypto")})
	var unsupported *UnsupportedMethodError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedMethodError, got %v", err)
	}
	if hubtel.calls+paystack.calls+local.calls != 0 {
		t.Fatal("no adapter should be called for an unsupported method")
	}
}

func TestVerifyUnregisteredProvider(t *testing.T) {
	reg := NewRegistry(logging.New("error"))
	if _, err := reg.VerifyPayment(context.Background(), ProviderHubtel, "ref"); !errors.Is(err, ErrProviderNotRegistered) {
		t.Fatalf("expected ErrProviderNotRegistered, got %v", err)
	}
}
