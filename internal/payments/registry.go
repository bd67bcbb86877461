package payments

import (
	"context"

	"github.com/korle-health/clinic-platform/pkg/logging"
)

// Registry maps payment methods to the adapter responsible for them and
// exposes a single process/verify/refund contract regardless of provider.
// It is a dispatch table plus allow-list validation; it holds no state
// beyond the registered adapters.
type Registry struct {
	providers map[ProviderName]Provider
	logger    *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		providers: make(map[ProviderName]Provider),
		logger:    logger,
	}
}

// Register adds an adapter under its own name.
func (r *Registry) Register(p Provider) {
	if p == nil {
		panic("payments: nil provider")
	}
	r.providers[p.Name()] = p
}

// resolve picks exactly one provider for the method. Current deployment
// policy: card goes to the hubtel hosted page; everything else rides the
// local rails, except mobile-money may be pushed through hubtel when the
// caller explicitly asks for it. The default is the safer local path.
func (r *Registry) resolve(method Method, override ProviderName) (Provider, error) {
	if !method.Valid() {
		return nil, &UnsupportedMethodError{Method: method}
	}

	var name ProviderName
	switch {
	case method == MethodCard:
		name = ProviderHubtel
	case method.IsMobileMoney() && override == ProviderHubtel:
		name = ProviderHubtel
	default:
		name = ProviderLocal
	}

	if override != "" && override != name {
		// A caller-supplied provider that routing did not select is only
		// honored when it is registered; anything else is rejected outright.
		if _, ok := r.providers[override]; !ok {
			return nil, ErrProviderNotRegistered
		}
		name = override
	}

	p, ok := r.providers[name]
	if !ok {
		return nil, ErrProviderNotRegistered
	}
	return p, nil
}

// ProcessPayment dispatches the charge to the resolved adapter and reports
// which provider handled it.
func (r *Registry) ProcessPayment(ctx context.Context, method Method, override ProviderName, req ChargeRequest) (ProviderName, *ChargeResult, error) {
	p, err := r.resolve(method, override)
	if err != nil {
		return "", nil, err
	}
	res, err := p.ProcessPayment(ctx, req)
	if err != nil {
		return p.Name(), nil, err
	}
	return p.Name(), res, nil
}

// VerifyPayment queries settlement state from the named provider.
func (r *Registry) VerifyPayment(ctx context.Context, provider ProviderName, providerRef string) (*ChargeResult, error) {
	p, ok := r.providers[provider]
	if !ok {
		return nil, ErrProviderNotRegistered
	}
	return p.VerifyPayment(ctx, providerRef)
}

// RefundPayment issues a refund through the named provider.
func (r *Registry) RefundPayment(ctx context.Context, provider ProviderName, providerRef string, amountPesewas int64) (*ChargeResult, error) {
	p, ok := r.providers[provider]
	if !ok {
		return nil, ErrProviderNotRegistered
	}
	return p.RefundPayment(ctx, providerRef, amountPesewas)
}
