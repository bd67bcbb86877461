package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/korle-health/clinic-platform/pkg/logging"
)

var paystackTracer = otel.Tracer("clinic.internal.payments.paystack")

// PaystackGateway is the alternative gateway adapter with a synchronous
// initialize/verify pair keyed by a transaction reference.
type PaystackGateway struct {
	secretKey  string
	baseURL    string
	successURL string
	httpClient *http.Client
	logger     *logging.Logger
}

// PaystackConfig holds credentials for the Paystack gateway.
type PaystackConfig struct {
	SecretKey  string
	BaseURL    string
	SuccessURL string
}

// NewPaystackGateway creates the alt-gateway adapter.
func NewPaystackGateway(cfg PaystackConfig, logger *logging.Logger) *PaystackGateway {
	if logger == nil {
		logger = logging.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	return &PaystackGateway{
		secretKey:  cfg.SecretKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		successURL: cfg.SuccessURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Name identifies this adapter in the registry.
func (g *PaystackGateway) Name() ProviderName {
	return ProviderPaystack
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackTransaction struct {
	ID               int64  `json:"id"`
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Status           string `json:"status"`
	GatewayResponse  string `json:"gateway_response"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
}

// ProcessPayment initializes a transaction and returns the authorization URL.
func (g *PaystackGateway) ProcessPayment(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if field := RawCardMetadataField(req.Metadata); field != "" {
		return nil, &RejectedInputError{Field: field}
	}
	if g.secretKey == "" {
		return nil, ErrMisconfigured
	}

	ctx, span := paystackTracer.Start(ctx, "paystack.initialize")
	defer span.End()
	span.SetAttributes(attribute.Int64("clinic.amount_pesewas", req.AmountPesewas))

	payload := map[string]any{
		"email":     req.Email,
		"amount":    req.AmountPesewas,
		"currency":  req.Currency,
		"reference": newClientReference("PSK"),
	}
	if g.successURL != "" {
		payload["callback_url"] = g.successURL
	}

	var tx paystackTransaction
	if err := g.call(ctx, http.MethodPost, "/transaction/initialize", payload, &tx); err != nil {
		return nil, err
	}

	return &ChargeResult{
		ProviderRef: tx.Reference,
		Status:      StatusPending,
		PaymentURL:  tx.AuthorizationURL,
		Metadata:    map[string]string{"access_code": tx.AccessCode},
	}, nil
}

// VerifyPayment resolves the transaction's settlement state. Paystack keys
// lookups two ways: a purely numeric id goes to the by-id endpoint, a
// textual reference to the verify-by-reference endpoint.
func (g *PaystackGateway) VerifyPayment(ctx context.Context, providerRef string) (*ChargeResult, error) {
	if g.secretKey == "" {
		return nil, ErrMisconfigured
	}

	ctx, span := paystackTracer.Start(ctx, "paystack.verify")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.provider_ref", providerRef))

	path := "/transaction/verify/" + providerRef
	if isNumericRef(providerRef) {
		path = "/transaction/" + providerRef
	}

	var tx paystackTransaction
	if err := g.call(ctx, http.MethodGet, path, nil, &tx); err != nil {
		return nil, err
	}

	return &ChargeResult{
		ProviderRef: providerRef,
		Status:      paystackStatus(tx.Status),
		DisplayText: tx.GatewayResponse,
	}, nil
}

// RefundPayment creates a refund against a settled transaction.
func (g *PaystackGateway) RefundPayment(ctx context.Context, providerRef string, amountPesewas int64) (*ChargeResult, error) {
	if g.secretKey == "" {
		return nil, ErrMisconfigured
	}

	ctx, span := paystackTracer.Start(ctx, "paystack.refund")
	defer span.End()

	payload := map[string]any{
		"transaction": providerRef,
		"amount":      amountPesewas,
	}
	var tx paystackTransaction
	if err := g.call(ctx, http.MethodPost, "/refund", payload, &tx); err != nil {
		return nil, err
	}
	return &ChargeResult{ProviderRef: providerRef, Status: StatusRefunded}, nil
}

func (g *PaystackGateway) call(ctx context.Context, method, path string, payload any, out *paystackTransaction) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("payments: marshal paystack request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("payments: build paystack request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.Error("paystack request failed", "error", err, "path", path)
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		g.logger.Error("paystack server error", "status", resp.StatusCode)
		return ErrProviderUnavailable
	}

	var envelope paystackEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrProviderUnavailable, err)
	}
	if resp.StatusCode >= 400 || !envelope.Status {
		return &ProviderRejectedError{Provider: ProviderPaystack, Reason: envelope.Message}
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("%w: decode transaction: %v", ErrProviderUnavailable, err)
		}
	}
	return nil
}

func paystackStatus(s string) Status {
	switch strings.ToLower(s) {
	case "success":
		return StatusCompleted
	case "failed", "abandoned", "reversed":
		return StatusFailed
	default:
		return StatusPending
	}
}

// isNumericRef reports whether the reference is a bare transaction id.
func isNumericRef(ref string) bool {
	if ref == "" {
		return false
	}
	for _, r := range ref {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
