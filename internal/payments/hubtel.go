package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/korle-health/clinic-platform/pkg/logging"
)

var hubtelTracer = otel.Tracer("clinic.internal.payments.hubtel")

// HubtelGateway is the card-gateway adapter. Card payments go through a
// hosted redirect page; mobile-money methods become a push charge to the
// customer's phone that settles asynchronously. Raw card details are refused
// before any network call.
type HubtelGateway struct {
	clientID     string
	clientSecret string
	merchantID   string
	callbackURL  string
	baseURL      string
	httpClient   *http.Client
	logger       *logging.Logger
}

// HubtelConfig holds credentials for the Hubtel gateway.
type HubtelConfig struct {
	ClientID     string
	ClientSecret string
	MerchantID   string
	CallbackURL  string
	BaseURL      string
}

// NewHubtelGateway creates the card-gateway adapter.
func NewHubtelGateway(cfg HubtelConfig, logger *logging.Logger) *HubtelGateway {
	if logger == nil {
		logger = logging.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://payproxyapi.hubtel.com"
	}
	return &HubtelGateway{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		merchantID:   cfg.MerchantID,
		callbackURL:  cfg.CallbackURL,
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		logger:       logger,
	}
}

// Name identifies this adapter in the registry.
func (g *HubtelGateway) Name() ProviderName {
	return ProviderHubtel
}

func (g *HubtelGateway) configured() bool {
	return g.clientID != "" && g.clientSecret != "" && g.merchantID != ""
}

func (g *HubtelGateway) authHeader() string {
	token := base64.StdEncoding.EncodeToString([]byte(g.clientID + ":" + g.clientSecret))
	return "Basic " + token
}

type hubtelInitiateRequest struct {
	TotalAmount     float64 `json:"totalAmount"`
	Description     string  `json:"description"`
	CallbackURL     string  `json:"callbackUrl"`
	ReturnURL       string  `json:"returnUrl"`
	MerchantAccount string  `json:"merchantAccountNumber"`
	ClientReference string  `json:"clientReference"`
}

type hubtelMomoRequest struct {
	CustomerMsisdn  string  `json:"CustomerMsisdn"`
	CustomerName    string  `json:"CustomerName"`
	Channel         string  `json:"Channel"`
	Amount          float64 `json:"Amount"`
	PrimaryCallback string  `json:"PrimaryCallbackUrl"`
	Description     string  `json:"Description"`
	ClientReference string  `json:"ClientReference"`
}

type hubtelResponse struct {
	ResponseCode string `json:"responseCode"`
	Status       string `json:"status"`
	Data         struct {
		CheckoutURL     string `json:"checkoutUrl"`
		ClientReference string `json:"clientReference"`
		TransactionID   string `json:"transactionId"`
		Description     string `json:"description"`
		Amount          float64
		Status          string `json:"status"`
	} `json:"data"`
	Message string `json:"message"`
}

// ProcessPayment initiates a card hosted-checkout or a mobile-money push
// charge depending on the requested method.
func (g *HubtelGateway) ProcessPayment(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if field := RawCardMetadataField(req.Metadata); field != "" {
		return nil, &RejectedInputError{Field: field}
	}
	if !g.configured() {
		return nil, ErrMisconfigured
	}

	ctx, span := hubtelTracer.Start(ctx, "hubtel.process_payment")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.payment_method", string(req.Method)),
		attribute.Int64("clinic.amount_pesewas", req.AmountPesewas),
	)

	if req.Method.IsMobileMoney() {
		return g.pushCharge(ctx, req)
	}
	return g.hostedCheckout(ctx, req)
}

// hostedCheckout creates a redirect payment page. We never see card details.
func (g *HubtelGateway) hostedCheckout(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	clientRef := newClientReference("HBT")
	payload := hubtelInitiateRequest{
		TotalAmount:     pesewasToCedis(req.AmountPesewas),
		Description:     "Clinic booking fee",
		CallbackURL:     g.callbackURL,
		ReturnURL:       g.callbackURL,
		MerchantAccount: g.merchantID,
		ClientReference: clientRef,
	}

	var resp hubtelResponse
	if err := g.post(ctx, "/items/initiate", payload, &resp); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(resp.ResponseCode, "00") {
		return nil, &ProviderRejectedError{Provider: ProviderHubtel, Reason: resp.Message}
	}

	ref := resp.Data.ClientReference
	if ref == "" {
		ref = clientRef
	}
	return &ChargeResult{
		ProviderRef: ref,
		Status:      StatusPending,
		PaymentURL:  resp.Data.CheckoutURL,
		Metadata:    map[string]string{"checkout_url": resp.Data.CheckoutURL},
	}, nil
}

// pushCharge sends a debit prompt to the customer's phone. Settlement is
// asynchronous; the caller discovers the outcome via VerifyPayment.
func (g *HubtelGateway) pushCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if req.PhoneNumber == "" {
		return nil, &RejectedInputError{Field: "phone_number"}
	}

	clientRef := newClientReference("HBT")
	payload := hubtelMomoRequest{
		CustomerMsisdn:  req.PhoneNumber,
		CustomerName:    req.Name,
		Channel:         momoChannel(req.Method),
		Amount:          pesewasToCedis(req.AmountPesewas),
		PrimaryCallback: g.callbackURL,
		Description:     "Clinic booking fee",
		ClientReference: clientRef,
	}

	path := fmt.Sprintf("/merchantaccount/merchants/%s/receive/mobilemoney", g.merchantID)
	var resp hubtelResponse
	if err := g.post(ctx, path, payload, &resp); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(resp.ResponseCode, "00") && !strings.HasPrefix(resp.ResponseCode, "01") {
		return nil, &ProviderRejectedError{Provider: ProviderHubtel, Reason: resp.Message}
	}

	ref := resp.Data.TransactionID
	if ref == "" {
		ref = clientRef
	}
	display := resp.Data.Description
	if display == "" {
		display = "Approve the payment prompt on your phone to complete the booking fee."
	}
	return &ChargeResult{
		ProviderRef: ref,
		Status:      StatusPending,
		DisplayText: display,
		Metadata:    map[string]string{"channel": momoChannel(req.Method)},
	}, nil
}

// VerifyPayment queries the transaction status by client reference.
func (g *HubtelGateway) VerifyPayment(ctx context.Context, providerRef string) (*ChargeResult, error) {
	if !g.configured() {
		return nil, ErrMisconfigured
	}

	ctx, span := hubtelTracer.Start(ctx, "hubtel.verify_payment")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.provider_ref", providerRef))

	// Refs usually come back from the provider's own responses; never trust
	// them to be query-safe.
	path := fmt.Sprintf("/transactions/%s/status?clientReference=%s", g.merchantID, url.QueryEscape(providerRef))
	var resp hubtelResponse
	if err := g.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	return &ChargeResult{
		ProviderRef: providerRef,
		Status:      hubtelStatus(resp.Data.Status),
		DisplayText: resp.Data.Description,
	}, nil
}

// RefundPayment issues a refund for a settled transaction.
func (g *HubtelGateway) RefundPayment(ctx context.Context, providerRef string, amountPesewas int64) (*ChargeResult, error) {
	if !g.configured() {
		return nil, ErrMisconfigured
	}

	ctx, span := hubtelTracer.Start(ctx, "hubtel.refund_payment")
	defer span.End()

	payload := map[string]any{
		"TransactionId": providerRef,
		"Amount":        pesewasToCedis(amountPesewas),
		"Full":          false,
		"Reason":        "Booking refund",
	}
	path := fmt.Sprintf("/merchantaccount/merchants/%s/transactions/refund", g.merchantID)
	var resp hubtelResponse
	if err := g.post(ctx, path, payload, &resp); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(resp.ResponseCode, "00") {
		return nil, &ProviderRejectedError{Provider: ProviderHubtel, Reason: resp.Message}
	}
	return &ChargeResult{ProviderRef: providerRef, Status: StatusRefunded}, nil
}

func (g *HubtelGateway) post(ctx context.Context, path string, payload any, out *hubtelResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("payments: marshal hubtel request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("payments: build hubtel request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", g.authHeader())
	return g.do(req, out)
}

func (g *HubtelGateway) get(ctx context.Context, path string, out *hubtelResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("payments: build hubtel request: %w", err)
	}
	req.Header.Set("Authorization", g.authHeader())
	return g.do(req, out)
}

func (g *HubtelGateway) do(req *http.Request, out *hubtelResponse) error {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.Error("hubtel request failed", "error", err, "path", req.URL.Path)
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		g.logger.Error("hubtel server error", "status", resp.StatusCode)
		return ErrProviderUnavailable
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrProviderUnavailable, err)
	}
	if resp.StatusCode >= 400 {
		return &ProviderRejectedError{Provider: ProviderHubtel, Reason: out.Message}
	}
	return nil
}

func hubtelStatus(s string) Status {
	switch strings.ToLower(s) {
	case "success", "paid", "completed":
		return StatusCompleted
	case "failed", "cancelled", "declined":
		return StatusFailed
	case "refunded":
		return StatusRefunded
	default:
		return StatusPending
	}
}

func momoChannel(m Method) string {
	switch m {
	case MethodMomoMTN:
		return "mtn-gh"
	case MethodMomoVodafone:
		return "vodafone-gh"
	case MethodMomoAirtelTigo:
		return "tigo-gh"
	default:
		return ""
	}
}

func pesewasToCedis(pesewas int64) float64 {
	return float64(pesewas) / 100
}

func newClientReference(prefix string) string {
	return prefix + "-" + strings.ToUpper(strings.ReplaceAll(newUUIDString(), "-", "")[:16])
}
