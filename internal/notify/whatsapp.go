package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/korle-health/clinic-platform/pkg/logging"
)

// WhatsAppSender sends WhatsApp messages to patients.
type WhatsAppSender interface {
	SendWhatsApp(ctx context.Context, to, body string) error
}

// GraphWhatsAppSender sends messages through the WhatsApp Business
// cloud API.
type GraphWhatsAppSender struct {
	token      string
	phoneID    string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// WhatsAppConfig holds WhatsApp Business API credentials.
type WhatsAppConfig struct {
	Token   string
	PhoneID string
	BaseURL string
}

// NewGraphWhatsAppSender creates the sender; returns nil when unconfigured.
func NewGraphWhatsAppSender(cfg WhatsAppConfig, logger *logging.Logger) *GraphWhatsAppSender {
	if cfg.Token == "" || cfg.PhoneID == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/v19.0"
	}
	return &GraphWhatsAppSender{
		token:      cfg.Token,
		phoneID:    cfg.PhoneID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type whatsAppMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

type whatsAppText struct {
	Body string `json:"body"`
}

// SendWhatsApp posts a text message to the patient's number.
func (s *GraphWhatsAppSender) SendWhatsApp(ctx context.Context, to, body string) error {
	payload := whatsAppMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             whatsAppText{Body: body},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal whatsapp message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("notify: build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: whatsapp send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("notify: whatsapp returned status %d", resp.StatusCode)
	}

	s.logger.Debug("whatsapp message sent", "to", to)
	return nil
}
