package payments

import (
	"time"

	"github.com/google/uuid"
)

// Method identifies how the patient pays the booking fee.
type Method string

const (
	MethodCard           Method = "card"
	MethodMomoMTN        Method = "momo_mtn"
	MethodMomoVodafone   Method = "momo_vodafone"
	MethodMomoAirtelTigo Method = "momo_airteltigo"
	MethodBankTransfer   Method = "bank_transfer"
	MethodQR             Method = "qr"
	MethodWallet         Method = "wallet"
	MethodCashOnDelivery Method = "cash_on_delivery"
)

// Valid reports whether the method is one we accept.
func (m Method) Valid() bool {
	switch m {
	case MethodCard, MethodMomoMTN, MethodMomoVodafone, MethodMomoAirtelTigo,
		MethodBankTransfer, MethodQR, MethodWallet, MethodCashOnDelivery:
		return true
	}
	return false
}

// IsMobileMoney reports whether the method settles asynchronously via a
// mobile-money push charge.
func (m Method) IsMobileMoney() bool {
	switch m {
	case MethodMomoMTN, MethodMomoVodafone, MethodMomoAirtelTigo:
		return true
	}
	return false
}

// Status is the settlement state of a payment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// IsTerminal reports whether no further settlement transition is expected.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRefunded
}

// ProviderName identifies a registered payment rail adapter.
type ProviderName string

const (
	ProviderHubtel   ProviderName = "hubtel"
	ProviderPaystack ProviderName = "paystack"
	ProviderLocal    ProviderName = "local"
)

// Payment is the durable record of a booking-fee charge. ProviderRef is the
// provider transaction id; together with UserID it forms the idempotency key
// once the provider has responded. AppointmentID is set only after booking
// succeeds and is immutable outside the administrative refund flow.
type Payment struct {
	ID            uuid.UUID
	UserID        string
	AmountPesewas int64
	Currency      string
	Method        Method
	Provider      ProviderName
	Status        Status
	ProviderRef   string
	AppointmentID *uuid.UUID
	Metadata      map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Linked reports whether the payment is already attached to an appointment.
func (p *Payment) Linked() bool {
	return p.AppointmentID != nil
}

func newUUIDString() string {
	return uuid.NewString()
}

// rawCardFields are request keys we refuse to touch anywhere in the system.
// Card payments go through hosted redirect pages only.
var rawCardFields = []string{"card_number", "card_expiry", "card_name", "card_pin", "card_cvv"}

// RawCardField returns the first raw card field present in the decoded
// request body, or "" when the body is clean.
func RawCardField(body map[string]any) string {
	for _, field := range rawCardFields {
		if v, ok := body[field]; ok && v != nil {
			if s, isStr := v.(string); isStr && s == "" {
				continue
			}
			return field
		}
	}
	return ""
}

// RawCardMetadataField is the defense-in-depth variant for metadata bags
// that survived handler-level screening.
func RawCardMetadataField(meta map[string]string) string {
	for _, field := range rawCardFields {
		if v, ok := meta[field]; ok && v != "" {
			return field
		}
	}
	return ""
}
