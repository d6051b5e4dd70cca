package gocardless

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "Webhook-Signature"

// Resource types carried by webhook events.
const (
	ResourcePayments            = "payments"
	ResourceMandates            = "mandates"
	ResourceInstalmentSchedules = "instalment_schedules"
)

type Event struct {
	ID           string            `json:"id"`
	CreatedAt    time.Time         `json:"created_at"`
	ResourceType string            `json:"resource_type"`
	Action       string            `json:"action"`
	Links        EventLinks        `json:"links"`
	Details      EventDetails      `json:"details"`
	Metadata     map[string]string `json:"metadata,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type EventLinks struct {
	Payment            string `json:"payment,omitempty"`
	Mandate            string `json:"mandate,omitempty"`
	NewMandate         string `json:"new_mandate,omitempty"`
	InstalmentSchedule string `json:"instalment_schedule,omitempty"`
	Subscription       string `json:"subscription,omitempty"`
	Refund             string `json:"refund,omitempty"`
	Payout             string `json:"payout,omitempty"`
}

type EventDetails struct {
	Origin      string `json:"origin,omitempty"`
	Cause       string `json:"cause,omitempty"`
	Description string `json:"description,omitempty"`
	Scheme      string `json:"scheme,omitempty"`
	ReasonCode  string `json:"reason_code,omitempty"`
}

// Sign returns the signature the processor would send for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the Webhook-Signature header in constant time.
func VerifySignature(body []byte, headers http.Header, secret string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ErrInvalidSignature
	}
	provided := strings.ToLower(strings.TrimSpace(headers.Get(SignatureHeader)))
	if provided == "" {
		return ErrInvalidSignature
	}
	if !hmac.Equal([]byte(provided), []byte(Sign(body, secret))) {
		return ErrInvalidSignature
	}
	return nil
}

// ParseEvents decodes the {"events": [...]} envelope, keeping each event's raw JSON.
func ParseEvents(body []byte) ([]Event, error) {
	var envelope struct {
		Events []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, ErrInvalidPayload
	}
	if envelope.Events == nil {
		return nil, ErrInvalidPayload
	}

	events := make([]Event, 0, len(envelope.Events))
	for _, raw := range envelope.Events {
		var evt Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, ErrInvalidPayload
		}
		if strings.TrimSpace(evt.ID) == "" {
			return nil, ErrInvalidPayload
		}
		evt.Raw = raw
		events = append(events, evt)
	}
	return events, nil
}
