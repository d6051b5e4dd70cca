package gocardless

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePayload = `{"events":[{"id":"EV123","created_at":"2024-05-01T10:00:00.000Z","resource_type":"payments","action":"confirmed","links":{"payment":"PM123"},"details":{"origin":"gocardless","cause":"payment_confirmed"}},{"id":"EV124","resource_type":"mandates","action":"active","links":{"mandate":"MD1"}}]}`

func TestVerifySignature(t *testing.T) {
	body := []byte(samplePayload)
	headers := http.Header{}
	headers.Set(SignatureHeader, Sign(body, "secret"))

	require.NoError(t, VerifySignature(body, headers, "secret"))
	assert.ErrorIs(t, VerifySignature(body, headers, "other"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(body, headers, ""), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(body, http.Header{}, "secret"), ErrInvalidSignature)

	tampered := []byte(samplePayload + " ")
	assert.ErrorIs(t, VerifySignature(tampered, headers, "secret"), ErrInvalidSignature)
}

func TestParseEvents(t *testing.T) {
	events, err := ParseEvents([]byte(samplePayload))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "EV123", events[0].ID)
	assert.Equal(t, ResourcePayments, events[0].ResourceType)
	assert.Equal(t, "confirmed", events[0].Action)
	assert.Equal(t, "PM123", events[0].Links.Payment)
	assert.Equal(t, "payment_confirmed", events[0].Details.Cause)
	assert.Contains(t, string(events[0].Raw), `"EV123"`)

	assert.Equal(t, "MD1", events[1].Links.Mandate)
}

func TestParseEventsRejectsMalformed(t *testing.T) {
	for _, body := range []string{`not json`, `{}`, `{"events":[{"action":"confirmed"}]}`} {
		_, err := ParseEvents([]byte(body))
		assert.ErrorIs(t, err, ErrInvalidPayload, body)
	}

	events, err := ParseEvents([]byte(`{"events":[]}`))
	require.NoError(t, err)
	assert.Empty(t, events)
}
