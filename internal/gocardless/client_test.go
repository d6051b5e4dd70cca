package gocardless

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Options{Environment: EnvironmentSandbox, AccessToken: "sandbox_token", BaseURL: srv.URL})
	require.NoError(t, err)
	return client
}

func TestNewValidatesConfiguration(t *testing.T) {
	_, err := New(Options{Environment: EnvironmentSandbox})
	assert.ErrorIs(t, err, ErrMissingAccessToken)

	_, err = New(Options{Environment: "staging", AccessToken: "tok"})
	assert.ErrorIs(t, err, ErrInvalidEnvironment)

	live, err := New(Options{Environment: "LIVE", AccessToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, LiveURL, live.baseURL)
	assert.Equal(t, EnvironmentLive, live.Environment())
}

func TestCreatePaymentSendsIdempotencyKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "Bearer sandbox_token", r.Header.Get("Authorization"))
		assert.Equal(t, "payment-for-order-42", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, apiVersion, r.Header.Get("GoCardless-Version"))

		var body struct {
			Payments CreatePaymentParams `json:"payments"`
		}
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, int64(1250), body.Payments.Amount)
		assert.Equal(t, "MD123", body.Payments.Links.Mandate)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"payments":{"id":"PM123","amount":1250,"currency":"GBP","status":"pending_submission","links":{"mandate":"MD123"}}}`))
	})

	payment, err := client.CreatePayment(context.Background(), CreatePaymentParams{
		Amount:      1250,
		Currency:    "GBP",
		Description: "Payment for 1001",
		Links:       PaymentLinks{Mandate: "MD123"},
	}, "payment-for-order-42")
	require.NoError(t, err)
	assert.Equal(t, "PM123", payment.ID)
	assert.Equal(t, PaymentStatusPendingSubmission, payment.Status)
}

func TestCreatePaymentResolvesIdempotentConflict(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/payments":
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_state","code":409,"message":"A resource has already been created with this idempotency key","errors":[{"reason":"idempotent_creation_conflict","message":"conflict","links":{"conflicting_resource_id":"PM999"}}]}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/payments/PM999":
			assert.Empty(t, r.Header.Get("Idempotency-Key"))
			_, _ = w.Write([]byte(`{"payments":{"id":"PM999","amount":500,"currency":"GBP","status":"submitted"}}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	payment, err := client.CreatePayment(context.Background(), CreatePaymentParams{Amount: 500, Currency: "GBP"}, "payment-for-order-7")
	require.NoError(t, err)
	assert.Equal(t, "PM999", payment.ID)
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		transient bool
		invalid   bool
		auth      bool
	}{
		{"validation", http.StatusUnprocessableEntity, `{"error":{"type":"validation_failed","message":"bad amount"}}`, false, false, false},
		{"invalid_state", http.StatusUnprocessableEntity, `{"error":{"type":"invalid_state","message":"mandate cancelled"}}`, false, true, false},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"type":"invalid_api_usage","message":"bad token"}}`, false, false, true},
		{"outage", http.StatusBadGateway, `<html>bad gateway</html>`, true, false, false},
		{"rate_limited", http.StatusTooManyRequests, `{"error":{"type":"invalid_api_usage","message":"slow down"}}`, true, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := client.GetMandate(context.Background(), "MD1")
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, tc.transient, IsTransient(err))
			assert.Equal(t, tc.invalid, IsInvalidState(err))
			assert.Equal(t, tc.auth, IsAuthFailure(err))
		})
	}
}

func TestNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	client, err := New(Options{Environment: EnvironmentSandbox, AccessToken: "tok", BaseURL: baseURL})
	require.NoError(t, err)

	_, err = client.GetPayment(context.Background(), "PM1")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestCompleteRedirectFlow(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/redirect_flows/RE123/actions/complete", r.URL.Path)
		var body struct {
			Data map[string]string `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sess_1", body.Data["session_token"])
		_, _ = w.Write([]byte(`{"redirect_flows":{"id":"RE123","session_token":"sess_1","links":{"mandate":"MD1","customer":"CU1"}}}`))
	})

	flow, err := client.CompleteRedirectFlow(context.Background(), "RE123", "sess_1")
	require.NoError(t, err)
	assert.Equal(t, "MD1", flow.Links.Mandate)
}

func TestSchemeCurrency(t *testing.T) {
	assert.Equal(t, "GBP", SchemeCurrency("bacs"))
	assert.Equal(t, "EUR", SchemeCurrency("sepa_core"))
	assert.Equal(t, "", SchemeCurrency("faster_payments"))
}
