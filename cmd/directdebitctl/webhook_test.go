package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/smallbiznis/directdebit/internal/gocardless"
	"github.com/stretchr/testify/require"
)

const deliveryBody = `{"events":[{"id":"EV1","resource_type":"payments","action":"confirmed","links":{"payment":"PM1"}}]}`

func TestSignWebhookMatchesVerifier(t *testing.T) {
	cmd := signWebhookCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(deliveryBody))
	cmd.SetArgs([]string{"--secret", "whsec_test"})

	require.NoError(t, cmd.Execute())
	require.Equal(t, gocardless.Sign([]byte(deliveryBody), "whsec_test"), strings.TrimSpace(out.String()))
}

func TestVerifyWebhookListsEvents(t *testing.T) {
	cmd := verifyWebhookCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(deliveryBody))
	cmd.SetArgs([]string{
		"--secret", "whsec_test",
		"--signature", gocardless.Sign([]byte(deliveryBody), "whsec_test"),
	})

	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "signature ok, 1 event(s)")
	require.Contains(t, out.String(), "EV1")
	require.Contains(t, out.String(), "confirmed")
}

func TestVerifyWebhookRejectsBadSignature(t *testing.T) {
	cmd := verifyWebhookCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(deliveryBody))
	cmd.SetArgs([]string{"--secret", "whsec_test", "--signature", "deadbeef"})

	require.ErrorIs(t, cmd.Execute(), gocardless.ErrInvalidSignature)
}

func TestWebhookSecretRequiresSource(t *testing.T) {
	cmd := signWebhookCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(deliveryBody))
	cmd.SetArgs([]string{})

	require.Error(t, cmd.Execute())
}
