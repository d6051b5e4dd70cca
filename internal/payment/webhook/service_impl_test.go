package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/smallbiznis/directdebit/internal/clock"
	"github.com/smallbiznis/directdebit/internal/gateway/gatewaytest"
	"github.com/smallbiznis/directdebit/internal/gocardless"
	"github.com/smallbiznis/directdebit/internal/gocardless/gocardlesstest"
	instalmentdomain "github.com/smallbiznis/directdebit/internal/instalment/domain"
	instalmentrepo "github.com/smallbiznis/directdebit/internal/instalment/repository"
	instalmentservice "github.com/smallbiznis/directdebit/internal/instalment/service"
	mandatedomain "github.com/smallbiznis/directdebit/internal/mandate/domain"
	mandaterepo "github.com/smallbiznis/directdebit/internal/mandate/repository"
	mandateservice "github.com/smallbiznis/directdebit/internal/mandate/service"
	paymentdomain "github.com/smallbiznis/directdebit/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/directdebit/internal/payment/repository"
	paymentservice "github.com/smallbiznis/directdebit/internal/payment/service"
	"github.com/smallbiznis/directdebit/internal/payment/webhook"
	"github.com/smallbiznis/directdebit/internal/testutil/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db          *gorm.DB
	clock       *clock.FakeClock
	svc         *webhook.Service
	payments    paymentdomain.Service
	mandates    mandatedomain.Service
	instalments *instalmentservice.Service
	notified    []webhook.Notification
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testdb.Open(t)
	node := testdb.Node(t)
	log := zap.NewNop()
	clk := clock.NewFakeClock(start)
	registry := gatewaytest.NewRegistry(t, gocardlesstest.New())

	f := &fixture{db: db, clock: clk}
	f.payments = paymentservice.NewService(paymentservice.Params{DB: db, Log: log, GenID: node, Repo: paymentrepo.Provide(), Clock: clk})
	f.mandates = mandateservice.NewService(mandateservice.Params{DB: db, Log: log, GenID: node, Repo: mandaterepo.Provide(), Gateways: registry, Clock: clk})
	f.instalments = instalmentservice.NewService(instalmentservice.Params{
		DB: db, Log: log, GenID: node, Repo: instalmentrepo.Provide(),
		Gateways: registry, Payments: f.payments, Policy: instalmentdomain.DefaultPolicy(), Clock: clk,
	})
	f.svc = webhook.NewService(webhook.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Repo:        paymentrepo.Provide(),
		Payments:    f.payments,
		Mandates:    f.mandates,
		Instalments: f.instalments,
		Gateways:    registry,
		Clock:       clk,
		Listeners: []webhook.Listener{func(_ context.Context, n webhook.Notification) {
			f.notified = append(f.notified, n)
		}},
	})
	return f
}

func (f *fixture) seedPayment(t *testing.T, remoteID string) *paymentdomain.Payment {
	t.Helper()
	p, _, err := f.payments.RecordRemote(context.Background(), gatewaytest.OnsiteID, "1001", gocardless.Payment{
		ID: remoteID, Amount: 4999, Currency: "GBP", Status: gocardless.PaymentStatusPendingSubmission,
		Links: gocardless.PaymentLinks{Mandate: "MD1"},
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) seedMandate(t *testing.T, remoteID string) {
	t.Helper()
	err := mandaterepo.Provide().Insert(context.Background(), f.db, &mandatedomain.Mandate{
		ID: testdb.Node(t).Generate(), OwnerID: "customer-9", GatewayID: gatewaytest.OnsiteID,
		RemoteID: remoteID, Scheme: "bacs", Status: mandatedomain.StatusPendingSubmission,
		Sandbox: true, CreatedAt: start, UpdatedAt: start,
	})
	require.NoError(t, err)
}

func delivery(t *testing.T, events ...map[string]any) ([]byte, http.Header) {
	t.Helper()
	body, err := json.Marshal(map[string]any{"events": events})
	require.NoError(t, err)
	headers := http.Header{}
	headers.Set(gocardless.SignatureHeader, gocardless.Sign(body, gatewaytest.Secret))
	return body, headers
}

func paymentEvent(id, action, remoteID string) map[string]any {
	return map[string]any{
		"id": id, "resource_type": "payments", "action": action,
		"links": map[string]string{"payment": remoteID},
	}
}

func TestConfirmedPaymentCompletesAndReplayIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPayment(t, "PM123")

	body, headers := delivery(t, paymentEvent("EV1", "confirmed", "PM123"))
	acks, err := f.svc.Reconcile(ctx, gatewaytest.OnsiteID, body, headers)
	require.NoError(t, err)
	assert.Equal(t, []webhook.Ack{{ID: "EV1", Status: paymentdomain.EventStatusProcessed}}, acks)

	after, err := f.payments.FindByRemoteID(ctx, gatewaytest.OnsiteID, "PM123")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StateCompleted, after.State)
	assert.Equal(t, gocardless.PaymentStatusConfirmed, after.RemoteState)

	f.clock.Advance(time.Minute)
	acks, err = f.svc.Reconcile(ctx, gatewaytest.OnsiteID, body, headers)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventStatusAlreadyProcessed, acks[0].Status)

	replayed, err := f.payments.FindByRemoteID(ctx, gatewaytest.OnsiteID, "PM123")
	require.NoError(t, err)
	assert.Equal(t, after, replayed)

	require.Len(t, f.notified, 1)
	assert.Equal(t, "directdebit.payment.confirmed", f.notified[0].Name)
	assert.Equal(t, paymentdomain.StatePendingCapture, f.notified[0].Previous)
}

func TestSameTransitionUnderNewEventIDIsUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPayment(t, "PM123")

	body, headers := delivery(t, paymentEvent("EV1", "confirmed", "PM123"), paymentEvent("EV2", "confirmed", "PM123"))
	acks, err := f.svc.Reconcile(ctx, gatewaytest.OnsiteID, body, headers)
	require.NoError(t, err)
	assert.Equal(t, []webhook.Ack{
		{ID: "EV1", Status: paymentdomain.EventStatusProcessed},
		{ID: "EV2", Status: paymentdomain.EventStatusUnchanged},
	}, acks)
	assert.Len(t, f.notified, 1)
}

func TestSubmittedKeepsLocalStateButRecordsRemoteState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPayment(t, "PM7")

	body, headers := delivery(t, paymentEvent("EV1", "submitted", "PM7"))
	_, err := f.svc.Reconcile(ctx, gatewaytest.OnsiteID, body, headers)
	require.NoError(t, err)

	p, err := f.payments.FindByRemoteID(ctx, gatewaytest.OnsiteID, "PM7")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatePendingCapture, p.State)
	assert.Equal(t, gocardless.PaymentStatusSubmitted, p.RemoteState)
}

func TestInvalidSignatureMutatesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPayment(t, "PM123")

	body, _ := delivery(t, paymentEvent("EV1", "failed", "PM123"))
	headers := http.Header{}
	headers.Set(gocardless.SignatureHeader, gocardless.Sign(body, "wrong-secret"))

	acks, err := f.svc.Reconcile(ctx, gatewaytest.OnsiteID, body, headers)
	require.ErrorIs(t, err, webhook.ErrInvalidSignature)
	assert.Nil(t, acks)

	p, err := f.payments.FindByRemoteID(ctx, gatewaytest.OnsiteID, "PM123")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatePendingCapture, p.State)

	var events int64
	require.NoError(t, f.db.Model(&paymentdomain.WebhookEvent{}).Count(&events).Error)
	assert.Zero(t, events)
	assert.Empty(t, f.notified)
}

func TestUnknownPaymentIsAcknowledgedNotFound(t *testing.T) {
	f := newFixture(t)
	body, headers := delivery(t, paymentEvent("EV1", "confirmed", "PM404"))
	acks, err := f.svc.Reconcile(context.Background(), gatewaytest.OnsiteID, body, headers)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventStatusNotFound, acks[0].Status)
}

func TestMandateEventsUpdateStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedMandate(t, "MD1")

	body, headers := delivery(t,
		map[string]any{"id": "EV1", "resource_type": "mandates", "action": "active", "links": map[string]string{"mandate": "MD1"}},
		map[string]any{"id": "EV2", "resource_type": "mandates", "action": "transferred", "links": map[string]string{"mandate": "MD1"}},
		map[string]any{"id": "EV3", "resource_type": "payouts", "action": "paid", "links": map[string]string{"payout": "PO1"}},
	)
	acks, err := f.svc.Reconcile(ctx, gatewaytest.OnsiteID, body, headers)
	require.NoError(t, err)
	assert.Equal(t, []webhook.Ack{
		{ID: "EV1", Status: paymentdomain.EventStatusProcessed},
		{ID: "EV2", Status: paymentdomain.EventStatusIgnored},
		{ID: "EV3", Status: paymentdomain.EventStatusIgnored},
	}, acks)

	m, err := f.mandates.GetByRemoteID(ctx, gatewaytest.OnsiteID, "MD1")
	require.NoError(t, err)
	assert.Equal(t, mandatedomain.StatusActive, m.Status)
}

func TestScheduleEventWakesPendingTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task, err := f.instalments.Enqueue(ctx, instalmentdomain.EnqueueRequest{
		GatewayID: gatewaytest.OnsiteID, OrderID: "1001", ScheduleID: "IS1", MandateRemoteID: "MD1", Currency: "GBP",
	})
	require.NoError(t, err)
	require.True(t, task.NextAttemptAt.After(start))

	body, headers := delivery(t, map[string]any{
		"id": "EV1", "resource_type": "instalment_schedules", "action": "payment_created",
		"links": map[string]string{"instalment_schedule": "IS1"},
	})
	acks, err := f.svc.Reconcile(ctx, gatewaytest.OnsiteID, body, headers)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventStatusProcessed, acks[0].Status)

	due, err := f.instalments.ClaimDue(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "IS1", due[0].ScheduleID)
}

func TestMalformedBodyIsRejected(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"not_events": true}`)
	headers := http.Header{}
	headers.Set(gocardless.SignatureHeader, gocardless.Sign(body, gatewaytest.Secret))
	_, err := f.svc.Reconcile(context.Background(), gatewaytest.OnsiteID, body, headers)
	assert.ErrorIs(t, err, gocardless.ErrInvalidPayload)
}

func TestPaymentTransitionTable(t *testing.T) {
	cases := map[string]paymentdomain.State{
		"confirmed":              paymentdomain.StateCompleted,
		"charged_back":           paymentdomain.StateFailed,
		"failed":                 paymentdomain.StateFailed,
		"cancelled":              paymentdomain.StateCancelled,
		"resubmission_requested": paymentdomain.StatePendingCapture,
		"created":                "",
	}
	for action, want := range cases {
		got, ok := webhook.PaymentTransition(action)
		if !ok {
			t.Fatalf("expected %s to be mapped", action)
		}
		if got.State != want {
			t.Fatalf("%s: expected %q, got %q", action, want, got.State)
		}
	}
	if _, ok := webhook.PaymentTransition("refunded"); ok {
		t.Fatalf("expected unmapped action to be rejected")
	}
}

func TestLateLowerOrderEventDoesNotRewindPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPayment(t, "PM9")

	body, headers := delivery(t, paymentEvent("EV1", "confirmed", "PM9"))
	_, err := f.svc.Reconcile(ctx, gatewaytest.OnsiteID, body, headers)
	require.NoError(t, err)

	body, headers = delivery(t, paymentEvent("EV0", "created", "PM9"), paymentEvent("EV2", "submitted", "PM9"))
	acks, err := f.svc.Reconcile(ctx, gatewaytest.OnsiteID, body, headers)
	require.NoError(t, err)
	assert.Equal(t, []webhook.Ack{
		{ID: "EV0", Status: paymentdomain.EventStatusUnchanged},
		{ID: "EV2", Status: paymentdomain.EventStatusUnchanged},
	}, acks)

	p, err := f.payments.FindByRemoteID(ctx, gatewaytest.OnsiteID, "PM9")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StateCompleted, p.State)
	assert.Equal(t, gocardless.PaymentStatusConfirmed, p.RemoteState)
	require.Len(t, f.notified, 1)
	assert.Equal(t, "directdebit.payment.confirmed", f.notified[0].Name)
}

func TestResubmissionReopensFailedPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPayment(t, "PM10")

	body, headers := delivery(t,
		paymentEvent("EV1", "failed", "PM10"),
		paymentEvent("EV2", "submitted", "PM10"),
		paymentEvent("EV3", "resubmission_requested", "PM10"),
	)
	acks, err := f.svc.Reconcile(ctx, gatewaytest.OnsiteID, body, headers)
	require.NoError(t, err)
	assert.Equal(t, []webhook.Ack{
		{ID: "EV1", Status: paymentdomain.EventStatusProcessed},
		{ID: "EV2", Status: paymentdomain.EventStatusUnchanged},
		{ID: "EV3", Status: paymentdomain.EventStatusProcessed},
	}, acks)

	p, err := f.payments.FindByRemoteID(ctx, gatewaytest.OnsiteID, "PM10")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatePendingCapture, p.State)
	assert.Equal(t, gocardless.PaymentStatusPendingSubmission, p.RemoteState)
}

func TestTransitionStale(t *testing.T) {
	created, _ := webhook.PaymentTransition("created")
	paidOut, _ := webhook.PaymentTransition("paid_out")
	failed, _ := webhook.PaymentTransition("failed")
	cancelled, _ := webhook.PaymentTransition("chargeback_cancelled")

	assert.True(t, created.Stale(gocardless.PaymentStatusConfirmed))
	assert.False(t, created.Stale(gocardless.PaymentStatusPendingSubmission))
	assert.False(t, paidOut.Stale(gocardless.PaymentStatusConfirmed))
	assert.True(t, paidOut.Stale(gocardless.PaymentStatusFailed))
	assert.False(t, failed.Stale(gocardless.PaymentStatusPaidOut))
	assert.False(t, cancelled.Stale(gocardless.PaymentStatusChargedBack))
}
