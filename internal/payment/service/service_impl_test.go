package service_test

import (
	"context"
	"testing"

	"github.com/smallbiznis/directdebit/internal/gocardless"
	"github.com/smallbiznis/directdebit/internal/gocardless/gocardlesstest"
	paymentdomain "github.com/smallbiznis/directdebit/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/directdebit/internal/payment/repository"
	paymentservice "github.com/smallbiznis/directdebit/internal/payment/service"
	"github.com/smallbiznis/directdebit/internal/testutil/testdb"
	"go.uber.org/zap"
)

func newService(t *testing.T) paymentdomain.Service {
	t.Helper()
	return paymentservice.NewService(paymentservice.Params{
		DB:    testdb.Open(t),
		Log:   zap.NewNop(),
		GenID: testdb.Node(t),
		Repo:  paymentrepo.Provide(),
	})
}

func TestRecordRemoteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	remote := gocardless.Payment{
		ID: "PM123", Amount: 4999, Currency: "GBP", Status: gocardless.PaymentStatusPendingSubmission,
		Links: gocardless.PaymentLinks{Mandate: "MD1"},
	}

	first, created, err := svc.RecordRemote(ctx, "gocardless", "42", remote)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !created || first.State != paymentdomain.StatePendingCapture || first.RemoteState != "pending_submission" {
		t.Fatalf("unexpected first record %+v created=%v", first, created)
	}

	second, created, err := svc.RecordRemote(ctx, "gocardless", "42", remote)
	if err != nil {
		t.Fatalf("record again: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("expected existing record, got %+v created=%v", second, created)
	}
}

func TestRecordRemoteRejectsNonPositiveAmount(t *testing.T) {
	svc := newService(t)
	_, _, err := svc.RecordRemote(context.Background(), "gocardless", "42", gocardless.Payment{ID: "PM0", Currency: "GBP"})
	if err != paymentdomain.ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestMaterializeScheduleCreatesOnePaymentPerLink(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	fake := gocardlesstest.New()

	schedule, err := fake.CreateInstalmentSchedule(ctx, gocardless.CreateInstalmentScheduleParams{
		Name: "Order 42", TotalAmount: 9000, Currency: "GBP",
		Instalments: gocardless.Instalments{Amounts: []int64{3000, 3000, 3000}},
		Links:       gocardless.InstalmentScheduleLinks{Mandate: "MD1"},
	}, "")
	if err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	fake.SetScheduleStatus(schedule.ID, gocardless.ScheduleStatusActive, 3000, 3000, 3000)
	active, _ := fake.GetInstalmentSchedule(ctx, schedule.ID)

	payments, err := svc.MaterializeSchedule(ctx, fake, "gocardless", "42", active)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if len(payments) != 3 {
		t.Fatalf("expected 3 payments, got %d", len(payments))
	}
	for _, p := range payments {
		if p.State != paymentdomain.StatePendingCapture || p.RemoteState != gocardless.PaymentStatusPendingSubmission {
			t.Fatalf("unexpected payment %+v", p)
		}
	}

	// At-least-once delivery: a second pass must not duplicate.
	fetches := fake.PaymentFetches
	again, err := svc.MaterializeSchedule(ctx, fake, "gocardless", "42", active)
	if err != nil {
		t.Fatalf("materialize again: %v", err)
	}
	listed, err := svc.ListByOrder(ctx, "42")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(again) != 3 || len(listed) != 3 {
		t.Fatalf("expected 3 payments after replay, got %d/%d", len(again), len(listed))
	}
	if fake.PaymentFetches != fetches {
		t.Fatalf("expected known payments not to be re-fetched")
	}
}

func TestApplyRemoteState(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	_, _, err := svc.RecordRemote(ctx, "gocardless", "42", gocardless.Payment{ID: "PM1", Amount: 100, Currency: "GBP", Status: "submitted"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	payment, changed, err := svc.ApplyRemoteState(ctx, "gocardless", "PM1", paymentdomain.StateCompleted, "confirmed")
	if err != nil || !changed || payment.State != paymentdomain.StateCompleted {
		t.Fatalf("expected transition, got %+v changed=%v err=%v", payment, changed, err)
	}
	_, changed, err = svc.ApplyRemoteState(ctx, "gocardless", "PM1", paymentdomain.StateCompleted, "confirmed")
	if err != nil || changed {
		t.Fatalf("expected no-op, got changed=%v err=%v", changed, err)
	}
	if _, _, err := svc.ApplyRemoteState(ctx, "gocardless", "PM404", paymentdomain.StateFailed, "failed"); err != paymentdomain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
