package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/directdebit/internal/payment/domain"
	"github.com/smallbiznis/directdebit/internal/payment/repository"
	"github.com/smallbiznis/directdebit/internal/testutil/testdb"
	"gorm.io/datatypes"
)

func TestInsertIfAbsentDedupesByRemoteID(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	node := testdb.Node(t)
	repo := repository.Provide()
	now := time.Now().UTC()

	first := &domain.Payment{
		ID: node.Generate(), OrderID: "42", GatewayID: "gocardless",
		Amount: 4999, Currency: "GBP", State: domain.StatePendingCapture,
		RemoteID: "PM123", RemoteState: "pending_submission", CreatedAt: now, UpdatedAt: now,
	}
	inserted, err := repo.InsertIfAbsent(ctx, db, first)
	if err != nil || !inserted {
		t.Fatalf("expected insert, got inserted=%v err=%v", inserted, err)
	}

	dup := *first
	dup.ID = node.Generate()
	inserted, err = repo.InsertIfAbsent(ctx, db, &dup)
	if err != nil {
		t.Fatalf("insert duplicate: %v", err)
	}
	if inserted {
		t.Fatalf("expected duplicate remote id to be skipped")
	}

	items, err := repo.ListByOrder(ctx, db, "42")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].ID != first.ID {
		t.Fatalf("expected the original payment only, got %+v", items)
	}
}

func TestUpdateStateReportsChange(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	node := testdb.Node(t)
	repo := repository.Provide()
	now := time.Now().UTC()

	payment := &domain.Payment{
		ID: node.Generate(), OrderID: "7", GatewayID: "gocardless",
		Amount: 100, Currency: "GBP", State: domain.StatePendingCapture,
		RemoteID: "PM1", RemoteState: "submitted", CreatedAt: now, UpdatedAt: now,
	}
	if err := repo.Insert(ctx, db, payment); err != nil {
		t.Fatalf("insert: %v", err)
	}

	changed, err := repo.UpdateState(ctx, db, payment.ID, domain.StateCompleted, "confirmed", now)
	if err != nil || !changed {
		t.Fatalf("expected change, got changed=%v err=%v", changed, err)
	}
	changed, err = repo.UpdateState(ctx, db, payment.ID, domain.StateCompleted, "confirmed", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("update again: %v", err)
	}
	if changed {
		t.Fatalf("expected second identical update to be a no-op")
	}

	stored, err := repo.FindByRemoteID(ctx, db, "gocardless", "PM1")
	if err != nil || stored == nil {
		t.Fatalf("find: %v", err)
	}
	if stored.State != domain.StateCompleted || stored.RemoteState != "confirmed" {
		t.Fatalf("unexpected state %s/%s", stored.State, stored.RemoteState)
	}

	missing, err := repo.FindByRemoteID(ctx, db, "gocardless", "PM404")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown remote id, got %+v err=%v", missing, err)
	}
}

func TestWebhookEventLog(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	node := testdb.Node(t)
	repo := repository.Provide()
	now := time.Now().UTC()

	event := &domain.WebhookEvent{
		ID: node.Generate(), GatewayID: "gocardless", EventID: "EV1",
		ResourceType: "payments", Action: "confirmed", ResourceID: "PM1",
		Payload: datatypes.JSON(`{"id":"EV1"}`), ReceivedAt: now,
	}
	inserted, err := repo.InsertEvent(ctx, db, event)
	if err != nil || !inserted {
		t.Fatalf("expected insert, got inserted=%v err=%v", inserted, err)
	}

	replay := *event
	replay.ID = node.Generate()
	inserted, err = repo.InsertEvent(ctx, db, &replay)
	if err != nil || inserted {
		t.Fatalf("expected replay to be skipped, got inserted=%v err=%v", inserted, err)
	}

	if err := repo.MarkEventProcessed(ctx, db, event.ID, domain.EventStatusProcessed, now); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	stored, err := repo.FindEvent(ctx, db, "gocardless", "EV1")
	if err != nil || stored == nil {
		t.Fatalf("find event: %v", err)
	}
	if stored.ProcessedAt == nil || stored.Status != domain.EventStatusProcessed {
		t.Fatalf("expected processed event, got %+v", stored)
	}
}
