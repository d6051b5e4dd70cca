package lock

import (
	"context"
	"testing"
	"time"
)

func TestNewWithoutClientIsNoop(t *testing.T) {
	locker := New(nil)
	if _, ok := locker.(Noop); !ok {
		t.Fatalf("expected noop locker, got %T", locker)
	}

	token, ok, err := locker.TryLock(context.Background(), TaskKey("gocardless", "IS1"), time.Minute)
	if err != nil || !ok || token == "" {
		t.Fatalf("expected lock to be granted, got token=%q ok=%v err=%v", token, ok, err)
	}
	if err := locker.Release(context.Background(), TaskKey("gocardless", "IS1"), token); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestTryLockValidatesInput(t *testing.T) {
	locker := New(nil)
	if _, _, err := locker.TryLock(context.Background(), "", time.Minute); err != ErrEmptyKey {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
	if _, _, err := locker.TryLock(context.Background(), "k", 0); err != ErrInvalidTTL {
		t.Fatalf("expected ErrInvalidTTL, got %v", err)
	}
}

func TestTaskKey(t *testing.T) {
	if got := TaskKey("gocardless", "IS1"); got != "directdebit:instalment:gocardless:IS1" {
		t.Fatalf("unexpected key %q", got)
	}
}
