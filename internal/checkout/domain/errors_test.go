package domain

import (
	"errors"
	"testing"
)

func TestDeclineErrorMatchesBothChains(t *testing.T) {
	cause := errors.New("mandate cancelled")
	err := error(Decline("Invalid debit mandate", cause))

	if !errors.Is(err, ErrHardDecline) {
		t.Fatalf("expected hard decline")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved")
	}
	var decline *DeclineError
	if !errors.As(err, &decline) || decline.Reason != "Invalid debit mandate" {
		t.Fatalf("expected decline reason, got %v", err)
	}
	if errors.Is(err, ErrTransientFailure) {
		t.Fatalf("decline must not be transient")
	}
}

func TestPlanCloneIsDeep(t *testing.T) {
	plan := Plan{Entries: []PlanEntry{NewScheduleEntry(ScheduleEntry{
		Instalments: Instalments{Amounts: []int64{1, 2}},
		Metadata:    map[string]string{"order": "1"},
	})}}

	clone := plan.Clone()
	clone.Entries[0].Schedule.Instalments.Amounts[0] = 99
	clone.Entries[0].Schedule.Metadata["order"] = "2"

	if plan.Entries[0].Schedule.Instalments.Amounts[0] != 1 || plan.Entries[0].Schedule.Metadata["order"] != "1" {
		t.Fatalf("expected original plan to be untouched")
	}
}
