package webhook

import (
	"github.com/smallbiznis/directdebit/internal/gocardless"
	mandatedomain "github.com/smallbiznis/directdebit/internal/mandate/domain"
	paymentdomain "github.com/smallbiznis/directdebit/internal/payment/domain"
)

// Transition is the effect of a payment action. An empty State keeps the
// local state and only records the remote one. Reopens marks the actions
// allowed to move a payment out of a failure state.
type Transition struct {
	RemoteState string
	State       paymentdomain.State
	Reopens     bool
}

var paymentTransitions = map[string]Transition{
	"created":                   {RemoteState: gocardless.PaymentStatusPendingSubmission},
	"customer_approval_granted": {RemoteState: gocardless.PaymentStatusPendingSubmission},
	"customer_approval_denied":  {RemoteState: gocardless.PaymentStatusCustomerApprovalDenied, State: paymentdomain.StateFailed},
	"submitted":                 {RemoteState: gocardless.PaymentStatusSubmitted},
	"confirmed":                 {RemoteState: gocardless.PaymentStatusConfirmed, State: paymentdomain.StateCompleted},
	"paid_out":                  {RemoteState: gocardless.PaymentStatusPaidOut, State: paymentdomain.StateCompleted},
	"cancelled":                 {RemoteState: gocardless.PaymentStatusCancelled, State: paymentdomain.StateCancelled},
	"failed":                    {RemoteState: gocardless.PaymentStatusFailed, State: paymentdomain.StateFailed},
	"charged_back":              {RemoteState: gocardless.PaymentStatusChargedBack, State: paymentdomain.StateFailed},
	"chargeback_cancelled":      {RemoteState: gocardless.PaymentStatusPaidOut, State: paymentdomain.StateCompleted, Reopens: true},
	"chargeback_settled":        {RemoteState: gocardless.PaymentStatusChargedBack, State: paymentdomain.StateFailed},
	"late_failure_settled":      {RemoteState: gocardless.PaymentStatusFailed, State: paymentdomain.StateFailed},
	"resubmission_requested":    {RemoteState: gocardless.PaymentStatusPendingSubmission, State: paymentdomain.StatePendingCapture, Reopens: true},
}

// remoteProgress ranks the forward path of a payment. Failure states are
// unranked and reachable from anywhere.
var remoteProgress = map[string]int{
	gocardless.PaymentStatusPendingCustomerApproval: 0,
	gocardless.PaymentStatusPendingSubmission:       1,
	gocardless.PaymentStatusSubmitted:               2,
	gocardless.PaymentStatusConfirmed:               3,
	gocardless.PaymentStatusPaidOut:                 4,
}

// Stale reports whether applying t over the current remote state would move
// the payment backwards, as happens when events arrive out of order.
func (t Transition) Stale(current string) bool {
	next, ok := remoteProgress[t.RemoteState]
	if !ok || current == "" {
		return false
	}
	if rank, ok := remoteProgress[current]; ok {
		return next < rank
	}
	return !t.Reopens
}

// PaymentTransition maps a payment webhook action. Unknown actions report false.
func PaymentTransition(action string) (Transition, bool) {
	t, ok := paymentTransitions[action]
	return t, ok
}

var mandateStatuses = map[string]mandatedomain.Status{
	"created":                   mandatedomain.StatusPendingSubmission,
	"customer_approval_granted": mandatedomain.StatusPendingSubmission,
	"customer_approval_skipped": mandatedomain.StatusPendingSubmission,
	"resubmission_requested":    mandatedomain.StatusPendingSubmission,
	"submitted":                 mandatedomain.StatusSubmitted,
	"active":                    mandatedomain.StatusActive,
	"reinstated":                mandatedomain.StatusActive,
	"failed":                    mandatedomain.StatusFailed,
	"cancelled":                 mandatedomain.StatusCancelled,
	"expired":                   mandatedomain.StatusExpired,
}

func MandateStatus(action string) (mandatedomain.Status, bool) {
	s, ok := mandateStatuses[action]
	return s, ok
}
