package orders

import (
	"fmt"

	"github.com/castlemart/castlemart-backend/pkg/enums"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
)

// transitions is the authoritative order lifecycle table. A pair absent from
// the table is illegal, including same-status pairs; delivered and canceled
// admit nothing.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:   {enums.OrderStatusPaid, enums.OrderStatusCanceled},
	enums.OrderStatusPaid:      {enums.OrderStatusShipped, enums.OrderStatusCanceled},
	enums.OrderStatusShipped:   {enums.OrderStatusDelivered},
	enums.OrderStatusDelivered: nil,
	enums.OrderStatusCanceled:  nil,
}

// TransitionDetails is attached to IllegalTransition errors.
type TransitionDetails struct {
	From enums.OrderStatus `json:"from"`
	To   enums.OrderStatus `json:"to"`
}

// CanTransition reports whether from → to is in the lifecycle table.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// GuardTransition returns nil when from → to is legal and an IllegalTransition
// error otherwise. Callers rely on the guard rejecting before any mutation.
func GuardTransition(from, to enums.OrderStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("order cannot move from %s to %s", from, to)).
		WithDetails(TransitionDetails{From: from, To: to})
}

// NextStatuses returns the statuses reachable from the given one.
func NextStatuses(from enums.OrderStatus) []enums.OrderStatus {
	next := make([]enums.OrderStatus, len(transitions[from]))
	copy(next, transitions[from])
	return next
}

// timestampColumn maps a target status to the lifecycle stamp it sets. The
// stamp is written by the transition that reaches the status and never cleared.
func timestampColumn(to enums.OrderStatus) string {
	switch to {
	case enums.OrderStatusPaid:
		return "paid_at"
	case enums.OrderStatusShipped:
		return "shipped_at"
	case enums.OrderStatusDelivered:
		return "delivered_at"
	case enums.OrderStatusCanceled:
		return "canceled_at"
	default:
		return ""
	}
}
