package orders

import (
	"testing"

	"github.com/castlemart/castlemart-backend/pkg/enums"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
)

func TestTransitionTable(t *testing.T) {
	t.Parallel()

	allowed := map[[2]enums.OrderStatus]bool{
		{enums.OrderStatusPending, enums.OrderStatusPaid}:      true,
		{enums.OrderStatusPending, enums.OrderStatusCanceled}:  true,
		{enums.OrderStatusPaid, enums.OrderStatusShipped}:      true,
		{enums.OrderStatusPaid, enums.OrderStatusCanceled}:     true,
		{enums.OrderStatusShipped, enums.OrderStatusDelivered}: true,
	}

	statuses := []enums.OrderStatus{
		enums.OrderStatusPending,
		enums.OrderStatusPaid,
		enums.OrderStatusShipped,
		enums.OrderStatusDelivered,
		enums.OrderStatusCanceled,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]enums.OrderStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}

			err := GuardTransition(from, to)
			if want && err != nil {
				t.Errorf("GuardTransition(%s, %s) unexpectedly failed: %v", from, to, err)
			}
			if !want {
				typed := pkgerrors.As(err)
				if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
					t.Errorf("GuardTransition(%s, %s) expected state conflict, got %v", from, to, err)
					continue
				}
				details, ok := typed.Details().(TransitionDetails)
				if !ok || details.From != from || details.To != to {
					t.Errorf("GuardTransition(%s, %s) details = %+v", from, to, typed.Details())
				}
			}
		}
	}
}

func TestGuardTransitionRejectsSameStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []enums.OrderStatus{
		enums.OrderStatusPending,
		enums.OrderStatusPaid,
		enums.OrderStatusShipped,
		enums.OrderStatusDelivered,
		enums.OrderStatusCanceled,
	} {
		if err := GuardTransition(status, status); err == nil {
			t.Errorf("expected %s -> %s to be rejected", status, status)
		}
	}
}

func TestGuardTransitionRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	if err := GuardTransition("archived", enums.OrderStatusPaid); err == nil {
		t.Fatal("expected unknown source status to be rejected")
	}
	if err := GuardTransition(enums.OrderStatusPending, "archived"); err == nil {
		t.Fatal("expected unknown target status to be rejected")
	}
}

func TestTerminalStatusesAdmitNothing(t *testing.T) {
	t.Parallel()

	if next := NextStatuses(enums.OrderStatusDelivered); len(next) != 0 {
		t.Fatalf("delivered should be terminal, got %v", next)
	}
	if next := NextStatuses(enums.OrderStatusCanceled); len(next) != 0 {
		t.Fatalf("canceled should be terminal, got %v", next)
	}
}

func TestTimestampColumnMapping(t *testing.T) {
	t.Parallel()

	cases := map[enums.OrderStatus]string{
		enums.OrderStatusPaid:      "paid_at",
		enums.OrderStatusShipped:   "shipped_at",
		enums.OrderStatusDelivered: "delivered_at",
		enums.OrderStatusCanceled:  "canceled_at",
		enums.OrderStatusPending:   "",
	}
	for status, want := range cases {
		if got := timestampColumn(status); got != want {
			t.Errorf("timestampColumn(%s) = %q, want %q", status, got, want)
		}
	}
}
