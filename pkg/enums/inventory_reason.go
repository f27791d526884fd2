package enums

import "fmt"

// InventoryReason explains why a ledger entry changed product stock.
type InventoryReason string

const (
	InventoryReasonOrderCreate      InventoryReason = "order_create"
	InventoryReasonOrderCancel      InventoryReason = "order_cancel"
	InventoryReasonManualAdjustment InventoryReason = "manual_adjustment"
)

var validInventoryReasons = []InventoryReason{
	InventoryReasonOrderCreate,
	InventoryReasonOrderCancel,
	InventoryReasonManualAdjustment,
}

// String implements fmt.Stringer.
func (r InventoryReason) String() string {
	return string(r)
}

// IsValid reports whether the value is a known InventoryReason.
func (r InventoryReason) IsValid() bool {
	for _, candidate := range validInventoryReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseInventoryReason converts raw input into an InventoryReason.
func ParseInventoryReason(value string) (InventoryReason, error) {
	for _, candidate := range validInventoryReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory reason %q", value)
}
