package calculator

import (
	"errors"
	"fmt"

	"github.com/mmynk/splitsession/internal/models"
)

var (
	ErrUnknownItem  = errors.New("item not found on bill")
	ErrInvalidDelta = errors.New("selection can only change by +1 or -1")
)

// SelectedQuantity returns the quantity selected for itemID, or 0 if there is none.
func SelectedQuantity(selections []models.ParticipantSelection, itemID string) int {
	for _, s := range selections {
		if s.ItemID == itemID {
			return s.Quantity
		}
	}
	return 0
}

// AdjustSelection changes the selected quantity of one item by delta (+1 or -1).
// The new quantity is clamped to [0, item.Quantity], and a selection that reaches 0 is
// removed rather than stored as zero. A new slice is returned; selections is not modified.
func AdjustSelection(bill models.Bill, selections []models.ParticipantSelection, itemID string, delta int) ([]models.ParticipantSelection, error) {
	if delta != 1 && delta != -1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDelta, delta)
	}
	item := bill.FindItem(itemID)
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}

	newQty := clamp(SelectedQuantity(selections, itemID)+delta, 0, item.Quantity)

	out := make([]models.ParticipantSelection, 0, len(selections)+1)
	found := false
	for _, s := range selections {
		if s.ItemID != itemID {
			out = append(out, s)
			continue
		}
		found = true
		if newQty > 0 {
			out = append(out, models.ParticipantSelection{ItemID: itemID, Quantity: newQty})
		}
	}
	if !found && newQty > 0 {
		out = append(out, models.ParticipantSelection{ItemID: itemID, Quantity: newQty})
	}
	return out, nil
}

// PruneSelections reconciles selections with an edited bill: selections for items that
// no longer exist are dropped, and quantities are clamped to the item's new quantity.
func PruneSelections(bill models.Bill, selections []models.ParticipantSelection) []models.ParticipantSelection {
	var out []models.ParticipantSelection
	for _, s := range selections {
		item := bill.FindItem(s.ItemID)
		if item == nil {
			continue
		}
		qty := clamp(s.Quantity, 0, item.Quantity)
		if qty == 0 {
			continue
		}
		out = append(out, models.ParticipantSelection{ItemID: s.ItemID, Quantity: qty})
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
