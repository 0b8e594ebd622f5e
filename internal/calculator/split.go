package calculator

import (
	"math"
	"sort"

	"github.com/mmynk/splitsession/internal/models"
)

// ReconcileThreshold is the largest drift between the summed participant totals and
// the bill total that is left uncorrected (one cent/paisa).
const ReconcileThreshold = 0.01

// ParticipantItems resolves a participant's selections against the bill.
// Each selected item is returned as a participant-scoped copy with Quantity set to the
// selected quantity and TotalPrice = UnitPrice × Quantity. Items without a selection,
// or with a non-positive selected quantity, are skipped. The bill is not modified.
func ParticipantItems(bill models.Bill, selections []models.ParticipantSelection) []models.BillItem {
	items := []models.BillItem{}
	if len(selections) == 0 {
		return items
	}

	for _, item := range bill.Items {
		qty := SelectedQuantity(selections, item.ID)
		if qty <= 0 {
			continue
		}
		scoped := item
		scoped.Quantity = qty
		scoped.TotalPrice = item.UnitPrice * float64(qty)
		items = append(items, scoped)
	}
	return items
}

// ParticipantSubtotal sums the TotalPrice of the given items.
func ParticipantSubtotal(items []models.BillItem) float64 {
	subtotal := 0.0
	for _, item := range items {
		subtotal += item.TotalPrice
	}
	return subtotal
}

// ProportionalAmount returns amount × (participantSubtotal / billSubtotal).
// A bill with a zero subtotal gives nobody a share.
func ProportionalAmount(amount, participantSubtotal, billSubtotal float64) float64 {
	if billSubtotal == 0 {
		return 0
	}
	return (participantSubtotal / billSubtotal) * amount
}

// CalculateSessionSummary computes each participant's share of the bill.
//
// Algorithm:
//   - person_subtotal = Σ unit_price × selected_quantity
//   - person_{tax,service,discount} = charge × (person_subtotal / bill_subtotal)
//   - person_total = subtotal + tax + service - discount
//
// If the summed totals drift from bill.Charges.Total by more than ReconcileThreshold,
// the whole difference is added to the participant with the largest total.
//
// The result has the same length and order as participants. Inputs are never mutated,
// and the same inputs always produce the same output.
func CalculateSessionSummary(bill models.Bill, participants []models.Participant) models.SessionSummary {
	summaries := make([]models.ParticipantSummary, 0, len(participants))
	sum := 0.0

	for _, p := range participants {
		summary := summarizeParticipant(bill, p)
		sum += summary.Total
		summaries = append(summaries, summary)
	}

	reconcile(summaries, bill.Charges.Total-sum)

	session := models.Session{Bill: bill.Clone()}
	if participants != nil {
		session.Participants = make([]models.Participant, len(participants))
		for i, p := range participants {
			session.Participants[i] = p.Clone()
		}
	}

	return models.SessionSummary{
		Session:      session,
		Participants: summaries,
	}
}

// SummarizeSession runs CalculateSessionSummary for a stored session and attaches it.
func SummarizeSession(session *models.Session) models.SessionSummary {
	summary := CalculateSessionSummary(session.Bill, session.Participants)
	summary.Session = *session.Clone()
	return summary
}

func summarizeParticipant(bill models.Bill, p models.Participant) models.ParticipantSummary {
	items := ParticipantItems(bill, p.Selections)
	subTotal := ParticipantSubtotal(items)
	billSubTotal := bill.Charges.SubTotal

	tax := ProportionalAmount(bill.Charges.Tax, subTotal, billSubTotal)
	service := ProportionalAmount(bill.Charges.ServiceCharge, subTotal, billSubTotal)
	discount := ProportionalAmount(bill.Charges.Discount, subTotal, billSubTotal)

	return models.ParticipantSummary{
		Participant:   p.Clone(),
		Items:         items,
		SubTotal:      subTotal,
		Tax:           tax,
		ServiceCharge: service,
		Discount:      discount,
		Total:         subTotal + tax + service - discount,
	}
}

// reconcile adds roundingError to the largest total when it exceeds the threshold.
// Only Total is adjusted; the line items of that participant are left as computed.
func reconcile(summaries []models.ParticipantSummary, roundingError float64) bool {
	if len(summaries) == 0 || math.Abs(roundingError) <= ReconcileThreshold {
		return false
	}

	order := make([]int, len(summaries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return summaries[order[a]].Total > summaries[order[b]].Total
	})

	summaries[order[0]].Total += roundingError
	return true
}

// Reconciled reports whether the summary needed a rounding adjustment.
func Reconciled(summary models.SessionSummary) bool {
	sum := 0.0
	for _, p := range summary.Participants {
		sum += p.SubTotal + p.Tax + p.ServiceCharge - p.Discount
	}
	return len(summary.Participants) > 0 &&
		math.Abs(summary.Session.Bill.Charges.Total-sum) > ReconcileThreshold
}
