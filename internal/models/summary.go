package models

// ParticipantSummary is one participant's calculated share of a bill.
// This is the output of the allocation algorithm and is never persisted.
type ParticipantSummary struct {
	Participant

	// Items are participant-scoped copies of the bill items they selected,
	// with Quantity and TotalPrice reflecting the selection.
	Items []BillItem `json:"items"`

	// SubTotal is the sum of Items[].TotalPrice.
	SubTotal float64 `json:"subTotal"`

	// Tax, ServiceCharge and Discount are proportional shares:
	// charge × (SubTotal / bill SubTotal).
	Tax           float64 `json:"tax"`
	ServiceCharge float64 `json:"serviceCharge"`
	Discount      float64 `json:"discount"`

	// Total is what the participant owes. For the participant absorbing
	// reconciliation drift it may differ slightly from the sum of the parts.
	Total float64 `json:"total"`
}

// SessionSummary pairs a session with the per-participant breakdown,
// in the same order as Session.Participants.
type SessionSummary struct {
	Session      Session              `json:"session"`
	Participants []ParticipantSummary `json:"participants"`
}
