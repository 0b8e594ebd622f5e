package calculator

import "github.com/mmynk/splitsession/internal/models"

// ParticipantDue is what one participant owes and whether it has been paid.
type ParticipantDue struct {
	ParticipantID string  `json:"participantId"`
	Name          string  `json:"name"`
	AmountDue     float64 `json:"amountDue"`
	Paid          bool    `json:"paid"`
}

// Collection summarizes payment progress for a session.
type Collection struct {
	Dues             []ParticipantDue `json:"dues"`
	TotalDue         float64          `json:"totalDue"`
	TotalPaid        float64          `json:"totalPaid"`
	TotalOutstanding float64          `json:"totalOutstanding"`
	AllSubmitted     bool             `json:"allSubmitted"`
	AllPaid          bool             `json:"allPaid"`
}

// CollectionStatus aggregates paid vs outstanding amounts from a summary.
// Amounts are rounded to cents for display; the summary itself is not changed.
func CollectionStatus(summary models.SessionSummary) Collection {
	c := Collection{
		Dues:         make([]ParticipantDue, 0, len(summary.Participants)),
		AllSubmitted: AllSubmitted(summary.Session.Participants),
		AllPaid:      true,
	}

	for _, p := range summary.Participants {
		due := RoundCents(p.Total)
		c.Dues = append(c.Dues, ParticipantDue{
			ParticipantID: p.ID,
			Name:          p.Name,
			AmountDue:     due,
			Paid:          p.Paid,
		})
		c.TotalDue += due
		if p.Paid {
			c.TotalPaid += due
		} else {
			c.TotalOutstanding += due
			if due != 0 {
				c.AllPaid = false
			}
		}
	}

	c.TotalDue = RoundCents(c.TotalDue)
	c.TotalPaid = RoundCents(c.TotalPaid)
	c.TotalOutstanding = RoundCents(c.TotalOutstanding)
	return c
}

// AllSubmitted reports whether every participant has submitted. A session with no
// participants is not considered submitted.
func AllSubmitted(participants []models.Participant) bool {
	if len(participants) == 0 {
		return false
	}
	for _, p := range participants {
		if !p.Submitted {
			return false
		}
	}
	return true
}
