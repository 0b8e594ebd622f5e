package models

import "time"

// Session is a time-boxed sharing of one bill among participants.
// It is persisted and replaced as a whole record.
type Session struct {
	// ID is the short opaque token used in share links.
	ID string `json:"id"`

	// Bill is the receipt being split.
	Bill Bill `json:"bill"`

	// Organizer is the display name of the person who created the session.
	Organizer string `json:"organizer"`

	// Participants are the people splitting the bill, in the order they were added.
	Participants []Participant `json:"participants"`

	// ExpiresAt is when the session locks automatically.
	ExpiresAt time.Time `json:"expiresAt"`

	// Locked prevents further selection changes. Once true it never reverts.
	Locked bool `json:"locked"`

	// Created is when the session was created.
	Created time.Time `json:"created"`
}

// Participant is a person claiming items in a session.
type Participant struct {
	// ID is unique within the session.
	ID string `json:"id"`

	Name string `json:"name"`

	// Email is optional and only used to disambiguate people with the same name.
	Email string `json:"email,omitempty"`

	// Selections holds at most one entry per bill item.
	Selections []ParticipantSelection `json:"selections,omitempty"`

	// Submitted is set once the participant finalizes their selections.
	Submitted bool `json:"submitted"`

	// Paid is a payment status flag toggled by the organizer.
	Paid bool `json:"paid"`
}

// ParticipantSelection is a participant's claimed quantity of one bill item.
type ParticipantSelection struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// FindParticipant returns the participant with the given ID, or nil.
func (s *Session) FindParticipant(participantID string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].ID == participantID {
			return &s.Participants[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	out := *s
	out.Bill = s.Bill.Clone()
	if s.Participants != nil {
		out.Participants = make([]Participant, len(s.Participants))
		for i, p := range s.Participants {
			out.Participants[i] = p.Clone()
		}
	}
	return &out
}

// Clone returns a deep copy of the participant.
func (p Participant) Clone() Participant {
	out := p
	if p.Selections != nil {
		out.Selections = make([]ParticipantSelection, len(p.Selections))
		copy(out.Selections, p.Selections)
	}
	return out
}
