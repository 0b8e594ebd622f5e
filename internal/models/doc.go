// Package models defines the core domain models for Splitsession.
//
// # Models
//
//   - Bill: the receipt being shared, with its line items and aggregate charges
//   - BillItem: a single line item on a bill
//   - Participant: a person claiming items in a session
//   - Session: a time-boxed sharing of one bill among participants
//   - ParticipantSummary / SessionSummary: derived per-participant breakdowns
//
// Participants are identified by IDs scoped to their session (no user accounts).
//
// # Design Principles
//
// 1. **Bills are authoritative**: charges.Total is what the group owes; summaries reconcile to it
// 2. **Summaries are projections**: they are recomputed on demand and never stored
// 3. **Avoid circular references**: selections reference items by ID, not pointer
// 4. **Whole-record persistence**: a Session is read and replaced as one document
package models
