package models

import "time"

// MatchStatus mirrors the match_status ENUM in the database.
type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchOngoing   MatchStatus = "ongoing"
	MatchCompleted MatchStatus = "completed"
	MatchCancelled MatchStatus = "cancelled"
)

// A pending match may complete directly: reporting a result on a pending
// match is treated as an implicit start. Reopening a completed match is not a
// transition; it only happens through the admin override path, which reverts
// downstream propagation in the same transaction.
var matchTransitions = map[MatchStatus][]MatchStatus{
	MatchPending:   {MatchOngoing, MatchCompleted, MatchCancelled},
	MatchOngoing:   {MatchCompleted, MatchCancelled},
	MatchCompleted: {},
	MatchCancelled: {},
}

func (s MatchStatus) CanTransitionTo(next MatchStatus) bool {
	for _, allowed := range matchTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Match is one node of a tournament's single-elimination bracket. The bracket
// is built once: NextMatchID and WinnerToSlot are fixed at build time and
// never re-pointed, so the next-links always form a tree rooted at the final.
type Match struct {
	ID           int `json:"id" db:"id"`
	TournamentID int `json:"tournament_id" db:"tournament_id"`
	RoundNumber  int `json:"round_number" db:"round_number"`
	MatchNumber  int `json:"match_number" db:"match_number"`

	// Nil participant slots are byes (round 1) or feeds not yet resolved.
	Participant1ID *int `json:"participant1_id,omitempty" db:"participant1_id"`
	Participant2ID *int `json:"participant2_id,omitempty" db:"participant2_id"`
	Score1         int  `json:"score1" db:"score1"`
	Score2         int  `json:"score2" db:"score2"`

	WinnerID *int        `json:"winner_id,omitempty" db:"winner_id"`
	Status   MatchStatus `json:"status" db:"status"`

	ScheduledTime *time.Time `json:"scheduled_time,omitempty" db:"scheduled_time"`
	StartedAt     *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	// NextMatchID is nil only for the final. WinnerToSlot is 1 if this match
	// feeds the next match's first slot, 2 for the second.
	NextMatchID  *int `json:"next_match_id,omitempty" db:"next_match_id"`
	WinnerToSlot *int `json:"winner_to_slot,omitempty" db:"winner_to_slot"`

	ResultDetails *string   `json:"result_details,omitempty" db:"result_details"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// HasParticipant reports whether id occupies one of the match's slots.
func (m *Match) HasParticipant(id int) bool {
	return (m.Participant1ID != nil && *m.Participant1ID == id) ||
		(m.Participant2ID != nil && *m.Participant2ID == id)
}

// OtherParticipant returns the occupant of the slot opposite to id, or nil.
func (m *Match) OtherParticipant(id int) *int {
	if m.Participant1ID != nil && *m.Participant1ID == id {
		return m.Participant2ID
	}
	if m.Participant2ID != nil && *m.Participant2ID == id {
		return m.Participant1ID
	}
	return nil
}

// SlotOf returns 1 or 2 for the slot occupied by id, 0 if absent.
func (m *Match) SlotOf(id int) int {
	if m.Participant1ID != nil && *m.Participant1ID == id {
		return 1
	}
	if m.Participant2ID != nil && *m.Participant2ID == id {
		return 2
	}
	return 0
}

func (m *Match) Resolved() bool {
	return m.Status == MatchCompleted || m.Status == MatchCancelled
}
