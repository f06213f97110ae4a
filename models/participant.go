package models

import "time"

// ParticipantStatus mirrors the participant_status ENUM in the database.
type ParticipantStatus string

const (
	ParticipantRegistered   ParticipantStatus = "registered"
	ParticipantCheckedIn    ParticipantStatus = "checked_in"
	ParticipantPlaying      ParticipantStatus = "playing"
	ParticipantDisqualified ParticipantStatus = "disqualified"
	ParticipantCompleted    ParticipantStatus = "completed"
)

// Disqualification is reachable from any state, including completed: a rules
// violation discovered after the fact still voids the result.
var participantTransitions = map[ParticipantStatus][]ParticipantStatus{
	ParticipantRegistered:   {ParticipantCheckedIn, ParticipantPlaying, ParticipantDisqualified},
	ParticipantCheckedIn:    {ParticipantPlaying, ParticipantDisqualified},
	ParticipantPlaying:      {ParticipantCompleted, ParticipantDisqualified},
	ParticipantCompleted:    {ParticipantDisqualified},
	ParticipantDisqualified: {},
}

func (s ParticipantStatus) CanTransitionTo(next ParticipantStatus) bool {
	for _, allowed := range participantTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentState tracks the provisional-reservation window: a slot is held from
// the moment the participant row exists, but the registration only becomes
// durable once the wallet debit is confirmed.
type PaymentState string

const (
	PaymentPending   PaymentState = "pending"
	PaymentConfirmed PaymentState = "confirmed"
)

type Participant struct {
	ID           int               `json:"id" db:"id"`
	TournamentID int               `json:"tournament_id" db:"tournament_id"`
	UserID       int               `json:"user_id" db:"user_id"`
	TeamName     string            `json:"team_name" db:"team_name"`
	InGameName   string            `json:"in_game_name" db:"in_game_name"`
	InGameID     string            `json:"in_game_id" db:"in_game_id"`
	EntryFeePaid int64             `json:"entry_fee_paid" db:"entry_fee_paid"`
	PaymentState PaymentState      `json:"payment_state" db:"payment_state"`
	Status       ParticipantStatus `json:"status" db:"status"`
	CheckedInAt  *time.Time        `json:"checked_in_at,omitempty" db:"checked_in_at"`
	SlotNumber   int               `json:"slot_number" db:"slot_number"`

	// Performance tracking, feeds the payout tie-breaker.
	Kills  int `json:"kills" db:"kills"`
	Points int `json:"points" db:"points"`

	FinalPosition  *int       `json:"final_position,omitempty" db:"final_position"`
	PrizeWon       int64      `json:"prize_won" db:"prize_won"`
	PrizeClaimed   bool       `json:"prize_claimed" db:"prize_claimed"`
	PrizeClaimedAt *time.Time `json:"prize_claimed_at,omitempty" db:"prize_claimed_at"`

	ScreenshotKey *string `json:"-" db:"screenshot_key"`
	ScreenshotURL *string `json:"screenshot_url,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Confirmed reports whether the registration survived the payment window and
// still counts toward the bracket.
func (p *Participant) Confirmed() bool {
	return p.PaymentState == PaymentConfirmed && p.Status != ParticipantDisqualified
}
