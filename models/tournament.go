package models

import "time"

// TournamentStatus mirrors the tournament_status ENUM in the database.
type TournamentStatus string

const (
	TournamentUpcoming           TournamentStatus = "upcoming"
	TournamentRegistrationOpen   TournamentStatus = "registration_open"
	TournamentRegistrationClosed TournamentStatus = "registration_closed"
	TournamentOngoing            TournamentStatus = "ongoing"
	TournamentCompleted          TournamentStatus = "completed"
	TournamentCancelled          TournamentStatus = "cancelled"
)

// tournamentTransitions lists the legal forward edges. Terminal states have
// no outgoing edges; cancellation is reachable from every non-terminal state.
var tournamentTransitions = map[TournamentStatus][]TournamentStatus{
	TournamentUpcoming:           {TournamentRegistrationOpen, TournamentCancelled},
	TournamentRegistrationOpen:   {TournamentRegistrationClosed, TournamentCancelled},
	TournamentRegistrationClosed: {TournamentOngoing, TournamentCancelled},
	TournamentOngoing:            {TournamentCompleted, TournamentCancelled},
	TournamentCompleted:          {},
	TournamentCancelled:          {},
}

func (s TournamentStatus) CanTransitionTo(next TournamentStatus) bool {
	for _, allowed := range tournamentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s TournamentStatus) Terminal() bool {
	return len(tournamentTransitions[s]) == 0
}

// Prize maps a finishing position to a payout amount. Amounts are stored in
// the smallest currency unit.
type Prize struct {
	Position int   `json:"position"`
	Amount   int64 `json:"amount"`
}

// Tournament is the root aggregate. CurrentParticipants is a materialized
// counter maintained by conditional writes; the sweep reconciles it against
// the authoritative participant count.
type Tournament struct {
	ID                     int              `json:"id" db:"id"`
	Title                  string           `json:"title" db:"title"`
	Game                   string           `json:"game" db:"game"`
	Description            string           `json:"description" db:"description"`
	TotalSlots             int              `json:"total_slots" db:"total_slots"`
	EntryFee               int64            `json:"entry_fee" db:"entry_fee"`
	PrizePool              int64            `json:"prize_pool" db:"prize_pool"`
	Prizes                 []Prize          `json:"prizes" db:"-"`
	RegistrationDeadline   time.Time        `json:"registration_deadline" db:"registration_deadline"`
	StartTime              time.Time        `json:"start_time" db:"start_time"`
	EndTime                *time.Time       `json:"end_time,omitempty" db:"end_time"`
	Status                 TournamentStatus `json:"status" db:"status"`
	CurrentParticipants    int              `json:"current_participants" db:"current_participants"`
	MaxParticipantsPerUser int              `json:"max_participants_per_user" db:"max_participants_per_user"`
	ResultsPublished       bool             `json:"results_published" db:"results_published"`
	HasBracket             bool             `json:"has_bracket" db:"has_bracket"`
	CreatedAt              time.Time        `json:"created_at" db:"created_at"`

	BannerKey *string `json:"-" db:"banner_key"`
	BannerURL *string `json:"banner_url,omitempty" db:"-"`

	// Optional linked entities, populated by services.
	Participants []Participant `json:"participants,omitempty" db:"-"`
	Matches      []Match       `json:"matches,omitempty" db:"-"`
}

func (t *Tournament) SlotsRemaining() int {
	return t.TotalSlots - t.CurrentParticipants
}

func (t *Tournament) IsFull() bool {
	return t.CurrentParticipants >= t.TotalSlots
}

// PrizeFor returns the configured amount for a finishing position, or 0.
func (t *Tournament) PrizeFor(position int) int64 {
	for _, p := range t.Prizes {
		if p.Position == position {
			return p.Amount
		}
	}
	return 0
}

// TotalPrizes sums the configured prize table.
func (t *Tournament) TotalPrizes() int64 {
	var sum int64
	for _, p := range t.Prizes {
		sum += p.Amount
	}
	return sum
}
