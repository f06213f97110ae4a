package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jonboulle/clockwork"

	"github.com/Dosada05/esports-arena/brackets"
	"github.com/Dosada05/esports-arena/models"
	"github.com/Dosada05/esports-arena/repositories"
)

// TieBreaker orders two participants who finished at the same bracket
// position. It reports whether a ranks ahead of b.
type TieBreaker func(a, b *models.Participant) bool

// DefaultTieBreaker ranks by points, then kills, then the lower slot number.
func DefaultTieBreaker(a, b *models.Participant) bool {
	if a.Points != b.Points {
		return a.Points > b.Points
	}
	if a.Kills != b.Kills {
		return a.Kills > b.Kills
	}
	return a.SlotNumber < b.SlotNumber
}

// Payout is one line of a committed payout table.
type Payout struct {
	ParticipantID int   `json:"participant_id"`
	UserID        int   `json:"user_id"`
	Rank          int   `json:"rank"`
	Amount        int64 `json:"amount"`
}

// PayoutService turns final bracket positions into prize assignments. Commit
// is idempotent: the results_published flag flips exactly once, and a second
// commit is a no-op.
type PayoutService struct {
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	txRunner        repositories.TxRunner
	hub             *brackets.Hub
	clock           clockwork.Clock
	logger          *slog.Logger
	tieBreaker      TieBreaker
}

func NewPayoutService(
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	txRunner repositories.TxRunner,
	hub *brackets.Hub,
	clock clockwork.Clock,
	logger *slog.Logger,
) *PayoutService {
	return &PayoutService{
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		txRunner:        txRunner,
		hub:             hub,
		clock:           clock,
		logger:          logger,
		tieBreaker:      DefaultTieBreaker,
	}
}

// SetTieBreaker replaces the tie-break comparator. Call before serving
// traffic.
func (s *PayoutService) SetTieBreaker(tb TieBreaker) {
	if tb != nil {
		s.tieBreaker = tb
	}
}

// CommitPayouts ranks the field by final position (ties broken by the
// configured comparator), assigns amounts from the tournament's prize table
// by rank, and publishes the results. Re-committing a published tournament
// is a no-op that returns the already-committed table.
func (s *PayoutService) CommitPayouts(ctx context.Context, tournamentID int) ([]Payout, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.ResultsPublished {
		return s.committedPayouts(ctx, tournamentID)
	}
	if tournament.Status != models.TournamentCompleted {
		return nil, newStateConflict("tournament", tournamentID,
			string(tournament.Status), "payouts committed")
	}

	var payouts []Payout
	err = s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		// First writer wins; a concurrent commit sees ErrStaleUpdate here
		// and rolls back with nothing assigned twice.
		if err := s.tournamentRepo.SetResultsPublished(ctx, exec, tournamentID); err != nil {
			return err
		}

		participants, err := s.participantRepo.ListByTournament(ctx, exec, tournamentID, nil)
		if err != nil {
			return err
		}
		ranked := s.rank(participants)

		var total int64
		for i, p := range ranked {
			rank := i + 1
			amount := tournament.PrizeFor(rank)
			if amount == 0 {
				continue
			}
			total += amount
			if total > tournament.PrizePool {
				return fmt.Errorf("payout total %d exceeds prize pool %d for tournament %d",
					total, tournament.PrizePool, tournamentID)
			}
			if err := s.participantRepo.SetPrize(ctx, exec, p.ID, amount); err != nil {
				return err
			}
			payouts = append(payouts, Payout{
				ParticipantID: p.ID,
				UserID:        p.UserID,
				Rank:          rank,
				Amount:        amount,
			})
		}
		return nil
	})
	if errors.Is(err, repositories.ErrStaleUpdate) {
		// A concurrent commit won the publish race; hand back its table.
		return s.committedPayouts(ctx, tournamentID)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("payouts committed", "tournament_id", tournamentID, "payouts", len(payouts))
	s.hub.Publish(brackets.Event{
		Type:         brackets.EventPayoutsPublished,
		TournamentID: tournamentID,
		Payload:      payouts,
	})
	return payouts, nil
}

// committedPayouts reconstructs the payout table of a published tournament
// from the persisted prize assignments, in the same rank order the commit
// produced.
func (s *PayoutService) committedPayouts(ctx context.Context, tournamentID int) ([]Payout, error) {
	participants, err := s.participantRepo.ListByTournament(ctx, nil, tournamentID, nil)
	if err != nil {
		return nil, err
	}
	var payouts []Payout
	for i, p := range s.rank(participants) {
		if p.PrizeWon == 0 {
			continue
		}
		payouts = append(payouts, Payout{
			ParticipantID: p.ID,
			UserID:        p.UserID,
			Rank:          i + 1,
			Amount:        p.PrizeWon,
		})
	}
	return payouts, nil
}

// rank orders prize-eligible participants: confirmed, not disqualified, with
// a recorded final position. Position ascending, ties broken by the
// comparator.
func (s *PayoutService) rank(participants []*models.Participant) []*models.Participant {
	eligible := make([]*models.Participant, 0, len(participants))
	for _, p := range participants {
		if p.Confirmed() && p.FinalPosition != nil {
			eligible = append(eligible, p)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if *a.FinalPosition != *b.FinalPosition {
			return *a.FinalPosition < *b.FinalPosition
		}
		return s.tieBreaker(a, b)
	})
	return eligible
}

// ClaimPrize marks a participant's prize claimed, exactly once.
func (s *PayoutService) ClaimPrize(ctx context.Context, participantID int) (*models.Participant, error) {
	participant, err := s.participantRepo.GetByID(ctx, nil, participantID)
	if err != nil {
		return nil, err
	}
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, participant.TournamentID)
	if err != nil {
		return nil, err
	}
	if !tournament.ResultsPublished {
		return nil, newStateConflict("tournament", tournament.ID,
			string(tournament.Status), "prize claim")
	}

	if err := s.participantRepo.MarkPrizeClaimed(ctx, nil, participantID, s.clock.Now()); err != nil {
		if errors.Is(err, repositories.ErrStaleUpdate) {
			return nil, ErrPrizeNotClaimable
		}
		return nil, err
	}
	return s.participantRepo.GetByID(ctx, nil, participantID)
}
