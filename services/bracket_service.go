package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/Dosada05/esports-arena/brackets"
	"github.com/Dosada05/esports-arena/models"
	"github.com/Dosada05/esports-arena/repositories"
)

// BracketService builds the single-elimination bracket and serves assembled
// bracket views. Building is a one-shot operation guarded by the
// tournament's has_bracket flag.
type BracketService struct {
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	matchRepo       repositories.MatchRepository
	txRunner        repositories.TxRunner
	hub             *brackets.Hub
	clock           clockwork.Clock
	logger          *slog.Logger
}

func NewBracketService(
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	matchRepo repositories.MatchRepository,
	txRunner repositories.TxRunner,
	hub *brackets.Hub,
	clock clockwork.Clock,
	logger *slog.Logger,
) *BracketService {
	return &BracketService{
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		matchRepo:       matchRepo,
		txRunner:        txRunner,
		hub:             hub,
		clock:           clock,
		logger:          logger,
	}
}

// BuildBracket seeds and persists the full bracket for a tournament whose
// registration has closed, resolves round-1 byes, and moves the tournament to
// ongoing. Seeding is by ascending slot number, so the bracket is
// deterministic for a given field.
func (s *BracketService) BuildBracket(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.HasBracket {
		return nil, ErrBracketAlreadyBuilt
	}
	if tournament.Status != models.TournamentRegistrationClosed {
		return nil, newStateConflict("tournament", tournamentID,
			string(tournament.Status), string(models.TournamentOngoing))
	}

	seeds, err := s.confirmedSeeds(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	plan, err := brackets.PlanSingleElimination(seeds)
	if err != nil {
		if errors.Is(err, brackets.ErrNotEnoughParticipants) {
			return nil, ErrInsufficientParticipants
		}
		return nil, err
	}

	var created []*models.Match
	err = s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		// The flag flip doubles as the concurrency guard: a second builder
		// loses here and rolls back before inserting anything.
		if err := s.tournamentRepo.SetHasBracket(ctx, exec, tournamentID); err != nil {
			if errors.Is(err, repositories.ErrStaleUpdate) {
				return ErrBracketAlreadyBuilt
			}
			return err
		}

		created, err = s.persistPlan(ctx, exec, tournamentID, plan)
		if err != nil {
			return err
		}

		if err := s.tournamentRepo.UpdateStatus(ctx, exec, tournamentID,
			models.TournamentRegistrationClosed, models.TournamentOngoing); err != nil {
			return err
		}
		return s.participantRepo.UpdateStatusBulk(ctx, exec, tournamentID,
			[]models.ParticipantStatus{models.ParticipantRegistered, models.ParticipantCheckedIn},
			models.ParticipantPlaying)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bracket built",
		"tournament_id", tournamentID,
		"participants", len(seeds),
		"rounds", plan.Rounds,
		"byes", plan.Byes)
	s.hub.Publish(brackets.Event{
		Type:         brackets.EventBracketCreated,
		TournamentID: tournamentID,
		Payload:      created,
	})
	return created, nil
}

// confirmedSeeds returns the IDs of payment-confirmed, non-disqualified
// participants ordered by slot number ascending.
func (s *BracketService) confirmedSeeds(ctx context.Context, tournamentID int) ([]int, error) {
	participants, err := s.participantRepo.ListByTournament(ctx, nil, tournamentID, nil)
	if err != nil {
		return nil, err
	}
	seeds := make([]int, 0, len(participants))
	for _, p := range participants {
		if p.Confirmed() {
			seeds = append(seeds, p.ID)
		}
	}
	if len(seeds) < 2 {
		return nil, ErrInsufficientParticipants
	}
	return seeds, nil
}

// persistPlan inserts every planned match, wires the next-match links in a
// second pass (the targets need IDs first), then resolves round-1 byes.
func (s *BracketService) persistPlan(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, plan *brackets.Plan) ([]*models.Match, error) {
	type key struct{ round, number int }
	byKey := make(map[key]*models.Match, len(plan.Matches))
	created := make([]*models.Match, 0, len(plan.Matches))

	for _, planned := range plan.Matches {
		match := &models.Match{
			TournamentID:   tournamentID,
			RoundNumber:    planned.Round,
			MatchNumber:    planned.Number,
			Participant1ID: planned.Participant1ID,
			Participant2ID: planned.Participant2ID,
			Status:         models.MatchPending,
		}
		if err := s.matchRepo.Create(ctx, exec, match); err != nil {
			return nil, err
		}
		byKey[key{planned.Round, planned.Number}] = match
		created = append(created, match)
	}

	for _, planned := range plan.Matches {
		if planned.NextRound == 0 {
			continue
		}
		match := byKey[key{planned.Round, planned.Number}]
		next := byKey[key{planned.NextRound, planned.NextNumber}]
		slot := planned.WinnerToSlot
		if err := s.matchRepo.UpdateNextMatch(ctx, exec, match.ID, &next.ID, &slot); err != nil {
			return nil, err
		}
		match.NextMatchID = &next.ID
		match.WinnerToSlot = &slot
	}

	now := s.clock.Now()
	for _, planned := range plan.Matches {
		if !planned.Bye {
			continue
		}
		match := byKey[key{planned.Round, planned.Number}]
		winnerID := *match.Participant1ID
		if err := s.matchRepo.RecordResult(ctx, exec, match.ID, winnerID, 0, 0, nil, now); err != nil {
			return nil, fmt.Errorf("failed to resolve bye R%dM%d: %w", planned.Round, planned.Number, err)
		}
		match.Status = models.MatchCompleted
		match.WinnerID = &winnerID

		next := byKey[key{planned.NextRound, planned.NextNumber}]
		if err := s.matchRepo.SetParticipant(ctx, exec, next.ID, planned.WinnerToSlot, &winnerID); err != nil {
			return nil, err
		}
		if planned.WinnerToSlot == 1 {
			next.Participant1ID = &winnerID
		} else {
			next.Participant2ID = &winnerID
		}
	}
	return created, nil
}

// GetBracket returns the tournament with its participants and matches
// attached, fetched concurrently.
func (s *BracketService) GetBracket(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	var (
		tournament   *models.Tournament
		participants []*models.Participant
		matches      []*models.Match
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tournament, err = s.tournamentRepo.GetByID(gctx, nil, tournamentID)
		return err
	})
	g.Go(func() error {
		var err error
		participants, err = s.participantRepo.ListByTournament(gctx, nil, tournamentID, nil)
		return err
	})
	g.Go(func() error {
		var err error
		matches, err = s.matchRepo.ListByTournament(gctx, nil, tournamentID, nil, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tournament.Participants = make([]models.Participant, len(participants))
	for i, p := range participants {
		tournament.Participants[i] = *p
	}
	tournament.Matches = make([]models.Match, len(matches))
	for i, m := range matches {
		tournament.Matches[i] = *m
	}
	return tournament, nil
}
