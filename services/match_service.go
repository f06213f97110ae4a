package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Dosada05/esports-arena/brackets"
	"github.com/Dosada05/esports-arena/models"
	"github.com/Dosada05/esports-arena/repositories"
)

// ParticipantStats carries the performance numbers reported alongside a
// result.
type ParticipantStats struct {
	ParticipantID int `json:"participant_id"`
	Kills         int `json:"kills"`
	Points        int `json:"points"`
}

// ResultInput is a reported match outcome.
type ResultInput struct {
	WinnerID int                `json:"winner_id"`
	Score1   int                `json:"score1"`
	Score2   int                `json:"score2"`
	Details  *string            `json:"details,omitempty"`
	Stats    []ParticipantStats `json:"stats,omitempty"`
}

// MatchService advances the bracket: starting matches, recording results and
// propagating winners into their pre-wired next-match slots, resolving
// cancellations, and the admin override that reverts downstream propagation.
type MatchService struct {
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	matchRepo       repositories.MatchRepository
	txRunner        repositories.TxRunner
	hub             *brackets.Hub
	clock           clockwork.Clock
	logger          *slog.Logger
}

func NewMatchService(
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	matchRepo repositories.MatchRepository,
	txRunner repositories.TxRunner,
	hub *brackets.Hub,
	clock clockwork.Clock,
	logger *slog.Logger,
) *MatchService {
	return &MatchService{
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		matchRepo:       matchRepo,
		txRunner:        txRunner,
		hub:             hub,
		clock:           clock,
		logger:          logger,
	}
}

// StartMatch moves a pending match with both slots filled to ongoing.
func (s *MatchService) StartMatch(ctx context.Context, matchID int) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}
	if match.Participant1ID == nil || match.Participant2ID == nil {
		return nil, ErrMatchNotReady
	}
	if err := s.matchRepo.Start(ctx, nil, matchID, s.clock.Now()); err != nil {
		if errors.Is(err, repositories.ErrStaleUpdate) {
			fresh, getErr := s.matchRepo.GetByID(ctx, nil, matchID)
			if getErr != nil {
				return nil, getErr
			}
			return nil, newStateConflict("match", matchID, string(fresh.Status), string(models.MatchOngoing))
		}
		return nil, err
	}

	match, err = s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}
	s.hub.Publish(brackets.Event{
		Type:         brackets.EventMatchUpdated,
		TournamentID: match.TournamentID,
		Payload:      match,
	})
	return match, nil
}

// ReportResult records a match outcome and propagates the winner. Reporting
// on a pending match is an implicit start. Re-reporting the same winner is an
// idempotent no-op; a different winner is ErrResultConflict and needs the
// admin override. Resolving the final completes the tournament and assigns
// finishing positions.
func (s *MatchService) ReportResult(ctx context.Context, matchID int, input ResultInput) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, match.TournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.ResultsPublished {
		return nil, ErrResultsPublished
	}
	if match.Status == models.MatchCompleted {
		if match.WinnerID != nil && *match.WinnerID == input.WinnerID {
			return match, nil
		}
		return nil, ErrResultConflict
	}
	if match.Status == models.MatchCancelled {
		return nil, newStateConflict("match", matchID, string(match.Status), string(models.MatchCompleted))
	}
	if !match.HasParticipant(input.WinnerID) {
		if match.Participant1ID == nil || match.Participant2ID == nil {
			return nil, ErrMatchNotReady
		}
		return nil, ErrParticipantNotInMatch
	}
	if match.Participant1ID == nil || match.Participant2ID == nil {
		return nil, ErrMatchNotReady
	}

	var events []brackets.Event
	err = s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		maxRound, err := s.matchRepo.MaxRound(ctx, exec, match.TournamentID)
		if err != nil {
			return err
		}
		events, err = s.completeMatch(ctx, exec, tournament, match, input, maxRound, s.clock.Now())
		return err
	})
	if errors.Is(err, repositories.ErrStaleUpdate) {
		// The match resolved under us; re-read and apply the re-report rules.
		fresh, getErr := s.matchRepo.GetByID(ctx, nil, matchID)
		if getErr != nil {
			return nil, getErr
		}
		if fresh.Status == models.MatchCompleted && fresh.WinnerID != nil && *fresh.WinnerID == input.WinnerID {
			return fresh, nil
		}
		return nil, ErrResultConflict
	}
	if err != nil {
		return nil, err
	}

	for _, event := range events {
		s.hub.Publish(event)
	}
	return s.matchRepo.GetByID(ctx, nil, matchID)
}

// completeMatch records the result, writes reported stats, places the loser,
// and pushes the winner downstream. It recurses through auto-resolvable
// downstream matches (opponent's feeder cancelled) and finishes the
// tournament when the final resolves. Returned events are published by the
// caller after commit.
func (s *MatchService) completeMatch(
	ctx context.Context,
	exec repositories.SQLExecutor,
	tournament *models.Tournament,
	match *models.Match,
	input ResultInput,
	maxRound int,
	now time.Time,
) ([]brackets.Event, error) {
	if err := s.matchRepo.RecordResult(ctx, exec, match.ID,
		input.WinnerID, input.Score1, input.Score2, input.Details, now); err != nil {
		return nil, err
	}

	for _, stats := range input.Stats {
		if !match.HasParticipant(stats.ParticipantID) {
			return nil, newValidationError("stats for participant %d, who is not in match %d",
				stats.ParticipantID, match.ID)
		}
		if err := s.participantRepo.SetStats(ctx, exec, stats.ParticipantID, stats.Kills, stats.Points); err != nil {
			return nil, err
		}
	}

	if loserID := match.OtherParticipant(input.WinnerID); loserID != nil {
		placement := brackets.LoserPlacement(match.RoundNumber, maxRound)
		if err := s.placeParticipant(ctx, exec, *loserID, placement); err != nil {
			return nil, err
		}
	}

	events := []brackets.Event{{
		Type:         brackets.EventMatchUpdated,
		TournamentID: match.TournamentID,
		Payload:      map[string]interface{}{"match_id": match.ID, "winner_id": input.WinnerID},
	}}

	if match.NextMatchID == nil {
		if err := s.completeTournament(ctx, exec, tournament, input.WinnerID, now); err != nil {
			return nil, err
		}
		events = append(events, brackets.Event{
			Type:         brackets.EventTournamentCompleted,
			TournamentID: match.TournamentID,
			Payload:      map[string]interface{}{"winner_id": input.WinnerID},
		})
		return events, nil
	}

	downstream, err := s.propagateWinner(ctx, exec, tournament, match, input.WinnerID, maxRound, now)
	if err != nil {
		return nil, err
	}
	return append(events, downstream...), nil
}

// propagateWinner fills the winner's pre-wired slot in the next match. When
// the next match's other feeder was cancelled, the next match is a walkover
// and resolves immediately, recursing further down the bracket.
func (s *MatchService) propagateWinner(
	ctx context.Context,
	exec repositories.SQLExecutor,
	tournament *models.Tournament,
	match *models.Match,
	winnerID int,
	maxRound int,
	now time.Time,
) ([]brackets.Event, error) {
	next, err := s.matchRepo.GetByID(ctx, exec, *match.NextMatchID)
	if err != nil {
		return nil, err
	}
	slot := *match.WinnerToSlot
	if err := s.matchRepo.SetParticipant(ctx, exec, next.ID, slot, &winnerID); err != nil {
		return nil, err
	}
	if slot == 1 {
		next.Participant1ID = &winnerID
	} else {
		next.Participant2ID = &winnerID
	}

	otherSlot := 3 - slot
	if next.Participant1ID != nil && next.Participant2ID != nil {
		return nil, nil
	}
	cancelled, err := s.feederCancelled(ctx, exec, next, otherSlot)
	if err != nil || !cancelled {
		return nil, err
	}

	// Walkover: the opposing branch died, so the arriving participant
	// advances without playing.
	return s.completeMatch(ctx, exec, tournament, next,
		ResultInput{WinnerID: winnerID}, maxRound, now)
}

// feederCancelled reports whether the feeder wired to the given slot of the
// match has been cancelled.
func (s *MatchService) feederCancelled(ctx context.Context, exec repositories.SQLExecutor, match *models.Match, slot int) (bool, error) {
	feeders, err := s.matchRepo.ListFeeders(ctx, exec, match.ID)
	if err != nil {
		return false, err
	}
	for _, feeder := range feeders {
		if feeder.WinnerToSlot != nil && *feeder.WinnerToSlot == slot {
			return feeder.Status == models.MatchCancelled, nil
		}
	}
	return false, nil
}

func (s *MatchService) placeParticipant(ctx context.Context, exec repositories.SQLExecutor, participantID, position int) error {
	participant, err := s.participantRepo.GetByID(ctx, exec, participantID)
	if err != nil {
		return err
	}
	if err := s.participantRepo.SetFinalPosition(ctx, exec, participantID, &position); err != nil {
		return err
	}
	// Disqualified participants keep that status even when a position is
	// recorded for bracket bookkeeping.
	if participant.Status != models.ParticipantDisqualified {
		if err := s.participantRepo.UpdateStatus(ctx, exec, participantID, models.ParticipantCompleted); err != nil {
			return err
		}
	}
	return nil
}

func (s *MatchService) completeTournament(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, championID int, now time.Time) error {
	if err := s.placeParticipant(ctx, exec, championID, 1); err != nil {
		return err
	}
	err := s.tournamentRepo.UpdateStatus(ctx, exec, tournament.ID,
		models.TournamentOngoing, models.TournamentCompleted)
	if errors.Is(err, repositories.ErrStaleUpdate) {
		// An override of the final that keeps the winner re-resolves it
		// without the tournament ever leaving completed. Anything else in
		// the way of the transition is a real conflict.
		fresh, getErr := s.tournamentRepo.GetByID(ctx, exec, tournament.ID)
		if getErr != nil {
			return getErr
		}
		if fresh.Status != models.TournamentCompleted {
			return newStateConflict("tournament", tournament.ID,
				string(fresh.Status), string(models.TournamentCompleted))
		}
	} else if err != nil {
		return err
	}
	return s.tournamentRepo.SetEndTime(ctx, exec, tournament.ID, now)
}

// CancelMatch voids an unresolved match. If the sibling branch has already
// delivered a participant into the next match, that participant advances by
// walkover; if the sibling was cancelled too, the next match is cancelled and
// the void propagates further down.
func (s *MatchService) CancelMatch(ctx context.Context, matchID int) error {
	match, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		return err
	}
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, match.TournamentID)
	if err != nil {
		return err
	}
	if tournament.ResultsPublished {
		return ErrResultsPublished
	}

	var events []brackets.Event
	err = s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		maxRound, err := s.matchRepo.MaxRound(ctx, exec, match.TournamentID)
		if err != nil {
			return err
		}
		events, err = s.cancelMatchTx(ctx, exec, tournament, match, maxRound, s.clock.Now())
		return err
	})
	if errors.Is(err, repositories.ErrStaleUpdate) {
		fresh, getErr := s.matchRepo.GetByID(ctx, nil, matchID)
		if getErr != nil {
			return getErr
		}
		return newStateConflict("match", matchID, string(fresh.Status), string(models.MatchCancelled))
	}
	if err != nil {
		return err
	}
	for _, event := range events {
		s.hub.Publish(event)
	}
	return nil
}

func (s *MatchService) cancelMatchTx(
	ctx context.Context,
	exec repositories.SQLExecutor,
	tournament *models.Tournament,
	match *models.Match,
	maxRound int,
	now time.Time,
) ([]brackets.Event, error) {
	if err := s.matchRepo.Cancel(ctx, exec, match.ID); err != nil {
		return nil, err
	}
	events := []brackets.Event{{
		Type:         brackets.EventMatchUpdated,
		TournamentID: match.TournamentID,
		Payload:      map[string]interface{}{"match_id": match.ID, "status": models.MatchCancelled},
	}}

	if match.NextMatchID == nil {
		return events, nil
	}
	next, err := s.matchRepo.GetByID(ctx, exec, *match.NextMatchID)
	if err != nil {
		return nil, err
	}
	if next.Resolved() {
		return events, nil
	}

	mySlot := *match.WinnerToSlot
	var survivor *int
	if mySlot == 1 {
		survivor = next.Participant2ID
	} else {
		survivor = next.Participant1ID
	}

	if survivor != nil {
		downstream, err := s.completeMatch(ctx, exec, tournament, next,
			ResultInput{WinnerID: *survivor}, maxRound, now)
		if err != nil {
			return nil, err
		}
		return append(events, downstream...), nil
	}

	siblingCancelled, err := s.feederCancelled(ctx, exec, next, 3-mySlot)
	if err != nil {
		return nil, err
	}
	if !siblingCancelled {
		// The sibling branch is still live; its winner takes the next
		// match by walkover once it resolves.
		return events, nil
	}
	downstream, err := s.cancelMatchTx(ctx, exec, tournament, next, maxRound, now)
	if err != nil {
		return nil, err
	}
	return append(events, downstream...), nil
}

// OverrideResult is the admin correction path: it re-records a completed
// match with a different winner and transactionally reverts everything the
// old winner earned downstream. Blocked once payouts are committed.
func (s *MatchService) OverrideResult(ctx context.Context, matchID int, input ResultInput) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, match.TournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.ResultsPublished {
		return nil, ErrResultsPublished
	}
	if match.Status != models.MatchCompleted {
		return nil, newStateConflict("match", matchID, string(match.Status), string(models.MatchCompleted))
	}
	if !match.HasParticipant(input.WinnerID) {
		return nil, ErrParticipantNotInMatch
	}

	var events []brackets.Event
	err = s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		maxRound, err := s.matchRepo.MaxRound(ctx, exec, match.TournamentID)
		if err != nil {
			return err
		}
		now := s.clock.Now()

		oldWinnerID := *match.WinnerID
		if oldWinnerID != input.WinnerID {
			if err := s.revertDownstream(ctx, exec, tournament, match, oldWinnerID); err != nil {
				return err
			}
			// The corrected winner lost originally; clear that placement
			// before re-recording.
			if err := s.unplaceParticipant(ctx, exec, input.WinnerID); err != nil {
				return err
			}
			if err := s.unplaceParticipant(ctx, exec, oldWinnerID); err != nil {
				return err
			}
		}

		if err := s.matchRepo.Reopen(ctx, exec, match.ID); err != nil {
			return err
		}
		events, err = s.completeMatch(ctx, exec, tournament, match, input, maxRound, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, event := range events {
		s.hub.Publish(event)
	}
	return s.matchRepo.GetByID(ctx, nil, matchID)
}

// revertDownstream walks the next-match chain removing every trace of
// participantID: reopening completed matches it won, clearing placements they
// produced, and vacating the slots it was propagated into. A completed final
// on the path also moves the tournament back to ongoing.
func (s *MatchService) revertDownstream(
	ctx context.Context,
	exec repositories.SQLExecutor,
	tournament *models.Tournament,
	match *models.Match,
	participantID int,
) error {
	if match.NextMatchID == nil {
		// participantID won the final; completing the corrected result
		// needs the tournament back in ongoing.
		if err := s.tournamentRepo.UpdateStatus(ctx, exec, tournament.ID,
			models.TournamentCompleted, models.TournamentOngoing); err != nil &&
			!errors.Is(err, repositories.ErrStaleUpdate) {
			return err
		}
		tournament.Status = models.TournamentOngoing
		return s.unplaceParticipant(ctx, exec, participantID)
	}

	next, err := s.matchRepo.GetByID(ctx, exec, *match.NextMatchID)
	if err != nil {
		return err
	}
	slot := *match.WinnerToSlot
	occupant := next.Participant1ID
	if slot == 2 {
		occupant = next.Participant2ID
	}
	if occupant == nil || *occupant != participantID {
		return nil
	}

	if next.Status == models.MatchCompleted {
		nextWinnerID := *next.WinnerID
		if err := s.revertDownstream(ctx, exec, tournament, next, nextWinnerID); err != nil {
			return err
		}
		if err := s.matchRepo.Reopen(ctx, exec, next.ID); err != nil {
			return err
		}
		if loserID := next.OtherParticipant(nextWinnerID); loserID != nil {
			if err := s.unplaceParticipant(ctx, exec, *loserID); err != nil {
				return err
			}
		}
	}

	return s.matchRepo.SetParticipant(ctx, exec, next.ID, slot, nil)
}

func (s *MatchService) unplaceParticipant(ctx context.Context, exec repositories.SQLExecutor, participantID int) error {
	participant, err := s.participantRepo.GetByID(ctx, exec, participantID)
	if err != nil {
		return err
	}
	if err := s.participantRepo.SetFinalPosition(ctx, exec, participantID, nil); err != nil {
		return err
	}
	if participant.Status == models.ParticipantCompleted {
		return s.participantRepo.UpdateStatus(ctx, exec, participantID, models.ParticipantPlaying)
	}
	return nil
}

// GetMatch returns one match.
func (s *MatchService) GetMatch(ctx context.Context, matchID int) (*models.Match, error) {
	return s.matchRepo.GetByID(ctx, nil, matchID)
}

// ListMatches returns a tournament's matches, optionally filtered by round
// and status.
func (s *MatchService) ListMatches(ctx context.Context, tournamentID int, round *int, status *models.MatchStatus) ([]*models.Match, error) {
	if _, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID); err != nil {
		return nil, err
	}
	return s.matchRepo.ListByTournament(ctx, nil, tournamentID, round, status)
}
