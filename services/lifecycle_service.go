package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Dosada05/esports-arena/brackets"
	"github.com/Dosada05/esports-arena/models"
	"github.com/Dosada05/esports-arena/repositories"
	"github.com/Dosada05/esports-arena/wallet"
)

const defaultPendingTTL = 15 * time.Minute

// LifecycleService drives the tournament and participant state machines:
// explicit status transitions, check-in, disqualification, cancellation with
// refunds, and the periodic deadline sweep.
type LifecycleService struct {
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	matchRepo       repositories.MatchRepository
	txRunner        repositories.TxRunner
	wallet          wallet.Wallet
	hub             *brackets.Hub
	clock           clockwork.Clock
	logger          *slog.Logger

	// pendingTTL is how long a payment-pending registration may exist
	// before the sweep treats it as abandoned and releases the slot.
	pendingTTL time.Duration
}

func NewLifecycleService(
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	matchRepo repositories.MatchRepository,
	txRunner repositories.TxRunner,
	w wallet.Wallet,
	hub *brackets.Hub,
	clock clockwork.Clock,
	logger *slog.Logger,
) *LifecycleService {
	return &LifecycleService{
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		matchRepo:       matchRepo,
		txRunner:        txRunner,
		wallet:          w,
		hub:             hub,
		clock:           clock,
		logger:          logger,
		pendingTTL:      defaultPendingTTL,
	}
}

// TransitionStatus moves a tournament to the requested status, enforcing the
// state machine. Illegal edges come back as a StateConflictError carrying the
// current and requested states.
func (s *LifecycleService) TransitionStatus(ctx context.Context, tournamentID int, to models.TournamentStatus) error {
	switch to {
	case models.TournamentRegistrationOpen:
		return s.OpenRegistration(ctx, tournamentID)
	case models.TournamentRegistrationClosed:
		return s.CloseRegistration(ctx, tournamentID)
	case models.TournamentCancelled:
		return s.Cancel(ctx, tournamentID)
	case models.TournamentOngoing, models.TournamentCompleted:
		// Reached through BuildBracket and the final match result, never
		// by direct request.
		tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
		if err != nil {
			return err
		}
		return newStateConflict("tournament", tournamentID, string(tournament.Status), string(to))
	default:
		return newValidationError("unknown tournament status %q", to)
	}
}

// OpenRegistration validates the tournament's configuration and opens it for
// sign-ups. Configuration problems are caught here, before any money can
// move.
func (s *LifecycleService) OpenRegistration(ctx context.Context, tournamentID int) error {
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return err
	}
	if err := validateForOpen(tournament); err != nil {
		return err
	}
	return s.transition(ctx, tournament, models.TournamentUpcoming, models.TournamentRegistrationOpen)
}

func validateForOpen(t *models.Tournament) error {
	if t.TotalSlots < 2 {
		return newValidationError("total_slots must be at least 2, got %d", t.TotalSlots)
	}
	if t.MaxParticipantsPerUser < 1 {
		return newValidationError("max_participants_per_user must be at least 1")
	}
	if !t.RegistrationDeadline.Before(t.StartTime) {
		return newValidationError("registration_deadline must be before start_time")
	}
	if total := t.TotalPrizes(); total > t.PrizePool {
		return newValidationError("prize table sums to %d, exceeding the prize pool of %d", total, t.PrizePool)
	}
	for _, prize := range t.Prizes {
		if prize.Position < 1 {
			return newValidationError("prize position must be positive, got %d", prize.Position)
		}
		if prize.Amount < 0 {
			return newValidationError("prize amount must not be negative, got %d", prize.Amount)
		}
	}
	return nil
}

func (s *LifecycleService) CloseRegistration(ctx context.Context, tournamentID int) error {
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return err
	}
	return s.transition(ctx, tournament, models.TournamentRegistrationOpen, models.TournamentRegistrationClosed)
}

// Cancel moves any non-terminal tournament to cancelled, voids unresolved
// matches in the same transaction, then refunds confirmed participants.
// Refund failures are logged, not propagated: the cancellation itself stands.
func (s *LifecycleService) Cancel(ctx context.Context, tournamentID int) error {
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return err
	}
	if !tournament.Status.CanTransitionTo(models.TournamentCancelled) {
		return newStateConflict("tournament", tournamentID,
			string(tournament.Status), string(models.TournamentCancelled))
	}

	err = s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.tournamentRepo.UpdateStatus(ctx, exec, tournamentID,
			tournament.Status, models.TournamentCancelled); err != nil {
			return err
		}
		return s.matchRepo.CancelAllUnresolved(ctx, exec, tournamentID)
	})
	if errors.Is(err, repositories.ErrStaleUpdate) {
		fresh, getErr := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
		if getErr != nil {
			return getErr
		}
		return newStateConflict("tournament", tournamentID,
			string(fresh.Status), string(models.TournamentCancelled))
	}
	if err != nil {
		return err
	}

	s.refundParticipants(ctx, tournament)
	s.hub.Publish(brackets.Event{
		Type:         brackets.EventTournamentUpdated,
		TournamentID: tournamentID,
		Payload:      map[string]interface{}{"status": models.TournamentCancelled},
	})
	return nil
}

func (s *LifecycleService) refundParticipants(ctx context.Context, tournament *models.Tournament) {
	participants, err := s.participantRepo.ListByTournament(ctx, nil, tournament.ID, nil)
	if err != nil {
		s.logger.Error("listing participants for refunds", "tournament_id", tournament.ID, "error", err)
		return
	}
	for _, p := range participants {
		if p.PaymentState != models.PaymentConfirmed || p.EntryFeePaid == 0 {
			continue
		}
		if err := s.wallet.Refund(ctx, p.UserID, p.EntryFeePaid); err != nil {
			s.logger.Error("refund on cancellation",
				"tournament_id", tournament.ID,
				"participant_id", p.ID,
				"user_id", p.UserID,
				"error", err)
		}
	}
}

// CheckIn marks a participant present ahead of the start time.
func (s *LifecycleService) CheckIn(ctx context.Context, participantID int) (*models.Participant, error) {
	participant, err := s.participantRepo.GetByID(ctx, nil, participantID)
	if err != nil {
		return nil, err
	}
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, participant.TournamentID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if tournament.Status != models.TournamentRegistrationOpen &&
		tournament.Status != models.TournamentRegistrationClosed {
		return nil, newStateConflict("tournament", tournament.ID,
			string(tournament.Status), "check-in window")
	}
	if !now.Before(tournament.StartTime) {
		return nil, newValidationError("check-in closed: tournament already started")
	}
	if participant.PaymentState != models.PaymentConfirmed {
		return nil, newValidationError("registration is not payment-confirmed")
	}

	if err := s.participantRepo.CheckIn(ctx, nil, participantID, now); err != nil {
		if errors.Is(err, repositories.ErrStaleUpdate) {
			fresh, getErr := s.participantRepo.GetByID(ctx, nil, participantID)
			if getErr != nil {
				return nil, getErr
			}
			return nil, newStateConflict("participant", participantID,
				string(fresh.Status), string(models.ParticipantCheckedIn))
		}
		return nil, err
	}
	return s.participantRepo.GetByID(ctx, nil, participantID)
}

// Disqualify removes a participant from contention. Allowed from any state,
// including completed: a violation discovered afterwards still voids the
// result.
func (s *LifecycleService) Disqualify(ctx context.Context, participantID int) error {
	participant, err := s.participantRepo.GetByID(ctx, nil, participantID)
	if err != nil {
		return err
	}
	if participant.Status == models.ParticipantDisqualified {
		return newStateConflict("participant", participantID,
			string(participant.Status), string(models.ParticipantDisqualified))
	}
	if err := s.participantRepo.UpdateStatus(ctx, nil, participantID, models.ParticipantDisqualified); err != nil {
		return err
	}
	s.logger.Info("participant disqualified",
		"participant_id", participantID, "tournament_id", participant.TournamentID)
	return nil
}

// SweepDeadlines is the periodic maintenance pass: close registrations whose
// deadline passed, release abandoned payment-pending reservations, and
// reconcile the cached participant counters of the tournaments it touched.
func (s *LifecycleService) SweepDeadlines(ctx context.Context) {
	now := s.clock.Now()

	due, err := s.tournamentRepo.ListDueForClose(ctx, nil, now)
	if err != nil {
		s.logger.Error("sweep: listing due tournaments", "error", err)
	}
	for _, tournament := range due {
		err := s.tournamentRepo.UpdateStatus(ctx, nil, tournament.ID,
			models.TournamentRegistrationOpen, models.TournamentRegistrationClosed)
		if err != nil {
			if !errors.Is(err, repositories.ErrStaleUpdate) {
				s.logger.Error("sweep: closing registration", "tournament_id", tournament.ID, "error", err)
			}
			continue
		}
		s.logger.Info("sweep: registration closed at deadline", "tournament_id", tournament.ID)
		s.hub.Publish(brackets.Event{
			Type:         brackets.EventTournamentUpdated,
			TournamentID: tournament.ID,
			Payload:      map[string]interface{}{"status": models.TournamentRegistrationClosed},
		})
	}

	stale, err := s.participantRepo.ListStalePending(ctx, nil, now.Add(-s.pendingTTL))
	if err != nil {
		s.logger.Error("sweep: listing stale pending registrations", "error", err)
		return
	}
	touched := make(map[int]bool)
	for _, p := range stale {
		err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
			if err := s.participantRepo.Delete(ctx, exec, p.ID); err != nil {
				return err
			}
			return s.tournamentRepo.ReleaseSlot(ctx, exec, p.TournamentID)
		})
		if err != nil && !errors.Is(err, repositories.ErrParticipantNotFound) {
			s.logger.Error("sweep: releasing stale reservation",
				"participant_id", p.ID, "tournament_id", p.TournamentID, "error", err)
			continue
		}
		touched[p.TournamentID] = true
	}

	for tournamentID := range touched {
		if err := s.reconcileCounter(ctx, tournamentID); err != nil {
			s.logger.Error("sweep: reconciling participant counter",
				"tournament_id", tournamentID, "error", err)
		}
	}
}

// reconcileCounter resets the cached current_participants to the
// authoritative row count, inside a transaction so concurrent reservations
// cannot slip between the count and the write.
func (s *LifecycleService) reconcileCounter(ctx context.Context, tournamentID int) error {
	return s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		count, err := s.participantRepo.CountConfirmed(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		return s.tournamentRepo.SetParticipantCount(ctx, exec, tournamentID, count)
	})
}

// transition performs one guarded status edge, translating both an illegal
// edge and a lost race into a StateConflictError.
func (s *LifecycleService) transition(ctx context.Context, tournament *models.Tournament, from, to models.TournamentStatus) error {
	if tournament.Status != from || !from.CanTransitionTo(to) {
		return newStateConflict("tournament", tournament.ID, string(tournament.Status), string(to))
	}
	err := s.tournamentRepo.UpdateStatus(ctx, nil, tournament.ID, from, to)
	if errors.Is(err, repositories.ErrStaleUpdate) {
		fresh, getErr := s.tournamentRepo.GetByID(ctx, nil, tournament.ID)
		if getErr != nil {
			return getErr
		}
		return newStateConflict("tournament", tournament.ID, string(fresh.Status), string(to))
	}
	if err != nil {
		return fmt.Errorf("failed to transition tournament %d to %s: %w", tournament.ID, to, err)
	}
	s.hub.Publish(brackets.Event{
		Type:         brackets.EventTournamentUpdated,
		TournamentID: tournament.ID,
		Payload:      map[string]interface{}{"status": to},
	})
	return nil
}
