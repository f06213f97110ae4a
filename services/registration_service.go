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

const (
	// reserveAttempts bounds the optimistic-retry loop around slot
	// reservation. Past this the caller gets ErrBusy and may simply retry.
	reserveAttempts = 5

	defaultPaymentTimeout = 10 * time.Second
)

// RegistrationDetails is the caller-supplied part of a registration.
type RegistrationDetails struct {
	TeamName   string `json:"team_name"`
	InGameName string `json:"in_game_name"`
	InGameID   string `json:"in_game_id"`
}

func (d RegistrationDetails) validate() error {
	if d.TeamName == "" {
		return newValidationError("team_name is required")
	}
	if d.InGameName == "" {
		return newValidationError("in_game_name is required")
	}
	return nil
}

// RegistrationService owns slot allocation: the atomic capacity check, slot
// assignment, the provisional reservation window around the entry-fee debit,
// and compensation when the payment does not confirm.
type RegistrationService struct {
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	txRunner        repositories.TxRunner
	wallet          wallet.Wallet
	hub             *brackets.Hub
	clock           clockwork.Clock
	logger          *slog.Logger
	paymentTimeout  time.Duration
}

func NewRegistrationService(
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	txRunner repositories.TxRunner,
	w wallet.Wallet,
	hub *brackets.Hub,
	clock clockwork.Clock,
	logger *slog.Logger,
) *RegistrationService {
	return &RegistrationService{
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		txRunner:        txRunner,
		wallet:          w,
		hub:             hub,
		clock:           clock,
		logger:          logger,
		paymentTimeout:  defaultPaymentTimeout,
	}
}

// TryRegister places userID into the tournament. The slot is reserved
// provisionally inside a transaction, then the entry fee is debited; a
// declined or failed debit releases the reservation before the error is
// returned. On success the participant row is payment-confirmed and holds the
// lowest slot number that was free at reservation time.
func (s *RegistrationService) TryRegister(ctx context.Context, tournamentID, userID int, details RegistrationDetails) (*models.Participant, error) {
	if err := details.validate(); err != nil {
		return nil, err
	}

	tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	if err := registrationGate(tournament, s.clock.Now()); err != nil {
		return nil, err
	}

	participant, err := s.reserve(ctx, tournamentID, userID, details)
	if err != nil {
		return nil, err
	}

	if err := s.settlePayment(ctx, tournament, participant); err != nil {
		return nil, err
	}

	s.autoCloseIfFull(ctx, tournamentID)
	return participant, nil
}

// reserve runs the optimistic reservation loop: each attempt re-reads the
// tournament, re-validates the gates against fresh state, picks the lowest
// free slot and performs the guarded counter increment plus the participant
// insert in one transaction. Counter races and slot collisions surface as
// ErrStaleUpdate / ErrSlotNumberConflict and trigger another attempt.
func (s *RegistrationService) reserve(ctx context.Context, tournamentID, userID int, details RegistrationDetails) (*models.Participant, error) {
	var participant *models.Participant

	for attempt := 0; attempt < reserveAttempts; attempt++ {
		err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
			tournament, err := s.tournamentRepo.GetByID(ctx, exec, tournamentID)
			if err != nil {
				return err
			}
			if err := registrationGate(tournament, s.clock.Now()); err != nil {
				return err
			}

			count, err := s.participantRepo.CountByUser(ctx, exec, tournamentID, userID)
			if err != nil {
				return err
			}
			if count >= tournament.MaxParticipantsPerUser {
				return ErrUserLimitReached
			}
			if tournament.IsFull() {
				return ErrTournamentFull
			}

			taken, err := s.participantRepo.ListSlotNumbers(ctx, exec, tournamentID)
			if err != nil {
				return err
			}
			slot := lowestFreeSlot(taken, tournament.TotalSlots)
			if slot == 0 {
				return ErrTournamentFull
			}

			if err := s.tournamentRepo.ReserveSlot(ctx, exec, tournamentID, tournament.CurrentParticipants); err != nil {
				return err
			}

			participant = &models.Participant{
				TournamentID: tournamentID,
				UserID:       userID,
				TeamName:     details.TeamName,
				InGameName:   details.InGameName,
				InGameID:     details.InGameID,
				PaymentState: models.PaymentPending,
				Status:       models.ParticipantRegistered,
				SlotNumber:   slot,
			}
			return s.participantRepo.Create(ctx, exec, participant)
		})

		switch {
		case err == nil:
			return participant, nil
		case errors.Is(err, repositories.ErrStaleUpdate),
			errors.Is(err, repositories.ErrSlotNumberConflict):
			continue
		default:
			return nil, err
		}
	}
	return nil, ErrBusy
}

// settlePayment charges the entry fee for a provisionally reserved slot. Any
// outcome other than a confirmed debit releases the reservation.
func (s *RegistrationService) settlePayment(ctx context.Context, tournament *models.Tournament, participant *models.Participant) error {
	if tournament.EntryFee == 0 {
		return s.participantRepo.ConfirmPayment(ctx, nil, participant.ID, 0)
	}

	debitCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()

	outcome, err := s.wallet.Debit(debitCtx, participant.UserID, tournament.EntryFee)
	if err != nil || outcome != wallet.OutcomeConfirmed {
		s.release(ctx, participant)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPaymentFailed, err)
		}
		if outcome == wallet.OutcomeInsufficient {
			return ErrPaymentDeclined
		}
		return ErrPaymentFailed
	}

	if err := s.participantRepo.ConfirmPayment(ctx, nil, participant.ID, tournament.EntryFee); err != nil {
		// The debit went through but the confirmation write lost a race
		// (e.g. the sweep released the slot first). Give the money back.
		if refundErr := s.wallet.Refund(ctx, participant.UserID, tournament.EntryFee); refundErr != nil {
			s.logger.Error("refund after failed payment confirmation",
				"participant_id", participant.ID, "error", refundErr)
		}
		return fmt.Errorf("failed to confirm payment for participant %d: %w", participant.ID, err)
	}
	participant.PaymentState = models.PaymentConfirmed
	participant.EntryFeePaid = tournament.EntryFee
	return nil
}

// release is the compensating action for a reservation whose payment never
// confirmed: delete the provisional row and decrement the counter together.
func (s *RegistrationService) release(ctx context.Context, participant *models.Participant) {
	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.participantRepo.Delete(ctx, exec, participant.ID); err != nil {
			return err
		}
		return s.tournamentRepo.ReleaseSlot(ctx, exec, participant.TournamentID)
	})
	if err != nil && !errors.Is(err, repositories.ErrParticipantNotFound) {
		s.logger.Error("failed to release provisional slot",
			"participant_id", participant.ID,
			"tournament_id", participant.TournamentID,
			"error", err)
	}
}

// autoCloseIfFull closes registration when the last slot fills. Losing the
// status race here is fine: someone else closed it.
func (s *RegistrationService) autoCloseIfFull(ctx context.Context, tournamentID int) {
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil || !tournament.IsFull() || tournament.Status != models.TournamentRegistrationOpen {
		return
	}
	err = s.tournamentRepo.UpdateStatus(ctx, nil, tournamentID,
		models.TournamentRegistrationOpen, models.TournamentRegistrationClosed)
	if err != nil {
		if !errors.Is(err, repositories.ErrStaleUpdate) {
			s.logger.Error("auto-close after fill", "tournament_id", tournamentID, "error", err)
		}
		return
	}
	s.logger.Info("registration closed: tournament full", "tournament_id", tournamentID)
	s.hub.Publish(brackets.Event{
		Type:         brackets.EventTournamentUpdated,
		TournamentID: tournamentID,
		Payload:      map[string]interface{}{"status": models.TournamentRegistrationClosed},
	})
}

// registrationGate checks the status and deadline preconditions, in that
// order, each with its own error. Per-user limit and capacity are checked
// afterwards, inside the reservation transaction.
func registrationGate(t *models.Tournament, now time.Time) error {
	if t.Status != models.TournamentRegistrationOpen {
		return ErrRegistrationClosed
	}
	if !now.Before(t.RegistrationDeadline) {
		return ErrDeadlinePassed
	}
	return nil
}

// lowestFreeSlot returns the smallest unused slot number in [1, totalSlots],
// or 0 when none is free. taken must be sorted ascending.
func lowestFreeSlot(taken []int, totalSlots int) int {
	next := 1
	for _, slot := range taken {
		if slot > next {
			break
		}
		if slot == next {
			next++
		}
	}
	if next > totalSlots {
		return 0
	}
	return next
}
