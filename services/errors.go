package services

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation wraps rejected input. Use newValidationError to attach
	// the reason.
	ErrValidation = errors.New("validation failed")

	// ErrStateConflict is the sentinel behind StateConflictError; match it
	// with errors.Is.
	ErrStateConflict = errors.New("state conflict")

	// ErrTournamentFull means the capacity check failed: every slot is
	// taken by a live registration.
	ErrTournamentFull = errors.New("tournament is full")

	// ErrRegistrationClosed means the tournament is not in
	// registration_open.
	ErrRegistrationClosed = errors.New("registration is not open")

	// ErrDeadlinePassed means registration is open but the deadline has
	// been reached. Kept distinct from ErrRegistrationClosed so the caller
	// can render it as such.
	ErrDeadlinePassed = errors.New("registration deadline has passed")

	// ErrUserLimitReached means the user already holds the maximum number
	// of registrations this tournament allows per user.
	ErrUserLimitReached = errors.New("per-user registration limit reached")

	// ErrPaymentDeclined is a definitive wallet refusal (insufficient
	// funds). The reservation is released, no retry will help.
	ErrPaymentDeclined = errors.New("entry fee payment declined")

	// ErrPaymentFailed is an indeterminate wallet failure. The reservation
	// is released; the caller may retry registration from scratch.
	ErrPaymentFailed = errors.New("entry fee payment failed")

	// ErrBusy means optimistic retries were exhausted under contention.
	// The request can be retried as-is.
	ErrBusy = errors.New("resource busy, try again")

	// ErrBracketAlreadyBuilt guards the one-shot bracket build.
	ErrBracketAlreadyBuilt = errors.New("bracket already built")

	// ErrInsufficientParticipants means fewer than two confirmed
	// participants remain.
	ErrInsufficientParticipants = errors.New("not enough participants for a bracket")

	// ErrResultConflict is a re-report naming a different winner than the
	// recorded one.
	ErrResultConflict = errors.New("conflicting result already recorded")

	// ErrResultsPublished blocks mutations after payouts are committed.
	ErrResultsPublished = errors.New("results already published")

	// ErrPrizeNotClaimable means the participant has no unclaimed prize.
	ErrPrizeNotClaimable = errors.New("no unclaimed prize")

	// ErrParticipantNotInMatch rejects a reported winner who is not one of
	// the match's participants.
	ErrParticipantNotInMatch = errors.New("participant is not in this match")

	// ErrMatchNotReady means a slot of the match is still waiting on a
	// feeder result.
	ErrMatchNotReady = errors.New("match participants not yet determined")
)

// StateConflictError reports an illegal state-machine edge with enough
// context for the client to see what it raced against.
type StateConflictError struct {
	Entity    string
	ID        int
	Current   string
	Requested string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("%s %d cannot move from %s to %s", e.Entity, e.ID, e.Current, e.Requested)
}

func (e *StateConflictError) Unwrap() error { return ErrStateConflict }

func newStateConflict(entity string, id int, current, requested string) error {
	return &StateConflictError{Entity: entity, ID: id, Current: current, Requested: requested}
}

func newValidationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
