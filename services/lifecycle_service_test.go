package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/esports-arena/models"
)

// upcomingTournament seeds a tournament that has not opened yet, applying any
// mutations before it is stored.
func (e *testEnv) upcomingTournament(t *testing.T, mutate func(*models.Tournament)) *models.Tournament {
	t.Helper()
	now := e.clock.Now()
	tournament := &models.Tournament{
		Title:                  "Weekly Arena Cup",
		Game:                   "valorant",
		TotalSlots:             4,
		EntryFee:               100,
		PrizePool:              1000,
		RegistrationDeadline:   now.Add(time.Hour),
		StartTime:              now.Add(2 * time.Hour),
		Status:                 models.TournamentUpcoming,
		MaxParticipantsPerUser: 1,
	}
	if mutate != nil {
		mutate(tournament)
	}
	require.NoError(t, e.store.Tournaments().Create(context.Background(), nil, tournament))
	return tournament
}

func TestOpenRegistrationValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tooFewSlots := env.upcomingTournament(t, func(tr *models.Tournament) {
		tr.TotalSlots = 1
	})
	require.ErrorIs(t, env.lifecycle.OpenRegistration(ctx, tooFewSlots.ID), ErrValidation)

	deadlineAfterStart := env.upcomingTournament(t, func(tr *models.Tournament) {
		tr.RegistrationDeadline = tr.StartTime.Add(time.Minute)
	})
	require.ErrorIs(t, env.lifecycle.OpenRegistration(ctx, deadlineAfterStart.ID), ErrValidation)

	overfundedPrizes := env.upcomingTournament(t, func(tr *models.Tournament) {
		tr.Prizes = []models.Prize{{Position: 1, Amount: 1500}}
	})
	require.ErrorIs(t, env.lifecycle.OpenRegistration(ctx, overfundedPrizes.ID), ErrValidation)

	valid := env.upcomingTournament(t, nil)
	require.NoError(t, env.lifecycle.OpenRegistration(ctx, valid.ID))
	assert.Equal(t, models.TournamentRegistrationOpen, env.getTournament(t, valid.ID).Status)
}

func TestTransitionStatusIllegalEdges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tournament := env.openTournament(t, 4)

	// Ongoing is reached through the bracket build, never by request.
	err := env.lifecycle.TransitionStatus(ctx, tournament.ID, models.TournamentOngoing)
	var conflict *StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "tournament", conflict.Entity)
	assert.Equal(t, string(models.TournamentRegistrationOpen), conflict.Current)
	assert.Equal(t, string(models.TournamentOngoing), conflict.Requested)

	// Reopening an already open registration is not an edge.
	err = env.lifecycle.TransitionStatus(ctx, tournament.ID, models.TournamentRegistrationOpen)
	require.ErrorIs(t, err, ErrStateConflict)

	err = env.lifecycle.TransitionStatus(ctx, tournament.ID, "paused")
	require.ErrorIs(t, err, ErrValidation)
}

func TestCancelRefundsAndVoidsMatches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tournament := env.openTournament(t, 4)
	participants, matches := builtBracket(t, env, tournament.ID, 4)

	// One semifinal finished before the plug is pulled.
	_, err := env.matches.ReportResult(ctx, matches[0].ID,
		ResultInput{WinnerID: participants[0].ID, Score1: 2})
	require.NoError(t, err)

	require.NoError(t, env.lifecycle.Cancel(ctx, tournament.ID))

	fresh := env.getTournament(t, tournament.ID)
	assert.Equal(t, models.TournamentCancelled, fresh.Status)

	// The played match keeps its result; everything unresolved is voided.
	assert.Equal(t, models.MatchCompleted, env.getMatch(t, matches[0].ID).Status)
	assert.Equal(t, models.MatchCancelled, env.getMatch(t, matches[1].ID).Status)
	assert.Equal(t, models.MatchCancelled, env.getMatch(t, matches[2].ID).Status)

	// Every confirmed participant got the entry fee back.
	for userID := 1; userID <= 4; userID++ {
		assert.Equal(t, int64(10_000), env.wallet.Balance(userID), "user %d", userID)
	}

	// Cancelled is terminal.
	require.ErrorIs(t, env.lifecycle.Cancel(ctx, tournament.ID), ErrStateConflict)
}

func TestCheckIn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tournament := env.openTournament(t, 4)
	p1 := env.register(t, tournament.ID, 1, "alpha")
	p2 := env.register(t, tournament.ID, 2, "bravo")

	checked, err := env.lifecycle.CheckIn(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantCheckedIn, checked.Status)
	require.NotNil(t, checked.CheckedInAt)

	// Checking in twice conflicts.
	_, err = env.lifecycle.CheckIn(ctx, p1.ID)
	require.ErrorIs(t, err, ErrStateConflict)

	// The window closes at the start time.
	env.clock.Advance(3 * time.Hour)
	_, err = env.lifecycle.CheckIn(ctx, p2.ID)
	require.ErrorIs(t, err, ErrValidation)
}

func TestDisqualifyIsFinal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tournament := env.openTournament(t, 4)
	p := env.register(t, tournament.ID, 1, "alpha")

	require.NoError(t, env.lifecycle.Disqualify(ctx, p.ID))
	assert.Equal(t, models.ParticipantDisqualified, env.getParticipant(t, p.ID).Status)

	require.ErrorIs(t, env.lifecycle.Disqualify(ctx, p.ID), ErrStateConflict)
}

func TestSweepClosesDueRegistrations(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 4)

	// Before the deadline nothing happens.
	env.lifecycle.SweepDeadlines(context.Background())
	assert.Equal(t, models.TournamentRegistrationOpen, env.getTournament(t, tournament.ID).Status)

	env.clock.Advance(90 * time.Minute)
	env.lifecycle.SweepDeadlines(context.Background())
	assert.Equal(t, models.TournamentRegistrationClosed, env.getTournament(t, tournament.ID).Status)
}

func TestSweepReleasesStalePendingRegistrations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tournament := env.openTournament(t, 4)

	// A reservation whose payment never settled, past the abandonment TTL.
	require.NoError(t, env.store.Tournaments().ReserveSlot(ctx, nil, tournament.ID, 0))
	abandoned := &models.Participant{
		TournamentID: tournament.ID,
		UserID:       1,
		TeamName:     "ghost",
		SlotNumber:   1,
		PaymentState: models.PaymentPending,
		Status:       models.ParticipantRegistered,
		CreatedAt:    env.clock.Now().Add(-20 * time.Minute),
	}
	require.NoError(t, env.store.Participants().Create(ctx, nil, abandoned))

	// A fresh pending reservation must survive the sweep.
	require.NoError(t, env.store.Tournaments().ReserveSlot(ctx, nil, tournament.ID, 1))
	fresh := &models.Participant{
		TournamentID: tournament.ID,
		UserID:       2,
		TeamName:     "prompt",
		SlotNumber:   2,
		PaymentState: models.PaymentPending,
		Status:       models.ParticipantRegistered,
		CreatedAt:    env.clock.Now(),
	}
	require.NoError(t, env.store.Participants().Create(ctx, nil, fresh))

	env.lifecycle.SweepDeadlines(ctx)

	_, err := env.store.Participants().GetByID(ctx, nil, abandoned.ID)
	require.Error(t, err)
	_, err = env.store.Participants().GetByID(ctx, nil, fresh.ID)
	require.NoError(t, err)

	// The counter was reconciled to the surviving rows.
	assert.Equal(t, 1, env.getTournament(t, tournament.ID).CurrentParticipants)
}
