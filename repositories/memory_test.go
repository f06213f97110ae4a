package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/esports-arena/models"
)

func seedTournament(t *testing.T, store *MemoryStore, totalSlots int) *models.Tournament {
	t.Helper()
	tournament := &models.Tournament{
		Title:                  "Weekly Cup",
		Game:                   "valorant",
		TotalSlots:             totalSlots,
		EntryFee:               100,
		PrizePool:              1000,
		RegistrationDeadline:   time.Now().Add(time.Hour),
		StartTime:              time.Now().Add(2 * time.Hour),
		Status:                 models.TournamentRegistrationOpen,
		MaxParticipantsPerUser: 1,
	}
	require.NoError(t, store.Tournaments().Create(context.Background(), nil, tournament))
	return tournament
}

func TestMemoryStoreReserveSlotGuard(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tournament := seedTournament(t, store, 2)

	require.NoError(t, store.Tournaments().ReserveSlot(ctx, nil, tournament.ID, 0))

	// Stale expectation.
	err := store.Tournaments().ReserveSlot(ctx, nil, tournament.ID, 0)
	require.ErrorIs(t, err, ErrStaleUpdate)

	require.NoError(t, store.Tournaments().ReserveSlot(ctx, nil, tournament.ID, 1))

	// Full.
	err = store.Tournaments().ReserveSlot(ctx, nil, tournament.ID, 2)
	require.ErrorIs(t, err, ErrStaleUpdate)

	fresh, err := store.Tournaments().GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.CurrentParticipants)
}

func TestMemoryStoreUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tournament := seedTournament(t, store, 4)

	first := &models.Participant{
		TournamentID: tournament.ID, UserID: 1, TeamName: "alpha",
		PaymentState: models.PaymentPending, Status: models.ParticipantRegistered, SlotNumber: 1,
	}
	require.NoError(t, store.Participants().Create(ctx, nil, first))

	dupTeam := &models.Participant{
		TournamentID: tournament.ID, UserID: 1, TeamName: "alpha",
		PaymentState: models.PaymentPending, Status: models.ParticipantRegistered, SlotNumber: 2,
	}
	require.ErrorIs(t, store.Participants().Create(ctx, nil, dupTeam), ErrTeamNameConflict)

	dupSlot := &models.Participant{
		TournamentID: tournament.ID, UserID: 2, TeamName: "bravo",
		PaymentState: models.PaymentPending, Status: models.ParticipantRegistered, SlotNumber: 1,
	}
	require.ErrorIs(t, store.Participants().Create(ctx, nil, dupSlot), ErrSlotNumberConflict)
}

func TestMemoryStoreRunInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tournament := seedTournament(t, store, 4)

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(exec SQLExecutor) error {
		if err := store.Tournaments().ReserveSlot(ctx, exec, tournament.ID, 0); err != nil {
			return err
		}
		p := &models.Participant{
			TournamentID: tournament.ID, UserID: 7, TeamName: "ghost",
			PaymentState: models.PaymentPending, Status: models.ParticipantRegistered, SlotNumber: 1,
		}
		if err := store.Participants().Create(ctx, exec, p); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	fresh, err := store.Tournaments().GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Zero(t, fresh.CurrentParticipants)

	participants, err := store.Participants().ListByTournament(ctx, nil, tournament.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, participants)
}

func TestMemoryStoreOneWayFlags(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tournament := seedTournament(t, store, 4)

	require.NoError(t, store.Tournaments().SetHasBracket(ctx, nil, tournament.ID))
	require.ErrorIs(t, store.Tournaments().SetHasBracket(ctx, nil, tournament.ID), ErrStaleUpdate)

	require.NoError(t, store.Tournaments().SetResultsPublished(ctx, nil, tournament.ID))
	require.ErrorIs(t, store.Tournaments().SetResultsPublished(ctx, nil, tournament.ID), ErrStaleUpdate)
}

func TestMemoryStoreRecordResultGuards(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tournament := seedTournament(t, store, 4)

	p1 := 11
	match := &models.Match{
		TournamentID: tournament.ID, RoundNumber: 1, MatchNumber: 1,
		Participant1ID: &p1, Status: models.MatchPending,
	}
	require.NoError(t, store.Matches().Create(ctx, nil, match))

	now := time.Now()
	require.NoError(t, store.Matches().RecordResult(ctx, nil, match.ID, p1, 1, 0, nil, now))

	// Completed matches reject further result writes.
	err := store.Matches().RecordResult(ctx, nil, match.ID, p1, 2, 0, nil, now)
	require.ErrorIs(t, err, ErrStaleUpdate)

	fresh, err := store.Matches().GetByID(ctx, nil, match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchCompleted, fresh.Status)
	require.NotNil(t, fresh.StartedAt)
	assert.Equal(t, 1, fresh.Score1)
}

func TestMemoryStoreGetReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tournament := seedTournament(t, store, 4)

	copy1, err := store.Tournaments().GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	copy1.Title = "mutated"

	copy2, err := store.Tournaments().GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, "Weekly Cup", copy2.Title)
}
