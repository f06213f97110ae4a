package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/esports-arena/brackets"
	"github.com/Dosada05/esports-arena/models"
	"github.com/Dosada05/esports-arena/wallet"

	"github.com/Dosada05/esports-arena/repositories"
)

// testEnv wires every service against the in-memory store, wallet and a fake
// clock.
type testEnv struct {
	store  *repositories.MemoryStore
	wallet *wallet.MemoryWallet
	clock  *clockwork.FakeClock
	hub    *brackets.Hub

	registrations *RegistrationService
	lifecycle     *LifecycleService
	brackets      *BracketService
	matches       *MatchService
	payouts       *PayoutService
	tournaments   *TournamentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := repositories.NewMemoryStore()
	memWallet := wallet.NewMemoryWallet()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	hub := brackets.NewHub()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tournamentRepo := store.Tournaments()
	participantRepo := store.Participants()
	matchRepo := store.Matches()

	return &testEnv{
		store:  store,
		wallet: memWallet,
		clock:  clock,
		hub:    hub,
		registrations: NewRegistrationService(
			tournamentRepo, participantRepo, store, memWallet, hub, clock, logger),
		lifecycle: NewLifecycleService(
			tournamentRepo, participantRepo, matchRepo, store, memWallet, hub, clock, logger),
		brackets: NewBracketService(
			tournamentRepo, participantRepo, matchRepo, store, hub, clock, logger),
		matches: NewMatchService(
			tournamentRepo, participantRepo, matchRepo, store, hub, clock, logger),
		payouts: NewPayoutService(
			tournamentRepo, participantRepo, store, hub, clock, logger),
		tournaments: NewTournamentService(
			tournamentRepo, participantRepo, nil, clock, logger),
	}
}

// openTournament creates a registration_open tournament with the standard
// test prize table.
func (e *testEnv) openTournament(t *testing.T, totalSlots int) *models.Tournament {
	t.Helper()
	now := e.clock.Now()
	tournament := &models.Tournament{
		Title:      "Weekly Arena Cup",
		Game:       "valorant",
		TotalSlots: totalSlots,
		EntryFee:   100,
		PrizePool:  1000,
		Prizes: []models.Prize{
			{Position: 1, Amount: 500},
			{Position: 2, Amount: 300},
			{Position: 3, Amount: 100},
		},
		RegistrationDeadline:   now.Add(time.Hour),
		StartTime:              now.Add(2 * time.Hour),
		Status:                 models.TournamentRegistrationOpen,
		MaxParticipantsPerUser: 1,
	}
	require.NoError(t, e.store.Tournaments().Create(context.Background(), nil, tournament))
	return tournament
}

// register funds the user and registers them, failing the test on error.
func (e *testEnv) register(t *testing.T, tournamentID, userID int, team string) *models.Participant {
	t.Helper()
	e.wallet.SetBalance(userID, 10_000)
	participant, err := e.registrations.TryRegister(context.Background(), tournamentID, userID,
		RegistrationDetails{TeamName: team, InGameName: team + "-ign"})
	require.NoError(t, err)
	return participant
}

func (e *testEnv) getTournament(t *testing.T, id int) *models.Tournament {
	t.Helper()
	tournament, err := e.store.Tournaments().GetByID(context.Background(), nil, id)
	require.NoError(t, err)
	return tournament
}

func (e *testEnv) getParticipant(t *testing.T, id int) *models.Participant {
	t.Helper()
	participant, err := e.store.Participants().GetByID(context.Background(), nil, id)
	require.NoError(t, err)
	return participant
}

func (e *testEnv) getMatch(t *testing.T, id int) *models.Match {
	t.Helper()
	match, err := e.store.Matches().GetByID(context.Background(), nil, id)
	require.NoError(t, err)
	return match
}

func (e *testEnv) listMatches(t *testing.T, tournamentID int) []*models.Match {
	t.Helper()
	matches, err := e.store.Matches().ListByTournament(context.Background(), nil, tournamentID, nil, nil)
	require.NoError(t, err)
	return matches
}
