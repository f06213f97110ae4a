package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/esports-arena/models"
)

// playOutFourParticipants runs a 4-participant bracket to completion. Seeds 1
// and 3 win their semifinals, seed 1 takes the final. The semifinal losers tie
// at 3rd place; seed 4 carries the better stat line.
func playOutFourParticipants(t *testing.T, env *testEnv, tournamentID int) []*models.Participant {
	t.Helper()
	participants, matches := builtBracket(t, env, tournamentID, 4)
	ctx := context.Background()

	_, err := env.matches.ReportResult(ctx, matches[0].ID, ResultInput{
		WinnerID: participants[0].ID, Score1: 2, Score2: 1,
		Stats: []ParticipantStats{
			{ParticipantID: participants[0].ID, Kills: 20, Points: 80},
			{ParticipantID: participants[1].ID, Kills: 10, Points: 40},
		},
	})
	require.NoError(t, err)

	_, err = env.matches.ReportResult(ctx, matches[1].ID, ResultInput{
		WinnerID: participants[2].ID, Score1: 2, Score2: 0,
		Stats: []ParticipantStats{
			{ParticipantID: participants[2].ID, Kills: 18, Points: 75},
			{ParticipantID: participants[3].ID, Kills: 15, Points: 60},
		},
	})
	require.NoError(t, err)

	_, err = env.matches.ReportResult(ctx, matches[2].ID,
		ResultInput{WinnerID: participants[0].ID, Score1: 3, Score2: 2})
	require.NoError(t, err)

	return participants
}

func TestCommitPayoutsAssignsPrizesByRank(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 4)
	participants := playOutFourParticipants(t, env, tournament.ID)

	payouts, err := env.payouts.CommitPayouts(context.Background(), tournament.ID)
	require.NoError(t, err)
	require.Len(t, payouts, 3)

	// Champion and runner-up by position; the 3rd-place tie goes to seed 4 on
	// points (60 vs 40).
	assert.Equal(t, participants[0].ID, payouts[0].ParticipantID)
	assert.Equal(t, int64(500), payouts[0].Amount)
	assert.Equal(t, participants[2].ID, payouts[1].ParticipantID)
	assert.Equal(t, int64(300), payouts[1].Amount)
	assert.Equal(t, participants[3].ID, payouts[2].ParticipantID)
	assert.Equal(t, int64(100), payouts[2].Amount)

	// Rank 4 gets nothing.
	unpaid := env.getParticipant(t, participants[1].ID)
	assert.Zero(t, unpaid.PrizeWon)

	fresh := env.getTournament(t, tournament.ID)
	assert.True(t, fresh.ResultsPublished)
}

func TestCommitPayoutsIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 4)
	participants := playOutFourParticipants(t, env, tournament.ID)

	first, err := env.payouts.CommitPayouts(context.Background(), tournament.ID)
	require.NoError(t, err)
	require.Len(t, first, 3)

	// Second commit moves no money and returns the committed table.
	second, err := env.payouts.CommitPayouts(context.Background(), tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	champion := env.getParticipant(t, participants[0].ID)
	assert.Equal(t, int64(500), champion.PrizeWon)
}

func TestCommitPayoutsRequiresCompletion(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 4)
	builtBracket(t, env, tournament.ID, 4)

	// Tournament is ongoing, nothing played.
	_, err := env.payouts.CommitPayouts(context.Background(), tournament.ID)
	require.ErrorIs(t, err, ErrStateConflict)
}

func TestCommitPayoutsCustomTieBreaker(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 4)
	participants := playOutFourParticipants(t, env, tournament.ID)

	// Invert the default: the worse stat line ranks ahead.
	env.payouts.SetTieBreaker(func(a, b *models.Participant) bool {
		return a.Points < b.Points
	})

	payouts, err := env.payouts.CommitPayouts(context.Background(), tournament.ID)
	require.NoError(t, err)
	require.Len(t, payouts, 3)
	assert.Equal(t, participants[1].ID, payouts[2].ParticipantID)
}

func TestClaimPrize(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 4)
	participants := playOutFourParticipants(t, env, tournament.ID)

	// Claiming before the results are published is refused.
	_, err := env.payouts.ClaimPrize(context.Background(), participants[0].ID)
	require.ErrorIs(t, err, ErrStateConflict)

	_, err = env.payouts.CommitPayouts(context.Background(), tournament.ID)
	require.NoError(t, err)

	claimed, err := env.payouts.ClaimPrize(context.Background(), participants[0].ID)
	require.NoError(t, err)
	assert.True(t, claimed.PrizeClaimed)
	require.NotNil(t, claimed.PrizeClaimedAt)

	// Exactly once.
	_, err = env.payouts.ClaimPrize(context.Background(), participants[0].ID)
	require.ErrorIs(t, err, ErrPrizeNotClaimable)

	// Nothing to claim for the unpaid rank.
	_, err = env.payouts.ClaimPrize(context.Background(), participants[1].ID)
	require.ErrorIs(t, err, ErrPrizeNotClaimable)
}
