package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/esports-arena/models"
)

// builtBracket registers n participants, builds the bracket and returns the
// participants and matches in creation order.
func builtBracket(t *testing.T, env *testEnv, tournamentID, n int) ([]*models.Participant, []*models.Match) {
	t.Helper()
	participants := fillAndClose(t, env, tournamentID, n)
	matches, err := env.brackets.BuildBracket(context.Background(), tournamentID)
	require.NoError(t, err)
	return participants, matches
}

func TestFourParticipantTournamentFlow(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 4)
	participants, matches := builtBracket(t, env, tournament.ID, 4)
	semi1, semi2, final := matches[0], matches[1], matches[2]

	// Semifinal 1: seed 1 beats seed 2.
	_, err := env.matches.ReportResult(context.Background(), semi1.ID,
		ResultInput{WinnerID: participants[0].ID, Score1: 2, Score2: 1})
	require.NoError(t, err)

	// Winner flows into the final's first slot.
	f := env.getMatch(t, final.ID)
	require.NotNil(t, f.Participant1ID)
	assert.Equal(t, participants[0].ID, *f.Participant1ID)
	assert.Nil(t, f.Participant2ID)

	// Semifinal loser ties at 3rd.
	loser1 := env.getParticipant(t, participants[1].ID)
	require.NotNil(t, loser1.FinalPosition)
	assert.Equal(t, 3, *loser1.FinalPosition)
	assert.Equal(t, models.ParticipantCompleted, loser1.Status)

	// Semifinal 2: seed 4 beats seed 3.
	_, err = env.matches.ReportResult(context.Background(), semi2.ID,
		ResultInput{WinnerID: participants[3].ID, Score1: 0, Score2: 2})
	require.NoError(t, err)

	loser2 := env.getParticipant(t, participants[2].ID)
	require.NotNil(t, loser2.FinalPosition)
	assert.Equal(t, 3, *loser2.FinalPosition)

	// Final: seed 1 wins the tournament.
	_, err = env.matches.ReportResult(context.Background(), final.ID,
		ResultInput{WinnerID: participants[0].ID, Score1: 2, Score2: 0})
	require.NoError(t, err)

	champion := env.getParticipant(t, participants[0].ID)
	runnerUp := env.getParticipant(t, participants[3].ID)
	require.NotNil(t, champion.FinalPosition)
	require.NotNil(t, runnerUp.FinalPosition)
	assert.Equal(t, 1, *champion.FinalPosition)
	assert.Equal(t, 2, *runnerUp.FinalPosition)
	assert.Equal(t, models.ParticipantCompleted, champion.Status)

	fresh := env.getTournament(t, tournament.ID)
	assert.Equal(t, models.TournamentCompleted, fresh.Status)
	require.NotNil(t, fresh.EndTime)
}

func TestReportResultImplicitStart(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 2)
	participants, matches := builtBracket(t, env, tournament.ID, 2)

	// Report directly on the pending match, no explicit start.
	match, err := env.matches.ReportResult(context.Background(), matches[0].ID,
		ResultInput{WinnerID: participants[0].ID, Score1: 1})
	require.NoError(t, err)
	assert.Equal(t, models.MatchCompleted, match.Status)
	require.NotNil(t, match.StartedAt)
}

func TestReportResultRecordsStats(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 2)
	participants, matches := builtBracket(t, env, tournament.ID, 2)

	_, err := env.matches.ReportResult(context.Background(), matches[0].ID, ResultInput{
		WinnerID: participants[0].ID,
		Score1:   13, Score2: 7,
		Stats: []ParticipantStats{
			{ParticipantID: participants[0].ID, Kills: 21, Points: 90},
			{ParticipantID: participants[1].ID, Kills: 14, Points: 55},
		},
	})
	require.NoError(t, err)

	winner := env.getParticipant(t, participants[0].ID)
	assert.Equal(t, 21, winner.Kills)
	assert.Equal(t, 90, winner.Points)
}

func TestReportResultConflicts(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 4)
	participants, matches := builtBracket(t, env, tournament.ID, 4)
	semi1 := matches[0]

	_, err := env.matches.ReportResult(context.Background(), semi1.ID,
		ResultInput{WinnerID: participants[0].ID, Score1: 2, Score2: 0})
	require.NoError(t, err)

	// Same winner again: idempotent.
	match, err := env.matches.ReportResult(context.Background(), semi1.ID,
		ResultInput{WinnerID: participants[0].ID, Score1: 2, Score2: 0})
	require.NoError(t, err)
	assert.Equal(t, participants[0].ID, *match.WinnerID)

	// Different winner: conflict.
	_, err = env.matches.ReportResult(context.Background(), semi1.ID,
		ResultInput{WinnerID: participants[1].ID, Score1: 0, Score2: 2})
	require.ErrorIs(t, err, ErrResultConflict)
}

func TestReportResultRejectsOutsiders(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 4)
	participants, matches := builtBracket(t, env, tournament.ID, 4)

	// Seed 3 is not in semifinal 1.
	_, err := env.matches.ReportResult(context.Background(), matches[0].ID,
		ResultInput{WinnerID: participants[2].ID})
	require.ErrorIs(t, err, ErrParticipantNotInMatch)

	// The final has no participants yet.
	_, err = env.matches.ReportResult(context.Background(), matches[2].ID,
		ResultInput{WinnerID: participants[0].ID})
	require.ErrorIs(t, err, ErrMatchNotReady)
}

func TestStartMatch(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 2)
	participants, matches := builtBracket(t, env, tournament.ID, 2)

	match, err := env.matches.StartMatch(context.Background(), matches[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchOngoing, match.Status)

	// Starting twice conflicts.
	_, err = env.matches.StartMatch(context.Background(), matches[0].ID)
	require.ErrorIs(t, err, ErrStateConflict)

	// An ongoing match still accepts its result.
	_, err = env.matches.ReportResult(context.Background(), matches[0].ID,
		ResultInput{WinnerID: participants[0].ID, Score1: 1})
	require.NoError(t, err)
}

func TestCancelMatchWalkover(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 4)
	participants, matches := builtBracket(t, env, tournament.ID, 4)
	semi1, semi2, final := matches[0], matches[1], matches[2]

	// Semifinal 1 resolves normally; its winner waits in the final.
	_, err := env.matches.ReportResult(context.Background(), semi1.ID,
		ResultInput{WinnerID: participants[0].ID, Score1: 2})
	require.NoError(t, err)

	// Cancelling semifinal 2 hands the waiting participant the final.
	require.NoError(t, env.matches.CancelMatch(context.Background(), semi2.ID))

	f := env.getMatch(t, final.ID)
	assert.Equal(t, models.MatchCompleted, f.Status)
	require.NotNil(t, f.WinnerID)
	assert.Equal(t, participants[0].ID, *f.WinnerID)

	fresh := env.getTournament(t, tournament.ID)
	assert.Equal(t, models.TournamentCompleted, fresh.Status)

	champion := env.getParticipant(t, participants[0].ID)
	require.NotNil(t, champion.FinalPosition)
	assert.Equal(t, 1, *champion.FinalPosition)
}

func TestCancelledFeederResolvesOnLateArrival(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 4)
	participants, matches := builtBracket(t, env, tournament.ID, 4)
	semi1, semi2, final := matches[0], matches[1], matches[2]

	// Cancel first, resolve the sibling afterwards: the arriving winner
	// must still advance by walkover.
	require.NoError(t, env.matches.CancelMatch(context.Background(), semi1.ID))

	_, err := env.matches.ReportResult(context.Background(), semi2.ID,
		ResultInput{WinnerID: participants[2].ID, Score1: 2})
	require.NoError(t, err)

	f := env.getMatch(t, final.ID)
	assert.Equal(t, models.MatchCompleted, f.Status)
	require.NotNil(t, f.WinnerID)
	assert.Equal(t, participants[2].ID, *f.WinnerID)
}

func TestOverrideResultRevertsDownstream(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 4)
	participants, matches := builtBracket(t, env, tournament.ID, 4)
	semi1, semi2, final := matches[0], matches[1], matches[2]

	_, err := env.matches.ReportResult(context.Background(), semi1.ID,
		ResultInput{WinnerID: participants[0].ID, Score1: 2})
	require.NoError(t, err)
	_, err = env.matches.ReportResult(context.Background(), semi2.ID,
		ResultInput{WinnerID: participants[2].ID, Score1: 2})
	require.NoError(t, err)
	_, err = env.matches.ReportResult(context.Background(), final.ID,
		ResultInput{WinnerID: participants[0].ID, Score1: 3})
	require.NoError(t, err)

	// The admin corrects semifinal 1: seed 2 actually won. Everything the
	// wrong winner earned downstream is reverted, including the final.
	corrected, err := env.matches.OverrideResult(context.Background(), semi1.ID,
		ResultInput{WinnerID: participants[1].ID, Score1: 1, Score2: 2})
	require.NoError(t, err)
	assert.Equal(t, participants[1].ID, *corrected.WinnerID)

	f := env.getMatch(t, final.ID)
	assert.Equal(t, models.MatchPending, f.Status)
	assert.Nil(t, f.WinnerID)
	require.NotNil(t, f.Participant1ID)
	assert.Equal(t, participants[1].ID, *f.Participant1ID)
	require.NotNil(t, f.Participant2ID)
	assert.Equal(t, participants[2].ID, *f.Participant2ID)

	// The tournament reverted to ongoing; the old champion lost their
	// placement and the corrected loser holds 3rd.
	fresh := env.getTournament(t, tournament.ID)
	assert.Equal(t, models.TournamentOngoing, fresh.Status)

	oldChampion := env.getParticipant(t, participants[0].ID)
	require.NotNil(t, oldChampion.FinalPosition)
	assert.Equal(t, 3, *oldChampion.FinalPosition)

	// The bracket can resolve again with the corrected field.
	_, err = env.matches.ReportResult(context.Background(), final.ID,
		ResultInput{WinnerID: participants[2].ID, Score1: 3})
	require.NoError(t, err)

	newChampion := env.getParticipant(t, participants[2].ID)
	require.NotNil(t, newChampion.FinalPosition)
	assert.Equal(t, 1, *newChampion.FinalPosition)
}

func TestOverrideResultSameWinnerCorrectsScores(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 2)
	participants, matches := builtBracket(t, env, tournament.ID, 2)
	final := matches[0]

	_, err := env.matches.ReportResult(context.Background(), final.ID,
		ResultInput{WinnerID: participants[0].ID, Score1: 2, Score2: 1})
	require.NoError(t, err)

	// Correcting only the scoreline keeps the winner; the completed
	// tournament must stay completed instead of erroring out.
	corrected, err := env.matches.OverrideResult(context.Background(), final.ID,
		ResultInput{WinnerID: participants[0].ID, Score1: 3, Score2: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, corrected.Score1)
	assert.Equal(t, participants[0].ID, *corrected.WinnerID)

	fresh := env.getTournament(t, tournament.ID)
	assert.Equal(t, models.TournamentCompleted, fresh.Status)

	champion := env.getParticipant(t, participants[0].ID)
	require.NotNil(t, champion.FinalPosition)
	assert.Equal(t, 1, *champion.FinalPosition)
}

func TestOverrideResultBlockedAfterPublish(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 2)
	participants, matches := builtBracket(t, env, tournament.ID, 2)

	_, err := env.matches.ReportResult(context.Background(), matches[0].ID,
		ResultInput{WinnerID: participants[0].ID, Score1: 1})
	require.NoError(t, err)

	_, err = env.payouts.CommitPayouts(context.Background(), tournament.ID)
	require.NoError(t, err)

	_, err = env.matches.OverrideResult(context.Background(), matches[0].ID,
		ResultInput{WinnerID: participants[1].ID})
	require.ErrorIs(t, err, ErrResultsPublished)
}
