package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/esports-arena/models"
)

// fillAndClose registers n participants and closes registration.
func fillAndClose(t *testing.T, env *testEnv, tournamentID, n int) []*models.Participant {
	t.Helper()
	participants := make([]*models.Participant, 0, n)
	for userID := 1; userID <= n; userID++ {
		participants = append(participants, env.register(t, tournamentID, userID, teamName(userID)))
	}
	fresh := env.getTournament(t, tournamentID)
	if fresh.Status == models.TournamentRegistrationOpen {
		require.NoError(t, env.lifecycle.CloseRegistration(context.Background(), tournamentID))
	}
	return participants
}

func TestBuildBracketFourParticipants(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 4)
	participants := fillAndClose(t, env, tournament.ID, 4)

	matches, err := env.brackets.BuildBracket(context.Background(), tournament.ID)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	// Round 1: slots 1v2 and 3v4, by ascending slot number.
	m1, m2, final := matches[0], matches[1], matches[2]
	assert.Equal(t, participants[0].ID, *m1.Participant1ID)
	assert.Equal(t, participants[1].ID, *m1.Participant2ID)
	assert.Equal(t, participants[2].ID, *m2.Participant1ID)
	assert.Equal(t, participants[3].ID, *m2.Participant2ID)

	require.NotNil(t, m1.NextMatchID)
	require.NotNil(t, m2.NextMatchID)
	assert.Equal(t, final.ID, *m1.NextMatchID)
	assert.Equal(t, final.ID, *m2.NextMatchID)
	assert.Equal(t, 1, *m1.WinnerToSlot)
	assert.Equal(t, 2, *m2.WinnerToSlot)
	assert.Nil(t, final.NextMatchID)

	fresh := env.getTournament(t, tournament.ID)
	assert.True(t, fresh.HasBracket)
	assert.Equal(t, models.TournamentOngoing, fresh.Status)

	for _, p := range participants {
		assert.Equal(t, models.ParticipantPlaying, env.getParticipant(t, p.ID).Status)
	}
}

func TestBuildBracketResolvesByes(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 5)
	participants := fillAndClose(t, env, tournament.ID, 5)

	matches, err := env.brackets.BuildBracket(context.Background(), tournament.ID)
	require.NoError(t, err)
	require.Len(t, matches, 7) // 4 + 2 + 1

	// First three round-1 matches are byes, resolved at build time.
	for i := 0; i < 3; i++ {
		bye := env.getMatch(t, matches[i].ID)
		assert.Equal(t, models.MatchCompleted, bye.Status, "bye match %d", i+1)
		require.NotNil(t, bye.WinnerID)
		assert.Equal(t, participants[i].ID, *bye.WinnerID)
	}
	real := env.getMatch(t, matches[3].ID)
	assert.Equal(t, models.MatchPending, real.Status)

	// Bye winners landed in round 2: match 5 holds seeds 1 and 2, match 6
	// holds seed 3 plus the winner of the only real round-1 match.
	semi1 := env.getMatch(t, matches[4].ID)
	require.NotNil(t, semi1.Participant1ID)
	require.NotNil(t, semi1.Participant2ID)
	assert.Equal(t, participants[0].ID, *semi1.Participant1ID)
	assert.Equal(t, participants[1].ID, *semi1.Participant2ID)

	semi2 := env.getMatch(t, matches[5].ID)
	require.NotNil(t, semi2.Participant1ID)
	assert.Equal(t, participants[2].ID, *semi2.Participant1ID)
	assert.Nil(t, semi2.Participant2ID)
}

func TestBuildBracketGuards(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 4)

	// Registration still open.
	_, err := env.brackets.BuildBracket(context.Background(), tournament.ID)
	require.ErrorIs(t, err, ErrStateConflict)

	fillAndClose(t, env, tournament.ID, 4)
	_, err = env.brackets.BuildBracket(context.Background(), tournament.ID)
	require.NoError(t, err)

	// Second build.
	_, err = env.brackets.BuildBracket(context.Background(), tournament.ID)
	require.ErrorIs(t, err, ErrBracketAlreadyBuilt)
}

func TestBuildBracketInsufficientParticipants(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 4)
	participants := fillAndClose(t, env, tournament.ID, 2)

	// Disqualification shrinks the field below the minimum.
	require.NoError(t, env.lifecycle.Disqualify(context.Background(), participants[0].ID))

	_, err := env.brackets.BuildBracket(context.Background(), tournament.ID)
	require.ErrorIs(t, err, ErrInsufficientParticipants)

	// Nothing persisted.
	fresh := env.getTournament(t, tournament.ID)
	assert.False(t, fresh.HasBracket)
	assert.Empty(t, env.listMatches(t, tournament.ID))
}

func TestBuildBracketExcludesDisqualified(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 4)
	participants := fillAndClose(t, env, tournament.ID, 4)

	require.NoError(t, env.lifecycle.Disqualify(context.Background(), participants[3].ID))

	matches, err := env.brackets.BuildBracket(context.Background(), tournament.ID)
	require.NoError(t, err)
	require.Len(t, matches, 3) // 3 participants: bye + real + final

	for _, m := range matches {
		assert.False(t, m.HasParticipant(participants[3].ID),
			"disqualified participant seeded into match R%dM%d", m.RoundNumber, m.MatchNumber)
	}
}

func TestGetBracketAssemblesAggregate(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.openTournament(t, 4)
	fillAndClose(t, env, tournament.ID, 4)
	_, err := env.brackets.BuildBracket(context.Background(), tournament.ID)
	require.NoError(t, err)

	full, err := env.brackets.GetBracket(context.Background(), tournament.ID)
	require.NoError(t, err)
	assert.Len(t, full.Participants, 4)
	assert.Len(t, full.Matches, 3)
}
