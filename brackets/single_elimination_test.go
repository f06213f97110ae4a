package brackets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedIDs(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = 100 + i
	}
	return ids
}

func TestPlanSingleEliminationRejectsSmallFields(t *testing.T) {
	_, err := PlanSingleElimination(nil)
	require.ErrorIs(t, err, ErrNotEnoughParticipants)

	_, err = PlanSingleElimination([]int{1})
	require.ErrorIs(t, err, ErrNotEnoughParticipants)
}

func TestPlanSingleEliminationStructure(t *testing.T) {
	tests := []struct {
		participants int
		wantRounds   int
		wantByes     int
		wantMatches  int
	}{
		{2, 1, 0, 1},
		{3, 2, 1, 3},
		{4, 2, 0, 3},
		{5, 3, 3, 7},
		{6, 3, 2, 7},
		{7, 3, 1, 7},
		{8, 3, 0, 7},
		{9, 4, 7, 15},
	}

	for _, tc := range tests {
		plan, err := PlanSingleElimination(seedIDs(tc.participants))
		require.NoError(t, err, "P=%d", tc.participants)

		assert.Equal(t, tc.wantRounds, plan.Rounds, "P=%d rounds", tc.participants)
		assert.Equal(t, tc.wantByes, plan.Byes, "P=%d byes", tc.participants)
		assert.Len(t, plan.Matches, tc.wantMatches, "P=%d matches", tc.participants)

		final := plan.Final()
		assert.Equal(t, plan.Rounds, final.Round)
		assert.Equal(t, 1, final.Number)
		assert.Zero(t, final.NextRound)
		assert.Zero(t, final.NextNumber)
	}
}

func TestPlanSingleEliminationByesGoToLowestSlots(t *testing.T) {
	// 5 participants: 3 byes for the three lowest-numbered, the remaining
	// two pair off in the last round-1 match.
	ids := []int{10, 20, 30, 40, 50}
	plan, err := PlanSingleElimination(ids)
	require.NoError(t, err)

	round1 := plan.Matches[:4]
	for i := 0; i < 3; i++ {
		m := round1[i]
		require.True(t, m.Bye, "match %d should be a bye", m.Number)
		require.NotNil(t, m.Participant1ID)
		assert.Equal(t, ids[i], *m.Participant1ID)
		assert.Nil(t, m.Participant2ID)
	}

	last := round1[3]
	assert.False(t, last.Bye)
	require.NotNil(t, last.Participant1ID)
	require.NotNil(t, last.Participant2ID)
	assert.Equal(t, 40, *last.Participant1ID)
	assert.Equal(t, 50, *last.Participant2ID)
}

func TestPlanSingleEliminationPairsSequentially(t *testing.T) {
	ids := []int{1, 2, 3, 4}
	plan, err := PlanSingleElimination(ids)
	require.NoError(t, err)

	m1, m2 := plan.Matches[0], plan.Matches[1]
	assert.Equal(t, 1, *m1.Participant1ID)
	assert.Equal(t, 2, *m1.Participant2ID)
	assert.Equal(t, 3, *m2.Participant1ID)
	assert.Equal(t, 4, *m2.Participant2ID)
}

func TestPlanSingleEliminationLinks(t *testing.T) {
	plan, err := PlanSingleElimination(seedIDs(8))
	require.NoError(t, err)

	for _, m := range plan.Matches {
		if m.Round == plan.Rounds {
			assert.Zero(t, m.NextRound)
			continue
		}
		assert.Equal(t, m.Round+1, m.NextRound)
		assert.Equal(t, (m.Number+1)/2, m.NextNumber)
		if m.Number%2 == 1 {
			assert.Equal(t, 1, m.WinnerToSlot)
		} else {
			assert.Equal(t, 2, m.WinnerToSlot)
		}
	}

	// Every non-final round feeds exactly two matches into each next-round
	// slot pair.
	feeders := make(map[[3]int]int)
	for _, m := range plan.Matches {
		if m.NextRound == 0 {
			continue
		}
		feeders[[3]int{m.NextRound, m.NextNumber, m.WinnerToSlot}]++
	}
	for key, count := range feeders {
		assert.Equal(t, 1, count, "slot %v has %d feeders", key, count)
	}
}

func TestPlanSingleEliminationDeterministic(t *testing.T) {
	a, err := PlanSingleElimination(seedIDs(7))
	require.NoError(t, err)
	b, err := PlanSingleElimination(seedIDs(7))
	require.NoError(t, err)

	require.Equal(t, len(a.Matches), len(b.Matches))
	for i := range a.Matches {
		assert.Equal(t, *a.Matches[i], *b.Matches[i])
	}
}

func TestLoserPlacement(t *testing.T) {
	tests := []struct {
		round, rounds, want int
	}{
		{3, 3, 2}, // runner-up
		{2, 3, 3}, // semifinal losers
		{1, 3, 5}, // quarterfinal losers
		{1, 2, 3},
		{2, 2, 2},
		{1, 1, 2},
		{1, 4, 9},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, LoserPlacement(tc.round, tc.rounds),
			"round %d of %d", tc.round, tc.rounds)
	}
}
