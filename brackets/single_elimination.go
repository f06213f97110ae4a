package brackets

import (
	"errors"
	"math"
)

var ErrNotEnoughParticipants = errors.New("not enough participants to build a single elimination bracket (minimum 2)")

// PlannedMatch is one node of a bracket plan. Matches are addressed by
// (Round, Number) with Number starting at 1 within each round; match 2k-1 and
// 2k of round r feed match k of round r+1, so NextNumber = ceil(Number/2) and
// WinnerToSlot is 1 for odd feeders, 2 for even ones.
type PlannedMatch struct {
	Round  int
	Number int

	Participant1ID *int
	Participant2ID *int

	// Bye marks a round-1 match with a single real participant. Bye matches
	// are persisted as already completed and their winner is propagated
	// before the build returns.
	Bye bool

	// NextRound/NextNumber are zero for the final.
	NextRound    int
	NextNumber   int
	WinnerToSlot int
}

// Plan is a full single-elimination bracket: every match of every round,
// later rounds with empty slots. Matches are ordered by round, then number.
type Plan struct {
	Rounds  int
	Byes    int
	Matches []*PlannedMatch
}

// Final returns the plan's last match.
func (p *Plan) Final() *PlannedMatch {
	return p.Matches[len(p.Matches)-1]
}

// PlanSingleElimination seeds a bracket from participant IDs ordered by slot
// number ascending. Seeding is deterministic: the same ordered input always
// yields the same plan. With participant count P, the bracket has
// ceil(log2(P)) rounds and 2^rounds - P byes, all given to the
// lowest-numbered participants, each paired against an empty slot. The
// remaining participants pair off in order. Byes never outnumber real
// participants, so no round-1 match is ever empty on both sides.
func PlanSingleElimination(participantIDs []int) (*Plan, error) {
	n := len(participantIDs)
	if n < 2 {
		return nil, ErrNotEnoughParticipants
	}

	rounds := int(math.Ceil(math.Log2(float64(n))))
	bracketSize := 1 << uint(rounds)
	byes := bracketSize - n

	plan := &Plan{
		Rounds:  rounds,
		Byes:    byes,
		Matches: make([]*PlannedMatch, 0, bracketSize-1),
	}

	firstRoundMatches := bracketSize / 2
	next := 0 // index into participantIDs

	for num := 1; num <= firstRoundMatches; num++ {
		m := &PlannedMatch{Round: 1, Number: num}
		pid := participantIDs[next]
		m.Participant1ID = &pid
		next++
		if num <= byes {
			m.Bye = true
		} else {
			opp := participantIDs[next]
			m.Participant2ID = &opp
			next++
		}
		plan.Matches = append(plan.Matches, m)
	}

	for r := 2; r <= rounds; r++ {
		count := bracketSize >> uint(r)
		for num := 1; num <= count; num++ {
			plan.Matches = append(plan.Matches, &PlannedMatch{Round: r, Number: num})
		}
	}

	for _, m := range plan.Matches {
		if m.Round == rounds {
			continue
		}
		m.NextRound = m.Round + 1
		m.NextNumber = (m.Number + 1) / 2
		if m.Number%2 == 1 {
			m.WinnerToSlot = 1
		} else {
			m.WinnerToSlot = 2
		}
	}

	return plan, nil
}

// LoserPlacement returns the finishing position for a participant eliminated
// in the given round: the runner-up places 2nd, semifinal losers tie at 3,
// quarterfinal losers at 5, and so on (2^(rounds-round)+1).
func LoserPlacement(round, rounds int) int {
	if round >= rounds {
		return 2
	}
	return 1<<uint(rounds-round) + 1
}
