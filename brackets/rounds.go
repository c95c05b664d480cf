package brackets

import (
	"math"

	"github.com/mkaryagin/scrim-system/models"
)

// NextPowerOfTwo returns the smallest power of two >= n.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << uint(math.Ceil(math.Log2(float64(n))))
}

// CalculateTournamentRounds returns the total number of rounds for a
// format. Double elimination adds the losers bracket and a grand final
// on top of the winners rounds.
func CalculateTournamentRounds(teamCount int, format models.TournamentFormat) int {
	if teamCount < 2 {
		return 0
	}
	singleRounds := int(math.Ceil(math.Log2(float64(teamCount))))
	if format == models.FormatSingleElimination {
		return singleRounds
	}
	losersRounds := (singleRounds - 1) * 2
	if losersRounds < 1 {
		losersRounds = 1
	}
	return singleRounds + losersRounds + 1
}

// CalculateTotalMatches returns how many matches the whole tournament
// takes, byes excluded.
func CalculateTotalMatches(teamCount int, format models.TournamentFormat) int {
	if teamCount < 2 {
		return 0
	}
	if format == models.FormatSingleElimination {
		return teamCount - 1
	}
	return 2*teamCount - 2
}

// LosersRoundFor maps the winners round that eliminated a team to the
// losers round it drops into.
func LosersRoundFor(winnersRound int) int {
	if winnersRound == 1 {
		return 1
	}
	return winnersRound*2 - 2
}
