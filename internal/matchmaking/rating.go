package matchmaking

const (
	baseRating   = 1000
	winBonus     = 10
	gameBonus    = 5
	maxGameBonus = 100
)

// History is a player's lifetime record as far as matchmaking cares.
type History struct {
	Wins  int
	Games int
}

// Rating maps a history to a matchmaking rating.
func Rating(h History) int {
	return baseRating + h.Wins*winBonus + min(h.Games*gameBonus, maxGameBonus)
}
