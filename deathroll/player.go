package deathroll

// PlayerRecord holds a user's cumulative deathroll statistics.
type PlayerRecord struct {
	UserID        string `json:"user_id"`
	TotalGames    int    `json:"total_games"`
	Wins          int    `json:"wins"`
	CurrentStreak int    `json:"current_streak"`
	LongestStreak int    `json:"longest_streak"`
}

// NewPlayerRecord returns a zero-initialized record for userID.
func NewPlayerRecord(userID string) PlayerRecord {
	return PlayerRecord{UserID: userID}
}

// Losses is derived from total games and wins.
func (p PlayerRecord) Losses() int {
	return p.TotalGames - p.Wins
}

// Apply returns the record updated with the result of one completed match.
func (p PlayerRecord) Apply(won bool) PlayerRecord {
	p.TotalGames++
	if won {
		p.Wins++
		p.CurrentStreak++
		if p.CurrentStreak > p.LongestStreak {
			p.LongestStreak = p.CurrentStreak
		}
	} else {
		p.CurrentStreak = 0
	}
	return p
}
