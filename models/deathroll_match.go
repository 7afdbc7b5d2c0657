package models

import (
	"time"

	"github.com/FFXIVVenues/kino-ki/deathroll"
)

const (
	MatchResultWin        = "win"
	MatchResultIncomplete = "incomplete"
)

// DeathrollMatch records a match once it leaves play.
type DeathrollMatch struct {
	ID        string  `gorm:"primaryKey;type:uuid" json:"id"`
	GuildID   string  `gorm:"index;not null" json:"guild_id"`
	Player1ID string  `gorm:"index;not null" json:"player1_id"`
	Player2ID string  `gorm:"index;not null" json:"player2_id"`
	Ceiling   int     `json:"ceiling"`
	WinnerID  *string `gorm:"index" json:"winner_id,omitempty"` // nil for incomplete matches
	LoserID   *string `json:"loser_id,omitempty"`

	Result    string `json:"result" gorm:"type:varchar(16);check:result IN ('win','incomplete')"`
	RollCount int    `json:"roll_count" gorm:"default:0"`
	TieCount  int    `json:"tie_count" gorm:"default:0"`

	EndedAt time.Time `json:"ended_at"`

	Timestamps
}

// MatchFromResult builds a history row from a match result.
func MatchFromResult(r deathroll.MatchResult) DeathrollMatch {
	m := DeathrollMatch{
		ID:        r.MatchID,
		GuildID:   r.GuildID,
		Player1ID: r.Player1,
		Player2ID: r.Player2,
		Ceiling:   r.Ceiling,
		Result:    MatchResultIncomplete,
		RollCount: r.Rolls,
		TieCount:  r.Ties,
		EndedAt:   r.At,
	}
	if r.Completed {
		winner, loser := r.WinnerID, r.LoserID
		m.WinnerID = &winner
		m.LoserID = &loser
		m.Result = MatchResultWin
	}
	return m
}
