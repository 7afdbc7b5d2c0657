package models

import (
	"time"

	"github.com/FFXIVVenues/kino-ki/deathroll"
	"gorm.io/gorm"
)

// DeathrollPlayer is a user's cumulative deathroll record.
type DeathrollPlayer struct {
	ID     string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"` // chat platform user id

	TotalGames    int `json:"total_games" gorm:"default:0;check:total_games >= 0"`
	Wins          int `json:"wins" gorm:"default:0;check:wins >= 0"`
	CurrentStreak int `json:"current_streak" gorm:"default:0"`
	LongestStreak int `json:"longest_streak" gorm:"default:0"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// Record converts the row to its domain form.
func (p DeathrollPlayer) Record() deathroll.PlayerRecord {
	return deathroll.PlayerRecord{
		UserID:        p.UserID,
		TotalGames:    p.TotalGames,
		Wins:          p.Wins,
		CurrentStreak: p.CurrentStreak,
		LongestStreak: p.LongestStreak,
	}
}

// SetRecord copies the counters of r onto the row.
func (p *DeathrollPlayer) SetRecord(r deathroll.PlayerRecord) {
	p.TotalGames = r.TotalGames
	p.Wins = r.Wins
	p.CurrentStreak = r.CurrentStreak
	p.LongestStreak = r.LongestStreak
}
