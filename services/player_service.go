package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/FFXIVVenues/kino-ki/deathroll"
	"github.com/FFXIVVenues/kino-ki/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PlayerService persists deathroll records and match history in Postgres.
type PlayerService struct {
	DB *gorm.DB
}

func NewPlayerService(db *gorm.DB) *PlayerService {
	return &PlayerService{DB: db}
}

var _ deathroll.Store = (*PlayerService)(nil)

// ensurePlayer inserts a zero record for userID unless one exists.
func ensurePlayer(tx *gorm.DB, userID string) error {
	row := models.DeathrollPlayer{ID: uuid.NewString(), UserID: userID}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&row).Error
}

// GetOrCreate ensures a DeathrollPlayer row exists (idempotent)
func (s *PlayerService) GetOrCreate(ctx context.Context, userID string) (deathroll.PlayerRecord, error) {
	db := s.DB.WithContext(ctx)
	var p models.DeathrollPlayer
	err := db.Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := ensurePlayer(db, userID); err != nil {
			return deathroll.PlayerRecord{}, fmt.Errorf("create player %s: %w", userID, err)
		}
		err = db.Where("user_id = ?", userID).First(&p).Error
	}
	if err != nil {
		return deathroll.PlayerRecord{}, fmt.Errorf("load player %s: %w", userID, err)
	}
	return p.Record(), nil
}

// lockPlayer loads userID's row FOR UPDATE, creating it first when missing.
func lockPlayer(tx *gorm.DB, userID string) (*models.DeathrollPlayer, error) {
	if err := ensurePlayer(tx, userID); err != nil {
		return nil, fmt.Errorf("create player %s: %w", userID, err)
	}
	var p models.DeathrollPlayer
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, fmt.Errorf("lock player %s: %w", userID, err)
	}
	return &p, nil
}

// RecordResult atomically applies one result to the user's record
func (s *PlayerService) RecordResult(ctx context.Context, userID string, won bool) (deathroll.PlayerRecord, error) {
	var out deathroll.PlayerRecord
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockPlayer(tx, userID)
		if err != nil {
			return err
		}
		p.SetRecord(p.Record().Apply(won))
		if err := tx.Save(p).Error; err != nil {
			return err
		}
		out = p.Record()
		return nil
	})
	return out, err
}

// SettleMatch writes the winner's win, the loser's loss and the history row in
// one transaction. Settling the same match id twice is a no-op.
func (s *PlayerService) SettleMatch(ctx context.Context, result deathroll.MatchResult) error {
	if !result.Completed || result.WinnerID == "" || result.LoserID == "" {
		return fmt.Errorf("settle %s: match has no winner", result.MatchID)
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock in id order so two settlements sharing a player cannot deadlock.
		ids := []string{result.WinnerID, result.LoserID}
		sort.Strings(ids)
		locked := make(map[string]*models.DeathrollPlayer, 2)
		for _, id := range ids {
			p, err := lockPlayer(tx, id)
			if err != nil {
				return err
			}
			locked[id] = p
		}

		// Checked under the player locks so a concurrent settlement of the
		// same match sees the other's committed history row.
		var existing int64
		if err := tx.Model(&models.DeathrollMatch{}).
			Where("id = ? AND result = ?", result.MatchID, models.MatchResultWin).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		winner, loser := locked[result.WinnerID], locked[result.LoserID]
		winner.SetRecord(winner.Record().Apply(true))
		loser.SetRecord(loser.Record().Apply(false))
		if err := tx.Save(winner).Error; err != nil {
			return err
		}
		if err := tx.Save(loser).Error; err != nil {
			return err
		}

		row := models.MatchFromResult(result)
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"winner_id", "loser_id", "result", "roll_count", "tie_count", "ended_at"}),
		}).Create(&row).Error
	})
}

// RecordAbandoned stores an incomplete history row.
func (s *PlayerService) RecordAbandoned(ctx context.Context, result deathroll.MatchResult) error {
	row := models.MatchFromResult(result)
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

// Leaderboard returns the top players by wins, then longest streak.
func (s *PlayerService) Leaderboard(ctx context.Context, limit int) ([]deathroll.PlayerRecord, error) {
	if limit < 1 || limit > 100 {
		limit = 10
	}
	var rows []models.DeathrollPlayer
	if err := s.DB.WithContext(ctx).
		Where("total_games > 0").
		Order("wins DESC").Order("longest_streak DESC").Order("user_id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]deathroll.PlayerRecord, len(rows))
	for i, r := range rows {
		out[i] = r.Record()
	}
	return out, nil
}

// RecentMatches returns a user's latest history rows
func (s *PlayerService) RecentMatches(ctx context.Context, userID string, limit int) ([]models.DeathrollMatch, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	var matches []models.DeathrollMatch
	err := s.DB.WithContext(ctx).
		Where("player1_id = ? OR player2_id = ?", userID, userID).
		Order("ended_at DESC").
		Limit(limit).
		Find(&matches).Error
	return matches, err
}

// Record returns the user's record without creating one; unknown users get a
// zero record.
func (s *PlayerService) Record(ctx context.Context, userID string) (deathroll.PlayerRecord, error) {
	var p models.DeathrollPlayer
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return deathroll.NewPlayerRecord(userID), nil
	}
	if err != nil {
		return deathroll.PlayerRecord{}, err
	}
	return p.Record(), nil
}
