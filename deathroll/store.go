package deathroll

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MatchResult is the persisted summary of a match that left play.
type MatchResult struct {
	MatchID   string
	GuildID   string
	Player1   string
	Player2   string
	Ceiling   int
	WinnerID  string
	LoserID   string
	Rolls     int
	Ties      int
	Completed bool
	At        time.Time
}

// ResultOf summarizes a finished or abandoned match.
func ResultOf(s Snapshot) MatchResult {
	r := MatchResult{
		MatchID:   s.ID,
		GuildID:   s.GuildID,
		Player1:   s.Player1,
		Player2:   s.Player2,
		Ceiling:   s.Ceiling,
		Rolls:     len(s.Rolls),
		Ties:      s.Ties,
		Completed: s.Phase == PhaseFinished,
		At:        s.UpdatedAt,
	}
	if r.Completed {
		r.LoserID = s.UserAt(s.Loser)
		r.WinnerID = s.UserAt(s.Loser.Other())
	}
	return r
}

// Store persists player records and match history.
type Store interface {
	// GetOrCreate returns the user's record, persisting a zero record first
	// when the user has never played.
	GetOrCreate(ctx context.Context, userID string) (PlayerRecord, error)
	// RecordResult applies one match result to the user's record.
	RecordResult(ctx context.Context, userID string, won bool) (PlayerRecord, error)
	// SettleMatch records the winner's win, the loser's loss and the match
	// history atomically.
	SettleMatch(ctx context.Context, result MatchResult) error
	// RecordAbandoned stores history for a match without touching records.
	RecordAbandoned(ctx context.Context, result MatchResult) error
}

var errIncompleteResult = errors.New("match result has no winner")

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	players map[string]PlayerRecord
	history []MatchResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{players: make(map[string]PlayerRecord)}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, userID string) (PlayerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreate(userID), nil
}

func (s *MemoryStore) getOrCreate(userID string) PlayerRecord {
	rec, ok := s.players[userID]
	if !ok {
		rec = NewPlayerRecord(userID)
		s.players[userID] = rec
	}
	return rec
}

func (s *MemoryStore) RecordResult(_ context.Context, userID string, won bool) (PlayerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.getOrCreate(userID).Apply(won)
	s.players[userID] = rec
	return rec, nil
}

func (s *MemoryStore) SettleMatch(_ context.Context, result MatchResult) error {
	if !result.Completed || result.WinnerID == "" || result.LoserID == "" {
		return errIncompleteResult
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[result.WinnerID] = s.getOrCreate(result.WinnerID).Apply(true)
	s.players[result.LoserID] = s.getOrCreate(result.LoserID).Apply(false)
	s.history = append(s.history, result)
	return nil
}

func (s *MemoryStore) RecordAbandoned(_ context.Context, result MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, result)
	return nil
}

// Player returns the stored record without creating one.
func (s *MemoryStore) Player(userID string) (PlayerRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.players[userID]
	return rec, ok
}

// History returns stored match results in insertion order.
func (s *MemoryStore) History() []MatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MatchResult(nil), s.history...)
}
