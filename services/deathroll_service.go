package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/FFXIVVenues/kino-ki/deathroll"

	"github.com/cenkalti/backoff/v5"
)

// Archiver stores the transcript of a closed match.
type Archiver interface {
	ArchiveMatch(ctx context.Context, snap deathroll.Snapshot) (string, error)
}

// DeathrollOptions configures a DeathrollService.
type DeathrollOptions struct {
	Store     deathroll.Store
	Notifiers []deathroll.Notifier
	Archive   Archiver
	RNG       deathroll.RNG

	TurnTimeout     time.Duration
	CoinTossTimeout time.Duration
	DefaultCeiling  int
	MaxCeiling      int
	MaxTossRetries  int

	// SettleBackOff overrides the settlement retry policy.
	SettleBackOff  func() backoff.BackOff
	SettleMaxTries uint
}

// DeathrollService owns the registry and runs one goroutine per active match.
type DeathrollService struct {
	Registry *deathroll.Registry
	Runner   *deathroll.Runner
	Gateway  *InteractionGateway
	Store    deathroll.Store
	Archive  Archiver

	rng            deathroll.RNG
	defaultCeiling int
	maxCeiling     int

	root    context.Context
	stop    context.CancelFunc
	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewDeathrollService(ctx context.Context, opts DeathrollOptions) *DeathrollService {
	if opts.RNG == nil {
		opts.RNG = deathroll.NewRNG()
	}
	if opts.MaxCeiling <= 0 {
		opts.MaxCeiling = deathroll.DefaultCeiling
	}
	if opts.DefaultCeiling <= 0 || opts.DefaultCeiling > opts.MaxCeiling {
		opts.DefaultCeiling = opts.MaxCeiling
	}
	if opts.Store == nil {
		opts.Store = deathroll.NewMemoryStore()
	}

	root, stop := context.WithCancel(ctx)
	s := &DeathrollService{
		Registry: deathroll.NewRegistry(deathroll.RegistryOptions{
			RNG:            opts.RNG,
			MaxTossRetries: opts.MaxTossRetries,
		}),
		Gateway:        NewInteractionGateway(),
		Store:          opts.Store,
		Archive:        opts.Archive,
		rng:            opts.RNG,
		defaultCeiling: opts.DefaultCeiling,
		maxCeiling:     opts.MaxCeiling,
		root:           root,
		stop:           stop,
		running:        make(map[string]context.CancelFunc),
	}
	s.Runner = &deathroll.Runner{
		Registry:        s.Registry,
		Store:           opts.Store,
		Gateway:         s.Gateway,
		Notifier:        deathroll.Notifiers(opts.Notifiers),
		TurnTimeout:     opts.TurnTimeout,
		CoinTossTimeout: opts.CoinTossTimeout,
		SettleBackOff:   opts.SettleBackOff,
		SettleMaxTries:  opts.SettleMaxTries,
		OnClosed:        s.closed,
	}
	return s
}

// Ceiling applies the default and the configured maximum to a requested ceiling.
func (s *DeathrollService) Ceiling(requested int) (int, error) {
	if requested == 0 {
		return s.defaultCeiling, nil
	}
	if requested < 0 || requested > s.maxCeiling {
		return 0, fmt.Errorf("%w: must be between 1 and %d", deathroll.ErrInvalidCeiling, s.maxCeiling)
	}
	return requested, nil
}

// Challenge starts a match between challenger and opponent and begins playing
// it in the background.
func (s *DeathrollService) Challenge(ctx context.Context, guildID, channelID, challengerID, opponentID string, ceiling int) (deathroll.Snapshot, error) {
	if challengerID == opponentID {
		return deathroll.Snapshot{}, deathroll.ErrSelfChallenge
	}
	ceiling, err := s.Ceiling(ceiling)
	if err != nil {
		return deathroll.Snapshot{}, err
	}
	if err := s.root.Err(); err != nil {
		return deathroll.Snapshot{}, fmt.Errorf("deathroll service stopped: %w", err)
	}

	for _, id := range []string{challengerID, opponentID} {
		if _, err := s.Store.GetOrCreate(ctx, id); err != nil {
			return deathroll.Snapshot{}, fmt.Errorf("load player %s: %w", id, err)
		}
	}

	// Registering and marking the match running happen under one lock so a
	// concurrent sweep never sees an undriven match.
	s.mu.Lock()
	m, err := s.Registry.Start(guildID, channelID, challengerID, opponentID, ceiling)
	if err != nil {
		s.mu.Unlock()
		return deathroll.Snapshot{}, err
	}
	matchCtx, cancel := context.WithCancel(s.root)
	s.running[m.ID()] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.finish(m.ID())
		outcome, err := s.Runner.Play(matchCtx, m)
		if err != nil {
			log.Printf("[Deathroll] ❌ %s ended %s: %v", m.ID(), outcome, err)
			return
		}
		log.Printf("[Deathroll] %s ended %s", m.ID(), outcome)
	}()

	log.Printf("[Deathroll] 🎲 %s challenged %s in guild %s (ceiling %d)", challengerID, opponentID, guildID, ceiling)
	return m.Snapshot(), nil
}

func (s *DeathrollService) finish(matchID string) {
	s.mu.Lock()
	cancel, ok := s.running[matchID]
	delete(s.running, matchID)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *DeathrollService) closed(snap deathroll.Snapshot) {
	s.Gateway.Close(snap.ID)
	if s.Archive == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.root), 30*time.Second)
		defer cancel()
		if _, err := s.Archive.ArchiveMatch(ctx, snap); err != nil {
			log.Printf("[Deathroll] ❌ Failed to archive %s: %v", snap.ID, err)
		}
	}()
}

// Submit forwards a player's button press to the match.
func (s *DeathrollService) Submit(guildID, matchID, userID, option string) error {
	m, err := s.Registry.Find(guildID, matchID)
	if err != nil {
		return err
	}
	if m.Phase().Terminal() {
		return deathroll.ErrMatchOver
	}
	p1, p2 := m.Players()
	if userID != p1 && userID != p2 {
		return deathroll.ErrOrderingViolation
	}
	return s.Gateway.Submit(matchID, userID, option)
}

// Snapshot returns the current state of an active match.
func (s *DeathrollService) Snapshot(guildID, matchID string) (deathroll.Snapshot, error) {
	m, err := s.Registry.Find(guildID, matchID)
	if err != nil {
		return deathroll.Snapshot{}, err
	}
	return m.Snapshot(), nil
}

// Active lists the guild's matches, oldest first.
func (s *DeathrollService) Active(guildID string) []deathroll.Snapshot {
	matches := s.Registry.Active(guildID)
	out := make([]deathroll.Snapshot, len(matches))
	for i, m := range matches {
		out[i] = m.Snapshot()
	}
	return out
}

// RandomRoll draws a number in [0, max]; zero selects the default ceiling.
func (s *DeathrollService) RandomRoll(max int) (int, error) {
	if max == 0 {
		max = s.defaultCeiling
	}
	if max < 0 || max > s.maxCeiling {
		return 0, fmt.Errorf("%w: must be between 0 and %d", deathroll.ErrInvalidCeiling, s.maxCeiling)
	}
	return s.rng.IntRange(0, max), nil
}

// SettlePending retries settlement of finished matches whose write failed.
func (s *DeathrollService) SettlePending(ctx context.Context) (int, error) {
	return s.Runner.SettlePending(ctx)
}

// SweepStale removes registered matches that no goroutine is driving and that
// are not waiting for settlement. It returns how many were removed.
func (s *DeathrollService) SweepStale() int {
	removed := 0
	for _, m := range s.Registry.All() {
		s.mu.Lock()
		_, running := s.running[m.ID()]
		s.mu.Unlock()
		if running {
			continue
		}
		if m.Phase() == deathroll.PhaseFinished && !m.Settled() {
			continue
		}
		if _, err := m.Abandon("stale"); err != nil && !errors.Is(err, deathroll.ErrMatchOver) {
			log.Printf("[Deathroll] ❌ Failed to abandon stale %s: %v", m.ID(), err)
		}
		s.Registry.End(m.GuildID(), m.ID())
		s.Gateway.Close(m.ID())
		removed++
		log.Printf("[Deathroll] 🧹 Swept stale match %s", m.ID())
	}
	return removed
}

// Shutdown cancels every running match and waits for their goroutines. Waiting
// matches are abandoned.
func (s *DeathrollService) Shutdown(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
