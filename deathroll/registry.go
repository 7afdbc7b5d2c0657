package deathroll

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// RegistryOptions configures matches created by a Registry.
type RegistryOptions struct {
	RNG            RNG
	MaxTossRetries int
	// NewID generates match ids; defaults to random UUIDs.
	NewID func() string
}

// Registry holds the active matches of every guild and guarantees at most one
// active match per unordered pair of players per guild.
type Registry struct {
	mu     sync.Mutex
	guilds map[string]map[string]*Match
	opts   RegistryOptions
}

func NewRegistry(opts RegistryOptions) *Registry {
	if opts.RNG == nil {
		opts.RNG = NewRNG()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Registry{
		guilds: make(map[string]map[string]*Match),
		opts:   opts,
	}
}

// Start creates and registers a match between playerA and playerB.
func (r *Registry) Start(guildID, channelID, playerA, playerB string, ceiling int) (*Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.guilds[guildID] {
		if m.Involves(playerA, playerB) {
			return nil, ErrDuplicateMatch
		}
	}

	m, err := NewMatch(MatchParams{
		ID:             r.opts.NewID(),
		GuildID:        guildID,
		ChannelID:      channelID,
		Player1:        playerA,
		Player2:        playerB,
		Ceiling:        ceiling,
		MaxTossRetries: r.opts.MaxTossRetries,
		RNG:            r.opts.RNG,
	})
	if err != nil {
		return nil, err
	}

	matches, ok := r.guilds[guildID]
	if !ok {
		matches = make(map[string]*Match)
		r.guilds[guildID] = matches
	}
	matches[m.ID()] = m
	return m, nil
}

// Find returns the active match with the given id in guildID.
func (r *Registry) Find(guildID, matchID string) (*Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.guilds[guildID][matchID]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return m, nil
}

// End removes a match. Removing an unknown match is a no-op.
func (r *Registry) End(guildID, matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matches, ok := r.guilds[guildID]
	if !ok {
		return
	}
	delete(matches, matchID)
	if len(matches) == 0 {
		delete(r.guilds, guildID)
	}
}

// Active lists the guild's matches, oldest first.
func (r *Registry) Active(guildID string) []*Match {
	r.mu.Lock()
	out := make([]*Match, 0, len(r.guilds[guildID]))
	for _, m := range r.guilds[guildID] {
		out = append(out, m)
	}
	r.mu.Unlock()
	sortByCreation(out)
	return out
}

// All lists every active match across guilds.
func (r *Registry) All() []*Match {
	r.mu.Lock()
	var out []*Match
	for _, matches := range r.guilds {
		for _, m := range matches {
			out = append(out, m)
		}
	}
	r.mu.Unlock()
	sortByCreation(out)
	return out
}

// Len is the number of active matches across guilds.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, matches := range r.guilds {
		n += len(matches)
	}
	return n
}

func sortByCreation(ms []*Match) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].createdAt.Equal(ms[j].createdAt) {
			return ms[i].id < ms[j].id
		}
		return ms[i].createdAt.Before(ms[j].createdAt)
	})
}
