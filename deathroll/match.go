package deathroll

import (
	"sync"
	"time"
)

// Phase is the match's position in its state machine.
type Phase string

const (
	PhaseAwaitingCoinToss Phase = "awaiting_coin_toss"
	// PhaseCoinTossTied is transient: a tie immediately resets both tosses and
	// returns the match to PhaseAwaitingCoinToss.
	PhaseCoinTossTied Phase = "coin_toss_tied"
	PhaseAwaitingRoll Phase = "awaiting_roll"
	PhaseFinished     Phase = "finished"
	PhaseAbandoned    Phase = "abandoned"
)

// Terminal reports whether no further actions are accepted.
func (p Phase) Terminal() bool {
	return p == PhaseFinished || p == PhaseAbandoned
}

const (
	DefaultCeiling = 999
	CoinTossMin    = 0
	CoinTossMax    = 10
)

// MatchParams configures a new match.
type MatchParams struct {
	ID        string
	GuildID   string
	ChannelID string
	Player1   string
	Player2   string
	// Ceiling of the first roll; zero selects DefaultCeiling.
	Ceiling int
	// MaxTossRetries abandons the match after this many tied coin tosses.
	// Zero means unlimited.
	MaxTossRetries int
	RNG            RNG
	Now            func() time.Time
}

// Match is a single two-player deathroll. All methods are safe for concurrent
// use; transitions are serialized by the match's own lock.
type Match struct {
	mu sync.Mutex
	// settling serializes Settle for this match only.
	settling sync.Mutex

	id        string
	guildID   string
	channelID string
	players   [2]string
	ceiling   int

	tosses      [2]*int
	currentRoll *int
	actor       Seat
	rolls       []Roll
	phase       Phase
	loser       Seat
	ties        int
	maxTies     int
	settled     bool
	reason      string

	createdAt time.Time
	updatedAt time.Time

	rng RNG
	now func() time.Time
}

// NewMatch validates params and returns a match awaiting its coin toss.
func NewMatch(p MatchParams) (*Match, error) {
	if p.Player1 == p.Player2 {
		return nil, ErrSelfChallenge
	}
	ceiling := p.Ceiling
	if ceiling == 0 {
		ceiling = DefaultCeiling
	}
	if ceiling < 0 {
		return nil, ErrInvalidCeiling
	}
	rng := p.RNG
	if rng == nil {
		rng = NewRNG()
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	created := now()
	return &Match{
		id:        p.ID,
		guildID:   p.GuildID,
		channelID: p.ChannelID,
		players:   [2]string{p.Player1, p.Player2},
		ceiling:   ceiling,
		phase:     PhaseAwaitingCoinToss,
		maxTies:   p.MaxTossRetries,
		createdAt: created,
		updatedAt: created,
		rng:       rng,
		now:       now,
	}, nil
}

func (m *Match) ID() string      { return m.id }
func (m *Match) GuildID() string { return m.guildID }

// Players returns the user ids of player 1 and player 2.
func (m *Match) Players() (string, string) { return m.players[0], m.players[1] }

// Involves reports whether the match is between a and b, in either order.
func (m *Match) Involves(a, b string) bool {
	return (m.players[0] == a && m.players[1] == b) || (m.players[0] == b && m.players[1] == a)
}

func (m *Match) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Match) seatOf(userID string) Seat {
	switch userID {
	case m.players[0]:
		return Player1
	case m.players[1]:
		return Player2
	default:
		return SeatNone
	}
}

func (m *Match) userAt(s Seat) string {
	switch s {
	case Player1:
		return m.players[0]
	case Player2:
		return m.players[1]
	default:
		return ""
	}
}

func (m *Match) event(kind EventKind, payload any) Event {
	return Event{
		Kind:      kind,
		MatchID:   m.id,
		GuildID:   m.guildID,
		ChannelID: m.channelID,
		Payload:   payload,
		At:        m.updatedAt,
	}
}

// Started returns the MatchStarted event for this match.
func (m *Match) Started() Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.event(EventMatchStarted, MatchStartedPayload{
		Player1: m.players[0],
		Player2: m.players[1],
		Ceiling: m.ceiling,
	})
}

// TossCoin draws the tiebreak value for userID's seat. Once both seats have
// tossed the toss is resolved: a tie resets both values and keeps the match in
// PhaseAwaitingCoinToss, otherwise the higher toss takes the first roll.
func (m *Match) TossCoin(userID string) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase.Terminal() {
		return nil, ErrMatchOver
	}
	if m.phase != PhaseAwaitingCoinToss {
		return nil, ErrOrderingViolation
	}
	seat := m.seatOf(userID)
	if seat == SeatNone || m.tosses[seat-1] != nil {
		return nil, ErrOrderingViolation
	}

	v := m.rng.IntRange(CoinTossMin, CoinTossMax)
	m.tosses[seat-1] = &v
	m.updatedAt = m.now()

	if m.tosses[0] == nil || m.tosses[1] == nil {
		return nil, nil
	}
	return m.resolveToss(), nil
}

func (m *Match) resolveToss() []Event {
	t1, t2 := *m.tosses[0], *m.tosses[1]
	payload := CoinTossResolvedPayload{Toss1: t1, Toss2: t2}

	if t1 == t2 {
		m.phase = PhaseCoinTossTied
		m.ties++
		payload.Tied = true
		events := []Event{m.event(EventCoinTossResolved, payload)}

		m.tosses = [2]*int{}
		m.phase = PhaseAwaitingCoinToss
		if m.maxTies > 0 && m.ties >= m.maxTies {
			events = append(events, m.abandon(ErrTossLimit.Error()))
		}
		return events
	}

	if t1 > t2 {
		m.actor = Player1
	} else {
		m.actor = Player2
	}
	m.phase = PhaseAwaitingRoll
	payload.FirstActor = m.userAt(m.actor)
	return []Event{m.event(EventCoinTossResolved, payload)}
}

// Roll performs the current actor's throw. The range is [0, ceiling] for the
// first roll and [0, previous result] afterwards. Rolling 0 loses the match.
func (m *Match) Roll(userID string) (Roll, []Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase.Terminal() {
		return Roll{}, nil, ErrMatchOver
	}
	if m.phase != PhaseAwaitingRoll || m.seatOf(userID) != m.actor {
		return Roll{}, nil, ErrOrderingViolation
	}

	upper := m.ceiling
	if m.currentRoll != nil {
		upper = *m.currentRoll
	}
	v := m.rng.IntRange(0, upper)
	roll := Roll{
		Number: len(m.rolls) + 1,
		Before: upper,
		After:  v,
		Actor:  m.actor,
	}
	m.rolls = append(m.rolls, roll)
	m.currentRoll = &v
	m.updatedAt = m.now()

	performed := RollPerformedPayload{Roll: roll, ActorID: m.userAt(m.actor)}
	if v == 0 {
		m.phase = PhaseFinished
		m.loser = m.actor
		return roll, []Event{
			m.event(EventRollPerformed, performed),
			m.event(EventMatchFinished, MatchFinishedPayload{
				WinnerID: m.userAt(m.loser.Other()),
				LoserID:  m.userAt(m.loser),
				Rolls:    len(m.rolls),
			}),
		}, nil
	}

	m.actor = m.actor.Other()
	performed.NextActorID = m.userAt(m.actor)
	return roll, []Event{m.event(EventRollPerformed, performed)}, nil
}

// Abandon ends the match without a winner.
func (m *Match) Abandon(reason string) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase.Terminal() {
		return Event{}, ErrMatchOver
	}
	return m.abandon(reason), nil
}

func (m *Match) abandon(reason string) Event {
	waiting := m.waitingOn()
	m.phase = PhaseAbandoned
	m.reason = reason
	m.updatedAt = m.now()
	return m.event(EventMatchAbandoned, MatchAbandonedPayload{Reason: reason, WaitingOn: waiting})
}

// WaitingOn returns the users the match currently expects input from.
func (m *Match) WaitingOn() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waitingOn()
}

func (m *Match) waitingOn() []string {
	switch m.phase {
	case PhaseAwaitingCoinToss:
		var out []string
		for i, t := range m.tosses {
			if t == nil {
				out = append(out, m.players[i])
			}
		}
		return out
	case PhaseAwaitingRoll:
		return []string{m.userAt(m.actor)}
	default:
		return nil
	}
}

// PendingTossers lists the players who still owe a coin toss.
func (m *Match) PendingTossers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseAwaitingCoinToss {
		return nil
	}
	return m.waitingOn()
}

// CurrentActorID is the user expected to roll next, or "" before the coin toss
// resolves.
func (m *Match) CurrentActorID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userAt(m.actor)
}

// Outcome returns the winner and loser of a finished match.
func (m *Match) Outcome() (winnerID, loserID string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseFinished {
		return "", "", false
	}
	return m.userAt(m.loser.Other()), m.userAt(m.loser), true
}

// MarkSettled records that the players' records have been committed.
func (m *Match) MarkSettled() {
	m.mu.Lock()
	m.settled = true
	m.mu.Unlock()
}

func (m *Match) Settled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settled
}

// Snapshot is a read-only copy of a match's state.
type Snapshot struct {
	ID            string    `json:"id"`
	GuildID       string    `json:"guild_id"`
	ChannelID     string    `json:"channel_id,omitempty"`
	Player1       string    `json:"player1"`
	Player2       string    `json:"player2"`
	Ceiling       int       `json:"ceiling"`
	CoinToss1     *int      `json:"coin_toss_1"`
	CoinToss2     *int      `json:"coin_toss_2"`
	CurrentRoll   *int      `json:"current_roll"`
	CurrentActor  Seat      `json:"current_actor"`
	Rolls         []Roll    `json:"rolls"`
	Phase         Phase     `json:"phase"`
	Loser         Seat      `json:"loser,omitempty"`
	Ties          int       `json:"ties"`
	Settled       bool      `json:"settled"`
	AbandonReason string    `json:"abandon_reason,omitempty"`
	WaitingOn     []string  `json:"waiting_on,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (m *Match) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		ID:            m.id,
		GuildID:       m.guildID,
		ChannelID:     m.channelID,
		Player1:       m.players[0],
		Player2:       m.players[1],
		Ceiling:       m.ceiling,
		CoinToss1:     copyInt(m.tosses[0]),
		CoinToss2:     copyInt(m.tosses[1]),
		CurrentRoll:   copyInt(m.currentRoll),
		CurrentActor:  m.actor,
		Rolls:         append([]Roll(nil), m.rolls...),
		Phase:         m.phase,
		Loser:         m.loser,
		Ties:          m.ties,
		Settled:       m.settled,
		AbandonReason: m.reason,
		WaitingOn:     m.waitingOn(),
		CreatedAt:     m.createdAt,
		UpdatedAt:     m.updatedAt,
	}
}

// UserAt resolves a seat to the user occupying it.
func (s Snapshot) UserAt(seat Seat) string {
	switch seat {
	case Player1:
		return s.Player1
	case Player2:
		return s.Player2
	default:
		return ""
	}
}
