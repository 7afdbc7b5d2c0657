package deathroll

import "time"

// EventKind identifies emitted domain events for notification dispatch.
type EventKind string

const (
	EventMatchStarted     EventKind = "match_started"
	EventCoinTossResolved EventKind = "coin_toss_resolved"
	EventRollPerformed    EventKind = "roll_performed"
	EventMatchFinished    EventKind = "match_finished"
	EventMatchAbandoned   EventKind = "match_abandoned"
)

// Event is a domain event raised by a match transition.
type Event struct {
	Kind      EventKind `json:"kind"`
	MatchID   string    `json:"match_id"`
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id,omitempty"`
	Payload   any       `json:"payload"`
	At        time.Time `json:"at"`
}

type MatchStartedPayload struct {
	Player1 string `json:"player1"`
	Player2 string `json:"player2"`
	Ceiling int    `json:"ceiling"`
}

type CoinTossResolvedPayload struct {
	Toss1 int  `json:"toss1"`
	Toss2 int  `json:"toss2"`
	Tied  bool `json:"tied"`
	// FirstActor is empty when the toss tied.
	FirstActor string `json:"first_actor,omitempty"`
}

type RollPerformedPayload struct {
	Roll    Roll   `json:"roll"`
	ActorID string `json:"actor_id"`
	// NextActorID is empty once the match is over.
	NextActorID string `json:"next_actor_id,omitempty"`
}

type MatchFinishedPayload struct {
	WinnerID string `json:"winner_id"`
	LoserID  string `json:"loser_id"`
	Rolls    int    `json:"rolls"`
}

type MatchAbandonedPayload struct {
	Reason string `json:"reason"`
	// WaitingOn lists the users that never responded.
	WaitingOn []string `json:"waiting_on,omitempty"`
}

// Notifier receives domain events. Implementations must not block for long;
// they are called from the match goroutine.
type Notifier interface {
	Publish(Event)
}

// Notifiers fans an event out to several notifiers in order.
type Notifiers []Notifier

func (ns Notifiers) Publish(ev Event) {
	for _, n := range ns {
		if n != nil {
			n.Publish(ev)
		}
	}
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Event)

func (f NotifierFunc) Publish(ev Event) { f(ev) }
