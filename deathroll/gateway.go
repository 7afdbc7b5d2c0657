package deathroll

import (
	"context"
	"time"
)

// Options offered to players during a match.
const (
	OptionCoinToss = "coin_toss"
	OptionRoll     = "roll"
)

// Offer asks a set of users to pick one of Options within Timeout.
type Offer struct {
	MatchID  string
	Eligible []string
	Options  []string
	Timeout  time.Duration
}

// Selection is the choice made by one eligible user.
type Selection struct {
	UserID string
	Option string
}

// Gateway presents choices to users and waits for the first valid response.
// OfferChoice returns ErrTimedOut when nobody answers within the offer's
// timeout and the context error when ctx is cancelled first.
type Gateway interface {
	OfferChoice(ctx context.Context, offer Offer) (Selection, error)
}

// OfferValueSubmission waits for userID to trigger a value draw such as a coin
// toss or a roll. The value itself is generated by the match, not the user.
func OfferValueSubmission(ctx context.Context, gw Gateway, matchID, userID, option string, timeout time.Duration) error {
	_, err := gw.OfferChoice(ctx, Offer{
		MatchID:  matchID,
		Eligible: []string{userID},
		Options:  []string{option},
		Timeout:  timeout,
	})
	return err
}
