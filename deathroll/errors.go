package deathroll

import "errors"

var (
	// ErrOrderingViolation is returned when a user acts out of turn, acts for a
	// seat that is not theirs, or repeats a coin toss. The match is unchanged.
	ErrOrderingViolation = errors.New("action not permitted for this user at this point")
	ErrDuplicateMatch    = errors.New("a deathroll between these players is already in progress")
	ErrMatchNotFound     = errors.New("deathroll not found")
	ErrTimedOut          = errors.New("timed out waiting for player")
	ErrMatchOver         = errors.New("deathroll already over")
	ErrSelfChallenge     = errors.New("players cannot challenge themselves")
	ErrInvalidCeiling    = errors.New("ceiling must be positive")
	ErrNoPendingOffer    = errors.New("deathroll is not waiting for input")
	ErrTossLimit         = errors.New("coin toss retry limit reached")
)
