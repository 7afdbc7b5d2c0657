package deathroll

// Seat identifies one of the two participants of a match.
type Seat int

const (
	SeatNone Seat = iota
	Player1
	Player2
)

// Other returns the opposing seat.
func (s Seat) Other() Seat {
	switch s {
	case Player1:
		return Player2
	case Player2:
		return Player1
	default:
		return SeatNone
	}
}

func (s Seat) String() string {
	switch s {
	case Player1:
		return "player1"
	case Player2:
		return "player2"
	default:
		return "none"
	}
}

// MarshalText renders seats by name in JSON payloads.
func (s Seat) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Roll is one throw in the elimination phase. Rolls are never mutated.
type Roll struct {
	Number int  `json:"number"`
	Before int  `json:"before"`
	After  int  `json:"after"`
	Actor  Seat `json:"actor"`
}

// Difference is how far the range shrank on this throw.
func (r Roll) Difference() int {
	return r.Before - r.After
}

// Fatal reports whether this roll ended the match.
func (r Roll) Fatal() bool {
	return r.After == 0
}
