package deathroll

import (
	"errors"
	"runtime"
	"sync"
	"testing"
)

func TestScenarioCeilingTen(t *testing.T) {
	m, rng := newTestMatch(t, 10, 7, 3, 4, 0)

	if evs, err := m.TossCoin("alice"); err != nil || len(evs) != 0 {
		t.Fatalf("first toss: events=%v err=%v", evs, err)
	}
	evs, err := m.TossCoin("bob")
	if err != nil {
		t.Fatalf("second toss: %v", err)
	}
	if len(evs) != 1 || evs[0].Kind != EventCoinTossResolved {
		t.Fatalf("expected coin toss resolved event, got %v", evs)
	}
	if got := evs[0].Payload.(CoinTossResolvedPayload).FirstActor; got != "alice" {
		t.Fatalf("first actor = %q, want alice", got)
	}
	if m.Phase() != PhaseAwaitingRoll {
		t.Fatalf("phase = %s, want %s", m.Phase(), PhaseAwaitingRoll)
	}

	roll, _, err := m.Roll("alice")
	if err != nil {
		t.Fatalf("alice roll: %v", err)
	}
	if want := (Roll{Number: 1, Before: 10, After: 4, Actor: Player1}); roll != want {
		t.Fatalf("roll = %+v, want %+v", roll, want)
	}
	if got := m.WaitingOn(); len(got) != 1 || got[0] != "bob" {
		t.Fatalf("waiting on %v, want bob", got)
	}

	roll, evs, err = m.Roll("bob")
	if err != nil {
		t.Fatalf("bob roll: %v", err)
	}
	if want := (Roll{Number: 2, Before: 4, After: 0, Actor: Player2}); roll != want {
		t.Fatalf("roll = %+v, want %+v", roll, want)
	}
	if len(evs) != 2 || evs[1].Kind != EventMatchFinished {
		t.Fatalf("expected roll + finished events, got %v", evs)
	}
	if m.Phase() != PhaseFinished {
		t.Fatalf("phase = %s, want finished", m.Phase())
	}
	winner, loser, ok := m.Outcome()
	if !ok || winner != "alice" || loser != "bob" {
		t.Fatalf("outcome = %s/%s/%v, want alice beats bob", winner, loser, ok)
	}

	wantRanges := [][2]int{{0, 10}, {0, 10}, {0, 10}, {0, 4}}
	for i, r := range wantRanges {
		if rng.ranges[i] != r {
			t.Fatalf("range %d = %v, want %v", i, rng.ranges[i], r)
		}
	}
}

func TestCoinTossTiesRetry(t *testing.T) {
	m, _ := newTestMatch(t, 0, 5, 5, 5, 5, 2, 8)

	for i := 1; i <= 2; i++ {
		if _, err := m.TossCoin("alice"); err != nil {
			t.Fatalf("tie %d alice: %v", i, err)
		}
		evs, err := m.TossCoin("bob")
		if err != nil {
			t.Fatalf("tie %d bob: %v", i, err)
		}
		if len(evs) != 1 || !evs[0].Payload.(CoinTossResolvedPayload).Tied {
			t.Fatalf("tie %d: expected tied event, got %v", i, evs)
		}
		snap := m.Snapshot()
		if snap.Phase != PhaseAwaitingCoinToss {
			t.Fatalf("tie %d: phase = %s", i, snap.Phase)
		}
		if snap.CoinToss1 != nil || snap.CoinToss2 != nil {
			t.Fatalf("tie %d: tosses not reset", i)
		}
		if snap.Ties != i {
			t.Fatalf("ties = %d, want %d", snap.Ties, i)
		}
	}

	// Order of submission does not matter.
	if _, err := m.TossCoin("bob"); err != nil {
		t.Fatalf("bob: %v", err)
	}
	if _, err := m.TossCoin("alice"); err != nil {
		t.Fatalf("alice: %v", err)
	}
	snap := m.Snapshot()
	if snap.Phase != PhaseAwaitingRoll || snap.CurrentActor != Player2 {
		t.Fatalf("phase=%s actor=%s, want awaiting_roll/player2", snap.Phase, snap.CurrentActor)
	}
	// bob tossed first and drew 2, alice drew 8.
	if *snap.CoinToss1 != 8 || *snap.CoinToss2 != 2 {
		t.Fatalf("tosses = %d/%d", *snap.CoinToss1, *snap.CoinToss2)
	}
}

func TestCoinTossResolution(t *testing.T) {
	for a := CoinTossMin; a <= CoinTossMax; a++ {
		for b := CoinTossMin; b <= CoinTossMax; b++ {
			m, _ := newTestMatch(t, 0, a, b)
			if _, err := m.TossCoin("alice"); err != nil {
				t.Fatalf("(%d,%d) alice: %v", a, b, err)
			}
			if _, err := m.TossCoin("bob"); err != nil {
				t.Fatalf("(%d,%d) bob: %v", a, b, err)
			}
			snap := m.Snapshot()
			switch {
			case a == b:
				if snap.Phase != PhaseAwaitingCoinToss || snap.CurrentActor != SeatNone {
					t.Fatalf("(%d,%d): phase=%s actor=%s, want retry", a, b, snap.Phase, snap.CurrentActor)
				}
			case a > b:
				if snap.CurrentActor != Player1 {
					t.Fatalf("(%d,%d): actor=%s, want player1", a, b, snap.CurrentActor)
				}
			default:
				if snap.CurrentActor != Player2 {
					t.Fatalf("(%d,%d): actor=%s, want player2", a, b, snap.CurrentActor)
				}
			}
		}
	}
}

func TestOrderingViolationsLeaveStateUntouched(t *testing.T) {
	m, _ := newTestMatch(t, 100, 9, 1, 50)

	if _, _, err := m.Roll("alice"); !errors.Is(err, ErrOrderingViolation) {
		t.Fatalf("roll before toss: err = %v", err)
	}
	if _, err := m.TossCoin("mallory"); !errors.Is(err, ErrOrderingViolation) {
		t.Fatalf("stranger toss: err = %v", err)
	}
	if _, err := m.TossCoin("alice"); err != nil {
		t.Fatalf("alice toss: %v", err)
	}
	if _, err := m.TossCoin("alice"); !errors.Is(err, ErrOrderingViolation) {
		t.Fatalf("repeat toss: err = %v", err)
	}
	if _, err := m.TossCoin("bob"); err != nil {
		t.Fatalf("bob toss: %v", err)
	}

	before := m.Snapshot()
	for _, user := range []string{"bob", "mallory"} {
		if _, _, err := m.Roll(user); !errors.Is(err, ErrOrderingViolation) {
			t.Fatalf("roll by %s: err = %v", user, err)
		}
	}
	if _, err := m.TossCoin("bob"); !errors.Is(err, ErrOrderingViolation) {
		t.Fatalf("toss during rolls: err = %v", err)
	}
	after := m.Snapshot()
	if after.Phase != before.Phase || after.CurrentActor != before.CurrentActor || len(after.Rolls) != len(before.Rolls) {
		t.Fatalf("state changed: before=%+v after=%+v", before, after)
	}

	if _, _, err := m.Roll("alice"); err != nil {
		t.Fatalf("alice roll: %v", err)
	}
}

func TestActionsAfterTerminalPhase(t *testing.T) {
	m, _ := newTestMatch(t, 5, 6, 2, 0)
	m.TossCoin("alice")
	m.TossCoin("bob")
	if _, _, err := m.Roll("alice"); err != nil {
		t.Fatalf("roll: %v", err)
	}
	if _, _, err := m.Roll("bob"); !errors.Is(err, ErrMatchOver) {
		t.Fatalf("roll after finish: err = %v", err)
	}
	if _, err := m.TossCoin("bob"); !errors.Is(err, ErrMatchOver) {
		t.Fatalf("toss after finish: err = %v", err)
	}
	if _, err := m.Abandon("late"); !errors.Is(err, ErrMatchOver) {
		t.Fatalf("abandon after finish: err = %v", err)
	}
}

func TestAbandonReportsWaitingPlayers(t *testing.T) {
	m, _ := newTestMatch(t, 0, 4)
	m.TossCoin("alice")

	ev, err := m.Abandon(ErrTimedOut.Error())
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	payload := ev.Payload.(MatchAbandonedPayload)
	if len(payload.WaitingOn) != 1 || payload.WaitingOn[0] != "bob" {
		t.Fatalf("waiting on %v, want bob", payload.WaitingOn)
	}
	if _, _, ok := m.Outcome(); ok {
		t.Fatal("abandoned match must not have an outcome")
	}
}

func TestTossRetryCap(t *testing.T) {
	rng := newScriptedRNG(t, 3, 3, 6, 6)
	m, err := NewMatch(MatchParams{ID: "m", Player1: "a", Player2: "b", MaxTossRetries: 2, RNG: rng})
	if err != nil {
		t.Fatal(err)
	}
	m.TossCoin("a")
	m.TossCoin("b")
	if m.Phase() != PhaseAwaitingCoinToss {
		t.Fatalf("phase after first tie = %s", m.Phase())
	}
	m.TossCoin("a")
	evs, _ := m.TossCoin("b")
	if m.Phase() != PhaseAbandoned {
		t.Fatalf("phase after cap = %s, want abandoned", m.Phase())
	}
	if last := evs[len(evs)-1]; last.Kind != EventMatchAbandoned {
		t.Fatalf("last event = %s, want abandoned", last.Kind)
	}
}

func TestRollHistoryInvariants(t *testing.T) {
	for seed := int64(1); seed <= 200; seed++ {
		m, err := NewMatch(MatchParams{ID: "m", Player1: "a", Player2: "b", Ceiling: 50, RNG: NewSeededRNG(seed)})
		if err != nil {
			t.Fatal(err)
		}
		for m.Phase() == PhaseAwaitingCoinToss {
			for _, u := range m.WaitingOn() {
				if _, err := m.TossCoin(u); err != nil {
					t.Fatalf("seed %d toss: %v", seed, err)
				}
			}
		}
		for m.Phase() == PhaseAwaitingRoll {
			if _, _, err := m.Roll(m.WaitingOn()[0]); err != nil {
				t.Fatalf("seed %d roll: %v", seed, err)
			}
		}

		snap := m.Snapshot()
		for i, r := range snap.Rolls {
			if r.Number != i+1 {
				t.Fatalf("seed %d: roll %d numbered %d", seed, i, r.Number)
			}
			if i == 0 && r.Before != 50 {
				t.Fatalf("seed %d: first roll before = %d", seed, r.Before)
			}
			if i > 0 && r.Before != snap.Rolls[i-1].After {
				t.Fatalf("seed %d: roll %d before=%d prev after=%d", seed, i, r.Before, snap.Rolls[i-1].After)
			}
			if r.Difference() < 0 {
				t.Fatalf("seed %d: range grew on roll %d", seed, i)
			}
			if r.Fatal() != (i == len(snap.Rolls)-1) {
				t.Fatalf("seed %d: zero roll not last", seed)
			}
		}
		last := snap.Rolls[len(snap.Rolls)-1]
		if last.Actor != snap.Loser {
			t.Fatalf("seed %d: last actor %s, loser %s", seed, last.Actor, snap.Loser)
		}
	}
}

func TestNewMatchValidation(t *testing.T) {
	tests := []struct {
		name    string
		params  MatchParams
		wantErr error
		ceiling int
	}{
		{name: "default ceiling", params: MatchParams{Player1: "a", Player2: "b"}, ceiling: DefaultCeiling},
		{name: "custom ceiling", params: MatchParams{Player1: "a", Player2: "b", Ceiling: 10}, ceiling: 10},
		{name: "negative ceiling", params: MatchParams{Player1: "a", Player2: "b", Ceiling: -1}, wantErr: ErrInvalidCeiling},
		{name: "self challenge", params: MatchParams{Player1: "a", Player2: "a"}, wantErr: ErrSelfChallenge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMatch(tt.params)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err == nil && m.Snapshot().Ceiling != tt.ceiling {
				t.Fatalf("ceiling = %d, want %d", m.Snapshot().Ceiling, tt.ceiling)
			}
		})
	}
}

func TestConcurrentActionsKeepRollChain(t *testing.T) {
	m, err := NewMatch(MatchParams{
		ID:      "m1",
		GuildID: "g1",
		Player1: "alice",
		Player2: "bob",
		Ceiling: 999,
		RNG:     NewSeededRNG(7),
	})
	if err != nil {
		t.Fatalf("new match: %v", err)
	}

	hammer := func(act func(user string) error) {
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			user := "alice"
			if i%2 == 1 {
				user = "bob"
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					err := act(user)
					if errors.Is(err, errStop) || errors.Is(err, ErrMatchOver) {
						return
					}
					if err != nil && !errors.Is(err, ErrOrderingViolation) {
						t.Errorf("%s: %v", user, err)
						return
					}
					runtime.Gosched()
				}
			}()
		}
		wg.Wait()
	}

	hammer(func(user string) error {
		if m.Phase() != PhaseAwaitingCoinToss {
			return errStop
		}
		_, err := m.TossCoin(user)
		return err
	})
	if m.Phase() != PhaseAwaitingRoll {
		t.Fatalf("phase after tosses = %s", m.Phase())
	}

	hammer(func(user string) error {
		_, _, err := m.Roll(user)
		return err
	})

	snap := m.Snapshot()
	if snap.Phase != PhaseFinished || len(snap.Rolls) == 0 {
		t.Fatalf("phase = %s after %d rolls", snap.Phase, len(snap.Rolls))
	}
	prev := snap.Ceiling
	for i, r := range snap.Rolls {
		if r.Number != i+1 {
			t.Fatalf("roll %d numbered %d", i+1, r.Number)
		}
		if r.Before != prev {
			t.Fatalf("roll %d before = %d, want %d", r.Number, r.Before, prev)
		}
		if i > 0 && r.Actor == snap.Rolls[i-1].Actor {
			t.Fatalf("roll %d repeated actor %v", r.Number, r.Actor)
		}
		prev = r.After
	}
	if prev != 0 {
		t.Fatalf("last roll = %d, want 0", prev)
	}
	if last := snap.Rolls[len(snap.Rolls)-1]; snap.Loser != last.Actor {
		t.Fatalf("loser = %v, want %v", snap.Loser, last.Actor)
	}
}

var errStop = errors.New("stop")
