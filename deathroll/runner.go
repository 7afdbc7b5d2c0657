package deathroll

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Outcome is how a played match ended from the caller's point of view.
type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeIncomplete Outcome = "incomplete"
)

const (
	DefaultTurnTimeout     = 60 * time.Second
	DefaultCoinTossTimeout = 5 * time.Minute
	defaultSettleTries     = 5
	persistTimeout         = 30 * time.Second
)

// Runner drives registered matches through the gateway and settles them.
type Runner struct {
	Registry *Registry
	Store    Store
	Gateway  Gateway
	Notifier Notifier

	TurnTimeout     time.Duration
	CoinTossTimeout time.Duration

	// SettleBackOff builds the retry policy for settlement writes.
	SettleBackOff  func() backoff.BackOff
	SettleMaxTries uint

	// OnClosed is called once a match has left the registry.
	OnClosed func(Snapshot)
}

func (r *Runner) publish(events ...Event) {
	if r.Notifier == nil {
		return
	}
	for _, ev := range events {
		r.Notifier.Publish(ev)
	}
}

func (r *Runner) turnTimeout() time.Duration {
	if r.TurnTimeout > 0 {
		return r.TurnTimeout
	}
	return DefaultTurnTimeout
}

func (r *Runner) coinTossTimeout() time.Duration {
	if r.CoinTossTimeout > 0 {
		return r.CoinTossTimeout
	}
	return DefaultCoinTossTimeout
}

// Play runs m to completion. It is the only writer of m while it runs.
func (r *Runner) Play(ctx context.Context, m *Match) (Outcome, error) {
	r.publish(m.Started())

	if err := r.coinToss(ctx, m); err != nil {
		return r.abandon(ctx, m, err)
	}
	if m.Phase() == PhaseAbandoned {
		r.closeAbandoned(ctx, m)
		return OutcomeIncomplete, nil
	}

	if err := r.rollOut(ctx, m); err != nil {
		return r.abandon(ctx, m, err)
	}

	if err := r.Settle(context.WithoutCancel(ctx), m); err != nil {
		return OutcomeCompleted, err
	}
	return OutcomeCompleted, nil
}

func (r *Runner) coinToss(ctx context.Context, m *Match) error {
	for m.Phase() == PhaseAwaitingCoinToss {
		sel, err := r.Gateway.OfferChoice(ctx, Offer{
			MatchID:  m.ID(),
			Eligible: m.WaitingOn(),
			Options:  []string{OptionCoinToss},
			Timeout:  r.coinTossTimeout(),
		})
		if err != nil {
			return err
		}
		events, err := m.TossCoin(sel.UserID)
		if errors.Is(err, ErrOrderingViolation) {
			log.Printf("[Deathroll] Ignored coin toss from %s in %s", sel.UserID, m.ID())
			continue
		}
		if err != nil {
			return err
		}
		r.publish(events...)
	}
	return nil
}

func (r *Runner) rollOut(ctx context.Context, m *Match) error {
	for m.Phase() == PhaseAwaitingRoll {
		waiting := m.WaitingOn()
		if len(waiting) != 1 {
			return fmt.Errorf("deathroll %s has no current actor", m.ID())
		}
		actor := waiting[0]
		if err := OfferValueSubmission(ctx, r.Gateway, m.ID(), actor, OptionRoll, r.turnTimeout()); err != nil {
			return err
		}
		_, events, err := m.Roll(actor)
		if errors.Is(err, ErrOrderingViolation) {
			continue
		}
		if err != nil {
			return err
		}
		r.publish(events...)
	}
	return nil
}

func (r *Runner) abandon(ctx context.Context, m *Match, cause error) (Outcome, error) {
	reason := cause.Error()
	if errors.Is(cause, context.Canceled) {
		reason = "cancelled"
	}
	if ev, err := m.Abandon(reason); err == nil {
		r.publish(ev)
	}
	log.Printf("[Deathroll] ⏱️ Abandoned %s in guild %s: %s", m.ID(), m.GuildID(), reason)
	r.closeAbandoned(ctx, m)

	if errors.Is(cause, ErrTimedOut) || errors.Is(cause, context.Canceled) ||
		errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, ErrTossLimit) {
		return OutcomeIncomplete, nil
	}
	return OutcomeIncomplete, cause
}

func (r *Runner) closeAbandoned(ctx context.Context, m *Match) {
	snap := m.Snapshot()
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := r.Store.RecordAbandoned(pctx, ResultOf(snap)); err != nil {
		log.Printf("[Deathroll] ❌ Failed to record abandoned %s: %v", m.ID(), err)
	}
	r.Registry.End(m.GuildID(), m.ID())
	if r.OnClosed != nil {
		r.OnClosed(snap)
	}
}

// Settle commits a finished match's results and removes it from the registry.
// A match whose settlement fails stays registered so it can be retried; a
// match is never settled twice.
func (r *Runner) Settle(ctx context.Context, m *Match) error {
	m.settling.Lock()
	defer m.settling.Unlock()

	if m.Settled() {
		r.Registry.End(m.GuildID(), m.ID())
		return nil
	}
	snap := m.Snapshot()
	if snap.Phase != PhaseFinished {
		return fmt.Errorf("settle deathroll %s: %w", m.ID(), errIncompleteResult)
	}
	result := ResultOf(snap)

	policy := backoff.BackOff(backoff.NewExponentialBackOff())
	if r.SettleBackOff != nil {
		policy = r.SettleBackOff()
	}
	tries := r.SettleMaxTries
	if tries == 0 {
		tries = defaultSettleTries
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		pctx, cancel := context.WithTimeout(ctx, persistTimeout)
		defer cancel()
		return struct{}{}, r.Store.SettleMatch(pctx, result)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(tries))
	if err != nil {
		log.Printf("[Deathroll] ❌ Failed to settle %s, keeping it registered: %v", m.ID(), err)
		return fmt.Errorf("settle deathroll %s: %w", m.ID(), err)
	}

	m.MarkSettled()
	r.Registry.End(m.GuildID(), m.ID())
	log.Printf("[Deathroll] ✅ Settled %s: %s beat %s", m.ID(), result.WinnerID, result.LoserID)
	if r.OnClosed != nil {
		r.OnClosed(m.Snapshot())
	}
	return nil
}

// SettlePending retries settlement for every finished match still registered.
func (r *Runner) SettlePending(ctx context.Context) (settled int, err error) {
	var errs []error
	for _, m := range r.Registry.All() {
		if m.Phase() != PhaseFinished || m.Settled() {
			continue
		}
		if serr := r.Settle(ctx, m); serr != nil {
			errs = append(errs, serr)
			continue
		}
		settled++
	}
	return settled, errors.Join(errs...)
}
