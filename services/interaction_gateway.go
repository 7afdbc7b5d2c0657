package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/FFXIVVenues/kino-ki/deathroll"
)

// mailboxSize bounds the selections queued for one match.
const mailboxSize = 4

type mailbox struct {
	offer     *deathroll.Offer
	submitted map[string]bool
	ch        chan deathroll.Selection
}

// InteractionGateway parks match runners until a button press arrives over
// HTTP. Each match has one mailbox; a selection queued for a later offer (the
// second player's coin toss, for instance) is kept until that offer opens.
type InteractionGateway struct {
	mu    sync.Mutex
	boxes map[string]*mailbox
}

func NewInteractionGateway() *InteractionGateway {
	return &InteractionGateway{boxes: make(map[string]*mailbox)}
}

var _ deathroll.Gateway = (*InteractionGateway)(nil)

func (g *InteractionGateway) box(matchID string) *mailbox {
	mb, ok := g.boxes[matchID]
	if !ok {
		mb = &mailbox{ch: make(chan deathroll.Selection, mailboxSize)}
		g.boxes[matchID] = mb
	}
	return mb
}

func accepts(offer *deathroll.Offer, sel deathroll.Selection) bool {
	return slices.Contains(offer.Eligible, sel.UserID) && slices.Contains(offer.Options, sel.Option)
}

// OfferChoice opens offer and waits for the first acceptable selection.
func (g *InteractionGateway) OfferChoice(ctx context.Context, offer deathroll.Offer) (deathroll.Selection, error) {
	mb, err := g.open(offer)
	if err != nil {
		return deathroll.Selection{}, err
	}
	return g.wait(ctx, mb, offer)
}

// open publishes offer so Submit can queue selections for it.
func (g *InteractionGateway) open(offer deathroll.Offer) (*mailbox, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	mb := g.box(offer.MatchID)
	if mb.offer != nil {
		return nil, fmt.Errorf("match %s already has an open offer", offer.MatchID)
	}
	mb.offer = &offer
	mb.submitted = make(map[string]bool)
	return mb, nil
}

// wait takes selections from mb until one fits offer, then closes the offer.
func (g *InteractionGateway) wait(ctx context.Context, mb *mailbox, offer deathroll.Offer) (deathroll.Selection, error) {
	defer func() {
		g.mu.Lock()
		mb.offer = nil
		mb.submitted = nil
		g.mu.Unlock()
	}()

	var timeout <-chan time.Time
	if offer.Timeout > 0 {
		timer := time.NewTimer(offer.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return deathroll.Selection{}, ctx.Err()
		case <-timeout:
			return deathroll.Selection{}, deathroll.ErrTimedOut
		case sel := <-mb.ch:
			if accepts(&offer, sel) {
				return sel, nil
			}
		}
	}
}

// Submit delivers a user's button press to the match's open offer.
func (g *InteractionGateway) Submit(matchID, userID, option string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	mb, ok := g.boxes[matchID]
	if !ok || mb.offer == nil {
		return deathroll.ErrNoPendingOffer
	}
	sel := deathroll.Selection{UserID: userID, Option: option}
	if !accepts(mb.offer, sel) || mb.submitted[userID] {
		return deathroll.ErrOrderingViolation
	}
	select {
	case mb.ch <- sel:
		mb.submitted[userID] = true
		return nil
	default:
		return deathroll.ErrNoPendingOffer
	}
}

// Pending returns a copy of the match's open offer.
func (g *InteractionGateway) Pending(matchID string) (deathroll.Offer, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	mb, ok := g.boxes[matchID]
	if !ok || mb.offer == nil {
		return deathroll.Offer{}, false
	}
	offer := *mb.offer
	offer.Eligible = slices.Clone(offer.Eligible)
	offer.Options = slices.Clone(offer.Options)
	return offer, true
}

// Close discards the match's mailbox once the match has left play.
func (g *InteractionGateway) Close(matchID string) {
	g.mu.Lock()
	delete(g.boxes, matchID)
	g.mu.Unlock()
}
