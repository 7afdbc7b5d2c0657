package services

import (
	"log"
	"sync"

	"github.com/FFXIVVenues/kino-ki/deathroll"
)

const subscriberBuffer = 32

// EventHub fans deathroll events out to the SSE subscribers of each guild.
type EventHub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan deathroll.Event
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[string]map[int]chan deathroll.Event)}
}

var _ deathroll.Notifier = (*EventHub)(nil)

// Subscribe registers a listener for guildID. The returned cancel func must be
// called once the listener goes away; it closes the channel.
func (h *EventHub) Subscribe(guildID string) (<-chan deathroll.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	ch := make(chan deathroll.Event, subscriberBuffer)
	if h.subs[guildID] == nil {
		h.subs[guildID] = make(map[int]chan deathroll.Event)
	}
	h.subs[guildID][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[guildID], id)
			if len(h.subs[guildID]) == 0 {
				delete(h.subs, guildID)
			}
			close(ch)
		})
	}
}

// Publish never blocks; a subscriber whose buffer is full misses the event.
func (h *EventHub) Publish(ev deathroll.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs[ev.GuildID] {
		select {
		case ch <- ev:
		default:
			log.Printf("[EventHub] Dropped %s for slow subscriber %d in guild %s", ev.Kind, id, ev.GuildID)
		}
	}
}

// Subscribers counts the listeners of guildID.
func (h *EventHub) Subscribers(guildID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[guildID])
}
