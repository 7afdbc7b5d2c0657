package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/FFXIVVenues/kino-ki/deathroll"

	"github.com/cenkalti/backoff/v5"
)

// Notification kinds that do not come from a deathroll event.
const (
	KindJobPosting = "job_posting"
)

// Notification is the JSON body posted to the chat relay. The relay owns all
// formatting; Data carries the raw event payload.
type Notification struct {
	Kind      string    `json:"kind"`
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	MatchID   string    `json:"match_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	At        time.Time `json:"at"`
}

type delivery struct {
	path string
	body any
}

// RelayDispatcher queues notifications for the chat relay and delivers them
// in order from a single goroutine, retrying failed posts.
type RelayDispatcher struct {
	BaseURL      string
	ServiceToken string
	HTTPClient   *http.Client

	// BackOff builds the retry policy for one delivery.
	BackOff  func() backoff.BackOff
	MaxTries uint

	queue chan delivery
}

func NewRelayDispatcher(baseURL, serviceToken string, queueSize int) *RelayDispatcher {
	if queueSize < 1 {
		queueSize = 256
	}
	return &RelayDispatcher{
		BaseURL:      baseURL,
		ServiceToken: serviceToken,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		BackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		},
		MaxTries: 5,
		queue:    make(chan delivery, queueSize),
	}
}

// Enabled reports whether a relay URL is configured.
func (d *RelayDispatcher) Enabled() bool { return d.BaseURL != "" }

func (d *RelayDispatcher) enqueue(path string, body any) bool {
	if !d.Enabled() {
		return false
	}
	select {
	case d.queue <- delivery{path: path, body: body}:
		return true
	default:
		log.Printf("[Dispatcher] ⚠️ Queue full, dropped delivery to %s", path)
		return false
	}
}

// Notify queues n for its channel.
func (d *RelayDispatcher) Notify(n Notification) bool {
	if n.ChannelID == "" {
		return false
	}
	return d.enqueue("/channels/"+url.PathEscape(n.ChannelID)+"/notifications", n)
}

// SetPresence queues a bot status change.
func (d *RelayDispatcher) SetPresence(status string) bool {
	return d.enqueue("/presence", map[string]string{"status": status})
}

// Publish forwards a deathroll event to the channel the match was started in.
func (d *RelayDispatcher) Publish(ev deathroll.Event) {
	d.Notify(Notification{
		Kind:      string(ev.Kind),
		GuildID:   ev.GuildID,
		ChannelID: ev.ChannelID,
		MatchID:   ev.MatchID,
		Data:      ev.Payload,
		At:        ev.At,
	})
}

// Start runs the delivery loop until ctx is done.
func (d *RelayDispatcher) Start(ctx context.Context) {
	if !d.Enabled() {
		log.Println("⚠️  CHAT_RELAY_URL not set, relay notifications disabled")
		return
	}
	log.Printf("🔁 Starting relay dispatcher → %s", d.BaseURL)
	go d.run(ctx)
}

func (d *RelayDispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Printf("⏹️ Relay dispatcher stopped (%d undelivered)", len(d.queue))
			return
		case job := <-d.queue:
			if err := d.deliverWithRetry(ctx, job); err != nil {
				log.Printf("[Dispatcher] ❌ Giving up on %s: %v", job.path, err)
			}
		}
	}
}

func (d *RelayDispatcher) deliverWithRetry(ctx context.Context, job delivery) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, d.deliver(ctx, job)
	}, backoff.WithBackOff(d.BackOff()), backoff.WithMaxTries(d.MaxTries))
	return err
}

func (d *RelayDispatcher) deliver(ctx context.Context, job delivery) error {
	payload, err := json.Marshal(job.body)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to encode notification: %w", err))
	}

	base, err := url.Parse(d.BaseURL)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("invalid relay URL '%s': %w", d.BaseURL, err))
	}
	endpoint := base.JoinPath(job.path).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request to %s: %w", endpoint, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", d.ServiceToken)

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request to relay failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("relay returned status %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}
	return nil
}
