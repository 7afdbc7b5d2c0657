// services/scheduler.go
package services

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// PresenceSetter changes the bot's displayed status.
type PresenceSetter interface {
	SetPresence(status string) bool
}

// LoadStatuses reads one status per line, skipping blank lines.
func LoadStatuses(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open statuses: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read statuses: %w", err)
	}
	return out, nil
}

// StatusRotator cycles through statuses in file order.
type StatusRotator struct {
	mu       sync.Mutex
	statuses []string
	next     int
	Presence PresenceSetter
}

func NewStatusRotator(statuses []string, presence PresenceSetter) *StatusRotator {
	return &StatusRotator{statuses: statuses, Presence: presence}
}

// Next returns the following status, wrapping at the end of the list.
func (r *StatusRotator) Next() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return "", false
	}
	s := r.statuses[r.next]
	r.next = (r.next + 1) % len(r.statuses)
	return s, true
}

// Rotate pushes the next status to the relay.
func (r *StatusRotator) Rotate() {
	status, ok := r.Next()
	if !ok || r.Presence == nil {
		return
	}
	if r.Presence.SetPresence(status) {
		log.Printf("[Scheduler] Status → %q", status)
	}
}

// SchedulerConfig holds the periodic job intervals.
type SchedulerConfig struct {
	StatusInterval time.Duration
	SweepInterval  time.Duration
}

// StartScheduler registers the periodic jobs and starts the scheduler. The
// caller shuts it down.
func StartScheduler(ctx context.Context, cfg SchedulerConfig, deathrolls *DeathrollService, rotator *StatusRotator) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	if rotator != nil && cfg.StatusInterval > 0 {
		if _, err := sched.NewJob(
			gocron.DurationJob(cfg.StatusInterval),
			gocron.NewTask(rotator.Rotate),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		); err != nil {
			return nil, fmt.Errorf("schedule status rotation: %w", err)
		}
	}

	if deathrolls != nil && cfg.SweepInterval > 0 {
		// Every sweep interval: retry failed settlements, then drop undriven matches
		if _, err := sched.NewJob(
			gocron.DurationJob(cfg.SweepInterval),
			gocron.NewTask(func() {
				settled, err := deathrolls.SettlePending(ctx)
				if err != nil {
					log.Printf("[Scheduler] Settlement retry error: %v", err)
				}
				if settled > 0 {
					log.Printf("✅ Settled %d pending deathroll(s)", settled)
				}
				if n := deathrolls.SweepStale(); n > 0 {
					log.Printf("[Scheduler] Swept %d stale deathroll(s)", n)
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("schedule deathroll sweep: %w", err)
		}
	}

	sched.Start()
	return sched, nil
}
