package state

import (
	"context"
	"log"
	"time"
)

// Janitor purges sessions that have been idle longer than the retention
// window.
type Janitor struct {
	store     SessionStore
	retention time.Duration
	interval  time.Duration
}

// NewJanitor creates a janitor. A zero interval defaults to one hour.
func NewJanitor(store SessionStore, retention, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{store: store, retention: retention, interval: interval}
}

// Sweep purges expired sessions once. A non-positive retention keeps everything.
func (j *Janitor) Sweep() (int64, error) {
	if j.retention <= 0 {
		return 0, nil
	}
	n, err := j.store.PurgeOldSessions(j.retention)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("[state] purged %d sessions idle for more than %s", n, j.retention)
	}
	return n, nil
}

// Run sweeps on every tick until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	if _, err := j.Sweep(); err != nil {
		log.Printf("[state] sweep failed: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Sweep(); err != nil {
				log.Printf("[state] sweep failed: %v", err)
			}
		}
	}
}
