package services

import (
	"context"
	"log"
	"time"
)

const DefaultSweepInterval = 30 * time.Second

// Sweeper periodically advances stored Event statuses toward their
// time-derived values so polling dashboards see statuses that are at
// most one interval stale. It holds no locks across ticks and stops
// when its context is cancelled.
type Sweeper struct {
	lifecycle *Lifecycle
	interval  time.Duration
}

func NewSweeper(lifecycle *Lifecycle, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{lifecycle: lifecycle, interval: interval}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("🧹 Event sweeper started (interval: %v)", s.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("🧹 Event sweeper stopped")
			return
		case <-ticker.C:
			advanced, err := s.lifecycle.SweepEvents(time.Now())
			if err != nil {
				log.Printf("⚠️ [SWEEP] Sweep failed: %v", err)
				continue
			}
			if advanced > 0 {
				log.Printf("🧹 [SWEEP] Advanced %d event(s)", advanced)
			}
		}
	}
}
