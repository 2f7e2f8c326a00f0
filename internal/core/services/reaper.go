package services

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"meeting-copilot/internal/logging"
)

// Reaper periodically evicts bots that have been failed for longer than
// the retention period, so their sessions stop showing up in listings.
type Reaper struct {
	registry  Registry
	retention time.Duration
	cron      *cron.Cron
	logger    logging.Logger
	now       func() time.Time
}

func NewReaper(registry Registry, retention time.Duration, schedule string, logger logging.Logger) (*Reaper, error) {
	r := &Reaper{
		registry:  registry,
		retention: retention,
		cron:      cron.New(),
		logger:    logger.With(logging.F("component", "reaper")),
		now:       time.Now,
	}
	if _, err := r.cron.AddFunc(schedule, func() { r.Sweep() }); err != nil {
		return nil, fmt.Errorf("invalid reap schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Reaper) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running sweep.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}

// Sweep evicts expired failed bots and returns how many it removed.
func (r *Reaper) Sweep() int {
	cutoff := r.now().Add(-r.retention)
	n := 0
	for _, b := range r.registry.List() {
		if b.failedBefore(cutoff) {
			r.registry.Release(b.id)
			n++
		}
	}
	if n > 0 {
		r.logger.Info("Evicted failed bots", logging.F("count", n))
	}
	return n
}
