// Package refresh periodically fetches configured feeds so the fetch cache
// stays warm and can cover upstream outages.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"calconv/internal/ics"
	appLog "calconv/internal/log"
)

// Prefetcher fetches a batch of sources.
type Prefetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, []error)
}

// Scheduler runs a prefetch on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	fetcher Prefetcher
	sources []ics.Source

	// running guards against overlapping runs when a fetch outlasts the interval.
	running sync.Mutex
}

// New validates spec (standard five-field cron syntax) and prepares a
// Scheduler; call Start to begin.
func New(spec string, fetcher Prefetcher, sources []ics.Source) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return &Scheduler{
		cron:    cron.New(),
		spec:    spec,
		fetcher: fetcher,
		sources: append([]ics.Source(nil), sources...),
	}, nil
}

// Start schedules the job; ctx bounds every run.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	appLog.Info("prefetch scheduler started", "schedule", s.spec, "sources", len(s.sources))
	return nil
}

// Stop stops scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce fetches all sources once. It is a no-op while another run is active.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if !s.running.TryLock() {
		appLog.Warn("prefetch skipped; previous run still active")
		return
	}
	defer s.running.Unlock()

	start := time.Now()
	results, errs := s.fetcher.FetchAll(ctx, s.sources)
	appLog.Info("prefetch completed",
		"fetched", len(results),
		"failed", len(errs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
