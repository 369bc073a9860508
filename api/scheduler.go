/*
scheduler.go - Automated monthly generation scheduler

PURPOSE:
  Periodically runs the materializer so next month's recurring bookings
  exist without waiting for the external cron trigger.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - The materializer's last_generated_period marker makes repeated runs
    within the same month no-ops, so frequent checks are harmless
  - Runs once immediately on start

CONFIGURATION:
  - CheckInterval: How often to run (default: 24 hours)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewGenerationScheduler(materializer)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: GenerateMonthly endpoint (manual trigger)
  - recurring/materializer.go: The generation logic
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/casaclean/booking-engine/recurring"
)

// GenerationScheduler runs the materializer on a fixed interval.
type GenerationScheduler struct {
	Materializer  *recurring.Materializer
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewGenerationScheduler creates a new scheduler with defaults.
func NewGenerationScheduler(materializer *recurring.Materializer) *GenerationScheduler {
	return &GenerationScheduler{
		Materializer:  materializer,
		CheckInterval: 24 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start launches the background generation loop.
func (s *GenerationScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		log.Println("[Scheduler] Generation scheduler disabled")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)
	go s.run()

	log.Printf("[Scheduler] Generation scheduler started (interval: %v)", s.CheckInterval)
}

// Stop halts the scheduler and waits for the loop to exit.
func (s *GenerationScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}

	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil

	log.Println("[Scheduler] Generation scheduler stopped")
}

func (s *GenerationScheduler) run() {
	defer s.wg.Done()

	// Run once on startup, then on every tick.
	s.runOnce()

	for {
		select {
		case <-s.ticker.C:
			s.runOnce()
		case <-s.stop:
			return
		}
	}
}

// RunNow triggers a generation pass outside the normal schedule.
func (s *GenerationScheduler) RunNow() recurring.Report {
	return s.Materializer.MaterializeNextPeriod(context.Background(), time.Now())
}

func (s *GenerationScheduler) runOnce() {
	report := s.Materializer.MaterializeNextPeriod(context.Background(), time.Now())
	if !report.Success() {
		log.Printf("[Scheduler] Generation run finished with errors: %v", report.Errors)
	}
}
