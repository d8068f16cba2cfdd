package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pogodaio/pogoda/internal/aggregate"
)

// Scheduler owns the process's recurring tasks: the ingestion cycle every
// 30 minutes (plus one eager run at start) and a nightly all-cities monthly
// aggregation. It holds no state beyond the handles it dispatches to.
type Scheduler struct {
	cycle      *Cycle
	aggregator *aggregate.Aggregator
	loc        *time.Location
	interval   time.Duration
}

func NewScheduler(cycle *Cycle, aggregator *aggregate.Aggregator, loc *time.Location) *Scheduler {
	return &Scheduler{
		cycle:      cycle,
		aggregator: aggregator,
		loc:        loc,
		interval:   30 * time.Minute,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.runCycle()

	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), s.runCycle); err != nil {
		log.Printf("scheduler: schedule ingestion: %v", err)
		return
	}
	if s.aggregator != nil {
		// Nightly, well after the archive endpoint has yesterday's data.
		if _, err := c.AddFunc("30 3 * * *", s.runMonthly); err != nil {
			log.Printf("scheduler: schedule aggregation: %v", err)
			return
		}
	}

	c.Start()
	log.Printf("scheduler: ingestion every %s, started", s.interval)

	<-ctx.Done()
	log.Println("scheduler: shutting down")
	stop := c.Stop()
	<-stop.Done()
}

func (s *Scheduler) runCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	report, err := s.cycle.Run(ctx)
	if err != nil {
		log.Printf("scheduler: ingestion cycle: %v", err)
		return
	}
	if report.Skipped {
		return
	}
	log.Printf("scheduler: cycle complete: %d succeeded, %d failed", len(report.Succeeded), len(report.Failed))
}

func (s *Scheduler) runMonthly() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	reports, err := s.aggregator.All(ctx)
	if err != nil {
		log.Printf("scheduler: monthly aggregation: %v", err)
		return
	}
	written := 0
	failed := 0
	for _, r := range reports {
		written += r.Written
		if r.Error != "" {
			failed++
		}
	}
	log.Printf("scheduler: monthly aggregation complete: %d rows written, %d cities failed", written, failed)
}
