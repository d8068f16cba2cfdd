package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pogodaio/pogoda/internal/metrics"
	"github.com/pogodaio/pogoda/internal/models"
)

// CurrentSource fetches current conditions for one city.
type CurrentSource interface {
	Current(ctx context.Context, city models.City) (models.CurrentConditions, error)
}

// CycleStore is the slice of the store the cycle needs.
type CycleStore interface {
	GetCities() ([]models.City, error)
	LatestReadingTime() (*time.Time, error)
	UpsertReading(models.Reading) error
}

// Cycle runs one freshness-gated ingestion pass over the whole registry.
type Cycle struct {
	store  CycleStore
	source CurrentSource
	gate   *FreshnessGate
	loc    *time.Location
	now    func() time.Time
}

func NewCycle(store CycleStore, source CurrentSource, loc *time.Location) *Cycle {
	return &Cycle{
		store:  store,
		source: source,
		gate:   NewFreshnessGate(loc),
		loc:    loc,
		now:    time.Now,
	}
}

// Run executes one ingestion cycle. The gate is evaluated against the
// newest reading across all cities; when it passes, every city is fetched
// independently and written at one shared capture instant, so each cycle
// yields a coherent cross-city snapshot. Per-city failures are recorded and
// never abort the rest; only a failure to read the registry or the
// watermark returns an error.
func (c *Cycle) Run(ctx context.Context) (models.CycleReport, error) {
	report := models.CycleReport{
		Succeeded: []string{},
		Failed:    []models.CycleFailure{},
	}

	last, err := c.store.LatestReadingTime()
	if err != nil {
		return report, fmt.Errorf("read watermark: %w", err)
	}

	now := c.now()
	if !c.gate.ShouldFetch(last, now) {
		elapsed := int(c.gate.Elapsed(*last, now).Seconds())
		log.Printf("ingest: data is fresh (%ds old), skipping external fetch", elapsed)
		metrics.CyclesTotal.WithLabelValues("skipped").Inc()
		report.Skipped = true
		report.ElapsedSeconds = elapsed
		return report, nil
	}
	if last == nil {
		log.Println("ingest: empty store, fetching first readings")
	} else {
		log.Printf("ingest: data is stale (%ds old), fetching", int(c.gate.Elapsed(*last, now).Seconds()))
	}

	cities, err := c.store.GetCities()
	if err != nil {
		return report, fmt.Errorf("list cities: %w", err)
	}

	captured := now.In(c.loc).Truncate(time.Second)
	report.CapturedAt = captured
	metrics.CyclesTotal.WithLabelValues("run").Inc()

	for _, city := range cities {
		cond, err := c.source.Current(ctx, city)
		if err != nil {
			log.Printf("ingest: fetch %s: %v", city.Name, err)
			report.Failed = append(report.Failed, models.CycleFailure{City: city.Name, Error: err.Error()})
			continue
		}

		reading := models.Reading{
			City:             city.Name,
			TakenAt:          captured,
			Temperature:      cond.Temperature,
			Precipitation:    cond.Precipitation,
			WindSpeed:        cond.WindSpeed,
			RelativeHumidity: cond.RelativeHumidity,
		}
		if err := c.store.UpsertReading(reading); err != nil {
			log.Printf("ingest: upsert %s: %v", city.Name, err)
			report.Failed = append(report.Failed, models.CycleFailure{City: city.Name, Error: fmt.Sprintf("upsert: %v", err)})
			continue
		}

		metrics.ReadingsIngested.WithLabelValues(city.Name).Inc()
		report.Succeeded = append(report.Succeeded, city.Name)
		log.Printf("ingest: %s: %.1f°C", city.Name, cond.Temperature)
	}

	return report, nil
}
