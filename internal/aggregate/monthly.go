// Package aggregate reduces daily archive data into one summary row per
// city per calendar month.
package aggregate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pogodaio/pogoda/internal/metrics"
	"github.com/pogodaio/pogoda/internal/models"
	"github.com/pogodaio/pogoda/internal/store"
)

// ArchiveSource fetches the daily archive series for a date range.
type ArchiveSource interface {
	DailyArchive(ctx context.Context, city models.City, start, end time.Time) ([]models.DailyPoint, error)
}

// AggregateStore is the slice of the store the aggregator needs.
type AggregateStore interface {
	GetCities() ([]models.City, error)
	InsertMonthlyAggregate(models.MonthlyAggregate) error
	UpsertReading(models.Reading) error
}

type Aggregator struct {
	store  AggregateStore
	source ArchiveSource
	loc    *time.Location
	now    func() time.Time
}

func New(store AggregateStore, source ArchiveSource, loc *time.Location) *Aggregator {
	return &Aggregator{
		store:  store,
		source: source,
		loc:    loc,
		now:    time.Now,
	}
}

// Range aggregates [start, end] for one city into monthly rows. The end is
// clamped to yesterday so a partial day never enters a mean. Each calendar
// month in the range yields one report entry: written, duplicate (a row
// already existed and is kept), or no_data (the archive returned nothing,
// which is not an error). A fetch failure stops the range and returns the
// reports produced so far alongside the error.
func (a *Aggregator) Range(ctx context.Context, city models.City, start, end time.Time) ([]models.MonthReport, error) {
	start = a.dateOnly(start)
	end = a.dateOnly(end)

	yesterday := a.dateOnly(a.now()).AddDate(0, 0, -1)
	if end.After(yesterday) {
		end = yesterday
	}
	if end.Before(start) {
		return nil, nil
	}

	var reports []models.MonthReport
	for _, r := range monthRanges(start, end) {
		monthStart := time.Date(r.start.Year(), r.start.Month(), 1, 0, 0, 0, 0, time.UTC)

		points, err := a.source.DailyArchive(ctx, city, r.start, r.end)
		if err != nil {
			return reports, fmt.Errorf("archive %s: %w", monthStart.Format("2006-01"), err)
		}
		if len(points) == 0 {
			log.Printf("aggregate: %s %s: no archive data", city.Name, monthStart.Format("2006-01"))
			reports = append(reports, models.MonthReport{MonthStart: monthStart, Outcome: models.MonthNoData})
			continue
		}

		meanTemp, meanPrecip, meanWind := reduceDaily(points)
		err = a.store.InsertMonthlyAggregate(models.MonthlyAggregate{
			City:              city.Name,
			MonthStart:        monthStart,
			MeanTemperature:   meanTemp,
			MeanPrecipitation: meanPrecip,
			MeanWindSpeed:     meanWind,
		})
		if errors.Is(err, store.ErrDuplicateAggregate) {
			log.Printf("aggregate: %s %s: already covered", city.Name, monthStart.Format("2006-01"))
			reports = append(reports, models.MonthReport{MonthStart: monthStart, Outcome: models.MonthDuplicate})
			continue
		}
		if err != nil {
			return reports, fmt.Errorf("insert %s: %w", monthStart.Format("2006-01"), err)
		}

		metrics.AggregatesWritten.WithLabelValues(city.Name).Inc()
		reports = append(reports, models.MonthReport{MonthStart: monthStart, Outcome: models.MonthWritten})
	}

	return reports, nil
}

// All aggregates the last 30 completed days for every registered city,
// isolating failures per city the same way the ingestion cycle does.
func (a *Aggregator) All(ctx context.Context) ([]models.CityAggregateReport, error) {
	cities, err := a.store.GetCities()
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}

	yesterday := a.dateOnly(a.now()).AddDate(0, 0, -1)
	start := yesterday.AddDate(0, 0, -29)

	var reports []models.CityAggregateReport
	for _, city := range cities {
		months, err := a.Range(ctx, city, start, yesterday)
		report := models.CityAggregateReport{City: city.Name, Months: months}
		for _, m := range months {
			if m.Outcome == models.MonthWritten {
				report.Written++
			}
		}
		if err != nil {
			log.Printf("aggregate: %s: %v", city.Name, err)
			report.Error = err.Error()
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// BackfillDaily writes one reading per archive day of the last 30 completed
// days, timestamped at local midnight. Temperature is the (max+min)/2
// midpoint; missing archive values fall back to zero, as the legacy
// population path always has.
func (a *Aggregator) BackfillDaily(ctx context.Context, city models.City) (int, error) {
	yesterday := a.dateOnly(a.now()).AddDate(0, 0, -1)
	start := yesterday.AddDate(0, 0, -29)

	points, err := a.source.DailyArchive(ctx, city, start, yesterday)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, p := range points {
		midnight := time.Date(p.Date.Year(), p.Date.Month(), p.Date.Day(), 0, 0, 0, 0, a.loc)
		reading := models.Reading{
			City:          city.Name,
			TakenAt:       midnight,
			Temperature:   dayMidpoint(p),
			Precipitation: sql.NullFloat64{Float64: orZero(p.PrecipSum), Valid: true},
			WindSpeed:     sql.NullFloat64{Float64: orZero(p.WindMax), Valid: true},
		}
		if err := a.store.UpsertReading(reading); err != nil {
			return written, fmt.Errorf("upsert %s: %w", p.Date.Format("2006-01-02"), err)
		}
		written++
	}
	return written, nil
}

type dateRange struct {
	start, end time.Time
}

// monthRanges splits [start, end] into consecutive calendar-month
// sub-ranges. The first may begin mid-month and the last may end mid-month.
func monthRanges(start, end time.Time) []dateRange {
	var ranges []dateRange
	cur := start
	for !cur.After(end) {
		monthEnd := time.Date(cur.Year(), cur.Month(), 1, 0, 0, 0, 0, cur.Location()).AddDate(0, 1, -1)
		if monthEnd.After(end) {
			monthEnd = end
		}
		ranges = append(ranges, dateRange{start: cur, end: monthEnd})
		cur = monthEnd.AddDate(0, 0, 1)
	}
	return ranges
}

// reduceDaily computes the monthly means: temperature as the mean of each
// day's (max+min)/2 midpoint, precipitation as the mean of daily sums, wind
// as the mean of daily maxima. Days missing a value are excluded from that
// value's mean.
func reduceDaily(points []models.DailyPoint) (meanTemp, meanPrecip, meanWind sql.NullFloat64) {
	var tempSum, precipSum, windSum float64
	var tempN, precipN, windN int
	for _, p := range points {
		if p.TempMax != nil && p.TempMin != nil {
			tempSum += (*p.TempMax + *p.TempMin) / 2
			tempN++
		}
		if p.PrecipSum != nil {
			precipSum += *p.PrecipSum
			precipN++
		}
		if p.WindMax != nil {
			windSum += *p.WindMax
			windN++
		}
	}
	if tempN > 0 {
		meanTemp = sql.NullFloat64{Float64: tempSum / float64(tempN), Valid: true}
	}
	if precipN > 0 {
		meanPrecip = sql.NullFloat64{Float64: precipSum / float64(precipN), Valid: true}
	}
	if windN > 0 {
		meanWind = sql.NullFloat64{Float64: windSum / float64(windN), Valid: true}
	}
	return meanTemp, meanPrecip, meanWind
}

func (a *Aggregator) dateOnly(t time.Time) time.Time {
	t = t.In(a.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, a.loc)
}

func dayMidpoint(p models.DailyPoint) float64 {
	if p.TempMax != nil && p.TempMin != nil {
		return (*p.TempMax + *p.TempMin) / 2
	}
	if p.TempMax != nil {
		return *p.TempMax
	}
	if p.TempMin != nil {
		return *p.TempMin
	}
	return 0
}

func orZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
