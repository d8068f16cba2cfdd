package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pogodaio/pogoda/internal/models"
)

type stubSource struct {
	temps map[string]float64 // absent name fails
	calls int
}

func (s *stubSource) Current(ctx context.Context, city models.City) (models.CurrentConditions, error) {
	s.calls++
	temp, ok := s.temps[city.Name]
	if !ok {
		return models.CurrentConditions{}, fmt.Errorf("upstream down for %s", city.Name)
	}
	return models.CurrentConditions{
		Temperature: temp,
		WindSpeed:   sql.NullFloat64{Float64: 5, Valid: true},
	}, nil
}

type memStore struct {
	cities       []models.City
	watermark    *time.Time
	watermarkErr error
	readings     []models.Reading
}

func (m *memStore) GetCities() ([]models.City, error)      { return m.cities, nil }
func (m *memStore) LatestReadingTime() (*time.Time, error) { return m.watermark, m.watermarkErr }
func (m *memStore) UpsertReading(r models.Reading) error {
	m.readings = append(m.readings, r)
	return nil
}

func testCities(names ...string) []models.City {
	cities := make([]models.City, len(names))
	for i, n := range names {
		cities[i] = models.City{Name: n, Latitude: 52, Longitude: 21}
	}
	return cities
}

func TestCycleRun(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Warsaw")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, loc)

	t.Run("partial failure isolates cities", func(t *testing.T) {
		st := &memStore{cities: testCities("Gdańsk", "Kraków", "Lublin", "Opole", "Warszawa")}
		src := &stubSource{temps: map[string]float64{
			"Gdańsk": 18.5, "Lublin": 20.1, "Warszawa": 21.0,
		}}
		cycle := NewCycle(st, src, loc)
		cycle.now = func() time.Time { return now }

		report, err := cycle.Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if report.Skipped {
			t.Fatal("cycle should not skip on cold start")
		}
		if len(report.Succeeded) != 3 {
			t.Errorf("succeeded = %v, want 3 cities", report.Succeeded)
		}
		if len(report.Failed) != 2 {
			t.Errorf("failed = %v, want 2 cities", report.Failed)
		}
		if len(st.readings) != 3 {
			t.Fatalf("stored %d readings, want 3", len(st.readings))
		}
		for _, r := range st.readings {
			if !r.TakenAt.Equal(now) {
				t.Errorf("%s taken at %s, want shared capture instant %s", r.City, r.TakenAt, now)
			}
		}
	})

	t.Run("fresh watermark skips without fetching", func(t *testing.T) {
		last := now.Add(-60 * time.Second)
		st := &memStore{cities: testCities("Warszawa"), watermark: &last}
		src := &stubSource{temps: map[string]float64{"Warszawa": 21.0}}
		cycle := NewCycle(st, src, loc)
		cycle.now = func() time.Time { return now }

		report, err := cycle.Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if !report.Skipped {
			t.Fatal("expected skip")
		}
		if report.ElapsedSeconds != 60 {
			t.Errorf("ElapsedSeconds = %d, want 60", report.ElapsedSeconds)
		}
		if src.calls != 0 {
			t.Errorf("source called %d times during a skipped cycle", src.calls)
		}
		if len(st.readings) != 0 {
			t.Errorf("skipped cycle wrote %d readings", len(st.readings))
		}
	})

	t.Run("stale watermark fetches", func(t *testing.T) {
		last := now.Add(-10 * time.Minute)
		st := &memStore{cities: testCities("Warszawa"), watermark: &last}
		src := &stubSource{temps: map[string]float64{"Warszawa": 21.0}}
		cycle := NewCycle(st, src, loc)
		cycle.now = func() time.Time { return now }

		report, err := cycle.Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if report.Skipped {
			t.Fatal("expected a full cycle")
		}
		if len(report.Succeeded) != 1 {
			t.Errorf("succeeded = %v", report.Succeeded)
		}
	})

	t.Run("watermark error fails the cycle", func(t *testing.T) {
		st := &memStore{watermarkErr: errors.New("disk gone")}
		cycle := NewCycle(st, &stubSource{}, loc)
		cycle.now = func() time.Time { return now }

		if _, err := cycle.Run(context.Background()); err == nil {
			t.Fatal("expected error")
		}
	})
}
