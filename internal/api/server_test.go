package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pogodaio/pogoda/internal/models"
	"github.com/pogodaio/pogoda/internal/store"
)

type stubForecasts struct {
	points []models.HourlyPoint
	err    error
	hours  int
}

func (s *stubForecasts) Hourly(ctx context.Context, city models.City, hours int) ([]models.HourlyPoint, error) {
	s.hours = hours
	return s.points, s.err
}

func newTestServer(t *testing.T, forecasts ForecastSource) (*Server, *store.Store) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.Exec("PRAGMA foreign_keys=ON")

	loc, err := time.LoadLocation("Europe/Warsaw")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	st := store.New(db, loc)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := st.UpsertCity(models.City{Name: "Warszawa", Latitude: 52.2297, Longitude: 21.0122}); err != nil {
		t.Fatalf("seed city: %v", err)
	}

	return NewServer(st, forecasts, nil, nil, "0", loc), st
}

func doRequest(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestForecastValidation(t *testing.T) {
	s, _ := newTestServer(t, &stubForecasts{})

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"non-numeric hours", "/api/weather/forecast/Warszawa?hours=abc", http.StatusBadRequest},
		{"zero hours", "/api/weather/forecast/Warszawa?hours=0", http.StatusBadRequest},
		{"negative hours", "/api/weather/forecast/Warszawa?hours=-5", http.StatusBadRequest},
		{"over the cap", "/api/weather/forecast/Warszawa?hours=169", http.StatusBadRequest},
		{"unknown city", "/api/weather/forecast/Radom?hours=24", http.StatusNotFound},
		{"missing city", "/api/weather/forecast/", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodGet, tt.target)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestForecast(t *testing.T) {
	temp := 15.0
	forecasts := &stubForecasts{points: []models.HourlyPoint{
		{Time: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), Temperature: &temp},
		{Time: time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC), Temperature: &temp},
	}}
	s, _ := newTestServer(t, forecasts)

	rec := doRequest(t, s, http.MethodGet, "/api/weather/forecast/warszawa?hours=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if forecasts.hours != 2 {
		t.Errorf("requested %d hours", forecasts.hours)
	}

	var resp struct {
		CityName       string               `json:"city_name"`
		Hours          int                  `json:"hours"`
		Forecast       []models.HourlyPoint `json:"forecast"`
		Recommendation string               `json:"recommendation"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CityName != "Warszawa" {
		t.Errorf("city_name = %q, want the canonical registry name", resp.CityName)
	}
	if len(resp.Forecast) != 2 {
		t.Errorf("forecast has %d points", len(resp.Forecast))
	}
	if resp.Recommendation == "" {
		t.Error("recommendation is empty")
	}
}

func TestForecastDefaultsTo48Hours(t *testing.T) {
	forecasts := &stubForecasts{}
	s, _ := newTestServer(t, forecasts)

	rec := doRequest(t, s, http.MethodGet, "/api/weather/forecast/Warszawa")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if forecasts.hours != defaultForecastHours {
		t.Errorf("requested %d hours, want %d", forecasts.hours, defaultForecastHours)
	}
}

func TestHistory(t *testing.T) {
	s, st := newTestServer(t, &stubForecasts{})

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		err := st.UpsertReading(models.Reading{
			City:        "Warszawa",
			TakenAt:     base.Add(time.Duration(i) * time.Hour),
			Temperature: 18 + float64(i),
		})
		if err != nil {
			t.Fatalf("seed reading: %v", err)
		}
	}

	rec := doRequest(t, s, http.MethodGet, "/api/weather/history/Warszawa")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		CityName string         `json:"city_name"`
		History  []historyEntry `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.History) != 2 {
		t.Fatalf("history has %d entries, want 2", len(resp.History))
	}
	if resp.History[0].Temperature != 19 {
		t.Errorf("first entry = %.0f°C, want the newest reading first", resp.History[0].Temperature)
	}
}

func TestListWeather(t *testing.T) {
	s, st := newTestServer(t, &stubForecasts{})

	err := st.UpsertReading(models.Reading{
		City:             "Warszawa",
		TakenAt:          time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Temperature:      30,
		RelativeHumidity: sql.NullFloat64{Float64: 70, Valid: true},
	})
	if err != nil {
		t.Fatalf("seed reading: %v", err)
	}

	rec := doRequest(t, s, http.MethodGet, "/api/weather")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp []currentWeather
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("got %d cities, want 1", len(resp))
	}
	if resp[0].PerceivedTemperature == nil || *resp[0].PerceivedTemperature != 31 {
		t.Errorf("perceived = %v, want the humidity correction applied", resp[0].PerceivedTemperature)
	}
}

func TestAggregateRequiresPost(t *testing.T) {
	s, _ := newTestServer(t, &stubForecasts{})

	if rec := doRequest(t, s, http.MethodGet, "/api/weather/aggregate"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("all-cities status = %d, want 405", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/api/weather/aggregate/Warszawa"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("per-city status = %d, want 405", rec.Code)
	}
}

func TestMonths(t *testing.T) {
	s, st := newTestServer(t, &stubForecasts{})

	err := st.InsertMonthlyAggregate(models.MonthlyAggregate{
		City:            "Warszawa",
		MonthStart:      time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		MeanTemperature: sql.NullFloat64{Float64: 14.5, Valid: true},
	})
	if err != nil {
		t.Fatalf("seed aggregate: %v", err)
	}

	rec := doRequest(t, s, http.MethodGet, "/api/weather/months/Warszawa")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		CityName string       `json:"city_name"`
		Months   []monthlyRow `json:"months"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Months) != 1 || resp.Months[0].MonthStart != "2025-05-01" {
		t.Fatalf("months = %+v", resp.Months)
	}
	if resp.Months[0].MeanTemperature == nil || *resp.Months[0].MeanTemperature != 14.5 {
		t.Errorf("mean temperature = %v", resp.Months[0].MeanTemperature)
	}
	if resp.Months[0].MeanWindSpeed != nil {
		t.Errorf("absent wind mean = %v, want null", resp.Months[0].MeanWindSpeed)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &stubForecasts{})
	rec := doRequest(t, s, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
