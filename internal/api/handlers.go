package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pogodaio/pogoda/internal/derive"
	"github.com/pogodaio/pogoda/internal/models"
	"github.com/pogodaio/pogoda/internal/store"
)

const (
	defaultForecastHours = 48
	maxForecastHours     = 168
)

type currentWeather struct {
	CityName             string    `json:"city_name"`
	Latitude             float64   `json:"latitude"`
	Longitude            float64   `json:"longitude"`
	Temperature          float64   `json:"temperature"`
	PerceivedTemperature *float64  `json:"perceived_temperature"`
	LastUpdated          time.Time `json:"last_updated"`
	Precipitation        *float64  `json:"precipitation"`
	WindSpeed            *float64  `json:"wind_speed"`
	RelativeHumidity     *float64  `json:"relative_humidity"`
}

type historyEntry struct {
	Timestamp        time.Time `json:"timestamp"`
	Temperature      float64   `json:"temperature"`
	Precipitation    *float64  `json:"precipitation"`
	WindSpeed        *float64  `json:"wind_speed"`
	RelativeHumidity *float64  `json:"relative_humidity"`
}

type monthlyRow struct {
	MonthStart        string   `json:"month_start"`
	MeanTemperature   *float64 `json:"mean_temperature"`
	MeanPrecipitation *float64 `json:"mean_precipitation"`
	MeanWindSpeed     *float64 `json:"mean_wind_speed"`
}

func (s *Server) handleListWeather(w http.ResponseWriter, r *http.Request) {
	list, err := s.currentWeatherList()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	report, err := s.cycle.Run(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	list, err := s.currentWeatherList()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Report  models.CycleReport `json:"report"`
		Weather []currentWeather   `json:"weather"`
	}{report, list})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	city, ok := s.resolveCity(w, r, "/api/weather/history/")
	if !ok {
		return
	}

	readings, err := s.store.ReadingsForCity(city.Name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	history := make([]historyEntry, 0, len(readings))
	for _, rd := range readings {
		history = append(history, historyEntry{
			Timestamp:        rd.TakenAt.In(s.loc),
			Temperature:      rd.Temperature,
			Precipitation:    fp(rd.Precipitation),
			WindSpeed:        fp(rd.WindSpeed),
			RelativeHumidity: fp(rd.RelativeHumidity),
		})
	}

	writeJSON(w, http.StatusOK, struct {
		CityName  string         `json:"city_name"`
		Latitude  float64        `json:"latitude"`
		Longitude float64        `json:"longitude"`
		History   []historyEntry `json:"history"`
	}{city.Name, city.Latitude, city.Longitude, history})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	hours := defaultForecastHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		if n > maxForecastHours {
			writeError(w, http.StatusBadRequest, "hours must not exceed 168")
			return
		}
		hours = n
	}

	city, ok := s.resolveCity(w, r, "/api/weather/forecast/")
	if !ok {
		return
	}

	points, err := s.forecasts.Hourly(r.Context(), *city, hours)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, struct {
		CityName       string               `json:"city_name"`
		Hours          int                  `json:"hours"`
		Forecast       []models.HourlyPoint `json:"forecast"`
		Recommendation string               `json:"recommendation"`
	}{city.Name, hours, points, derive.Recommendation(points)})
}

func (s *Server) handleAggregateAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	reports, err := s.aggregator.All(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Cities []models.CityAggregateReport `json:"cities"`
	}{reports})
}

func (s *Server) handleAggregateCity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	city, ok := s.resolveCity(w, r, "/api/weather/aggregate/")
	if !ok {
		return
	}

	now := time.Now().In(s.loc)
	end := now.AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -29)
	var err error
	if raw := r.URL.Query().Get("start"); raw != "" {
		if start, err = time.ParseInLocation("2006-01-02", raw, s.loc); err != nil {
			writeError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
			return
		}
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		if end, err = time.ParseInLocation("2006-01-02", raw, s.loc); err != nil {
			writeError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
			return
		}
	}

	months, err := s.aggregator.Range(r.Context(), *city, start, end)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	written := 0
	for _, m := range months {
		if m.Outcome == models.MonthWritten {
			written++
		}
	}
	writeJSON(w, http.StatusOK, models.CityAggregateReport{City: city.Name, Written: written, Months: months})
}

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	city, ok := s.resolveCity(w, r, "/api/weather/months/")
	if !ok {
		return
	}

	aggregates, err := s.store.MonthlyAggregates(city.Name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rows := make([]monthlyRow, 0, len(aggregates))
	for _, a := range aggregates {
		rows = append(rows, monthlyRow{
			MonthStart:        a.MonthStart.Format("2006-01-02"),
			MeanTemperature:   fp(a.MeanTemperature),
			MeanPrecipitation: fp(a.MeanPrecipitation),
			MeanWindSpeed:     fp(a.MeanWindSpeed),
		})
	}

	writeJSON(w, http.StatusOK, struct {
		CityName string       `json:"city_name"`
		Months   []monthlyRow `json:"months"`
	}{city.Name, rows})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) currentWeatherList() ([]currentWeather, error) {
	snapshots, err := s.store.LatestReadings()
	if err != nil {
		return nil, err
	}

	list := make([]currentWeather, 0, len(snapshots))
	for _, snap := range snapshots {
		rd := snap.Reading
		perceived := derive.PerceivedTemperature(
			sql.NullFloat64{Float64: rd.Temperature, Valid: true},
			rd.RelativeHumidity,
			rd.WindSpeed,
		)
		list = append(list, currentWeather{
			CityName:             snap.City.Name,
			Latitude:             snap.City.Latitude,
			Longitude:            snap.City.Longitude,
			Temperature:          rd.Temperature,
			PerceivedTemperature: fp(perceived),
			LastUpdated:          rd.TakenAt.In(s.loc),
			Precipitation:        fp(rd.Precipitation),
			WindSpeed:            fp(rd.WindSpeed),
			RelativeHumidity:     fp(rd.RelativeHumidity),
		})
	}
	return list, nil
}

// resolveCity maps the path suffix to a registry entry, writing a 404 when
// the name is unknown.
func (s *Server) resolveCity(w http.ResponseWriter, r *http.Request, prefix string) (*models.City, bool) {
	name := strings.TrimPrefix(r.URL.Path, prefix)
	name = strings.TrimSuffix(name, "/")
	if name == "" {
		writeError(w, http.StatusBadRequest, "city name required")
		return nil, false
	}

	city, err := s.store.GetCity(name)
	if err != nil {
		if errors.Is(err, store.ErrCityNotFound) {
			writeError(w, http.StatusNotFound, "unknown city: "+name)
			return nil, false
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return city, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func fp(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
