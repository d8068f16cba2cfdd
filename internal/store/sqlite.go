package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pogodaio/pogoda/internal/models"
)

const dateLayout = "2006-01-02"

var (
	// ErrCityNotFound is returned when a name resolves to no registry entry.
	ErrCityNotFound = errors.New("city not found")
	// ErrDuplicateAggregate is returned when a monthly aggregate already
	// exists for the (city, month_start) key. The existing row is kept.
	ErrDuplicateAggregate = errors.New("monthly aggregate already exists")
)

type Store struct {
	db  *sql.DB
	loc *time.Location
}

func New(db *sql.DB, loc *time.Location) *Store {
	return &Store{db: db, loc: loc}
}

// Location returns the civil time zone all timestamp comparisons use.
func (s *Store) Location() *time.Location {
	return s.loc
}

func (s *Store) UpsertCity(c models.City) error {
	_, err := s.db.Exec(`
		INSERT INTO cities (name, latitude, longitude)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude
	`, c.Name, c.Latitude, c.Longitude)
	return err
}

func (s *Store) GetCities() ([]models.City, error) {
	rows, err := s.db.Query(`SELECT name, latitude, longitude FROM cities ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cities []models.City
	for rows.Next() {
		var c models.City
		if err := rows.Scan(&c.Name, &c.Latitude, &c.Longitude); err != nil {
			return nil, err
		}
		cities = append(cities, c)
	}
	return cities, rows.Err()
}

// GetCity resolves a city by case-insensitive name. SQLite's NOCASE only
// folds ASCII, so the fold happens here to handle names like Łódź.
func (s *Store) GetCity(name string) (*models.City, error) {
	cities, err := s.GetCities()
	if err != nil {
		return nil, err
	}
	for i := range cities {
		if strings.EqualFold(cities[i].Name, name) {
			return &cities[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrCityNotFound, name)
}

// DeleteCity removes a city and, via foreign keys, all its readings and
// monthly aggregates.
func (s *Store) DeleteCity(name string) error {
	res, err := s.db.Exec(`DELETE FROM cities WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrCityNotFound, name)
	}
	return nil
}

// UpsertReading inserts a reading, replacing any existing row with the same
// (city, taken_at) key. Last writer wins.
func (s *Store) UpsertReading(r models.Reading) error {
	_, err := s.db.Exec(`
		INSERT INTO readings (city, taken_at, temperature, precipitation, wind_speed, relative_humidity)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(city, taken_at) DO UPDATE SET
			temperature = excluded.temperature,
			precipitation = excluded.precipitation,
			wind_speed = excluded.wind_speed,
			relative_humidity = excluded.relative_humidity
	`, r.City, r.TakenAt.UTC().Truncate(time.Second), r.Temperature, r.Precipitation, r.WindSpeed, r.RelativeHumidity)
	return err
}

// LatestReadingTime returns the newest taken_at across all cities, or nil
// when the store is empty. This is the freshness gate's global watermark.
func (s *Store) LatestReadingTime() (*time.Time, error) {
	var t time.Time
	err := s.db.QueryRow(`SELECT taken_at FROM readings ORDER BY taken_at DESC LIMIT 1`).Scan(&t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

func (s *Store) LatestReading(city string) (*models.Reading, error) {
	row := s.db.QueryRow(`
		SELECT id, city, taken_at, temperature, precipitation, wind_speed, relative_humidity, created_at
		FROM readings
		WHERE city = ?
		ORDER BY taken_at DESC
		LIMIT 1
	`, city)

	var r models.Reading
	err := row.Scan(&r.ID, &r.City, &r.TakenAt, &r.Temperature, &r.Precipitation, &r.WindSpeed, &r.RelativeHumidity, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CitySnapshot pairs a registry entry with its most recent reading.
type CitySnapshot struct {
	City    models.City
	Reading models.Reading
}

// LatestReadings returns the newest reading for every city that has one,
// ordered by city name.
func (s *Store) LatestReadings() ([]CitySnapshot, error) {
	rows, err := s.db.Query(`
		SELECT c.name, c.latitude, c.longitude,
		       r.id, r.taken_at, r.temperature, r.precipitation, r.wind_speed, r.relative_humidity
		FROM cities c
		JOIN readings r ON r.city = c.name
		JOIN (
			SELECT city, MAX(taken_at) AS newest
			FROM readings
			GROUP BY city
		) latest ON latest.city = r.city AND latest.newest = r.taken_at
		ORDER BY c.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []CitySnapshot
	for rows.Next() {
		var cs CitySnapshot
		if err := rows.Scan(&cs.City.Name, &cs.City.Latitude, &cs.City.Longitude,
			&cs.Reading.ID, &cs.Reading.TakenAt, &cs.Reading.Temperature,
			&cs.Reading.Precipitation, &cs.Reading.WindSpeed, &cs.Reading.RelativeHumidity); err != nil {
			return nil, err
		}
		cs.Reading.City = cs.City.Name
		snapshots = append(snapshots, cs)
	}
	return snapshots, rows.Err()
}

// ReadingsForCity returns the full history for one city, newest first.
func (s *Store) ReadingsForCity(city string) ([]models.Reading, error) {
	rows, err := s.db.Query(`
		SELECT id, city, taken_at, temperature, precipitation, wind_speed, relative_humidity, created_at
		FROM readings
		WHERE city = ?
		ORDER BY taken_at DESC
	`, city)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []models.Reading
	for rows.Next() {
		var r models.Reading
		if err := rows.Scan(&r.ID, &r.City, &r.TakenAt, &r.Temperature, &r.Precipitation, &r.WindSpeed, &r.RelativeHumidity, &r.CreatedAt); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// InsertMonthlyAggregate writes one aggregate row. A collision with an
// existing (city, month_start) row keeps the old row and reports
// ErrDuplicateAggregate; recomputation requires an explicit delete first.
func (s *Store) InsertMonthlyAggregate(a models.MonthlyAggregate) error {
	res, err := s.db.Exec(`
		INSERT INTO monthly_aggregates (city, month_start, mean_temperature, mean_precipitation, mean_wind_speed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(city, month_start) DO NOTHING
	`, a.City, a.MonthStart.Format(dateLayout), a.MeanTemperature, a.MeanPrecipitation, a.MeanWindSpeed)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrDuplicateAggregate, a.City, a.MonthStart.Format(dateLayout))
	}
	return nil
}

func (s *Store) MonthlyAggregates(city string) ([]models.MonthlyAggregate, error) {
	rows, err := s.db.Query(`
		SELECT id, city, month_start, mean_temperature, mean_precipitation, mean_wind_speed, created_at
		FROM monthly_aggregates
		WHERE city = ?
		ORDER BY month_start
	`, city)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aggregates []models.MonthlyAggregate
	for rows.Next() {
		var a models.MonthlyAggregate
		var monthStart string
		if err := rows.Scan(&a.ID, &a.City, &monthStart, &a.MeanTemperature, &a.MeanPrecipitation, &a.MeanWindSpeed, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.MonthStart, err = time.Parse(dateLayout, monthStart)
		if err != nil {
			return nil, fmt.Errorf("parse month_start %q: %w", monthStart, err)
		}
		aggregates = append(aggregates, a)
	}
	return aggregates, rows.Err()
}

// DeleteMonthlyAggregates clears a city's aggregates so a range can be
// recomputed.
func (s *Store) DeleteMonthlyAggregates(city string) error {
	_, err := s.db.Exec(`DELETE FROM monthly_aggregates WHERE city = ?`, city)
	return err
}
