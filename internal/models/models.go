package models

import (
	"database/sql"
	"time"
)

// City is one entry in the location registry. The name doubles as the
// natural key; coordinates never change at run time.
type City struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Reading is a single timestamped weather observation for a city.
// Temperature is always present; the remaining measurements are optional.
// At most one reading exists per (city, taken_at) pair.
type Reading struct {
	ID               int64
	City             string
	TakenAt          time.Time
	Temperature      float64
	Precipitation    sql.NullFloat64
	WindSpeed        sql.NullFloat64
	RelativeHumidity sql.NullFloat64
	CreatedAt        time.Time
}

// CurrentConditions holds the raw values returned by the upstream
// current-conditions endpoint, before they become a Reading.
type CurrentConditions struct {
	Temperature      float64
	Precipitation    sql.NullFloat64
	WindSpeed        sql.NullFloat64
	RelativeHumidity sql.NullFloat64
}

// HourlyPoint is one future hour of forecast data. It is never persisted;
// it exists only for the duration of a forecast request.
type HourlyPoint struct {
	Time             time.Time `json:"time"`
	Temperature      *float64  `json:"temperature"`
	Precipitation    *float64  `json:"precipitation"`
	WindSpeed        *float64  `json:"wind_speed"`
	RelativeHumidity *float64  `json:"relative_humidity"`
}

// DailyPoint is one day of archive data from the historical endpoint.
type DailyPoint struct {
	Date      time.Time
	TempMax   *float64
	TempMin   *float64
	PrecipSum *float64
	WindMax   *float64
}

// MonthlyAggregate is one reduced summary row per city per calendar month,
// keyed by the first day of the month. At most one exists per key.
type MonthlyAggregate struct {
	ID                int64
	City              string
	MonthStart        time.Time
	MeanTemperature   sql.NullFloat64
	MeanPrecipitation sql.NullFloat64
	MeanWindSpeed     sql.NullFloat64
	CreatedAt         time.Time
}

// CycleFailure records why one city's fetch failed inside a cycle.
type CycleFailure struct {
	City  string `json:"city"`
	Error string `json:"error"`
}

// CycleReport summarizes one ingestion cycle. A skipped cycle performed no
// writes; otherwise Succeeded and Failed partition the registry.
type CycleReport struct {
	Skipped        bool           `json:"skipped"`
	ElapsedSeconds int            `json:"elapsed_seconds,omitempty"`
	CapturedAt     time.Time      `json:"captured_at,omitempty"`
	Succeeded      []string       `json:"succeeded"`
	Failed         []CycleFailure `json:"failed"`
}

// MonthOutcome is the per-month result of an aggregation run.
type MonthOutcome string

const (
	MonthWritten   MonthOutcome = "written"
	MonthDuplicate MonthOutcome = "duplicate"
	MonthNoData    MonthOutcome = "no_data"
)

// MonthReport is the outcome for one calendar month of an aggregation range.
type MonthReport struct {
	MonthStart time.Time    `json:"month_start"`
	Outcome    MonthOutcome `json:"outcome"`
}

// CityAggregateReport is the per-city result of an all-cities aggregation.
type CityAggregateReport struct {
	City    string        `json:"city"`
	Written int           `json:"written"`
	Months  []MonthReport `json:"months,omitempty"`
	Error   string        `json:"error,omitempty"`
}
