package openmeteo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/pogodaio/pogoda/internal/metrics"
	"github.com/pogodaio/pogoda/internal/models"
)

const (
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	defaultArchiveURL  = "https://archive-api.open-meteo.com/v1/era5"

	// Field lists are part of the upstream wire contract. Responses are
	// read back in this declared order, not by hardcoded struct tags.
	currentFields = "temperature_2m,precipitation,windspeed_10m,relative_humidity_2m"
	hourlyFields  = "temperature_2m,precipitation,wind_speed_10m,relative_humidity_2m"
	dailyFields   = "temperature_2m_max,temperature_2m_min,precipitation_sum,windspeed_10m_max"

	hourlyTimeLayout = "2006-01-02T15:04"
	dateLayout       = "2006-01-02"
)

// Client wraps outbound calls to the Open-Meteo forecast and archive
// endpoints with retry, a circuit breaker, and a 1-hour response cache.
// It carries no domain knowledge beyond the wire contract.
type Client struct {
	httpClient    *http.Client
	forecastURL   string
	archiveURL    string
	loc           *time.Location
	cache         *responseCache
	breaker       *gobreaker.CircuitBreaker
	maxRetries    uint64
	retryInterval time.Duration
	now           func() time.Time
}

func NewClient(loc *time.Location) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		forecastURL: defaultForecastURL,
		archiveURL:  defaultArchiveURL,
		loc:         loc,
		cache:       newResponseCache(time.Hour),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openmeteo",
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		}),
		maxRetries:    5,
		retryInterval: 200 * time.Millisecond,
		now:           time.Now,
	}
}

// Current fetches current conditions for one city.
func (c *Client) Current(ctx context.Context, city models.City) (models.CurrentConditions, error) {
	q := url.Values{}
	q.Set("latitude", formatCoord(city.Latitude))
	q.Set("longitude", formatCoord(city.Longitude))
	q.Set("current", currentFields)

	body, err := c.get(ctx, "current", c.forecastURL+"?"+q.Encode())
	if err != nil {
		return models.CurrentConditions{}, &UpstreamError{City: city.Name, Endpoint: "current", Err: err}
	}

	var payload struct {
		Current map[string]json.RawMessage `json:"current"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.CurrentConditions{}, &MalformedError{City: city.Name, Detail: fmt.Sprintf("unmarshal: %v", err)}
	}
	if payload.Current == nil {
		return models.CurrentConditions{}, &MalformedError{City: city.Name, Detail: "missing current block"}
	}

	vals, merr := decodeFields(city.Name, payload.Current, currentFields)
	if merr != nil {
		return models.CurrentConditions{}, merr
	}
	if vals[0] == nil {
		return models.CurrentConditions{}, &MalformedError{City: city.Name, Detail: "temperature_2m is null"}
	}

	return models.CurrentConditions{
		Temperature:      *vals[0],
		Precipitation:    nullFrom(vals[1]),
		WindSpeed:        nullFrom(vals[2]),
		RelativeHumidity: nullFrom(vals[3]),
	}, nil
}

// Hourly fetches the hourly forecast for one city, starting from the top of
// the current hour in the configured civil zone, truncated to hours entries.
func (c *Client) Hourly(ctx context.Context, city models.City, hours int) ([]models.HourlyPoint, error) {
	now := c.now().In(c.loc)
	startHour := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, c.loc)
	endHour := startHour.Add(time.Duration(hours) * time.Hour)

	q := url.Values{}
	q.Set("latitude", formatCoord(city.Latitude))
	q.Set("longitude", formatCoord(city.Longitude))
	q.Set("hourly", hourlyFields)
	q.Set("timezone", c.loc.String())
	q.Set("start_date", startHour.Format(dateLayout))
	q.Set("end_date", endHour.Format(dateLayout))

	body, err := c.get(ctx, "hourly", c.forecastURL+"?"+q.Encode())
	if err != nil {
		return nil, &UpstreamError{City: city.Name, Endpoint: "hourly", Err: err}
	}

	var payload struct {
		Hourly map[string]json.RawMessage `json:"hourly"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &MalformedError{City: city.Name, Detail: fmt.Sprintf("unmarshal: %v", err)}
	}
	if payload.Hourly == nil {
		return nil, &MalformedError{City: city.Name, Detail: "missing hourly block"}
	}

	times, series, merr := decodeSeries(city.Name, payload.Hourly, hourlyFields)
	if merr != nil {
		return nil, merr
	}

	var points []models.HourlyPoint
	for i, ts := range times {
		t, err := time.ParseInLocation(hourlyTimeLayout, ts, c.loc)
		if err != nil {
			return nil, &MalformedError{City: city.Name, Detail: fmt.Sprintf("bad hourly time %q", ts)}
		}
		if t.Before(startHour) {
			continue
		}
		if len(points) >= hours {
			break
		}
		points = append(points, models.HourlyPoint{
			Time:             t,
			Temperature:      series[0][i],
			Precipitation:    series[1][i],
			WindSpeed:        series[2][i],
			RelativeHumidity: series[3][i],
		})
	}
	return points, nil
}

// DailyArchive fetches one day of archive data per calendar day in
// [start, end] from the historical endpoint.
func (c *Client) DailyArchive(ctx context.Context, city models.City, start, end time.Time) ([]models.DailyPoint, error) {
	q := url.Values{}
	q.Set("latitude", formatCoord(city.Latitude))
	q.Set("longitude", formatCoord(city.Longitude))
	q.Set("start_date", start.Format(dateLayout))
	q.Set("end_date", end.Format(dateLayout))
	q.Set("daily", dailyFields)
	q.Set("timezone", c.loc.String())

	body, err := c.get(ctx, "daily", c.archiveURL+"?"+q.Encode())
	if err != nil {
		return nil, &UpstreamError{City: city.Name, Endpoint: "daily", Err: err}
	}

	var payload struct {
		Daily map[string]json.RawMessage `json:"daily"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &MalformedError{City: city.Name, Detail: fmt.Sprintf("unmarshal: %v", err)}
	}
	if payload.Daily == nil {
		return nil, &MalformedError{City: city.Name, Detail: "missing daily block"}
	}

	times, series, merr := decodeSeries(city.Name, payload.Daily, dailyFields)
	if merr != nil {
		return nil, merr
	}

	var points []models.DailyPoint
	for i, ts := range times {
		d, err := time.ParseInLocation(dateLayout, ts, c.loc)
		if err != nil {
			return nil, &MalformedError{City: city.Name, Detail: fmt.Sprintf("bad daily date %q", ts)}
		}
		points = append(points, models.DailyPoint{
			Date:      d,
			TempMax:   series[0][i],
			TempMin:   series[1][i],
			PrecipSum: series[2][i],
			WindMax:   series[3][i],
		})
	}
	return points, nil
}

// get performs one cached, retried GET and returns the response body.
func (c *Client) get(ctx context.Context, endpoint, fullURL string) ([]byte, error) {
	if body, ok := c.cache.get(fullURL, c.now()); ok {
		metrics.UpstreamCacheHits.WithLabelValues(endpoint).Inc()
		return body, nil
	}

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		start := time.Now()
		result, err := c.breaker.Execute(func() (interface{}, error) {
			resp, err := c.httpClient.Do(req)
			if err != nil {
				metrics.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
				return nil, err
			}
			defer resp.Body.Close()

			metrics.UpstreamCallsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, fmt.Errorf("read body: %w", err)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, fmt.Errorf("status %d: %s", resp.StatusCode, snippet(b))
			}
			return b, nil
		})
		metrics.UpstreamLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			return err
		}
		body = result.([]byte)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0 // the retry count caps the loop, not wall clock
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx)); err != nil {
		return nil, err
	}

	c.cache.put(fullURL, body, c.now())
	return body, nil
}

// decodeFields reads scalar values back in the declared field order,
// failing fast on any missing or non-numeric field.
func decodeFields(city string, block map[string]json.RawMessage, declared string) ([]*float64, error) {
	fields := strings.Split(declared, ",")
	vals := make([]*float64, len(fields))
	for i, field := range fields {
		raw, ok := block[field]
		if !ok {
			return nil, &MalformedError{City: city, Detail: "missing field " + field}
		}
		if err := json.Unmarshal(raw, &vals[i]); err != nil {
			return nil, &MalformedError{City: city, Detail: fmt.Sprintf("field %s is not numeric", field)}
		}
	}
	return vals, nil
}

// decodeSeries reads the time array plus one value array per declared field,
// asserting that every array length matches before anything is indexed.
func decodeSeries(city string, block map[string]json.RawMessage, declared string) ([]string, [][]*float64, error) {
	rawTimes, ok := block["time"]
	if !ok {
		return nil, nil, &MalformedError{City: city, Detail: "missing time array"}
	}
	var times []string
	if err := json.Unmarshal(rawTimes, &times); err != nil {
		return nil, nil, &MalformedError{City: city, Detail: fmt.Sprintf("bad time array: %v", err)}
	}

	fields := strings.Split(declared, ",")
	series := make([][]*float64, len(fields))
	for i, field := range fields {
		raw, ok := block[field]
		if !ok {
			return nil, nil, &MalformedError{City: city, Detail: "missing field " + field}
		}
		if err := json.Unmarshal(raw, &series[i]); err != nil {
			return nil, nil, &MalformedError{City: city, Detail: fmt.Sprintf("bad %s array: %v", field, err)}
		}
		if len(series[i]) != len(times) {
			return nil, nil, &MalformedError{
				City:   city,
				Detail: fmt.Sprintf("field %s has %d values for %d timestamps", field, len(series[i]), len(times)),
			}
		}
	}
	return times, series, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func nullFrom(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func snippet(b []byte) string {
	const max = 200
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
