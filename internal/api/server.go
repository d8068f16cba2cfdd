package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pogodaio/pogoda/internal/aggregate"
	"github.com/pogodaio/pogoda/internal/ingest"
	"github.com/pogodaio/pogoda/internal/models"
	"github.com/pogodaio/pogoda/internal/store"
)

// ForecastSource fetches the hourly forecast for one city.
type ForecastSource interface {
	Hourly(ctx context.Context, city models.City, hours int) ([]models.HourlyPoint, error)
}

type Server struct {
	store      *store.Store
	forecasts  ForecastSource
	cycle      *ingest.Cycle
	aggregator *aggregate.Aggregator
	port       string
	loc        *time.Location
}

func NewServer(st *store.Store, forecasts ForecastSource, cycle *ingest.Cycle, aggregator *aggregate.Aggregator, port string, loc *time.Location) *Server {
	return &Server{
		store:      st,
		forecasts:  forecasts,
		cycle:      cycle,
		aggregator: aggregator,
		port:       port,
		loc:        loc,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/weather", s.handleListWeather)
	mux.HandleFunc("/api/weather/refresh", s.handleRefresh)
	mux.HandleFunc("/api/weather/history/", s.handleHistory)
	mux.HandleFunc("/api/weather/forecast/", s.handleForecast)
	mux.HandleFunc("/api/weather/aggregate", s.handleAggregateAll)
	mux.HandleFunc("/api/weather/aggregate/", s.handleAggregateCity)
	mux.HandleFunc("/api/weather/months/", s.handleMonths)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
